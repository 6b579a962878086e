// Package registry resolves which configured organization a request targets.
package registry

import (
	"github.com/jaqcquesndav/wanzo-ledger-gateway/common/logger"
	"github.com/jaqcquesndav/wanzo-ledger-gateway/config"
)

// Registry holds the immutable organization snapshot loaded at startup.
// It is safe for unsynchronized concurrent reads.
type Registry struct {
	orgs       []config.OrganizationConfig
	defaultOrg string
}

// New creates a Registry from the configuration snapshot
func New(cfg *config.Config) *Registry {
	return &Registry{orgs: cfg.Orgs, defaultOrg: cfg.DefaultOrg}
}

// All returns every configured organization
func (r *Registry) All() []config.OrganizationConfig {
	return r.orgs
}

// First returns the first configured organization
func (r *Registry) First() *config.OrganizationConfig {
	return &r.orgs[0]
}

// Lookup returns the organization with the given name. An unknown name
// degrades to the first configured organization; this fallback is part of the
// external contract, so it is logged rather than raised.
func (r *Registry) Lookup(name string) *config.OrganizationConfig {
	if name == "" {
		return r.First()
	}
	for i := range r.orgs {
		if r.orgs[i].Name == name {
			return &r.orgs[i]
		}
	}
	logger.Warnf("unknown organization %q, falling back to %q", name, r.orgs[0].Name)
	return r.First()
}

// ResolveRequest resolves the target organization for a request.
// Priority: explicit header, explicit query parameter, configured default,
// first configured organization.
func (r *Registry) ResolveRequest(header, query string) *config.OrganizationConfig {
	if header != "" {
		return r.Lookup(header)
	}
	if query != "" {
		return r.Lookup(query)
	}
	if r.defaultOrg != "" {
		return r.Lookup(r.defaultOrg)
	}
	return r.First()
}
