// Package wallet is the per-organization durable credential store. It is the
// single source of truth for "does organization X have identity Y ready".
package wallet

import (
	"crypto/x509"
	"encoding/pem"

	"github.com/jaqcquesndav/wanzo-ledger-gateway/config"
	"github.com/pkg/errors"
)

// TypeX509 is the identity type written for X.509 credential records
const TypeX509 = "X.509"

// Identity is a stored credential record. Records are never mutated in
// place; re-importing overwrites the prior record under the same label.
type Identity struct {
	Label       string `json:"-"`
	MSPID       string `json:"mspId"`
	Type        string `json:"type"`
	Certificate string `json:"certificate"`
	PrivateKey  string `json:"privateKey"`
}

// Descriptor is the listing view of a stored identity
type Descriptor struct {
	Label string `json:"label"`
	Type  string `json:"type"`
}

// Store is the wallet contract. Get returns (nil, nil) when the label is
// absent; Put overwrites.
type Store interface {
	Get(label string) (*Identity, error)
	Put(label string, id *Identity) error
	Remove(label string) error
	Exists(label string) (bool, error)
	List() ([]Descriptor, error)
}

// Open opens the filesystem wallet for the given organization
func Open(org *config.OrganizationConfig) (Store, error) {
	if org.WalletDir == "" {
		return nil, errors.Errorf("organization %s has no wallet directory", org.Name)
	}
	return NewFSStore(org.WalletDir), nil
}

// ValidateCertPEM checks that the given PEM block parses as an X.509
// certificate, so broken material is rejected before it reaches the wallet.
func ValidateCertPEM(certPEM string) error {
	block, _ := pem.Decode([]byte(certPEM))
	if block == nil {
		return errors.New("failed to decode certificate PEM block")
	}
	if _, err := x509.ParseCertificate(block.Bytes); err != nil {
		return errors.Wrap(err, "failed to parse certificate")
	}
	return nil
}
