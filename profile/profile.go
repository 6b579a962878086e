// Package profile loads per-organization connection profiles (the network
// topology documents describing peers, orderers and certificate authorities).
package profile

import (
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jaqcquesndav/wanzo-ledger-gateway/common/logger"
	"github.com/jaqcquesndav/wanzo-ledger-gateway/config"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// PEMBlock holds inline certificate material from a profile
type PEMBlock struct {
	PEM string `json:"pem" yaml:"pem"`
}

// Endpoint is a peer or orderer entry
type Endpoint struct {
	URL         string         `json:"url" yaml:"url"`
	TLSCACerts  PEMBlock       `json:"tlsCACerts" yaml:"tlsCACerts"`
	GRPCOptions map[string]any `json:"grpcOptions" yaml:"grpcOptions"`
}

// CAEntry is a certificate authority entry
type CAEntry struct {
	URL        string   `json:"url" yaml:"url"`
	CAName     string   `json:"caName" yaml:"caName"`
	TLSCACerts PEMBlock `json:"tlsCACerts" yaml:"tlsCACerts"`
}

// OrgEntry is an organizations-section entry
type OrgEntry struct {
	MSPID                  string   `json:"mspid" yaml:"mspid"`
	Peers                  []string `json:"peers" yaml:"peers"`
	CertificateAuthorities []string `json:"certificateAuthorities" yaml:"certificateAuthorities"`
}

// Document is a parsed connection profile
type Document struct {
	Name                   string              `json:"name" yaml:"name"`
	Organizations          map[string]OrgEntry `json:"organizations" yaml:"organizations"`
	Peers                  map[string]Endpoint `json:"peers" yaml:"peers"`
	Orderers               map[string]Endpoint `json:"orderers" yaml:"orderers"`
	CertificateAuthorities map[string]CAEntry  `json:"certificateAuthorities" yaml:"certificateAuthorities"`
}

// Summary is the static introspection view of a Document
type Summary struct {
	Name          string   `json:"name"`
	Organizations []string `json:"organizations"`
	Peers         []string `json:"peers"`
	Orderers      []string `json:"orderers"`
	CAs           []string `json:"cas"`
}

// Load reads and parses the organization's connection profile. When
// dockerMode is on, every loopback endpoint is rewritten to its
// container-reachable hostname. The document is re-read on every call since
// operators may template it between requests.
func Load(org *config.OrganizationConfig, dockerMode bool) (*Document, error) {
	if org.CCPPath == "" {
		return nil, errors.Errorf("organization %s has no connection profile path", org.Name)
	}

	raw, err := os.ReadFile(org.CCPPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read connection profile %s", org.CCPPath)
	}

	doc := &Document{}
	if strings.EqualFold(filepath.Ext(org.CCPPath), ".json") {
		err = json.Unmarshal(raw, doc)
	} else {
		err = yaml.Unmarshal(raw, doc)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse connection profile %s", org.CCPPath)
	}

	if dockerMode {
		doc.rewriteLoopback()
	}
	return doc, nil
}

// rewriteLoopback replaces loopback hosts with the entry's own name, which is
// the container-reachable hostname in a composed topology. Applies to peers,
// orderers and certificate authorities alike.
func (d *Document) rewriteLoopback() {
	for name, ep := range d.Peers {
		ep.URL = replaceLoopbackHost(ep.URL, name)
		d.Peers[name] = ep
	}
	for name, ep := range d.Orderers {
		ep.URL = replaceLoopbackHost(ep.URL, name)
		d.Orderers[name] = ep
	}
	for name, ca := range d.CertificateAuthorities {
		ca.URL = replaceLoopbackHost(ca.URL, name)
		d.CertificateAuthorities[name] = ca
	}
}

func replaceLoopbackHost(rawURL, host string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	if u.Hostname() != "localhost" && u.Hostname() != "127.0.0.1" {
		return rawURL
	}
	if port := u.Port(); port != "" {
		u.Host = host + ":" + port
	} else {
		u.Host = host
	}
	logger.Debugf("rewrote loopback endpoint %s -> %s", rawURL, u.String())
	return u.String()
}

// orgEntry finds the organizations-section entry for the configured org,
// matching by section key first and MSP ID second.
func (d *Document) orgEntry(org *config.OrganizationConfig) *OrgEntry {
	for key, entry := range d.Organizations {
		if strings.EqualFold(key, org.Name) {
			e := entry
			return &e
		}
	}
	for _, entry := range d.Organizations {
		if entry.MSPID == org.MSPID {
			e := entry
			return &e
		}
	}
	return nil
}

// FirstPeer returns the name and endpoint of the gateway peer for the given
// organization: the first peer listed under its organizations entry, else the
// first peer in the document.
func (d *Document) FirstPeer(org *config.OrganizationConfig) (string, *Endpoint, error) {
	if entry := d.orgEntry(org); entry != nil {
		for _, name := range entry.Peers {
			if ep, ok := d.Peers[name]; ok {
				return name, &ep, nil
			}
		}
	}
	for _, name := range sortedKeys(d.Peers) {
		ep := d.Peers[name]
		return name, &ep, nil
	}
	return "", nil, errors.New("connection profile lists no peers")
}

// PeerEndpoints lists every peer name with its endpoint URL
func (d *Document) PeerEndpoints() []map[string]string {
	peers := make([]map[string]string, 0, len(d.Peers))
	for _, name := range sortedKeys(d.Peers) {
		peers = append(peers, map[string]string{"name": name, "url": d.Peers[name].URL})
	}
	return peers
}

// Summarize returns the static summary of the document
func (d *Document) Summarize() *Summary {
	return &Summary{
		Name:          d.Name,
		Organizations: sortedKeys(d.Organizations),
		Peers:         sortedKeys(d.Peers),
		Orderers:      sortedKeys(d.Orderers),
		CAs:           sortedKeys(d.CertificateAuthorities),
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
