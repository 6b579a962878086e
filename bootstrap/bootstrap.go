// Package bootstrap pre-loads wallet identities from conventional credential
// directories at process startup. Everything here is best-effort: a missing
// credential is an expected cold-start state, resolved later through explicit
// enrollment, so failures become named outcomes instead of errors.
package bootstrap

import (
	"os"
	"path/filepath"

	"github.com/jaqcquesndav/wanzo-ledger-gateway/common/logger"
	"github.com/jaqcquesndav/wanzo-ledger-gateway/config"
	"github.com/jaqcquesndav/wanzo-ledger-gateway/wallet"
)

// Outcome records one identity import attempt. Imported is false for both skips and
// failures; Reason says which.
type Outcome struct {
	Org      string `json:"org"`
	Label    string `json:"label"`
	Imported bool   `json:"imported"`
	Reason   string `json:"reason,omitempty"`
}

// OpenStore is the wallet opener, replaceable in tests
type OpenStore func(org *config.OrganizationConfig) (wallet.Store, error)

// EnsureIdentities runs the startup auto-import for every organization:
// the operator identity from <walletDir>/../credentials, the administrator
// identity from the nested admin directory.
func EnsureIdentities(orgs []config.OrganizationConfig, open OpenStore) []Outcome {
	if open == nil {
		open = wallet.Open
	}

	outcomes := make([]Outcome, 0, len(orgs)*2)
	for i := range orgs {
		org := &orgs[i]
		credDir := filepath.Join(filepath.Dir(org.WalletDir), "credentials")

		outcomes = append(outcomes,
			ensureOne(org, open, org.Identity, credDir),
			ensureOne(org, open, org.CAAdminIdentity, filepath.Join(credDir, "admin")),
		)
	}

	for _, o := range outcomes {
		if o.Imported {
			logger.Infof("imported identity %q for org %s from local credentials", o.Label, o.Org)
		} else {
			logger.Debugf("identity %q for org %s not imported: %s", o.Label, o.Org, o.Reason)
		}
	}
	return outcomes
}

func ensureOne(org *config.OrganizationConfig, open OpenStore, label, credDir string) Outcome {
	out := Outcome{Org: org.Name, Label: label}

	if label == "" {
		out.Reason = "no identity label configured"
		return out
	}
	if org.WalletDir == "" {
		out.Reason = "no wallet directory configured"
		return out
	}

	store, err := open(org)
	if err != nil {
		out.Reason = err.Error()
		return out
	}
	exists, err := store.Exists(label)
	if err != nil {
		out.Reason = err.Error()
		return out
	}
	if exists {
		out.Reason = "already present"
		return out
	}

	certPEM, err := os.ReadFile(filepath.Join(credDir, "cert.pem"))
	if err != nil {
		out.Reason = "cert.pem not found in " + credDir
		return out
	}
	keyPEM, err := os.ReadFile(filepath.Join(credDir, "key.pem"))
	if err != nil {
		out.Reason = "key.pem not found in " + credDir
		return out
	}
	if err := wallet.ValidateCertPEM(string(certPEM)); err != nil {
		out.Reason = "invalid certificate material: " + err.Error()
		return out
	}

	id := &wallet.Identity{
		MSPID:       org.MSPID,
		Type:        wallet.TypeX509,
		Certificate: string(certPEM),
		PrivateKey:  string(keyPEM),
	}
	if err := store.Put(label, id); err != nil {
		out.Reason = err.Error()
		return out
	}

	out.Imported = true
	return out
}
