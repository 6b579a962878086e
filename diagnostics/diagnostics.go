// Package diagnostics answers configuration-completeness questions without
// side effects, so readiness checks and precondition gates never touch the
// network.
package diagnostics

import (
	"os"

	"github.com/jaqcquesndav/wanzo-ledger-gateway/config"
)

// Issue strings are stable; monitoring matches on them.
const (
	IssueCCPMissing       = "CCP_PATH missing"
	IssueMSPIDMissing     = "MSP_ID missing"
	IssueIdentityMissing  = "IDENTITY missing"
	IssueWalletDirMissing = "WALLET_DIR missing"
	IssueCAURLMissing     = "CA_URL missing"
	IssueCAAdminMissing   = "CA_ADMIN_IDENTITY missing"
)

// ConfigIssues lists the ledger prerequisites the organization is missing.
// Empty means the organization is ready for session opening.
func ConfigIssues(org *config.OrganizationConfig) []string {
	issues := []string{}
	if org.CCPPath == "" || !fileExists(org.CCPPath) {
		issues = append(issues, IssueCCPMissing)
	}
	if org.MSPID == "" {
		issues = append(issues, IssueMSPIDMissing)
	}
	if org.Identity == "" {
		issues = append(issues, IssueIdentityMissing)
	}
	if org.WalletDir == "" || !dirExists(org.WalletDir) {
		issues = append(issues, IssueWalletDirMissing)
	}
	return issues
}

// TopologyIssues lists only the connection-profile prerequisites. Static
// profile introspection needs the document but no identity or wallet.
func TopologyIssues(org *config.OrganizationConfig) []string {
	issues := []string{}
	if org.CCPPath == "" || !fileExists(org.CCPPath) {
		issues = append(issues, IssueCCPMissing)
	}
	return issues
}

// CAIssues lists the certificate-authority prerequisites the organization is
// missing.
func CAIssues(org *config.OrganizationConfig) []string {
	issues := []string{}
	if org.CAURL == "" {
		issues = append(issues, IssueCAURLMissing)
	}
	if org.WalletDir == "" {
		issues = append(issues, IssueWalletDirMissing)
	}
	if org.CAAdminIdentity == "" {
		issues = append(issues, IssueCAAdminMissing)
	}
	return issues
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
