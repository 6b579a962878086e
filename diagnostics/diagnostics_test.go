package diagnostics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jaqcquesndav/wanzo-ledger-gateway/config"
)

func completeOrg(t *testing.T) *config.OrganizationConfig {
	t.Helper()
	dir := t.TempDir()
	ccp := filepath.Join(dir, "ccp.json")
	if err := os.WriteFile(ccp, []byte("{}"), 0o644); err != nil {
		t.Fatalf("failed to write ccp: %v", err)
	}
	wallet := filepath.Join(dir, "wallet")
	os.MkdirAll(wallet, 0o750)
	return &config.OrganizationConfig{
		Name:            "orgA",
		MSPID:           "OrgAMSP",
		CCPPath:         ccp,
		WalletDir:       wallet,
		Identity:        "opA",
		CAURL:           "https://localhost:7054",
		CAAdminIdentity: "admin",
	}
}

func TestConfigIssuesComplete(t *testing.T) {
	if issues := ConfigIssues(completeOrg(t)); len(issues) != 0 {
		t.Errorf("expected no issues, got %v", issues)
	}
}

func TestConfigIssuesMissingWalletDir(t *testing.T) {
	org := completeOrg(t)
	org.WalletDir = filepath.Join(org.WalletDir, "nope")

	issues := ConfigIssues(org)
	if len(issues) != 1 || issues[0] != IssueWalletDirMissing {
		t.Errorf("expected [%s], got %v", IssueWalletDirMissing, issues)
	}
}

func TestConfigIssuesEverythingMissing(t *testing.T) {
	issues := ConfigIssues(&config.OrganizationConfig{Name: "empty"})
	if len(issues) != 4 {
		t.Errorf("expected 4 issues, got %v", issues)
	}
}

func TestCAIssues(t *testing.T) {
	org := completeOrg(t)
	if issues := CAIssues(org); len(issues) != 0 {
		t.Errorf("expected no CA issues, got %v", issues)
	}

	org.CAURL = ""
	org.CAAdminIdentity = ""
	issues := CAIssues(org)
	if len(issues) != 2 {
		t.Errorf("expected 2 CA issues, got %v", issues)
	}
}
