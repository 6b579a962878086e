package ledger

import (
	"errors"
	"testing"

	"github.com/jaqcquesndav/wanzo-ledger-gateway/common/errdef"
	"github.com/jaqcquesndav/wanzo-ledger-gateway/config"
	"github.com/jaqcquesndav/wanzo-ledger-gateway/diagnostics"
)

func TestOpenNetworkRefusesIncompleteOrg(t *testing.T) {
	m := NewManager(&config.Config{Channel: "mychannel", Chaincode: "anchor"})
	org := &config.OrganizationConfig{Name: "incomplete"}

	_, _, err := m.OpenNetwork(org)
	var nc *errdef.NotConfigured
	if !errors.As(err, &nc) {
		t.Fatalf("expected NotConfigured, got %v", err)
	}
	if len(nc.Issues) != 4 {
		t.Errorf("expected all four issues, got %v", nc.Issues)
	}
	found := false
	for _, issue := range nc.Issues {
		if issue == diagnostics.IssueWalletDirMissing {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %q in issues, got %v", diagnostics.IssueWalletDirMissing, nc.Issues)
	}
}

func TestSessionCloseRunsClosersOnce(t *testing.T) {
	closed := 0
	s := &Session{Org: "orgA", closers: []func() error{func() error {
		closed++
		return nil
	}}}

	s.Close()
	s.Close()
	if closed != 1 {
		t.Errorf("closers must run exactly once, ran %d times", closed)
	}
}

func TestSessionCloseReverseOrder(t *testing.T) {
	var order []string
	s := &Session{Org: "orgA", closers: []func() error{
		func() error { order = append(order, "conn"); return nil },
		func() error { order = append(order, "gateway"); return nil },
	}}

	s.Close()
	if len(order) != 2 || order[0] != "gateway" || order[1] != "conn" {
		t.Errorf("expected gateway before conn, got %v", order)
	}
}

func TestGrpcAddress(t *testing.T) {
	cases := []struct {
		url         string
		asLocalhost bool
		want        string
	}{
		{"grpcs://peer0.orga.example.com:7051", false, "peer0.orga.example.com:7051"},
		{"grpc://peer0.orga.example.com:7051", false, "peer0.orga.example.com:7051"},
		{"grpcs://peer0.orga.example.com:7051", true, "localhost:7051"},
		{"peer0.orga.example.com:7051", false, "peer0.orga.example.com:7051"},
	}
	for _, tc := range cases {
		if got := grpcAddress(tc.url, tc.asLocalhost); got != tc.want {
			t.Errorf("grpcAddress(%q, %t) = %q, want %q", tc.url, tc.asLocalhost, got, tc.want)
		}
	}
}
