package ca

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jaqcquesndav/wanzo-ledger-gateway/common/errdef"
	"github.com/jaqcquesndav/wanzo-ledger-gateway/config"
	"github.com/jaqcquesndav/wanzo-ledger-gateway/wallet"
)

// selfSignedIdentity generates a usable ECDSA credential for token signing
func selfSignedIdentity(t *testing.T, cn string) *wallet.Identity {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(time.Hour),
	}
	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("failed to encode key: %v", err)
	}

	return &wallet.Identity{
		MSPID:       "OrgAMSP",
		Type:        wallet.TypeX509,
		Certificate: string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})),
		PrivateKey:  string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})),
	}
}

// fakeCA is a minimal fabric-ca look-alike
type fakeCA struct {
	registerCalls atomic.Int64
	enrollCalls   atomic.Int64
	// when true, every register answers "already registered"
	alwaysRegistered bool
}

func (f *fakeCA) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/register", func(w http.ResponseWriter, r *http.Request) {
		n := f.registerCalls.Add(1)
		if f.alwaysRegistered || n > 1 {
			json.NewEncoder(w).Encode(map[string]any{
				"success": false,
				"errors":  []map[string]any{{"code": 74, "message": "Identity 'u1' is already registered"}},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"result":  map[string]any{"secret": "generated-pw"},
		})
	})
	mux.HandleFunc("/api/v1/enroll", func(w http.ResponseWriter, r *http.Request) {
		f.enrollCalls.Add(1)
		cert := base64.StdEncoding.EncodeToString([]byte("-----BEGIN CERTIFICATE-----\nfake\n-----END CERTIFICATE-----\n"))
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"result":  map[string]any{"Cert": cert},
		})
	})
	return mux
}

func newTestClient(store wallet.Store) *Client {
	c := New(&config.Config{CAAdminID: "admin", CAAdminSecret: "adminpw"})
	c.openStore = func(*config.OrganizationConfig) (wallet.Store, error) { return store, nil }
	return c
}

func testOrg(caURL string) *config.OrganizationConfig {
	return &config.OrganizationConfig{
		Name:            "orgA",
		MSPID:           "OrgAMSP",
		WalletDir:       "wallet",
		Identity:        "opA",
		CAURL:           caURL,
		CAName:          "ca-orga",
		CAAdminIdentity: "admin",
	}
}

func TestEnsureAdminAlreadyPresent(t *testing.T) {
	store := wallet.NewMemStore()
	store.Put("admin", selfSignedIdentity(t, "admin"))

	srv := httptest.NewServer((&fakeCA{}).handler())
	defer srv.Close()

	c := newTestClient(store)
	ok, err := c.EnsureAdmin(context.Background(), testOrg(srv.URL))
	if err != nil {
		t.Fatalf("ensure admin failed: %v", err)
	}
	if !ok {
		t.Error("expected true for present admin")
	}
}

func TestEnsureAdminEnrolls(t *testing.T) {
	store := wallet.NewMemStore()
	fake := &fakeCA{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c := newTestClient(store)
	ok, err := c.EnsureAdmin(context.Background(), testOrg(srv.URL))
	if err != nil {
		t.Fatalf("ensure admin failed: %v", err)
	}
	if !ok {
		t.Error("expected admin to be enrolled")
	}
	if fake.enrollCalls.Load() != 1 {
		t.Errorf("expected 1 enroll call, got %d", fake.enrollCalls.Load())
	}
	id, _ := store.Get("admin")
	if id == nil || id.PrivateKey == "" {
		t.Error("admin identity not stored")
	}
}

func TestEnsureAdminNoRegistrarCredentials(t *testing.T) {
	store := wallet.NewMemStore()
	srv := httptest.NewServer((&fakeCA{}).handler())
	defer srv.Close()

	c := newTestClient(store)
	c.registrarSecret = ""
	ok, err := c.EnsureAdmin(context.Background(), testOrg(srv.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected false when no registrar credentials are available")
	}
}

func TestEnrollUserCANotConfigured(t *testing.T) {
	c := newTestClient(wallet.NewMemStore())
	org := testOrg("")

	_, err := c.EnrollUser(context.Background(), org, EnrollmentRequest{Username: "u1"})
	var ca *errdef.CANotConfigured
	if !errors.As(err, &ca) {
		t.Fatalf("expected CANotConfigured, got %v", err)
	}
	if len(ca.Issues) == 0 {
		t.Error("expected issue list on CANotConfigured")
	}
}

func TestEnrollUserAdminMissing(t *testing.T) {
	srv := httptest.NewServer((&fakeCA{}).handler())
	defer srv.Close()

	c := newTestClient(wallet.NewMemStore())
	c.registrarID = ""
	_, err := c.EnrollUser(context.Background(), srvOrg(srv), EnrollmentRequest{Username: "u1"})
	var missing *errdef.AdminIdentityMissing
	if !errors.As(err, &missing) {
		t.Fatalf("expected AdminIdentityMissing, got %v", err)
	}
}

func srvOrg(srv *httptest.Server) *config.OrganizationConfig {
	return testOrg(srv.URL)
}

func TestEnrollUserIdempotent(t *testing.T) {
	store := wallet.NewMemStore()
	store.Put("admin", selfSignedIdentity(t, "admin"))
	fake := &fakeCA{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c := newTestClient(store)
	req := EnrollmentRequest{Username: "u1", Affiliation: "orga.department1", Secret: "u1pw"}

	for i := 0; i < 2; i++ {
		username, err := c.EnrollUser(context.Background(), srvOrg(srv), req)
		if err != nil {
			t.Fatalf("enroll attempt %d failed: %v", i+1, err)
		}
		if username != "u1" {
			t.Errorf("unexpected username %q", username)
		}
	}

	if fake.registerCalls.Load() != 2 {
		t.Errorf("expected 2 register calls, got %d", fake.registerCalls.Load())
	}
	list, _ := store.List()
	users := 0
	for _, d := range list {
		if d.Label == "u1" {
			users++
		}
	}
	if users != 1 {
		t.Errorf("expected exactly one wallet record for u1, got %d", users)
	}
}

func TestProtocolFallbackDowngradesOnce(t *testing.T) {
	fake := &fakeCA{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	store := wallet.NewMemStore()
	store.Put("admin", selfSignedIdentity(t, "admin"))
	c := newTestClient(store)

	// The CA serves plaintext, but the configured URL claims https
	secureURL := "https://" + strings.TrimPrefix(srv.URL, "http://")
	op := c.newOperation(testOrg(secureURL))

	certPEM, keyPEM, err := op.enroll(context.Background(), "admin", "adminpw")
	if err != nil {
		t.Fatalf("enroll with fallback failed: %v", err)
	}
	if certPEM == "" || keyPEM == "" {
		t.Error("expected credential material from downgraded enroll")
	}
	if !op.downgraded {
		t.Error("operation must remember the downgrade")
	}
	if !strings.HasPrefix(op.caURL, "http://") {
		t.Errorf("expected downgraded URL, got %s", op.caURL)
	}
	if fake.enrollCalls.Load() != 1 {
		t.Errorf("expected exactly one successful enroll call, got %d", fake.enrollCalls.Load())
	}
}

func TestProtocolFallbackNotTriggeredForOtherErrors(t *testing.T) {
	store := wallet.NewMemStore()
	c := newTestClient(store)

	attempts := 0
	c.isMismatch = func(err error) bool {
		attempts++
		return false
	}

	// Nothing listens here; the dial fails with a non-mismatch error
	op := c.newOperation(testOrg("https://127.0.0.1:1"))
	_, _, err := op.enroll(context.Background(), "admin", "adminpw")
	if err == nil {
		t.Fatal("expected enroll against dead endpoint to fail")
	}
	if op.downgraded {
		t.Error("non-mismatch failure must not downgrade")
	}
	if attempts != 1 {
		t.Errorf("predicate must be consulted once, got %d", attempts)
	}
}

func TestRegisterSecretFallsBackToSupplied(t *testing.T) {
	store := wallet.NewMemStore()
	admin := selfSignedIdentity(t, "admin")
	fake := &fakeCA{alwaysRegistered: true}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c := newTestClient(store)
	op := c.newOperation(srvOrg(srv))

	secret, err := op.register(context.Background(), admin, EnrollmentRequest{Username: "u1", Secret: "mine"})
	if err != nil {
		t.Fatalf("register must treat already-registered as success: %v", err)
	}
	if secret != "mine" {
		t.Errorf("expected supplied secret back, got %q", secret)
	}
}

func TestAuthTokenShape(t *testing.T) {
	admin := selfSignedIdentity(t, "admin")

	token, err := authToken(admin.Certificate, admin.PrivateKey, []byte(`{"id":"u1"}`))
	if err != nil {
		t.Fatalf("auth token failed: %v", err)
	}
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		t.Fatalf("expected cert.sig token, got %d parts", len(parts))
	}
	certPart, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		t.Fatalf("cert part not base64: %v", err)
	}
	if !strings.Contains(string(certPart), "BEGIN CERTIFICATE") {
		t.Error("token cert part does not carry the PEM certificate")
	}
	if _, err := base64.StdEncoding.DecodeString(parts[1]); err != nil {
		t.Errorf("signature part not base64: %v", err)
	}
}

func TestNewCSR(t *testing.T) {
	csrPEM, keyPEM, err := newCSR("u1")
	if err != nil {
		t.Fatalf("csr generation failed: %v", err)
	}

	block, _ := pem.Decode([]byte(csrPEM))
	if block == nil || block.Type != "CERTIFICATE REQUEST" {
		t.Fatal("csr is not a CERTIFICATE REQUEST PEM block")
	}
	csr, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		t.Fatalf("csr does not parse: %v", err)
	}
	if csr.Subject.CommonName != "u1" {
		t.Errorf("unexpected CN %q", csr.Subject.CommonName)
	}
	if _, err := parseECPrivateKey(keyPEM); err != nil {
		t.Errorf("generated key does not parse: %v", err)
	}
}
