// Package ca registers and enrolls identities against an organization's
// certificate authority, recovering automatically from CA endpoints that are
// configured with a secure scheme but actually serve plaintext.
package ca

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jaqcquesndav/wanzo-ledger-gateway/common/errdef"
	"github.com/jaqcquesndav/wanzo-ledger-gateway/common/logger"
	"github.com/jaqcquesndav/wanzo-ledger-gateway/config"
	"github.com/jaqcquesndav/wanzo-ledger-gateway/diagnostics"
	"github.com/jaqcquesndav/wanzo-ledger-gateway/wallet"
	"github.com/pkg/errors"
)

// Attribute is a role or attribute assertion attached to a registration
type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	ECert bool   `json:"ecert,omitempty"`
}

// EnrollmentRequest describes one user to register and enroll
type EnrollmentRequest struct {
	Username    string      `json:"username"`
	Affiliation string      `json:"affiliation"`
	Attrs       []Attribute `json:"attrs,omitempty"`
	Secret      string      `json:"secret,omitempty"`
}

// Client talks to per-organization certificate authorities
type Client struct {
	httpc           *http.Client
	registrarID     string
	registrarSecret string
	openStore       func(org *config.OrganizationConfig) (wallet.Store, error)
	isMismatch      func(error) bool
}

// New creates a CA client from the gateway configuration
func New(cfg *config.Config) *Client {
	return &Client{
		httpc: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				// dev topologies run CAs on self-signed TLS material
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
		registrarID:     cfg.CAAdminID,
		registrarSecret: cfg.CAAdminSecret,
		openStore:       wallet.Open,
		isMismatch:      IsProtocolMismatch,
	}
}

// EnsureAdmin guarantees the organization's administrator identity exists in
// the wallet. Returns true when it is present or was just enrolled with the
// environment registrar credentials, false when neither condition holds.
func (c *Client) EnsureAdmin(ctx context.Context, org *config.OrganizationConfig) (bool, error) {
	if issues := diagnostics.CAIssues(org); len(issues) > 0 {
		return false, errdef.NewCANotConfigured(org.Name, issues)
	}

	store, err := c.openStore(org)
	if err != nil {
		return false, err
	}
	existing, err := store.Get(org.CAAdminIdentity)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return true, nil
	}

	if c.registrarID == "" || c.registrarSecret == "" {
		logger.Warnf("no registrar credentials for org %s, admin identity cannot be enrolled", org.Name)
		return false, nil
	}

	op := c.newOperation(org)
	certPEM, keyPEM, err := op.enroll(ctx, c.registrarID, c.registrarSecret)
	if err != nil {
		return false, errors.Wrapf(err, "failed to enroll admin for org %s", org.Name)
	}

	id := &wallet.Identity{
		MSPID:       org.MSPID,
		Type:        wallet.TypeX509,
		Certificate: certPEM,
		PrivateKey:  keyPEM,
	}
	if err := store.Put(org.CAAdminIdentity, id); err != nil {
		return false, err
	}
	logger.Infof("enrolled admin identity %q for org %s", org.CAAdminIdentity, org.Name)
	return true, nil
}

// EnrollUser registers the username with the CA and enrolls it, storing the
// resulting credential in the wallet under the username. Registration is
// idempotent: an already-registered answer from the CA is success, reusing
// the caller-supplied secret.
func (c *Client) EnrollUser(ctx context.Context, org *config.OrganizationConfig, req EnrollmentRequest) (string, error) {
	if req.Username == "" {
		return "", errdef.NewClientInput("username is required")
	}
	if issues := diagnostics.CAIssues(org); len(issues) > 0 {
		return "", errdef.NewCANotConfigured(org.Name, issues)
	}

	ok, err := c.EnsureAdmin(ctx, org)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &errdef.AdminIdentityMissing{Org: org.Name, Label: org.CAAdminIdentity}
	}

	store, err := c.openStore(org)
	if err != nil {
		return "", err
	}
	admin, err := store.Get(org.CAAdminIdentity)
	if err != nil {
		return "", err
	}
	if admin == nil {
		return "", &errdef.AdminIdentityMissing{Org: org.Name, Label: org.CAAdminIdentity}
	}

	op := c.newOperation(org)
	secret, err := op.register(ctx, admin, req)
	if err != nil {
		return "", errors.Wrapf(err, "failed to register %s with CA of org %s", req.Username, org.Name)
	}

	certPEM, keyPEM, err := op.enroll(ctx, req.Username, secret)
	if err != nil {
		return "", errors.Wrapf(err, "failed to enroll %s with CA of org %s", req.Username, org.Name)
	}

	id := &wallet.Identity{
		MSPID:       org.MSPID,
		Type:        wallet.TypeX509,
		Certificate: certPEM,
		PrivateKey:  keyPEM,
	}
	if err := store.Put(req.Username, id); err != nil {
		return "", err
	}
	logger.Infof("enrolled identity %q for org %s", req.Username, org.Name)
	return req.Username, nil
}

// operation carries the CA URL for one logical register/enroll sequence, so a
// plaintext downgrade is remembered for the remainder of that sequence.
type operation struct {
	client     *Client
	org        *config.OrganizationConfig
	caURL      string
	downgraded bool
}

func (c *Client) newOperation(org *config.OrganizationConfig) *operation {
	return &operation{client: c, org: org, caURL: strings.TrimRight(org.CAURL, "/")}
}

type caResponse struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Errors  []caError       `json:"errors"`
}

type caError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type registerBody struct {
	ID          string      `json:"id"`
	Type        string      `json:"type"`
	Affiliation string      `json:"affiliation"`
	Secret      string      `json:"secret,omitempty"`
	Attrs       []Attribute `json:"attrs,omitempty"`
	CAName      string      `json:"caname,omitempty"`
}

type enrollBody struct {
	CertificateRequest string `json:"certificate_request"`
	CAName             string `json:"caname,omitempty"`
}

// register registers the user via the admin credential. The returned secret
// is the CA-assigned one, falling back to the caller-supplied secret when the
// CA reports the user as already registered.
func (o *operation) register(ctx context.Context, admin *wallet.Identity, req EnrollmentRequest) (string, error) {
	body, err := json.Marshal(registerBody{
		ID:          req.Username,
		Type:        "client",
		Affiliation: req.Affiliation,
		Secret:      req.Secret,
		Attrs:       req.Attrs,
		CAName:      o.org.CAName,
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to encode register request")
	}

	token, err := authToken(admin.Certificate, admin.PrivateKey, body)
	if err != nil {
		return "", err
	}

	rsp, err := o.post(ctx, "/api/v1/register", body, func(r *http.Request) {
		r.Header.Set("Authorization", token)
	})
	if err != nil {
		return "", err
	}

	if !rsp.Success {
		if alreadyRegistered(rsp.Errors) {
			logger.Warnf("user %s already registered with CA of org %s, reusing supplied secret", req.Username, o.org.Name)
			return req.Secret, nil
		}
		return "", errors.Errorf("CA registration rejected: %s", joinErrors(rsp.Errors))
	}

	var result struct {
		Secret string `json:"secret"`
	}
	if err := json.Unmarshal(rsp.Result, &result); err != nil {
		return "", errors.Wrap(err, "failed to parse register result")
	}
	if result.Secret == "" {
		result.Secret = req.Secret
	}
	return result.Secret, nil
}

// enroll obtains a certificate for the enrollment ID via basic auth and a
// fresh CSR. Returns certificate and private key as PEM.
func (o *operation) enroll(ctx context.Context, enrollID, secret string) (string, string, error) {
	csrPEM, keyPEM, err := newCSR(enrollID)
	if err != nil {
		return "", "", err
	}

	body, err := json.Marshal(enrollBody{CertificateRequest: csrPEM, CAName: o.org.CAName})
	if err != nil {
		return "", "", errors.Wrap(err, "failed to encode enroll request")
	}

	rsp, err := o.post(ctx, "/api/v1/enroll", body, func(r *http.Request) {
		r.SetBasicAuth(enrollID, secret)
	})
	if err != nil {
		return "", "", err
	}
	if !rsp.Success {
		return "", "", errors.Errorf("CA enrollment rejected: %s", joinErrors(rsp.Errors))
	}

	var result struct {
		Cert string `json:"Cert"`
	}
	if err := json.Unmarshal(rsp.Result, &result); err != nil {
		return "", "", errors.Wrap(err, "failed to parse enroll result")
	}
	certPEM, err := base64.StdEncoding.DecodeString(result.Cert)
	if err != nil {
		return "", "", errors.Wrap(err, "failed to decode enrolled certificate")
	}
	return string(certPEM), keyPEM, nil
}

// post performs one CA call with the single plaintext downgrade retry. Only a
// protocol mismatch on a secure URL triggers the retry, exactly once per
// operation; every other failure propagates unmodified.
func (o *operation) post(ctx context.Context, path string, body []byte, authorize func(*http.Request)) (*caResponse, error) {
	rsp, err := o.attempt(ctx, path, body, authorize)
	if err != nil && !o.downgraded && strings.HasPrefix(o.caURL, "https://") && o.client.isMismatch(err) {
		logger.Warnf("CA at %s answered plaintext on a secure URL, retrying once over http", o.caURL)
		o.caURL = "http://" + strings.TrimPrefix(o.caURL, "https://")
		o.downgraded = true
		return o.attempt(ctx, path, body, authorize)
	}
	return rsp, err
}

func (o *operation) attempt(ctx context.Context, path string, body []byte, authorize func(*http.Request)) (*caResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.caURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build CA request")
	}
	req.Header.Set("Content-Type", "application/json")
	authorize(req)

	httpRsp, err := o.client.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "CA call %s failed", path)
	}
	defer httpRsp.Body.Close()

	raw, err := io.ReadAll(httpRsp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read CA response from %s", path)
	}

	rsp := &caResponse{}
	if err := json.Unmarshal(raw, rsp); err != nil {
		return nil, errors.Errorf("CA call %s returned status %d with unparseable body", path, httpRsp.StatusCode)
	}
	return rsp, nil
}

func alreadyRegistered(errs []caError) bool {
	for _, e := range errs {
		if strings.Contains(strings.ToLower(e.Message), "already registered") {
			return true
		}
	}
	return false
}

func joinErrors(errs []caError) string {
	if len(errs) == 0 {
		return "unknown CA error"
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}
