// Package ledger opens scoped, authenticated sessions against the ledger
// network and exposes the transaction operations of the gateway.
package ledger

import (
	"crypto/x509"
	"strings"
	"time"

	"github.com/hyperledger/fabric-gateway/pkg/client"
	"github.com/hyperledger/fabric-gateway/pkg/hash"
	"github.com/hyperledger/fabric-gateway/pkg/identity"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/jaqcquesndav/wanzo-ledger-gateway/common/errdef"
	"github.com/jaqcquesndav/wanzo-ledger-gateway/common/logger"
	"github.com/jaqcquesndav/wanzo-ledger-gateway/config"
	"github.com/jaqcquesndav/wanzo-ledger-gateway/diagnostics"
	"github.com/jaqcquesndav/wanzo-ledger-gateway/profile"
	"github.com/jaqcquesndav/wanzo-ledger-gateway/wallet"
)

// Contract is the transaction surface of one chaincode
type Contract interface {
	Submit(name string, args ...string) ([]byte, error)
	Evaluate(name string, args ...string) ([]byte, error)
}

// Network is the channel-level surface, handing out contracts by name
type Network interface {
	Contract(name string) Contract
}

// Opener opens authenticated ledger sessions. Every caller must release the
// returned session on every exit path.
type Opener interface {
	OpenContract(org *config.OrganizationConfig) (*Session, Contract, error)
	OpenNetwork(org *config.OrganizationConfig) (*Session, Network, error)
}

// Session owns the resources of one open ledger connection
type Session struct {
	Org     string
	closers []func() error
}

// Close releases the session. Safe to call more than once.
func (s *Session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.Warnf("session teardown for org %s: %v", s.Org, err)
		}
	}
	s.closers = nil
}

// Manager is the production Opener backed by the Fabric gateway protocol
type Manager struct {
	cfg       *config.Config
	openStore func(org *config.OrganizationConfig) (wallet.Store, error)
}

// NewManager creates a session manager for the configuration snapshot
func NewManager(cfg *config.Config) *Manager {
	return &Manager{cfg: cfg, openStore: wallet.Open}
}

// OpenContract opens a session scoped to the configured chaincode
func (m *Manager) OpenContract(org *config.OrganizationConfig) (*Session, Contract, error) {
	sess, network, err := m.OpenNetwork(org)
	if err != nil {
		return nil, nil, err
	}
	return sess, network.Contract(m.cfg.Chaincode), nil
}

// OpenNetwork opens a session scoped to the configured channel
func (m *Manager) OpenNetwork(org *config.OrganizationConfig) (*Session, Network, error) {
	if issues := diagnostics.ConfigIssues(org); len(issues) > 0 {
		return nil, nil, errdef.NewNotConfigured(org.Name, issues)
	}

	doc, err := profile.Load(org, m.cfg.DockerMode)
	if err != nil {
		return nil, nil, err
	}
	peerName, endpoint, err := doc.FirstPeer(org)
	if err != nil {
		return nil, nil, err
	}

	// Container addressing already resolves real hostnames; localhost
	// substitution only applies outside it.
	asLocalhost := m.cfg.DiscoveryEnabled && org.DiscoveryAsLocalhost && !m.cfg.DockerMode
	address := grpcAddress(endpoint.URL, asLocalhost)

	store, err := m.openStore(org)
	if err != nil {
		return nil, nil, err
	}
	record, err := store.Get(org.Identity)
	if err != nil {
		return nil, nil, err
	}
	if record == nil {
		return nil, nil, errors.Errorf("identity %q not found in wallet of org %s", org.Identity, org.Name)
	}

	cert, err := identity.CertificateFromPEM([]byte(record.Certificate))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "invalid certificate for identity %q", org.Identity)
	}
	id, err := identity.NewX509Identity(org.MSPID, cert)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to build X.509 identity")
	}
	key, err := identity.PrivateKeyFromPEM([]byte(record.PrivateKey))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "invalid private key for identity %q", org.Identity)
	}
	sign, err := identity.NewPrivateKeySign(key)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to build signer")
	}

	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(transportCredentials(endpoint, peerName)))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to connect to peer %s at %s", peerName, address)
	}

	gw, err := client.Connect(id,
		client.WithSign(sign),
		client.WithHash(hash.SHA256),
		client.WithClientConnection(conn),
		client.WithEvaluateTimeout(30*time.Second),
		client.WithEndorseTimeout(30*time.Second),
		client.WithSubmitTimeout(30*time.Second),
		client.WithCommitStatusTimeout(time.Minute),
	)
	if err != nil {
		conn.Close()
		return nil, nil, errors.Wrapf(err, "failed to open gateway session for org %s", org.Name)
	}

	logger.Debugf("opened ledger session for org %s via peer %s (%s)", org.Name, peerName, address)
	sess := &Session{
		Org:     org.Name,
		closers: []func() error{conn.Close, gw.Close},
	}
	return sess, &gatewayNetwork{network: gw.GetNetwork(m.cfg.Channel)}, nil
}

// grpcAddress strips the scheme and optionally substitutes localhost
func grpcAddress(rawURL string, asLocalhost bool) string {
	address := rawURL
	for _, scheme := range []string{"grpcs://", "grpc://"} {
		address = strings.TrimPrefix(address, scheme)
	}
	if asLocalhost {
		if idx := strings.LastIndex(address, ":"); idx > 0 {
			address = "localhost" + address[idx:]
		}
	}
	return address
}

func transportCredentials(endpoint *profile.Endpoint, peerName string) credentials.TransportCredentials {
	if !strings.HasPrefix(endpoint.URL, "grpcs://") {
		return insecure.NewCredentials()
	}

	override := peerName
	if v, ok := endpoint.GRPCOptions["ssl-target-name-override"].(string); ok && v != "" {
		override = v
	}
	pool := x509.NewCertPool()
	if endpoint.TLSCACerts.PEM != "" {
		if !pool.AppendCertsFromPEM([]byte(endpoint.TLSCACerts.PEM)) {
			logger.Warnf("could not parse TLS CA material for peer %s", peerName)
		}
	}
	return credentials.NewClientTLSFromCert(pool, override)
}

type gatewayNetwork struct {
	network *client.Network
}

func (n *gatewayNetwork) Contract(name string) Contract {
	return &gatewayContract{contract: n.network.GetContract(name)}
}

type gatewayContract struct {
	contract *client.Contract
}

func (c *gatewayContract) Submit(name string, args ...string) ([]byte, error) {
	return c.contract.SubmitTransaction(name, args...)
}

func (c *gatewayContract) Evaluate(name string, args ...string) ([]byte, error) {
	return c.contract.EvaluateTransaction(name, args...)
}
