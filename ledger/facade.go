package ledger

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strconv"

	"github.com/hyperledger/fabric-protos-go-apiv2/common"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"

	"github.com/jaqcquesndav/wanzo-ledger-gateway/common/errdef"
	"github.com/jaqcquesndav/wanzo-ledger-gateway/config"
	"github.com/jaqcquesndav/wanzo-ledger-gateway/diagnostics"
	"github.com/jaqcquesndav/wanzo-ledger-gateway/profile"
	"github.com/jaqcquesndav/wanzo-ledger-gateway/wallet"
)

// System chaincode queried for block and transaction introspection
const qscc = "qscc"

// ChannelInfo is the decoded answer of a chain-info query
type ChannelInfo struct {
	Channel           string `json:"channel"`
	Height            uint64 `json:"height"`
	CurrentBlockHash  string `json:"currentBlockHash"`
	PreviousBlockHash string `json:"previousBlockHash"`
}

// Service is the transaction façade: every operation resolves to one scoped
// session, released on every exit path.
type Service struct {
	opener    Opener
	cfg       *config.Config
	openStore func(org *config.OrganizationConfig) (wallet.Store, error)
}

// NewService creates the façade backed by the production session manager
func NewService(cfg *config.Config) *Service {
	return &Service{opener: NewManager(cfg), cfg: cfg, openStore: wallet.Open}
}

// Anchor submits a content fingerprint under the caller-assigned reference
func (s *Service) Anchor(org *config.OrganizationConfig, refID, sha256Hex string) (string, error) {
	if refID == "" || sha256Hex == "" {
		return "", errdef.NewClientInput("refId and sha256 are required")
	}
	return s.submit(org, "anchor", refID, sha256Hex)
}

// AnchorCID submits a content-addressed identifier under the reference
func (s *Service) AnchorCID(org *config.OrganizationConfig, refID, cid string) (string, error) {
	if refID == "" || cid == "" {
		return "", errdef.NewClientInput("refId and cid are required")
	}
	return s.submit(org, "anchorCid", refID, cid)
}

func (s *Service) submit(org *config.OrganizationConfig, fn string, args ...string) (string, error) {
	sess, contract, err := s.opener.OpenContract(org)
	if err != nil {
		return "", err
	}
	defer sess.Close()

	payload, err := contract.Submit(fn, args...)
	if err != nil {
		return "", errors.Wrapf(err, "transaction %s failed", fn)
	}
	return string(payload), nil
}

// Verify evaluates the stored proof for a reference. The result is returned
// as structured data when it parses as JSON, raw text otherwise.
func (s *Service) Verify(org *config.OrganizationConfig, refID string) (any, error) {
	if refID == "" {
		return nil, errdef.NewClientInput("refId is required")
	}

	sess, contract, err := s.opener.OpenContract(org)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	payload, err := contract.Evaluate("verify", refID)
	if err != nil {
		return nil, errors.Wrap(err, "verify query failed")
	}

	var structured any
	if json.Unmarshal(payload, &structured) == nil {
		return structured, nil
	}
	return string(payload), nil
}

// ChannelInfo queries current ledger height and latest block hashes
func (s *Service) ChannelInfo(org *config.OrganizationConfig) (*ChannelInfo, error) {
	sess, network, err := s.opener.OpenNetwork(org)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	payload, err := network.Contract(qscc).Evaluate("GetChainInfo", s.cfg.Channel)
	if err != nil {
		return nil, errors.Wrap(err, "chain info query failed")
	}

	info := &common.BlockchainInfo{}
	if err := proto.Unmarshal(payload, info); err != nil {
		return nil, errors.Wrap(err, "failed to decode chain info")
	}
	return &ChannelInfo{
		Channel:           s.cfg.Channel,
		Height:            info.GetHeight(),
		CurrentBlockHash:  hex.EncodeToString(info.GetCurrentBlockHash()),
		PreviousBlockHash: hex.EncodeToString(info.GetPreviousBlockHash()),
	}, nil
}

// QueryBlock fetches one block by number as an opaque encoded payload
func (s *Service) QueryBlock(org *config.OrganizationConfig, number string) (string, error) {
	if _, err := strconv.ParseUint(number, 10, 64); err != nil {
		return "", errdef.NewClientInput("block number must be a non-negative integer")
	}
	return s.qsccQuery(org, "GetBlockByNumber", number)
}

// QueryTransaction fetches one transaction by ID as an opaque encoded payload
func (s *Service) QueryTransaction(org *config.OrganizationConfig, txID string) (string, error) {
	if txID == "" {
		return "", errdef.NewClientInput("txId is required")
	}
	return s.qsccQuery(org, "GetTransactionByID", txID)
}

func (s *Service) qsccQuery(org *config.OrganizationConfig, fn, arg string) (string, error) {
	sess, network, err := s.opener.OpenNetwork(org)
	if err != nil {
		return "", err
	}
	defer sess.Close()

	payload, err := network.Contract(qscc).Evaluate(fn, s.cfg.Channel, arg)
	if err != nil {
		return "", errors.Wrapf(err, "%s query failed", fn)
	}
	return base64.StdEncoding.EncodeToString(payload), nil
}

// ListPeers lists the peers of the organization's connection profile.
// Static introspection, no session is opened.
func (s *Service) ListPeers(org *config.OrganizationConfig) ([]map[string]string, error) {
	doc, err := s.loadProfile(org)
	if err != nil {
		return nil, err
	}
	return doc.PeerEndpoints(), nil
}

// NetworkSummary summarizes the organization's connection profile
func (s *Service) NetworkSummary(org *config.OrganizationConfig) (*profile.Summary, error) {
	doc, err := s.loadProfile(org)
	if err != nil {
		return nil, err
	}
	return doc.Summarize(), nil
}

// loadProfile gates static introspection on the topology prerequisite, so a
// missing profile answers as not-ready instead of a generic failure.
func (s *Service) loadProfile(org *config.OrganizationConfig) (*profile.Document, error) {
	if issues := diagnostics.TopologyIssues(org); len(issues) > 0 {
		return nil, errdef.NewNotConfigured(org.Name, issues)
	}
	return profile.Load(org, s.cfg.DockerMode)
}

// WalletIdentities lists the identities stored in the organization's wallet
func (s *Service) WalletIdentities(org *config.OrganizationConfig) ([]wallet.Descriptor, error) {
	store, err := s.openStore(org)
	if err != nil {
		return nil, err
	}
	return store.List()
}
