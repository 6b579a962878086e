package server

import (
	"errors"
	"os"

	"github.com/gofiber/fiber/v2"

	"github.com/jaqcquesndav/wanzo-ledger-gateway/ca"
	"github.com/jaqcquesndav/wanzo-ledger-gateway/common/errdef"
	"github.com/jaqcquesndav/wanzo-ledger-gateway/common/logger"
	"github.com/jaqcquesndav/wanzo-ledger-gateway/config"
	"github.com/jaqcquesndav/wanzo-ledger-gateway/diagnostics"
	"github.com/jaqcquesndav/wanzo-ledger-gateway/wallet"
)

// writeError maps the gateway error taxonomy onto HTTP answers
func writeError(c *fiber.Ctx, org string, err error) error {
	switch {
	case errdef.IsClientInput(err):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error(), "org": org})
	case errdef.IsNotConfigured(err):
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{
			"error":  err.Error(),
			"org":    org,
			"issues": errdef.Issues(err),
		})
	}
	var admin *errdef.AdminIdentityMissing
	if errors.As(err, &admin) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
			"org":   org,
			"admin": admin.Label,
		})
	}
	logger.Errorf("request failed for org %s: %v", org, err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error(), "org": org})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleReadiness reports unreadiness as data so monitoring can poll it
func (s *Server) handleReadiness(c *fiber.Ctx) error {
	org := s.org(c)
	issues := diagnostics.ConfigIssues(org)
	return c.JSON(fiber.Map{
		"ready":  len(issues) == 0,
		"org":    org.Name,
		"issues": issues,
	})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	org := s.org(c)
	return c.JSON(fiber.Map{
		"org": org.Name,
		"config": fiber.Map{
			"mspId":     org.MSPID,
			"ccpPath":   org.CCPPath,
			"walletDir": org.WalletDir,
			"identity":  org.Identity,
			"channel":   s.cfg.Channel,
			"chaincode": s.cfg.Chaincode,
		},
		"issues": diagnostics.ConfigIssues(org),
		"ca": fiber.Map{
			"url":           org.CAURL,
			"name":          org.CAName,
			"adminIdentity": org.CAAdminIdentity,
			"issues":        diagnostics.CAIssues(org),
		},
	})
}

func (s *Server) handleOrgs(c *fiber.Ctx) error {
	orgs := s.registry.All()
	out := make([]fiber.Map, 0, len(orgs))
	for i := range orgs {
		org := &orgs[i]
		out = append(out, fiber.Map{
			"name":            org.Name,
			"mspId":           org.MSPID,
			"ccpPresent":      fileExists(org.CCPPath),
			"walletPresent":   dirExists(org.WalletDir),
			"identityPresent": identityPresent(org),
			"caConfigured":    org.CAURL != "",
		})
	}
	return c.JSON(fiber.Map{"orgs": out})
}

type anchorRequest struct {
	RefID  string `json:"refId"`
	SHA256 string `json:"sha256"`
	CID    string `json:"cid"`
}

func (s *Server) handleAnchor(c *fiber.Ctx) error {
	org := s.org(c)
	var req anchorRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, org.Name, errdef.NewClientInput("invalid request body"))
	}

	result, err := s.ledger.Anchor(org, req.RefID, req.SHA256)
	if err != nil {
		return writeError(c, org.Name, err)
	}
	return c.JSON(fiber.Map{"ok": true, "org": org.Name, "result": result})
}

func (s *Server) handleAnchorCID(c *fiber.Ctx) error {
	org := s.org(c)
	var req anchorRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, org.Name, errdef.NewClientInput("invalid request body"))
	}

	result, err := s.ledger.AnchorCID(org, req.RefID, req.CID)
	if err != nil {
		return writeError(c, org.Name, err)
	}
	return c.JSON(fiber.Map{"ok": true, "org": org.Name, "result": result})
}

func (s *Server) handleVerify(c *fiber.Ctx) error {
	org := s.org(c)
	result, err := s.ledger.Verify(org, c.Query("refId"))
	if err != nil {
		return writeError(c, org.Name, err)
	}
	return c.JSON(fiber.Map{"ok": true, "org": org.Name, "result": result})
}

func (s *Server) handleCAStatus(c *fiber.Ctx) error {
	org := s.org(c)
	issues := diagnostics.CAIssues(org)
	return c.JSON(fiber.Map{
		"org": org.Name,
		"ca": fiber.Map{
			"url":           org.CAURL,
			"name":          org.CAName,
			"adminIdentity": org.CAAdminIdentity,
		},
		"ready":  len(issues) == 0,
		"issues": issues,
	})
}

func (s *Server) handleCAAdminEnroll(c *fiber.Ctx) error {
	org := s.org(c)
	ready, err := s.ca.EnsureAdmin(c.UserContext(), org)
	if err != nil {
		return writeError(c, org.Name, err)
	}
	return c.JSON(fiber.Map{
		"ok":    ready,
		"org":   org.Name,
		"admin": org.CAAdminIdentity,
	})
}

func (s *Server) handleCARegisterEnroll(c *fiber.Ctx) error {
	org := s.org(c)
	var req ca.EnrollmentRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, org.Name, errdef.NewClientInput("invalid request body"))
	}

	username, err := s.ca.EnrollUser(c.UserContext(), org, req)
	if err != nil {
		return writeError(c, org.Name, err)
	}
	return c.JSON(fiber.Map{"ok": true, "org": org.Name, "username": username})
}

type bootstrapRequest struct {
	Users []config.BootstrapUser `json:"users"`
}

// handleCABootstrap enrolls a batch of users across organizations. Per-user
// failures are collected, not fatal to the batch.
func (s *Server) handleCABootstrap(c *fiber.Ctx) error {
	var req bootstrapRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, "", errdef.NewClientInput("invalid request body"))
		}
	}
	users := req.Users
	if len(users) == 0 {
		users = s.cfg.BootstrapUsers
	}
	if len(users) == 0 {
		return writeError(c, "", errdef.NewClientInput("no users supplied and no default bootstrap list configured"))
	}

	allOK := true
	results := make([]fiber.Map, 0, len(users))
	for _, u := range users {
		org := s.registry.Lookup(u.Org)
		entry := fiber.Map{"org": org.Name, "username": u.Username}

		_, err := s.ca.EnrollUser(c.UserContext(), org, ca.EnrollmentRequest{
			Username:    u.Username,
			Affiliation: u.Affiliation,
			Secret:      u.Secret,
			Attrs:       attrsFromMap(u.Attrs),
		})
		if err != nil {
			allOK = false
			entry["ok"] = false
			entry["error"] = err.Error()
		} else {
			entry["ok"] = true
		}
		results = append(results, entry)
	}

	return c.JSON(fiber.Map{"ok": allOK, "results": results})
}

func (s *Server) handleNetworkSummary(c *fiber.Ctx) error {
	org := s.org(c)
	summary, err := s.ledger.NetworkSummary(org)
	if err != nil {
		return writeError(c, org.Name, err)
	}
	return c.JSON(fiber.Map{"ok": true, "org": org.Name, "result": summary})
}

func (s *Server) handlePeersCCP(c *fiber.Ctx) error {
	org := s.org(c)
	peers, err := s.ledger.ListPeers(org)
	if err != nil {
		return writeError(c, org.Name, err)
	}
	return c.JSON(fiber.Map{"ok": true, "org": org.Name, "peers": peers})
}

func (s *Server) handleChannelInfo(c *fiber.Ctx) error {
	org := s.org(c)
	info, err := s.ledger.ChannelInfo(org)
	if err != nil {
		return writeError(c, org.Name, err)
	}
	return c.JSON(fiber.Map{"ok": true, "org": org.Name, "result": info})
}

func (s *Server) handleQueryBlock(c *fiber.Ctx) error {
	org := s.org(c)
	payload, err := s.ledger.QueryBlock(org, c.Params("num"))
	if err != nil {
		return writeError(c, org.Name, err)
	}
	return c.JSON(fiber.Map{"ok": true, "org": org.Name, "result": payload})
}

func (s *Server) handleQueryTransaction(c *fiber.Ctx) error {
	org := s.org(c)
	payload, err := s.ledger.QueryTransaction(org, c.Params("txId"))
	if err != nil {
		return writeError(c, org.Name, err)
	}
	return c.JSON(fiber.Map{"ok": true, "org": org.Name, "result": payload})
}

func (s *Server) handleWalletList(c *fiber.Ctx) error {
	org := s.org(c)
	ids, err := s.ledger.WalletIdentities(org)
	if err != nil {
		return writeError(c, org.Name, err)
	}
	return c.JSON(fiber.Map{"ok": true, "org": org.Name, "identities": ids})
}

type walletImportRequest struct {
	Label       string `json:"label"`
	Certificate string `json:"certificate"`
	PrivateKey  string `json:"privateKey"`
	MSPID       string `json:"mspId"`
}

func (s *Server) handleWalletImport(c *fiber.Ctx) error {
	org := s.org(c)
	var req walletImportRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, org.Name, errdef.NewClientInput("invalid request body"))
	}
	if req.Label == "" || req.Certificate == "" || req.PrivateKey == "" {
		return writeError(c, org.Name, errdef.NewClientInput("label, certificate and privateKey are required"))
	}
	if err := wallet.ValidateCertPEM(req.Certificate); err != nil {
		return writeError(c, org.Name, errdef.NewClientInput("certificate does not parse: %v", err))
	}

	store, err := wallet.Open(org)
	if err != nil {
		return writeError(c, org.Name, err)
	}
	mspID := req.MSPID
	if mspID == "" {
		mspID = org.MSPID
	}
	id := &wallet.Identity{
		MSPID:       mspID,
		Type:        wallet.TypeX509,
		Certificate: req.Certificate,
		PrivateKey:  req.PrivateKey,
	}
	if err := store.Put(req.Label, id); err != nil {
		return writeError(c, org.Name, err)
	}
	return c.JSON(fiber.Map{"ok": true, "org": org.Name, "label": req.Label})
}

func (s *Server) handleWalletRemove(c *fiber.Ctx) error {
	org := s.org(c)
	label := c.Params("label")

	store, err := wallet.Open(org)
	if err != nil {
		return writeError(c, org.Name, err)
	}
	if err := store.Remove(label); err != nil {
		return writeError(c, org.Name, err)
	}
	return c.JSON(fiber.Map{"ok": true, "org": org.Name, "label": label})
}

func attrsFromMap(attrs map[string]string) []ca.Attribute {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]ca.Attribute, 0, len(attrs))
	for name, value := range attrs {
		out = append(out, ca.Attribute{Name: name, Value: value, ECert: true})
	}
	return out
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func identityPresent(org *config.OrganizationConfig) bool {
	store, err := wallet.Open(org)
	if err != nil {
		return false
	}
	ok, err := store.Exists(org.Identity)
	return err == nil && ok
}
