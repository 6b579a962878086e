// Package server exposes the gateway operations over HTTP.
package server

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/jaqcquesndav/wanzo-ledger-gateway/ca"
	"github.com/jaqcquesndav/wanzo-ledger-gateway/config"
	"github.com/jaqcquesndav/wanzo-ledger-gateway/ledger"
	"github.com/jaqcquesndav/wanzo-ledger-gateway/registry"
)

// Server wires the gateway components behind the HTTP surface
type Server struct {
	cfg      *config.Config
	registry *registry.Registry
	ca       *ca.Client
	ledger   *ledger.Service
}

// New creates and configures the Fiber app with every gateway route
func New(cfg *config.Config, reg *registry.Registry, caClient *ca.Client, svc *ledger.Service) *fiber.App {
	s := &Server{cfg: cfg, registry: reg, ca: caClient, ledger: svc}

	app := fiber.New(fiber.Config{
		AppName:     "wanzo-ledger-gateway",
		ReadTimeout: 60 * time.Second,
	})

	app.Use(fiberrecover.New())
	app.Use(cors.New())
	app.Use(fiberlogger.New())

	app.Get("/health", s.handleHealth)
	app.Get("/readiness", s.handleReadiness)
	app.Get("/status", s.handleStatus)
	app.Get("/orgs", s.handleOrgs)

	app.Post("/anchor", s.handleAnchor)
	app.Post("/anchor-cid", s.handleAnchorCID)
	app.Get("/verify", s.handleVerify)

	app.Get("/ca/status", s.handleCAStatus)
	app.Post("/ca/admin/enroll", s.handleCAAdminEnroll)
	app.Post("/ca/register-enroll", s.handleCARegisterEnroll)
	app.Post("/ca/bootstrap", s.handleCABootstrap)

	app.Get("/network/summary", s.handleNetworkSummary)
	app.Get("/network/peers-ccp", s.handlePeersCCP)
	app.Get("/channel/info", s.handleChannelInfo)
	app.Get("/qscc/block/:num", s.handleQueryBlock)
	app.Get("/qscc/tx/:txId", s.handleQueryTransaction)

	app.Get("/wallet", s.handleWalletList)
	app.Post("/wallet/import", s.handleWalletImport)
	app.Delete("/wallet/:label", s.handleWalletRemove)

	return app
}

// org resolves the target organization for the request: explicit header,
// explicit query parameter, configured default, first configured org.
func (s *Server) org(c *fiber.Ctx) *config.OrganizationConfig {
	return s.registry.ResolveRequest(c.Get("X-Org"), c.Query("org"))
}
