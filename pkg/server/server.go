// Package server provides the public entry point for initializing the
// ChatForge core service: it wires the component services, restores their
// snapshots, builds the HTTP surface, and hands back a ready Server.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/chatforge/chatforge/internal/agents"
	"github.com/chatforge/chatforge/internal/api"
	"github.com/chatforge/chatforge/internal/api/handlers"
	"github.com/chatforge/chatforge/internal/auth"
	"github.com/chatforge/chatforge/internal/billing"
	"github.com/chatforge/chatforge/internal/chat"
	"github.com/chatforge/chatforge/internal/config"
	"github.com/chatforge/chatforge/internal/contexts"
	"github.com/chatforge/chatforge/internal/persist"
	"github.com/chatforge/chatforge/internal/provider"
	"github.com/chatforge/chatforge/internal/telemetry"

	"github.com/rs/zerolog/log"
)

// Server holds the initialized ChatForge core.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Port is the port the server should listen on.
	Port int

	// Persist owns the snapshot lifecycle; Close it on shutdown to flush
	// the final snapshot.
	Persist *persist.Manager

	// ShutdownFunc flushes telemetry on graceful shutdown.
	ShutdownFunc func(context.Context) error
}

// New initializes all components from environment configuration.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the core with an explicit configuration.
func NewWithConfig(_ context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(cfg)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	// Persistence: components register, then a single Load rehydrates
	// everything from the last snapshot.
	manager := persist.NewManager(cfg.DataDir)

	agentSvc := agents.NewService(manager)
	contextSvc := contexts.NewService(agentSvc, manager)
	billingSvc := billing.NewService(manager)

	manager.Register(agentSvc)
	manager.Register(contextSvc)
	manager.Register(billingSvc)
	if err := manager.Load(); err != nil {
		return nil, fmt.Errorf("restore snapshot: %w", err)
	}

	gen := provider.NewHTTPGenerator(cfg.ProviderEndpoint, cfg.ProviderModel, cfg.ProviderAPIKey, cfg.ProviderTimeout)
	chatSvc := chat.NewService(agentSvc, contextSvc, billingSvc, gen)

	log.Info().Msg("✅ Agent store initialized")
	log.Info().Msg("✅ Context manager initialized")
	log.Info().Msg("✅ Billing engine initialized")
	log.Info().Str("provider", gen.Name()).Str("model", cfg.ProviderModel).Msg("✅ Chat orchestrator initialized")

	// Session verifiers: external issuer sessions plus HMAC service tokens.
	chain := auth.NewChain()
	chain.Register(auth.NewSessionVerifier(cfg.SessionVerifyURL, cfg.AuthTimeout))
	chain.Register(auth.NewServiceTokenVerifier(cfg.ServiceTokenSecret))

	h := handlers.New(agentSvc, contextSvc, billingSvc, chatSvc)
	router := api.NewRouter(cfg, h, chain)

	return &Server{
		Handler:      router,
		Port:         cfg.Port,
		Persist:      manager,
		ShutdownFunc: shutdown,
	}, nil
}
