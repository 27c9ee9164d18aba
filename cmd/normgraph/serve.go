package main

import (
	"github.com/spf13/cobra"

	"github.com/normgraph/normgraph/internal/auth"
	"github.com/normgraph/normgraph/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST API server",
	Long: `Serve the query and ingestion API over HTTP.

Endpoints:
  POST   /api/v1/query
  POST   /api/v1/ingest
  GET    /api/v1/sources
  DELETE /api/v1/sources/{source}
  GET    /api/v1/stats
  GET    /api/v1/health

With auth.enabled, all endpoints except /health require a bearer token
minted with 'normgraph token create'.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	orchestrator, err := a.newOrchestrator(ctx)
	if err != nil {
		return err
	}
	ingester, err := a.newIngester(ctx)
	if err != nil {
		return err
	}

	var tokens *auth.Handler
	if a.cfg.Auth.Enabled {
		secret, err := a.jwtSecret()
		if err != nil {
			return err
		}
		tokens, err = auth.NewHandler(secret, a.cfg.Auth.TokenExpiry)
		if err != nil {
			return err
		}
	}

	srv := server.New(a.cfg.Server, a.cfg.Auth, server.Deps{
		Orchestrator: orchestrator,
		Ingester:     ingester,
		Manager:      a.newManager(),
		Tokens:       tokens,
	}, a.logger.WithComponent("server"))

	return srv.Start(ctx)
}
