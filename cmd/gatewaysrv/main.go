// Command gatewaysrv runs the gateway's HTTP listener (SPEC_FULL.md
// Component M), wiring config loading, logging, the credential pool,
// and the upstream client into the fiber router defined in
// pkg/gatewayhttp.
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/kiro-gateway/gateway/pkg/credential"
	"github.com/kiro-gateway/gateway/pkg/gatewayconfig"
	"github.com/kiro-gateway/gateway/pkg/gatewayhttp"
	"github.com/kiro-gateway/gateway/pkg/gatewaylog"
	internalhttp "github.com/kiro-gateway/gateway/pkg/internal/http"
	"github.com/kiro-gateway/gateway/pkg/upstream"
)

func main() {
	cfg, err := gatewayconfig.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "gatewaysrv: "+err.Error())
		os.Exit(1)
	}

	log, err := gatewaylog.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "gatewaysrv: "+err.Error())
		os.Exit(1)
	}
	defer log.Sync()

	httpClient := internalhttp.NewClient(internalhttp.Config{})
	refresher := credential.NewHTTPRefresher(httpClient, cfg.SocialRefreshURL, cfg.IdCRefreshURL, cfg.QuotaURL)
	pool := credential.New(cfg.CredentialConfigs, refresher, log, 0, 0)
	defer pool.Destroy()

	upstreamClient := upstream.NewClient(upstream.Config{Endpoint: cfg.UpstreamURL}, log)

	server := gatewayhttp.New(cfg, pool, upstreamClient, log)
	app := server.Router()

	log.Info("starting gateway", zap.String("port", cfg.Port))
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
