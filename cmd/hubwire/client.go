package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/hubwire-dev/hubwire/internal/cliconfig"
	"github.com/hubwire-dev/hubwire/pkg/hub"
	"github.com/hubwire-dev/hubwire/pkg/token"
)

// buildClient assembles a hub client from flags and the config file.
// The returned cleanup closes the client.
func buildClient() (*hub.Client, func(), error) {
	cfg, err := cliconfig.Load(flagConfig)
	if err != nil {
		return nil, nil, err
	}

	endpoint := flagEndpoint
	if endpoint == "" {
		endpoint = cfg.Endpoint
	}
	if endpoint == "" {
		return nil, nil, fmt.Errorf("no hub endpoint: pass --endpoint or set endpoint in %s", cliconfig.ConfigFileName)
	}

	logger := buildLogger(cfg.Log.Level)
	broker := buildBroker(cfg, logger)

	hubCfg := hub.DefaultClientConfig().
		WithEndpoint(endpoint).
		WithLogger(logger)
	if cfg.Rate.Limit > 0 && cfg.Rate.Window() > 0 {
		hubCfg = hubCfg.WithRateLimit(cfg.Rate.Limit, cfg.Rate.Window())
	}
	if sched := cfg.Reconnect.Schedule(); sched != nil {
		hubCfg = hubCfg.WithReconnectSchedule(sched)
	}

	client := hub.NewClient(hubCfg, broker)
	return client, client.Close, nil
}

// buildBroker wires the token broker from the credential settings. A
// literal token (flag first, config second) becomes a static provider;
// a token file doubles as the persisted fallback store.
func buildBroker(cfg *cliconfig.Config, logger *slog.Logger) *token.Broker {
	bc := token.DefaultBrokerConfig()
	bc.Logger = logger

	literal := flagToken
	if literal == "" {
		literal = cfg.Auth.Token
	}
	if literal != "" {
		static := func(context.Context) (string, error) { return literal, nil }
		bc.Provider = token.ProviderFunc{TokenFunc: static, ForceRefreshFunc: static}
	}
	if cfg.Auth.TokenFile != "" {
		bc.Store = token.NewFileStore(cfg.Auth.TokenFile)
	}

	return token.NewBroker(bc)
}

func buildLogger(level string) *slog.Logger {
	lvl := slog.LevelWarn
	if flagVerbose {
		lvl = slog.LevelDebug
	} else {
		switch level {
		case "debug":
			lvl = slog.LevelDebug
		case "info":
			lvl = slog.LevelInfo
		case "error":
			lvl = slog.LevelError
		}
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
