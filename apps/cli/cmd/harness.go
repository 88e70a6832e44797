package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/abdul-hamid-achik/tentspec/packages/core/config"
	"github.com/abdul-hamid-achik/tentspec/packages/core/runner"
	"github.com/abdul-hamid-achik/tentspec/packages/correlator"
	"github.com/abdul-hamid-achik/tentspec/packages/db"
	"github.com/abdul-hamid-achik/tentspec/packages/http"
	"github.com/abdul-hamid-achik/tentspec/packages/peer"
	"github.com/abdul-hamid-achik/tentspec/packages/schema"
	"github.com/abdul-hamid-achik/tentspec/packages/spec"
	"github.com/abdul-hamid-achik/tentspec/packages/validators"
)

// harness owns everything that outlives a single run: the peer, its
// store and the correlator fed by it.
type harness struct {
	cfg        *config.Config
	logger     *slog.Logger
	client     *http.Client
	schemas    *schema.Registry
	store      *db.Store
	peer       *peer.Server
	correlator *correlator.Correlator
}

func newHarness(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*harness, error) {
	h := &harness{cfg: cfg, logger: logger}

	clientOpts := []http.ClientOption{
		http.WithValidateSSL(cfg.GetValidateSSL()),
		http.WithDefaultHeaders(cfg.Headers),
	}
	if cfg.Timeout > 0 {
		clientOpts = append(clientOpts, http.WithTimeout(cfg.RequestTimeout()))
	}
	if cfg.Proxy != "" {
		clientOpts = append(clientOpts, http.WithProxy(cfg.Proxy))
	}
	if cfg.RateLimit > 0 {
		clientOpts = append(clientOpts, http.WithRateLimit(cfg.RateLimit, 1))
	}
	h.client = http.NewClient(clientOpts...)

	reg, err := loadSchemas(cfg.SchemaDir)
	if err != nil {
		return nil, fmt.Errorf("loading schemas: %w", err)
	}
	h.schemas = reg

	store, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	h.store = store

	h.correlator = correlator.New(
		correlator.WithTimeout(cfg.CorrelationTimeout()),
		correlator.WithTick(cfg.CorrelationTick()),
		correlator.WithLogger(logger),
		correlator.WithSchemas(reg),
		correlator.WithTickFunc(func(remaining int) {
			logger.Info("waiting for requests from server", "remaining", remaining)
		}),
	)

	peerOpts := []peer.Option{
		peer.WithAddr(cfg.LocalAddr),
		peer.WithCorrelator(h.correlator),
		peer.WithLogger(logger),
	}
	if cfg.LocalURL != "" {
		peerOpts = append(peerOpts, peer.WithBaseURL(cfg.LocalURL))
	}
	h.peer = peer.NewServer(store, peerOpts...)
	if err := h.peer.Start(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	logger.Info("peer listening", "url", h.peer.URL())
	return h, nil
}

// loadSchemas returns the built-in schemas plus any found in dir.
func loadSchemas(dir string) (*schema.Registry, error) {
	reg, err := schema.Default()
	if err != nil {
		return nil, err
	}
	if dir != "" {
		if err := reg.LoadDir(dir); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Run builds the validators and runs the configured ones, streaming
// records to f as they are scored.
func (h *harness) Run(ctx context.Context, f Formatter) (*runner.RunResult, error) {
	reg := h.schemas
	var creds *http.MACCredentials
	if !h.cfg.Credentials.Empty() {
		creds = &http.MACCredentials{
			ID:        h.cfg.Credentials.ID,
			Key:       h.cfg.Credentials.Key,
			Algorithm: h.cfg.Credentials.Algorithm,
		}
	}

	r := runner.NewRunner(&runner.Config{
		Env: &spec.Env{
			Client:      h.client,
			Schemas:     reg,
			Correlator:  h.correlator,
			Logger:      h.logger,
			Server:      h.cfg.Server,
			Local:       h.peer.URL(),
			Credentials: creds,
		},
		Schemas:        reg,
		NameFilter:     h.cfg.Validators,
		WaitFor:        h.cfg.WaitForDuration(),
		Logger:         h.logger,
		OnRecord:       f.FormatRecord,
		OnSetupFailure: f.FormatSetupFailure,
	})

	return r.Run(ctx, validators.All(validators.Deps{Schemas: reg, Peer: h.peer}))
}

func (h *harness) Close() {
	if err := h.peer.Close(); err != nil {
		h.logger.Warn("closing peer", "error", err)
	}
	if err := h.store.Close(); err != nil {
		h.logger.Warn("closing store", "error", err)
	}
}
