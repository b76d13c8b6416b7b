package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/trial-chat/internal/chat"
	"github.com/sells-group/trial-chat/internal/config"
	"github.com/sells-group/trial-chat/internal/llm"
	"github.com/sells-group/trial-chat/internal/metrics"
	"github.com/sells-group/trial-chat/internal/ranking"
	"github.com/sells-group/trial-chat/internal/registry"
	"github.com/sells-group/trial-chat/internal/resilience"
	"github.com/sells-group/trial-chat/internal/server"
	"github.com/sells-group/trial-chat/pkg/clinicaltrials"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat and trial search HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		handler, err := buildHandler(cfg)
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		zap.L().Info("starting server",
			zap.Int("port", cfg.Server.Port),
			zap.String("llm_provider", cfg.LLM.Provider),
			zap.String("llm_model", cfg.LLM.Model),
		)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})

		// Graceful shutdown
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSecs)*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
			return nil
		})

		return g.Wait()
	},
}

// newRegistryClient builds the ClinicalTrials.gov client from config.
func newRegistryClient(c *config.Config) (clinicaltrials.Client, error) {
	policy, err := clinicaltrials.ParseQueryPolicy(c.Registry.QueryPolicy)
	if err != nil {
		return nil, err
	}
	return clinicaltrials.NewClient(
		clinicaltrials.WithBaseURL(c.Registry.BaseURL),
		clinicaltrials.WithTimeout(time.Duration(c.Registry.TimeoutSecs)*time.Second),
		clinicaltrials.WithQueryPolicy(policy),
		clinicaltrials.WithRateLimit(c.Registry.RatePerSecond, c.Registry.RateBurst),
	), nil
}

// buildHandler wires the provider, registry policies, orchestrator and
// HTTP server. A missing LLM credential is reported per chat request rather
// than failing startup, so trial search keeps working.
func buildHandler(c *config.Config) (http.Handler, error) {
	m := metrics.New()

	regClient, err := newRegistryClient(c)
	if err != nil {
		return nil, err
	}
	breaker := registry.NewBreaker(regClient, resilience.FromConfig(c.Registry.BreakerFailureThreshold, c.Registry.BreakerResetSecs))

	provider, err := llm.New(c.LLM)
	switch {
	case errors.Is(err, llm.ErrMissingCredential):
		zap.L().Warn("no API key for LLM provider, chat requests will fail",
			zap.String("provider", c.LLM.Provider),
		)
		provider = llm.Unavailable(err)
	case err != nil:
		return nil, err
	}

	ranker := ranking.New(c.Ranking.MaxResults)
	orch := chat.New(provider,
		registry.NewFallback(registry.NewInstrumented(breaker, registry.SiteChat, m), m),
		ranker,
		chat.Settings{
			Model:       c.LLM.Model,
			MaxTokens:   c.LLM.MaxTokens,
			Temperature: c.LLM.Temperature,
			SearchLimit: c.Registry.MaxResults,
		},
		chat.WithMetrics(m),
	)

	return server.New(server.Config{
		Chat:        orch,
		Searcher:    registry.NewInstrumented(breaker, registry.SiteEndpoint, m),
		Ranker:      ranker,
		SearchLimit: c.Registry.MaxResults,
		Metrics:     m,
		CORSOrigins: c.Server.CORSOrigins,
	}).Handler(), nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
