// Command api runs the payment verification service: the x402 auth gate, the
// payment quote/verify endpoints, and the paid data endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	pulsar "github.com/psyto/pulsar"
	"github.com/psyto/pulsar/config"
	pulsarhttp "github.com/psyto/pulsar/http"
	"github.com/psyto/pulsar/ledger"
	"github.com/psyto/pulsar/logger"
	"github.com/psyto/pulsar/metrics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	log := logger.NewZapLogger(cfg.LogLevel)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	rec := metrics.NewPrometheusRecorder(reg)

	programID, err := solana.PublicKeyFromBase58(cfg.PaymentProgramID)
	if err != nil {
		return fmt.Errorf("payment program ID: %w", err)
	}

	ledgerClient := ledger.NewRPCClient(cfg.RPCURL, rpc.CommitmentType(cfg.Commitment))

	var decoderOpts []pulsar.DecoderOption
	if cfg.RequirePayloadNonce {
		decoderOpts = append(decoderOpts, pulsar.WithRequirePayloadNonce())
	}
	decoder := pulsar.NewDecoder(programID, decoderOpts...)

	guard := pulsar.NewReplayGuard()
	cache := pulsar.NewVerificationCache(cfg.CacheTTL)

	verifier := pulsar.NewPaymentVerifier(ledgerClient, decoder, guard, cache,
		pulsar.WithLogger(log),
		pulsar.WithMetrics(rec),
		pulsar.WithNetwork(cfg.Network),
		pulsar.WithTokenDecimals(cfg.TokenDecimals),
	)

	limiter := pulsarhttp.NewWalletRateLimiter(cfg.RateLimitWindow, cfg.RateLimitMax)

	sweeper := pulsar.NewSweeper(cfg.SweepInterval, log, cache, limiter)
	sweeper.Start()
	defer sweeper.Stop()

	router := pulsarhttp.NewRouter(pulsarhttp.RouterConfig{
		Verifier: verifier,
		Ledger:   ledgerClient,
		Limiter:  limiter,
		Log:      log,
		Gate: pulsarhttp.GateConfig{
			Payment: pulsarhttp.PaymentDetails{
				Amount:    "0.01",
				Currency:  "USDC",
				Recipient: cfg.TreasuryWallet,
				Network:   cfg.Network,
				ProgramID: cfg.PaymentProgramID,
			},
			TokenDecimals: cfg.TokenDecimals,
			AllowDemoMode: cfg.AllowDemoMode,
		},
	})
	router.GET("/metrics", func(c *gin.Context) {
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(c.Writer, c.Request)
	})

	srv := &nethttp.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", map[string]any{
			"addr":    cfg.ListenAddr,
			"network": cfg.Network,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
