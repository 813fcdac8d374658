package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kestreldns/kestrel-dns/internal/dns/chain"
	"github.com/kestreldns/kestrel-dns/internal/dns/common/clock"
	"github.com/kestreldns/kestrel-dns/internal/dns/common/log"
	"github.com/kestreldns/kestrel-dns/internal/dns/config"
	"github.com/kestreldns/kestrel-dns/internal/dns/filters"
	"github.com/kestreldns/kestrel-dns/internal/dns/gateways/wire"
	"github.com/kestreldns/kestrel-dns/internal/dns/server"
	"github.com/kestreldns/kestrel-dns/internal/dns/sources"
)

const (
	version = "0.1.0-dev"

	// negCacheFalsePositiveRate bounds the advisory negative-cache Bloom
	// filters; a false positive only suppresses a debug log, never a reply.
	negCacheFalsePositiveRate = 0.01

	// negCacheRotateEvery bounds how long a negative fingerprint stays
	// flagged before its generation rotates out.
	negCacheRotateEvery = 10 * time.Minute

	defaultShutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	if err := log.Configure(cfg.Env, cfg.Log.Level); err != nil {
		fmt.Fprintf(os.Stderr, "logging configuration error: %v\n", err)
		os.Exit(1)
	}
	logger := log.GetLogger()

	logger.Info(map[string]any{
		"version":  version,
		"env":      cfg.Env,
		"host":     cfg.Server.ListenHost,
		"port":     cfg.Server.ListenPort,
		"upstream": cfg.Resolver.Upstream,
	}, "starting kestrel-dns")

	srv, err := buildServer(cfg, logger)
	if err != nil {
		logger.Fatal(map[string]any{"cause": err.Error()}, "failed to build dns server")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info(map[string]any{"signal": sig.String()}, "shutdown signal received")
		cancel()
	}()

	if err := run(ctx, srv, logger); err != nil {
		logger.Fatal(map[string]any{"cause": err.Error()}, "dns server failed")
	}

	logger.Info(nil, "kestrel-dns stopped gracefully")
}

// buildServer wires sources, filters, and chains per the resolver
// configuration, then constructs the DnsServer around them. The JSON records
// form the first chain and the recursive upstream, wrapped in the configured
// filters, the second, so the upstream is only asked when the records file
// has no answer.
func buildServer(cfg *config.AppConfig, logger log.Logger) (*server.DnsServer, error) {
	clk := &clock.RealClock{}
	codec := wire.NewUDPCodec()

	var chains []sources.Source
	if cfg.Resolver.RecordsPath != "" {
		jsonSrc, err := sources.NewJSONSource(cfg.Resolver.RecordsPath)
		if err != nil {
			return nil, fmt.Errorf("load records file %s: %w", cfg.Resolver.RecordsPath, err)
		}
		chains = append(chains, chain.New([]sources.Source{jsonSrc}, nil))
		logger.Info(map[string]any{"path": cfg.Resolver.RecordsPath}, "loaded authoritative records")
	}

	var recursive *sources.RecursiveSource
	if len(cfg.Resolver.Upstream) > 0 {
		recursive = sources.NewRecursiveSource(
			cfg.Resolver.Upstream,
			time.Duration(cfg.Resolver.UpstreamTimeoutMS)*time.Millisecond,
			cfg.Resolver.UpstreamRetries,
			codec,
			clk,
			logger.With(map[string]any{"source": "recursive"}),
		)
	}

	var filts []filters.Filter
	if cfg.Resolver.Cache.Size > 0 {
		cacheFilter, err := filters.NewCacheFilter(cfg.Resolver.Cache.Size, clk, logger.With(map[string]any{"filter": "cache"}))
		if err != nil {
			return nil, fmt.Errorf("build cache filter: %w", err)
		}
		filts = append(filts, cacheFilter)
	}
	if cfg.Resolver.NegCache.Size > 0 {
		negCacheFilter := filters.NewNegativeCacheFilter(
			uint(cfg.Resolver.NegCache.Size),
			negCacheFalsePositiveRate,
			negCacheRotateEvery,
			clk,
			logger.With(map[string]any{"filter": "negcache"}),
		)
		filts = append(filts, negCacheFilter)
	}

	if recursive != nil {
		chains = append(chains, chain.New([]sources.Source{recursive}, filts))
	}

	srvCfg := server.Config{
		ListenHost:    cfg.Server.ListenHost,
		ListenPort:    cfg.Server.ListenPort,
		Debug:         cfg.Server.Debug,
		QueueCapacity: cfg.Server.QueueCapacity,
		Consumers:     cfg.Server.Consumers,
	}

	return server.New(srvCfg, codec, chains, clk, logger), nil
}

// run starts srv and blocks until ctx is cancelled, then waits (bounded by
// defaultShutdownTimeout) for the server to drain and stop.
func run(ctx context.Context, srv *server.DnsServer, logger log.Logger) error {
	serveErrCh := make(chan error, 1)
	go func() {
		serveErrCh <- srv.Serve(ctx)
	}()

	select {
	case err := <-serveErrCh:
		return err
	case <-ctx.Done():
	}

	logger.Info(nil, "shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
