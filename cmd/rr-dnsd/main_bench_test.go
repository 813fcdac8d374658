package main

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kestreldns/kestrel-dns/internal/dns/common/log"
	"github.com/kestreldns/kestrel-dns/internal/dns/config"
	"github.com/kestreldns/kestrel-dns/internal/dns/domain"
	"github.com/kestreldns/kestrel-dns/internal/dns/gateways/wire"
)

// BenchmarkBuildServer measures the time to wire sources, filters, the
// chain, and the server from a populated config.
func BenchmarkBuildServer(b *testing.B) {
	logger := log.NewNoopLogger()
	cfg := &config.AppConfig{
		Env: "dev",
		Log: config.LoggingConfig{Level: "error"},
		Server: config.ServerConfig{
			ListenHost:    "127.0.0.1",
			ListenPort:    0,
			QueueCapacity: 256,
			Consumers:     1,
		},
		Resolver: config.ResolverConfig{
			Upstream:          []string{"1.1.1.1:53"},
			UpstreamTimeoutMS: 200,
			UpstreamRetries:   1,
			Cache:             config.CacheConfig{Size: 4096},
			NegCache:          config.CacheConfig{Size: 4096},
		},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		srv, err := buildServer(cfg, logger)
		require.NoError(b, err)
		_ = srv
	}
}

// benchServer spins up a running server backed by an in-memory record set,
// returning its address and a shutdown func.
func benchServer(b *testing.B) (net.Addr, func()) {
	b.Helper()

	recordsPath := filepath.Join(b.TempDir(), "records.json")
	require.NoError(b, os.WriteFile(recordsPath, []byte(`{
		"bench.example.com.": [{"rdata": "192.0.2.1"}]
	}`), 0o644))

	cfg := &config.AppConfig{
		Env: "dev",
		Log: config.LoggingConfig{Level: "error"},
		Server: config.ServerConfig{
			ListenHost:    "127.0.0.1",
			ListenPort:    0,
			QueueCapacity: 256,
			Consumers:     4,
		},
		Resolver: config.ResolverConfig{
			RecordsPath:       recordsPath,
			Upstream:          []string{"1.1.1.1:53"},
			UpstreamTimeoutMS: 200,
			UpstreamRetries:   0,
			Cache:             config.CacheConfig{Size: 4096},
			NegCache:          config.CacheConfig{Size: 4096},
		},
	}

	srv, err := buildServer(cfg, log.NewNoopLogger())
	require.NoError(b, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = run(ctx, srv, log.NewNoopLogger()) }()

	require.Eventually(b, func() bool { return srv.Addr() != nil }, 2*time.Second, 10*time.Millisecond)

	return srv.Addr(), cancel
}

// BenchmarkQuery_Authoritative measures end-to-end query latency against a
// cached, authoritative record.
func BenchmarkQuery_Authoritative(b *testing.B) {
	addr, stop := benchServer(b)
	defer stop()

	codec := wire.NewUDPCodec()
	question, err := domain.NewQuestion(1, "bench.example.com.", domain.RRTypeA, domain.RRClassIN)
	require.NoError(b, err)
	query, err := codec.EncodeQuery(question)
	require.NoError(b, err)

	conn, err := net.Dial("udp", addr.String())
	require.NoError(b, err)
	defer conn.Close()

	buf := make([]byte, 512)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := conn.Write(query); err != nil {
			b.Fatalf("write failed: %v", err)
		}
		if err := conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
			b.Fatalf("set deadline failed: %v", err)
		}
		if _, err := conn.Read(buf); err != nil {
			b.Fatalf("read failed: %v", err)
		}
	}
}
