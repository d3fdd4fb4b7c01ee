package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/prateekmedia/flacreframe/certs"
	"github.com/prateekmedia/flacreframe/internal/distribution"
	"github.com/prateekmedia/flacreframe/internal/ingest"
	srtingest "github.com/prateekmedia/flacreframe/internal/ingest/srt"
	"github.com/prateekmedia/flacreframe/internal/pipeline"
	"github.com/prateekmedia/flacreframe/internal/reframe"
	"github.com/prateekmedia/flacreframe/internal/stream"
)

var version = "dev"

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("generating self-signed certificate")
	cert, err := certs.Generate(90 * 24 * time.Hour)
	if err != nil {
		slog.Error("failed to generate cert", "error", err)
		os.Exit(1)
	}
	slog.Info("certificate generated",
		"fingerprint", cert.FingerprintBase64(),
		"expires", cert.NotAfter.Format(time.RFC3339),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	indexWindow, err := strconv.ParseFloat(envOr("FLAC_INDEX_WINDOW", "1.0"), 64)
	if err != nil {
		slog.Error("invalid FLAC_INDEX_WINDOW", "error", err)
		os.Exit(1)
	}
	doCRC := envOr("FLAC_DOCRC", "false") == "true"

	a := &app{
		mgr: stream.NewManager(nil),
		reframeOpts: reframe.Options{
			IndexSeconds: indexWindow,
			DoCRC:        doCRC,
		},
	}

	quicAddr := envOr("QUIC_ADDR", ":4443")
	srtAddr := envOr("SRT_ADDR", ":6000")
	apiAddr := envOr("API_ADDR", ":4444")

	slog.Info("flacrelay starting",
		"version", version,
		"srt", srtAddr,
		"quic", quicAddr,
		"api", apiAddr,
		"cert_hash", cert.FingerprintBase64(),
	)

	g, ctx := errgroup.WithContext(ctx)

	a.registry = ingest.NewRegistry(func(key string, input io.Reader, format ingest.InputFormat) {
		a.handleNewStream(ctx, key, input, format)
	})
	a.srtCaller = srtingest.NewCaller(a.registry, nil)

	var distErr error
	a.distSrv, distErr = distribution.NewServer(distribution.ServerConfig{
		Addr: quicAddr,
		Cert: cert,
		SRTPull: func(address, streamKey, streamID string) error {
			return a.srtCaller.Pull(ctx, srtingest.PullRequest{
				Address:   address,
				StreamKey: streamKey,
				StreamID:  streamID,
			})
		},
		SRTStop: func(streamKey string) error {
			return a.stopAndAwaitTeardown(streamKey)
		},
		SRTList:      a.listSRTPulls,
		StreamLister: a.listStreams,
		IngestLookup: a.lookupIngest,
	})
	if distErr != nil {
		slog.Error("failed to create distribution server", "error", distErr)
		os.Exit(1)
	}

	srtSrv := srtingest.NewServer(srtAddr, a.registry, nil)

	apiSrv := &http.Server{
		Addr:    apiAddr,
		Handler: a.distSrv.APIHandler(),
		TLSConfig: &tls.Config{
			Certificates: []tls.Certificate{cert.TLSCert},
		},
	}

	g.Go(func() error {
		return srtSrv.Start(ctx)
	})

	g.Go(func() error {
		slog.Info("HTTPS API server listening", "addr", apiAddr)
		if err := apiSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("API server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return apiSrv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return a.distSrv.Start(ctx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

type app struct {
	mgr         *stream.Manager
	registry    *ingest.Registry
	srtCaller   *srtingest.Caller
	distSrv     *distribution.Server
	reframeOpts reframe.Options
}

func (a *app) listSRTPulls() []distribution.SRTPullInfo {
	pulls := a.srtCaller.ActivePulls()
	out := make([]distribution.SRTPullInfo, len(pulls))
	for i, p := range pulls {
		out[i] = distribution.SRTPullInfo{
			Address:   p.Address,
			StreamKey: p.StreamKey,
			StreamID:  p.StreamID,
		}
	}
	return out
}

func (a *app) listStreams() []distribution.StreamInfo {
	streams := a.mgr.List()
	infos := make([]distribution.StreamInfo, len(streams))
	for i, s := range streams {
		relay := a.distSrv.GetRelay(s.Key)
		viewers := 0
		if relay != nil {
			viewers = relay.ViewerCount()
		}
		info := distribution.StreamInfo{
			Key:     s.Key,
			Viewers: viewers,
		}

		p := a.distSrv.GetPipeline(s.Key)
		if p != nil {
			snap := p.StreamSnapshot()
			info.SampleRate = snap.Audio.SampleRate
			info.Channels = snap.Audio.Channels
			info.BitsPerSample = snap.Audio.BitsPerSample
			info.Protocol = snap.Protocol
			info.UptimeMs = snap.UptimeMs
		}

		infos[i] = info
	}
	return infos
}

func (a *app) lookupIngest(key string) *distribution.IngestDebugStats {
	s, ok := a.registry.Get(key)
	if !ok {
		return nil
	}
	stats := s.IngestStats()
	return &distribution.IngestDebugStats{
		BytesReceived: stats.BytesReceived,
		ReadCount:     stats.ReadCount,
		ConnectedAt:   stats.ConnectedAt,
		UptimeMs:      stats.UptimeMs,
		RemoteAddr:    stats.RemoteAddr,
	}
}

func (a *app) handleNewStream(ctx context.Context, key string, input io.Reader, format ingest.InputFormat) {
	slog.Info("new stream from ingest", "key", key, "format", format)

	if _, created := a.mgr.Create(key, format); !created {
		slog.Warn("rejecting duplicate stream connection", "key", key)
		return
	}
	defer a.teardownStream(key)

	relay := a.distSrv.RegisterStream(key)

	p := pipeline.New(key, input, relay, a.reframeOpts)
	p.SetProtocol("SRT")
	a.distSrv.SetPipeline(key, p)

	if err := p.Run(ctx); err != nil {
		slog.Error("pipeline error", "stream", key, "error", err)
	}
	slog.Info("stream ended", "key", key)
}

// stopAndAwaitTeardown stops an active SRT pull and waits, up to a bound, for
// the resulting stream to actually finish tearing down, so the DELETE
// /api/srt-pull request reports real completion rather than a fire-and-forget
// cancellation racing the caller's next action (e.g. re-pulling the same key).
func (a *app) stopAndAwaitTeardown(streamKey string) error {
	s, tracked := a.mgr.Get(streamKey)

	if err := a.srtCaller.Stop(streamKey); err != nil {
		return err
	}
	if !tracked {
		return nil
	}

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		slog.Warn("stream teardown did not complete before timeout", "key", streamKey)
	}
	return nil
}

func (a *app) teardownStream(key string) {
	a.distSrv.UnregisterStream(key)
	a.mgr.Remove(key)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
