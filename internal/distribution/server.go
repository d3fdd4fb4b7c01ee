package distribution

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/prateekmedia/flacreframe/certs"
)

// StatsProvider is implemented by the pipeline to supply stream statistics
// for the REST API.
type StatsProvider interface {
	StreamSnapshot() StreamSnapshot
	PipelineDebug() PipelineDebugStats
}

// StreamInfo is the JSON-serializable summary of a live stream, returned by
// the /api/streams list endpoint.
type StreamInfo struct {
	Key           string `json:"key"`
	Viewers       int    `json:"viewers"`
	SampleRate    int    `json:"sampleRate,omitempty"`
	Channels      int    `json:"channels,omitempty"`
	BitsPerSample int    `json:"bitsPerSample,omitempty"`
	Protocol      string `json:"protocol,omitempty"`
	UptimeMs      int64  `json:"uptimeMs,omitempty"`
}

// StreamLister is a callback that returns the current list of active streams.
type StreamLister func() []StreamInfo

// IngestLookup resolves a stream key to its ingest debug stats, or nil if
// the stream is not currently being ingested.
type IngestLookup func(key string) *IngestDebugStats

// SRTPullFunc initiates an SRT caller-mode pull from a remote address.
type SRTPullFunc func(address, streamKey, streamID string) error

// SRTStopFunc stops an active SRT pull by stream key.
type SRTStopFunc func(streamKey string) error

// SRTListFunc returns all active SRT pulls.
type SRTListFunc func() []SRTPullInfo

// SRTPullInfo describes an active SRT caller-mode pull, returned by the
// /api/srt-pull GET endpoint.
type SRTPullInfo struct {
	Address   string `json:"address"`
	StreamKey string `json:"streamKey"`
	StreamID  string `json:"streamId,omitempty"`
}

// ServerConfig holds the configuration for the distribution Server,
// including listen addresses, TLS certificate, and callback hooks.
type ServerConfig struct {
	Addr         string
	APIAddr      string
	Cert         *certs.CertInfo
	StreamLister StreamLister
	IngestLookup IngestLookup
	SRTPull      SRTPullFunc
	SRTStop      SRTStopFunc
	SRTList      SRTListFunc
}

// streamResources bundles the relay and stats provider for a single live
// stream, ensuring both are registered and torn down as a unit.
type streamResources struct {
	relay    *Relay
	pipeline StatsProvider
}

// Server is the QUIC viewer-delivery server. It manages relays, viewer
// sessions, and serves the REST debug API over HTTPS.
type Server struct {
	log    *slog.Logger
	config ServerConfig

	quicListener *quic.Listener

	mu      sync.RWMutex
	streams map[string]*streamResources
}

// NewServer creates a distribution Server with the given configuration. It
// returns an error if required fields are missing.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Cert == nil {
		return nil, errors.New("distribution: Cert is required")
	}
	if config.Addr == "" {
		return nil, errors.New("distribution: Addr is required")
	}
	return &Server{
		log:     slog.With("component", "distribution-server"),
		config:  config,
		streams: make(map[string]*streamResources),
	}, nil
}

// RegisterStream creates a Relay for the given stream key and returns it.
// If the stream already has a relay, the existing one is returned.
func (s *Server) RegisterStream(streamKey string) *Relay {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sr, ok := s.streams[streamKey]; ok {
		return sr.relay
	}
	r := NewRelay()
	s.streams[streamKey] = &streamResources{relay: r}
	return r
}

// UnregisterStream removes the relay and pipeline for a stream key.
func (s *Server) UnregisterStream(streamKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.streams, streamKey)
}

// SetPipeline associates a StatsProvider with a stream key. The stream
// must already be registered via RegisterStream.
func (s *Server) SetPipeline(streamKey string, p StatsProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sr, ok := s.streams[streamKey]; ok {
		sr.pipeline = p
	}
}

// GetPipeline returns the StatsProvider for a stream key, or nil if not found.
func (s *Server) GetPipeline(streamKey string) StatsProvider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sr, ok := s.streams[streamKey]; ok {
		return sr.pipeline
	}
	return nil
}

// GetRelay returns the Relay for a stream key, or nil if not found.
func (s *Server) GetRelay(streamKey string) *Relay {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sr, ok := s.streams[streamKey]; ok {
		return sr.relay
	}
	return nil
}

// Start launches the QUIC listener and blocks until ctx is cancelled or a
// fatal error occurs.
func (s *Server) Start(ctx context.Context) error {
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{s.config.Cert.TLSCert},
		NextProtos:   []string{"flacrelay"},
	}
	quicConfig := &quic.Config{
		MaxIdleTimeout: 30 * time.Second,
	}

	l, err := quic.ListenAddr(s.config.Addr, tlsConfig, quicConfig)
	if err != nil {
		return fmt.Errorf("quic listen on %s: %w", s.config.Addr, err)
	}
	s.quicListener = l
	s.log.Info("quic server listening", "addr", s.config.Addr)

	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()

	for {
		conn, err := l.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("quic accept error", "error", err)
			continue
		}
		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn *quic.Conn) {
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			return
		}
		go s.handleViewerStream(conn, stream)
	}
}

func (s *Server) handleViewerStream(conn *quic.Conn, stream *quic.Stream) {
	streamKey, err := readStreamKeyRequest(stream)
	if err != nil {
		s.log.Debug("bad viewer request", "error", err)
		stream.CancelWrite(quic.StreamErrorCode(errCodeBadRequest))
		return
	}

	relay := s.GetRelay(streamKey)
	if relay == nil {
		s.log.Debug("viewer requested unknown stream", "key", streamKey)
		stream.CancelWrite(quic.StreamErrorCode(errCodeStreamNotFound))
		return
	}

	id := fmt.Sprintf("%s-%d", conn.RemoteAddr().String(), stream.StreamID())
	v := newQUICViewer(id, stream, s.log)
	relay.AddViewer(v)
	defer func() {
		v.Close()
		relay.RemoveViewer(id)
	}()

	// Block until the client goes away; viewers don't send anything further
	// on this stream, but reading keeps us aware of a clean/unclean close.
	buf := make([]byte, 1)
	for {
		if _, err := stream.Read(buf); err != nil {
			return
		}
	}
}

// Viewer stream close error codes.
const (
	errCodeStreamNotFound = 1
	errCodeBadRequest     = 4
)

func (s *Server) registerAPIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/streams", s.handleListStreams)
	mux.HandleFunc("GET /api/streams/{key}/debug", s.handleStreamDebug)
	mux.HandleFunc("GET /api/srt-pull", s.handleSRTPullList)
	mux.HandleFunc("POST /api/srt-pull", s.handleSRTPullCreate)
	mux.HandleFunc("DELETE /api/srt-pull", s.handleSRTPullStop)
}

// APIHandler returns the HTTP handler for the REST debug API, meant to be
// served over a separate HTTPS listener from the QUIC media delivery port.
func (s *Server) APIHandler() http.Handler {
	mux := http.NewServeMux()
	s.registerAPIRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) handleListStreams(w http.ResponseWriter, r *http.Request) {
	if s.config.StreamLister == nil {
		writeJSON(w, http.StatusOK, []StreamInfo{})
		return
	}
	writeJSON(w, http.StatusOK, s.config.StreamLister())
}

func (s *Server) handleStreamDebug(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	relay := s.GetRelay(key)
	if relay == nil {
		writeError(w, http.StatusNotFound, "stream not found")
		return
	}

	snap := PipelineDebugSnapshot{
		Viewers: relay.ViewerStatsAll(),
	}
	if p := s.GetPipeline(key); p != nil {
		snap.Pipeline = p.PipelineDebug()
	}
	if s.config.IngestLookup != nil {
		snap.Ingest = s.config.IngestLookup(key)
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSRTPullList(w http.ResponseWriter, r *http.Request) {
	if s.config.SRTList == nil {
		writeJSON(w, http.StatusOK, []SRTPullInfo{})
		return
	}
	writeJSON(w, http.StatusOK, s.config.SRTList())
}

func (s *Server) handleSRTPullCreate(w http.ResponseWriter, r *http.Request) {
	if s.config.SRTPull == nil {
		writeError(w, http.StatusNotImplemented, "srt pull not supported")
		return
	}
	var req SRTPullInfo
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.config.SRTPull(req.Address, req.StreamKey, req.StreamID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (s *Server) handleSRTPullStop(w http.ResponseWriter, r *http.Request) {
	if s.config.SRTStop == nil {
		writeError(w, http.StatusNotImplemented, "srt pull not supported")
		return
	}
	key := r.URL.Query().Get("streamKey")
	if key == "" {
		writeError(w, http.StatusBadRequest, "streamKey is required")
		return
	}
	if err := s.config.SRTStop(key); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
