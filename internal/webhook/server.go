// Package webhook receives Asana webhook deliveries over HTTP and hands the
// decoded events to the engine.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"asanagram/internal/engine"
	"asanagram/internal/metrics"
	logx "asanagram/pkg/logx"
)

const (
	headerSecret    = "X-Hook-Secret"
	headerSignature = "X-Hook-Signature"
)

// Submitter accepts a decoded batch without blocking.
type Submitter interface {
	Submit(batchID string, events []engine.Event) error
}

type Config struct {
	Addr   string
	Path   string
	Secret string
	// AdoptSecret lets the first handshake set the signing secret when none
	// is configured. Enable it only while registering the webhook.
	AdoptSecret  bool
	MaxBodyBytes int64
	// Service is reported by the status endpoints.
	Service string
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Addr) == "" {
		c.Addr = ":3000"
	}
	if c.Path == "" {
		c.Path = "/webhook"
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if c.Service == "" {
		c.Service = "asanagram"
	}
	return c
}

// Server serves the webhook, status and metrics endpoints.
type Server struct {
	cfg     Config
	sub     Submitter
	log     logx.Logger
	m       *metrics.Metrics
	started time.Time
	status  func() any

	mu     sync.RWMutex
	secret string
}

type Option func(*Server)

// WithStatus adds the value returned by fn to the /health payload under "details".
func WithStatus(fn func() any) Option { return func(s *Server) { s.status = fn } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Server) { s.m = m } }

func NewServer(cfg Config, sub Submitter, log logx.Logger, opts ...Option) *Server {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{
		cfg:     cfg,
		sub:     sub,
		log:     log.With(logx.String("comp", "webhook")),
		started: time.Now(),
		secret:  strings.TrimSpace(cfg.Secret),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Server) Addr() string { return s.cfg.Addr + s.cfg.Path }

// Secret returns the signing secret in use, configured or adopted.
func (s *Server) Secret() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.secret
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == s.cfg.Path && r.Method == http.MethodPost:
		s.handleWebhook(w, r)
	case (r.URL.Path == "/" || r.URL.Path == "/health") && r.Method == http.MethodGet:
		s.handleStatus(w)
	case r.URL.Path == "/metrics" && r.Method == http.MethodGet && s.m != nil:
		s.m.Handler().ServeHTTP(w, r)
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	}
}

func (s *Server) handleStatus(w http.ResponseWriter) {
	up := time.Since(s.started).Truncate(time.Second)
	out := map[string]any{
		"status":         "ok",
		"service":        s.cfg.Service,
		"uptime":         up.String(),
		"uptime_seconds": int64(up.Seconds()),
	}
	if s.status != nil {
		out["details"] = s.status()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if hs := strings.TrimSpace(r.Header.Get(headerSecret)); hs != "" {
		s.handshake(w, hs)
		return
	}

	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	if !s.verify(r.Header.Get(headerSignature), body) {
		s.log.Warn("webhook signature mismatch", logx.String("remote", remoteIP(r)))
		s.m.WebhookRequest("unauthorized")
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid signature")
		return
	}

	events, skipped, err := engine.DecodeBatch(body)
	if err != nil {
		s.m.WebhookRequest("bad_request")
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body")
		return
	}
	batchID := uuid.NewString()
	log := s.log.With(logx.String("batch", batchID))
	for _, e := range skipped {
		s.m.EventIgnored("malformed")
		log.Debug("event skipped", logx.Err(e))
	}
	log.Info("webhook batch received", logx.Int("events", len(events)), logx.Int("skipped", len(skipped)))

	if err := s.sub.Submit(batchID, events); err != nil {
		// A full queue asks Asana to redeliver later.
		if errors.Is(err, engine.ErrQueueFull) {
			s.m.WebhookRequest("busy")
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusServiceUnavailable, "queue_full", err.Error())
			return
		}
		log.Warn("batch rejected", logx.Err(err))
	}
	s.m.WebhookRequest("accepted")
	w.WriteHeader(http.StatusOK)
}

// handshake echoes the secret Asana sends when a webhook is created. With no
// configured secret it is adopted for signature checks only when AdoptSecret
// is set; otherwise it is logged so it can be put into the config.
func (s *Server) handshake(w http.ResponseWriter, secret string) {
	s.mu.Lock()
	unset := s.secret == ""
	adopted := unset && s.cfg.AdoptSecret
	if adopted {
		s.secret = secret
	}
	s.mu.Unlock()
	switch {
	case adopted:
		s.log.Info("webhook handshake confirmed", logx.Bool("secret_adopted", true))
	case unset:
		s.log.Warn("webhook handshake secret not adopted; set webhook.secret to verify deliveries",
			logx.String("secret", secret))
	default:
		s.log.Info("webhook handshake confirmed", logx.Bool("secret_adopted", false))
	}
	s.m.WebhookRequest("handshake")
	w.Header().Set(headerSecret, secret)
	w.WriteHeader(http.StatusOK)
}

// verify accepts unsigned requests only while no secret is known.
func (s *Server) verify(signature string, body []byte) bool {
	secret := s.Secret()
	if secret == "" {
		return true
	}
	signature = strings.ToLower(strings.TrimSpace(signature))
	if signature == "" {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(Sign(secret, body)))
}

// Sign returns the lowercase hex HMAC-SHA256 of body, as Asana computes it.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.m.WebhookRequest("too_large")
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds limit")
			return nil, false
		}
		s.m.WebhookRequest("bad_request")
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body")
		return nil, false
	}
	return body, true
}

// ListenAndServe serves until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", logx.String("addr", s.cfg.Addr), logx.String("path", s.cfg.Path))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	return nil
}

func remoteIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		return strings.TrimSpace(strings.Split(xf, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{"code": code, "message": message})
}
