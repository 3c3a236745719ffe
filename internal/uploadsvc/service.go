package uploadsvc

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/trackshift/platform/uplink/internal/dlp"
	"github.com/trackshift/platform/uplink/internal/netutil"
	"github.com/trackshift/platform/uplink/internal/registry"
	"github.com/trackshift/platform/uplink/internal/resource"
	"github.com/trackshift/platform/uplink/internal/token"
)

const (
	DefaultAuthTimeout     = 60 * time.Second
	DefaultMaxMemory       = 32 << 20
	defaultShutdownTimeout = 5 * time.Second
)

// Registry tracks the live instances of a process, keyed by token.
type Registry = registry.Registry[*Service]

func NewRegistry() *Registry {
	return registry.New[*Service]()
}

type State int

const (
	StateCreated State = iota
	StateListening
	StateAwaiting
	StateParsing
	StatePersisting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateListening:
		return "listening"
	case StateAwaiting:
		return "awaiting_authorized_request"
	case StateParsing:
		return "parsing"
	case StatePersisting:
		return "persisting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeTimeout Outcome = "timeout"
	OutcomeError   Outcome = "error"
)

// Result is the terminal record of an instance.
type Result struct {
	Outcome Outcome
	Err     error
	// Files are the slash-separated paths, relative to the storage root, of
	// the files the authorized request carried.
	Files      []string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Config controls how instances bind, authorize and persist.
type Config struct {
	// Root is the storage root; uploads land in a kind-specific subfolder.
	Root string
	// BindHost is the interface the listener binds to; empty means all.
	BindHost string
	// AdvertiseHost is the host placed in the instance URL. Empty selects the
	// LAN IPv4 address of the machine.
	AdvertiseHost   string
	AuthTimeout     time.Duration
	// MaxMemory bounds the file bytes held in memory per upload; the rest
	// is spooled to temporary files.
	MaxMemory       int64
	ShutdownTimeout time.Duration
	Scanner         dlp.Scanner
	Logger          zerolog.Logger
	// OnClose runs once, after the instance left the registry and stopped
	// listening, and before Done is closed.
	OnClose func(*Service, Result)
}

// Service is a single-use HTTP endpoint that accepts one authorized
// multipart upload for one target and then tears itself down.
type Service struct {
	Token string
	URL   string

	kind   resource.Kind
	target string
	cfg    Config
	reg    *Registry
	logger zerolog.Logger

	listener net.Listener
	server   *http.Server

	mu      sync.Mutex
	state   State
	result  Result
	started time.Time

	claimed   chan struct{}
	finished  chan Result
	stop      chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

// New validates the request, registers the instance under its token and
// binds its listener. Nothing is registered or bound when an error is
// returned.
func New(reg *Registry, kind resource.Kind, target string, cfg Config) (*Service, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedKind, int(kind))
	}
	if target == "" || target == "." || target == ".." || target != filepath.Base(target) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}
	cfg = withDefaults(cfg)

	dest := kind.Destination(cfg.Root, target)
	if _, err := os.Stat(dest); err == nil {
		return nil, fmt.Errorf("%w: %s %s", ErrConflict, kind, target)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("check destination: %w", err)
	}

	tok := token.Generate(kind, target)
	s := &Service{
		Token:  tok,
		kind:   kind,
		target: target,
		cfg:    cfg,
		reg:    reg,
		logger: cfg.Logger.With().
			Str("component", "uploadsvc").
			Str("token_id", token.ID(tok)).
			Str("kind", kind.String()).
			Str("target", target).
			Logger(),
		state:    StateCreated,
		claimed:  make(chan struct{}),
		finished: make(chan Result, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if !reg.TryRegister(tok, s) {
		return nil, fmt.Errorf("%w: %s %s", ErrDuplicateUpload, kind, target)
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(cfg.BindHost, "0"))
	if err != nil {
		reg.Remove(tok)
		return nil, fmt.Errorf("listen: %w", err)
	}
	host := cfg.AdvertiseHost
	if host == "" {
		host = netutil.LocalIPv4()
	}
	port := ln.Addr().(*net.TCPAddr).Port
	s.URL = fmt.Sprintf("http://%s/upload/", net.JoinHostPort(host, strconv.Itoa(port)))
	s.listener = ln

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/upload", s.handleUpload)
	r.Post("/upload/", s.handleUpload)
	r.MethodNotAllowed(s.handleIgnored)
	s.server = &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}

	s.setState(StateListening)
	s.started = time.Now().UTC()
	s.logger.Info().Str("url", s.URL).Msg("upload service listening")
	return s, nil
}

func withDefaults(cfg Config) Config {
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = DefaultAuthTimeout
	}
	if cfg.MaxMemory <= 0 {
		cfg.MaxMemory = DefaultMaxMemory
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	return cfg
}

func (s *Service) Kind() resource.Kind { return s.kind }
func (s *Service) Target() string      { return s.target }

func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the instance reached StateClosed and OnClose returned.
func (s *Service) Done() <-chan struct{} { return s.done }

// Result returns the terminal result. It is only meaningful after Done.
func (s *Service) Result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Serve runs the instance until it closes: an authorized upload was handled,
// the authorization deadline passed, the listener failed or Stop was called.
// The deadline only bounds the wait for an authorized request; once one is
// claimed, parsing and persisting run to completion.
func (s *Service) Serve() Result {
	defer s.close()

	s.setState(StateAwaiting)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.server.Serve(s.listener)
	}()

	timer := time.NewTimer(s.cfg.AuthTimeout)
	defer timer.Stop()

	var res Result
	select {
	case <-s.claimed:
		res = <-s.finished
	case <-timer.C:
		res = s.abandon(OutcomeTimeout, ErrAuthorizationTimeout)
	case <-s.stop:
		res = s.abandon(OutcomeError, ErrStopped)
	case err := <-serveErr:
		res = s.abandon(OutcomeError, fmt.Errorf("serve: %w", err))
	}

	s.mu.Lock()
	res.StartedAt = s.started
	res.FinishedAt = time.Now().UTC()
	s.result = res
	s.mu.Unlock()

	switch res.Outcome {
	case OutcomeSuccess:
		s.logger.Info().Int("files", len(res.Files)).Msg("upload stored")
	case OutcomeTimeout:
		s.logger.Info().Dur("timeout", s.cfg.AuthTimeout).Msg("upload service stopped due to timeout")
	default:
		s.logger.Error().Err(res.Err).Msg("upload failed")
	}
	return res
}

// Stop asks a serving instance to close. An upload that is already being
// parsed or persisted is not interrupted.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// abandon closes the wait for an authorized request unless a request claimed
// the instance first, in which case that request's result wins.
func (s *Service) abandon(outcome Outcome, err error) Result {
	s.mu.Lock()
	if s.state != StateAwaiting {
		s.mu.Unlock()
		return <-s.finished
	}
	s.state = StateClosed
	s.mu.Unlock()
	return Result{Outcome: outcome, Err: err}
}

// claim moves the instance out of the waiting state for the first authorized
// request. Later requests are refused.
func (s *Service) claim() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAwaiting {
		return false
	}
	s.state = StateParsing
	close(s.claimed)
	return true
}

func (s *Service) close() {
	s.closeOnce.Do(func() {
		s.reg.Remove(s.Token)
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("forcing listener close")
			s.server.Close()
		}
		// Shutdown only closes listeners handed to Serve.
		_ = s.listener.Close()
		s.setState(StateClosed)
		if s.cfg.OnClose != nil {
			s.cfg.OnClose(s, s.Result())
		}
		close(s.done)
	})
}

func (s *Service) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.logger.Debug().Str("state", state.String()).Msg("state changed")
}

func (s *Service) handleIgnored(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug().Str("method", r.Method).Msg("ignoring non-POST request")
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}

func (s *Service) handleUpload(w http.ResponseWriter, r *http.Request) {
	if subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), []byte(s.Token)) != 1 {
		s.logger.Warn().Str("remote_addr", r.RemoteAddr).Msg("rejected upload with invalid token")
		w.Header().Set("Connection", "close")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !s.claim() {
		http.Error(w, "upload window closed", http.StatusGone)
		return
	}
	s.logger.Debug().Msg("authorized upload, storing files")

	// The claimed instance waits on finished, so a result is published on
	// every path out of here, panics included.
	var res Result
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error().Interface("panic", p).Msg("upload handler panicked")
			res = Result{Outcome: OutcomeError, Err: fmt.Errorf("panic: %v", p)}
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"status": string(res.Outcome),
				"error":  res.Err.Error(),
			})
		}
		s.finished <- res
	}()

	res = s.receive(r)
	payload := map[string]any{"status": string(res.Outcome), "files": res.Files}
	if res.Err != nil {
		payload["error"] = res.Err.Error()
	}
	writeJSON(w, statusFor(res.Err), payload)
}

// receive parses the claimed request and persists its files.
func (s *Service) receive(r *http.Request) Result {
	parts, cleanup, err := readParts(r, s.cfg.MaxMemory)
	defer cleanup()
	if err != nil {
		return Result{Outcome: OutcomeError, Err: err}
	}
	subfolder := s.kind.Subfolder(s.target)
	files := make([]string, 0, len(parts))
	for _, part := range parts {
		files = append(files, path.Join(filepath.ToSlash(subfolder), part.name))
	}

	if err := s.scan(r.Context(), parts); err != nil {
		return Result{Outcome: OutcomeError, Err: err, Files: files}
	}

	s.setState(StatePersisting)
	if err := persistAll(filepath.Join(s.cfg.Root, subfolder), parts); err != nil {
		return Result{Outcome: OutcomeError, Err: err, Files: files}
	}
	return Result{Outcome: OutcomeSuccess, Files: files}
}

func (s *Service) scan(ctx context.Context, parts []filePart) error {
	if s.cfg.Scanner == nil {
		return nil
	}
	for _, part := range parts {
		err := s.cfg.Scanner.ScanFile(ctx, part.name, part.size, part.open)
		if err == nil {
			continue
		}
		var violation *dlp.Violation
		if !errors.As(err, &violation) {
			return fmt.Errorf("scan %s: %w", part.name, err)
		}
		s.logger.Warn().Str("file", part.name).Str("rule", violation.Rule).Msg("dlp violation on upload")
		if s.cfg.Scanner.Enforced() {
			return fmt.Errorf("%w: %w", ErrPolicyViolation, violation)
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
