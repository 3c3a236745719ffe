package provision

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/trackshift/platform/uplink/internal/connectors"
	"github.com/trackshift/platform/uplink/internal/history"
	"github.com/trackshift/platform/uplink/internal/metrics"
	"github.com/trackshift/platform/uplink/internal/resource"
	"github.com/trackshift/platform/uplink/internal/token"
	"github.com/trackshift/platform/uplink/internal/uploadsvc"
)

const closeHookTimeout = 2 * time.Minute

// Server answers provisioning calls by starting upload service instances.
type Server struct {
	registry        *uploadsvc.Registry
	uploads         uploadsvc.Config
	connectors      []connectors.Connector
	connectorStrict bool
	history         history.Recorder
	metrics         *metrics.Recorder
	logger          zerolog.Logger
}

type ServerConfig struct {
	Registry        *uploadsvc.Registry
	Uploads         uploadsvc.Config
	Connectors      []connectors.Connector
	ConnectorStrict bool
	History         history.Recorder
	Metrics         *metrics.Recorder
	Logger          zerolog.Logger
}

func NewServer(cfg ServerConfig) *Server {
	reg := cfg.Registry
	if reg == nil {
		reg = uploadsvc.NewRegistry()
	}
	hist := cfg.History
	if hist == nil {
		hist = history.Nop{}
	}
	rec := cfg.Metrics
	if rec == nil {
		rec = &metrics.Recorder{}
	}
	s := &Server{
		registry:        reg,
		uploads:         cfg.Uploads,
		connectors:      cfg.Connectors,
		connectorStrict: cfg.ConnectorStrict,
		history:         hist,
		metrics:         rec,
		logger:          cfg.Logger.With().Str("component", "provision").Logger(),
	}
	s.uploads.Logger = cfg.Logger
	s.uploads.OnClose = s.onClose
	return s
}

// Provision creates the instance for the request and starts it in the
// background. Failures are reported in Response.Message, never as an RPC
// error, and leave no listener behind.
func (s *Server) Provision(_ context.Context, req *Request) (*Response, error) {
	kind := resource.Kind(req.Type)
	svc, err := uploadsvc.New(s.registry, kind, req.Name, s.uploads)
	if err != nil {
		s.logger.Warn().Err(err).Str("target", req.Name).Int("type", req.Type).Msg("provision rejected")
		return &Response{Message: err.Error()}, nil
	}
	go svc.Serve()
	s.logger.Info().
		Str("target", req.Name).
		Str("kind", kind.String()).
		Str("token_id", token.ID(svc.Token)).
		Str("url", svc.URL).
		Msg("upload service started")
	return &Response{URL: svc.URL, Token: svc.Token}, nil
}

func (s *Server) Stats(context.Context, *StatsRequest) (*StatsResponse, error) {
	snap := s.metrics.Snapshot()
	return &StatsResponse{
		Active:      s.registry.Len(),
		Successes:   snap.Successes,
		Failures:    snap.Failures,
		Timeouts:    snap.Timeouts,
		SuccessRate: snap.SuccessRate,
		P95Millis:   snap.P95Millis,
	}, nil
}

// Shutdown stops every live instance and waits for them to close.
func (s *Server) Shutdown(ctx context.Context) error {
	var live []*uploadsvc.Service
	s.registry.Each(func(_ string, svc *uploadsvc.Service) {
		svc.Stop()
		live = append(live, svc)
	})
	for _, svc := range live {
		select {
		case <-svc.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *Server) onClose(svc *uploadsvc.Service, res uploadsvc.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), closeHookTimeout)
	defer cancel()

	logger := s.logger.With().Str("token_id", token.ID(svc.Token)).Str("target", svc.Target()).Logger()
	s.metrics.Record(metrics.Outcome(res.Outcome), res.FinishedAt.Sub(res.StartedAt))

	entry := history.Entry{
		TokenID:    token.ID(svc.Token),
		Kind:       svc.Kind().String(),
		Target:     svc.Target(),
		Outcome:    string(res.Outcome),
		Files:      len(res.Files),
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	}
	if res.Err != nil {
		entry.Error = res.Err.Error()
	}

	if res.Outcome == uploadsvc.OutcomeSuccess && len(s.connectors) > 0 {
		if err := connectors.Mirror(ctx, s.connectors, s.uploads.Root, res.Files, s.connectorStrict, logger); err != nil {
			entry.Error = err.Error()
		}
	}
	if err := s.history.Record(ctx, entry); err != nil {
		logger.Error().Err(err).Msg("failed to record upload history")
	}
}
