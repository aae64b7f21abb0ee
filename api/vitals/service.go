package vitals

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/webvitals/api/metrics"
	"golang.org/x/sync/errgroup"
)

// PollIntervalAuto asks the executor to use its own refresh cadence.
const PollIntervalAuto time.Duration = -1

const (
	defaultQueryTimeout   = 30 * time.Second
	defaultMaxConcurrency = 8
)

// Request is what an executor needs to run the panel query. Query is the
// canonical NRQL text; executors speaking another dialect build their own
// query from TargetURL, UseLike and the resolved bounds.
type Request struct {
	Query        string
	TargetURL    string
	UseLike      bool
	AccountID    int64
	TimeRange    TimeRange
	Begin        time.Time
	End          time.Time
	PollInterval time.Duration
}

// Executor runs the panel query against a telemetry store and returns the
// rows in expression order.
type Executor interface {
	Name() string
	Execute(ctx context.Context, req Request) (Results, error)
}

type ServiceConfig struct {
	Logger         *slog.Logger
	Clock          clockwork.Clock
	Executor       Executor
	Styles         *Styles
	QueryTimeout   time.Duration
	MaxConcurrency int
}

func (cfg *ServiceConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Executor == nil {
		return errors.New("executor is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = defaultQueryTimeout
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaultMaxConcurrency
	}
	return nil
}

// Service builds panels by running the query through an executor.
type Service struct {
	log      *slog.Logger
	cfg      ServiceConfig
	renderer *Renderer
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	renderer := NewRenderer(cfg.Logger)
	if cfg.Styles != nil {
		renderer.Styles = *cfg.Styles
	}
	return &Service{
		log:      cfg.Logger,
		cfg:      cfg,
		renderer: renderer,
	}, nil
}

// Backend returns the executor name.
func (s *Service) Backend() string {
	return s.cfg.Executor.Name()
}

// Styles returns the level styles used for readings.
func (s *Service) Styles() Styles {
	return s.renderer.Styles
}

// Request resolves in into an executor request.
func (s *Service) Request(in Inputs) Request {
	begin, end := in.TimeRange.Bounds(s.cfg.Clock.Now())
	return Request{
		Query:        BuildNRQLWithTimeRange(in.TargetURL, in.UseLike, in.TimeRange),
		TargetURL:    in.TargetURL,
		UseLike:      in.UseLike,
		AccountID:    in.AccountID,
		TimeRange:    in.TimeRange,
		Begin:        begin,
		End:          end,
		PollInterval: PollIntervalAuto,
	}
}

// Panel queries and renders one panel. Inputs that are not ready never
// reach the executor.
func (s *Service) Panel(ctx context.Context, in Inputs) Panel {
	if !in.Ready() {
		return s.record(s.renderer.Render(in, QueryResult{}))
	}

	req := s.Request(in)

	qctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	start := s.cfg.Clock.Now()
	rows, err := s.cfg.Executor.Execute(qctx, req)
	metrics.RecordQuery(s.Backend(), s.cfg.Clock.Since(start), err)
	if err != nil {
		if hub := sentry.GetHubFromContext(ctx); hub != nil {
			hub.CaptureException(err)
		}
		s.log.Debug("vitals query", "backend", s.Backend(), "query", req.Query)
	}

	return s.record(s.renderer.Render(in, QueryResult{Err: err, Rows: rows}))
}

// Panels renders each input concurrently, preserving order.
func (s *Service) Panels(ctx context.Context, inputs []Inputs) []Panel {
	panels := make([]Panel, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrency)
	for i, in := range inputs {
		g.Go(func() error {
			panels[i] = s.Panel(gctx, in)
			return nil
		})
	}
	_ = g.Wait()

	return panels
}

func (s *Service) record(p Panel) Panel {
	metrics.RecordPanelState(string(p.State))
	for _, r := range p.Readings {
		if r.Available {
			metrics.RecordReadingLevel(string(r.Metric), r.Level.String())
		}
	}
	return p
}
