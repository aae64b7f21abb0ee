package beacon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultTable          = "page_view_timing"
	defaultWriteBatchSize = 10_000
	maxURLLength          = 2048
)

var ErrInvalidSample = errors.New("invalid page view timing sample")

// PageViewTiming is one browser beacon. LCP is in seconds and FID in
// milliseconds, as browsers report them; CLS is unitless.
type PageViewTiming struct {
	ID                     uuid.UUID `json:"id"`
	Timestamp              time.Time `json:"timestamp"`
	AccountID              int64     `json:"account_id"`
	PageURL                string    `json:"page_url"`
	LargestContentfulPaint *float64  `json:"largest_contentful_paint,omitempty"`
	FirstInputDelay        *float64  `json:"first_input_delay,omitempty"`
	CumulativeLayoutShift  *float64  `json:"cumulative_layout_shift,omitempty"`
	NavigationType         string    `json:"navigation_type,omitempty"`
	UserAgent              string    `json:"user_agent,omitempty"`
}

// Validate checks that s can be stored.
func (s *PageViewTiming) Validate() error {
	if s.AccountID <= 0 {
		return fmt.Errorf("%w: account_id must be positive", ErrInvalidSample)
	}
	if strings.TrimSpace(s.PageURL) == "" {
		return fmt.Errorf("%w: page_url is required", ErrInvalidSample)
	}
	if len(s.PageURL) > maxURLLength {
		return fmt.Errorf("%w: page_url exceeds %d bytes", ErrInvalidSample, maxURLLength)
	}
	if s.LargestContentfulPaint == nil && s.FirstInputDelay == nil && s.CumulativeLayoutShift == nil {
		return fmt.Errorf("%w: at least one metric is required", ErrInvalidSample)
	}
	for name, v := range map[string]*float64{
		"largest_contentful_paint": s.LargestContentfulPaint,
		"first_input_delay":        s.FirstInputDelay,
		"cumulative_layout_shift":  s.CumulativeLayoutShift,
	} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0) {
			return fmt.Errorf("%w: %s must be a non-negative number", ErrInvalidSample, name)
		}
	}
	return nil
}

type StoreConfig struct {
	Logger         *slog.Logger
	Conn           driver.Conn
	Clock          clockwork.Clock
	Table          string
	WriteBatchSize int
}

func (cfg *StoreConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Conn == nil {
		return errors.New("clickhouse connection is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if cfg.WriteBatchSize <= 0 {
		cfg.WriteBatchSize = defaultWriteBatchSize
	}
	return nil
}

// Store writes beacon samples to ClickHouse.
type Store struct {
	log *slog.Logger
	cfg StoreConfig
}

func NewStore(cfg StoreConfig) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

// InsertPageViewTimings writes samples in sub-batches. Missing IDs and
// timestamps are filled in; samples are validated before anything is sent.
func (s *Store) InsertPageViewTimings(ctx context.Context, samples []PageViewTiming) error {
	if len(samples) == 0 {
		return nil
	}

	now := s.cfg.Clock.Now().UTC()
	for i := range samples {
		if err := samples[i].Validate(); err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
		if samples[i].ID == uuid.Nil {
			samples[i].ID = uuid.New()
		}
		if samples[i].Timestamp.IsZero() {
			samples[i].Timestamp = now
		}
	}

	insertSQL := fmt.Sprintf(`INSERT INTO %s (event_ts, ingested_at, id, account_id, page_url,
		largest_contentful_paint, first_input_delay, cumulative_layout_shift, navigation_type, user_agent)`, s.cfg.Table)

	s.log.Debug("writing page view timing batch", "table", s.cfg.Table, "count", len(samples), "batchSize", s.cfg.WriteBatchSize)

	for start := 0; start < len(samples); start += s.cfg.WriteBatchSize {
		end := min(start+s.cfg.WriteBatchSize, len(samples))

		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during batch insert: %w", ctx.Err())
		default:
		}

		batch, err := s.cfg.Conn.PrepareBatch(ctx, insertSQL)
		if err != nil {
			return fmt.Errorf("failed to prepare batch: %w", err)
		}

		for i := start; i < end; i++ {
			sample := samples[i]
			if err := batch.Append(
				sample.Timestamp.UTC(),
				now,
				sample.ID,
				uint64(sample.AccountID),
				sample.PageURL,
				sample.LargestContentfulPaint,
				sample.FirstInputDelay,
				sample.CumulativeLayoutShift,
				sample.NavigationType,
				sample.UserAgent,
			); err != nil {
				_ = batch.Abort()
				return fmt.Errorf("failed to append row %d: %w", i, err)
			}
		}

		if err := batch.Send(); err != nil {
			return fmt.Errorf("failed to send batch: %w", err)
		}

		s.log.Debug("wrote page view timing sub-batch", "start", start, "end", end, "total", len(samples))
	}

	return nil
}
