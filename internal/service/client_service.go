package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/andrsadr/koravi/internal/domain"
	"github.com/andrsadr/koravi/internal/observability/metrics"
	"github.com/andrsadr/koravi/internal/observability/tracing"
	"github.com/andrsadr/koravi/internal/reliability/circuitbreaker"
	"github.com/andrsadr/koravi/internal/reliability/retry"
	"github.com/andrsadr/koravi/pkg/cache"
)

// Cache lifetimes per result kind
const (
	ListTTL       = 5 * time.Minute
	SearchListTTL = 2 * time.Minute
	ClientTTL     = 10 * time.Minute
	StatsTTL      = 10 * time.Minute
	SearchTTL     = 2 * time.Minute
)

const (
	// DefaultSearchLimit caps Search when no limit is given
	DefaultSearchLimit = 10
	// WarmListLimit is the size of the list preloaded by Warm
	WarmListLimit = 20
)

// Invalidation patterns; matched as substrings of cache keys
const (
	PatternLists  = "clients:"
	PatternSearch = "search:"
	PatternStats  = StatsKey
)

// StatsKey caches the status aggregate
const StatsKey = "client-stats"

// ClientsKey derives the cache key of a list query from the whole filter
func ClientsKey(filter domain.ListFilter) string {
	b, err := json.Marshal(filter)
	if err != nil {
		return fmt.Sprintf("clients:%+v", filter)
	}
	return "clients:" + string(b)
}

// ClientKey is the cache key of a single client
func ClientKey(id string) string {
	return "client:" + canonicalID(id)
}

// canonicalID maps every accepted spelling of a UUID (upper case, braces,
// urn:uuid: prefix, no hyphens) to its lower-case hyphenated form. Other
// ids are used as given.
func canonicalID(id string) string {
	id = strings.TrimSpace(id)
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return id
}

// SearchKey is the cache key of a search
func SearchKey(query string, limit int) string {
	return fmt.Sprintf("search:%s:%d", query, limit)
}

// Publisher broadcasts invalidation patterns to other instances
type Publisher interface {
	Publish(ctx context.Context, patterns ...string) error
}

// ClientService is the data-access layer for clients: every store call goes
// through the retry policy and the breaker, reads are cached and writes
// invalidate the affected entries.
type ClientService struct {
	repo      domain.ClientRepository
	cache     *cache.Cache
	retry     *retry.Config
	breaker   *circuitbreaker.Breaker
	publisher Publisher
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// Option customizes a ClientService
type Option func(*ClientService)

// WithBreaker guards the store with a circuit breaker
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(s *ClientService) { s.breaker = b }
}

// WithPublisher broadcasts local invalidations
func WithPublisher(p Publisher) Option {
	return func(s *ClientService) { s.publisher = p }
}

// WithClock replaces the time source used for updated_at
func WithClock(now func() time.Time) Option {
	return func(s *ClientService) { s.now = now }
}

// NewClientService creates a new client service
func NewClientService(
	repo domain.ClientRepository,
	c *cache.Cache,
	retryCfg *retry.Config,
	logger *slog.Logger,
	opts ...Option,
) *ClientService {
	if logger == nil {
		logger = slog.Default()
	}
	if c == nil {
		c = cache.New(cache.Options{})
	}
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}

	cfg := *retryCfg
	cfg.ShouldRetry = func(err error) bool {
		return domain.IsRetryable(err) && !errors.Is(err, circuitbreaker.ErrOpen)
	}
	cfg.OnRetry = func(op string, _ int, _ error) {
		metrics.ObserveRetry(op)
	}

	s := &ClientService{
		repo:   repo,
		cache:  c,
		retry:  &cfg,
		logger: logger,
		tracer: tracing.Tracer(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns clients matching filter, most recently updated first
func (s *ClientService) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Client, error) {
	ttl := ListTTL
	if strings.TrimSpace(filter.Search) != "" {
		ttl = SearchListTTL
	}
	return cache.WithCache(ctx, s.cache, ClientsKey(filter), ttl, func(ctx context.Context) ([]*domain.Client, error) {
		return call(ctx, s, "list", func(ctx context.Context) ([]*domain.Client, error) {
			return s.repo.List(ctx, filter)
		})
	})
}

// Get returns the client with id, or nil without error when none exists
func (s *ClientService) Get(ctx context.Context, id string) (*domain.Client, error) {
	id = canonicalID(id)
	if id == "" {
		return nil, nil
	}
	c, err := cache.WithCache(ctx, s.cache, ClientKey(id), ClientTTL, func(ctx context.Context) (*domain.Client, error) {
		return call(ctx, s, "get", func(ctx context.Context) (*domain.Client, error) {
			return s.repo.Get(ctx, id)
		})
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return c, err
}

// Create stores a new client. Labels, visit count and lifetime value
// default to empty and zero.
func (s *ClientService) Create(ctx context.Context, n domain.NewClient) (*domain.Client, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}
	n.ApplyDefaults()

	c, err := call(ctx, s, "create", func(ctx context.Context) (*domain.Client, error) {
		return s.repo.Create(ctx, n)
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, PatternLists, PatternSearch, PatternStats)
	s.logger.Info("client created", slog.String("client_id", c.ID))
	return c, nil
}

// Update applies a partial update and refreshes updated_at. A missing
// client is an error here, unlike Get.
func (s *ClientService) Update(ctx context.Context, id string, u domain.ClientUpdate) (*domain.Client, error) {
	id = canonicalID(id)
	if err := u.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	c, err := call(ctx, s, "update", func(ctx context.Context) (*domain.Client, error) {
		return s.repo.Update(ctx, id, u, now)
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, ClientKey(id), PatternLists, PatternSearch, PatternStats)
	return c, nil
}

// Delete removes a client; deleting an unknown id succeeds
func (s *ClientService) Delete(ctx context.Context, id string) error {
	id = canonicalID(id)
	_, err := call(ctx, s, "delete", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.repo.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, ClientKey(id), PatternLists, PatternSearch, PatternStats)
	return nil
}

// Search runs a free-text search. A blank query yields no results and
// never reaches the store.
func (s *ClientService) Search(ctx context.Context, query string, limit int) ([]*domain.Client, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*domain.Client{}, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	return cache.WithCache(ctx, s.cache, SearchKey(query, limit), SearchTTL, func(ctx context.Context) ([]*domain.Client, error) {
		return call(ctx, s, "search", func(ctx context.Context) ([]*domain.Client, error) {
			return s.repo.Search(ctx, query, limit)
		})
	})
}

// Stats returns client counts per status. The server-side aggregate is
// used first; a failure falls back to tallying every status.
func (s *ClientService) Stats(ctx context.Context) (*domain.Stats, error) {
	return cache.WithCache(ctx, s.cache, StatsKey, StatsTTL, s.fetchStats)
}

func (s *ClientService) fetchStats(ctx context.Context) (*domain.Stats, error) {
	st, err := call(ctx, s, "stats", s.repo.CountByStatus)
	if err == nil {
		return st, nil
	}
	if ctx.Err() != nil || errors.Is(err, circuitbreaker.ErrOpen) {
		return nil, err
	}

	s.logger.Warn("stats aggregate failed, tallying statuses", slog.String("error", err.Error()))
	metrics.ObserveStatsFallback()

	statuses, ferr := call(ctx, s, "stats_tally", s.repo.ListStatuses)
	if ferr != nil {
		return nil, ferr
	}
	tally := &domain.Stats{}
	for _, status := range statuses {
		tally.Add(status, 1)
	}
	return tally, nil
}

// Warm reloads the stats and the first page of clients into the cache.
// A write that lands while Warm is fetching wins over the warmed result.
func (s *ClientService) Warm(ctx context.Context) error {
	var errs []error

	if _, err := cache.Refresh(ctx, s.cache, StatsKey, StatsTTL, s.fetchStats); err != nil {
		errs = append(errs, err)
	}

	filter := domain.ListFilter{Limit: WarmListLimit}
	_, err := cache.Refresh(ctx, s.cache, ClientsKey(filter), ListTTL, func(ctx context.Context) ([]*domain.Client, error) {
		return call(ctx, s, "list", func(ctx context.Context) ([]*domain.Client, error) {
			return s.repo.List(ctx, filter)
		})
	})
	if err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// ApplyRemoteInvalidation drops entries invalidated by another instance
func (s *ClientService) ApplyRemoteInvalidation(patterns []string) {
	for _, p := range patterns {
		metrics.ObserveInvalidation("remote", s.cache.InvalidatePattern(p))
	}
}

func (s *ClientService) invalidate(ctx context.Context, patterns ...string) {
	for _, p := range patterns {
		metrics.ObserveInvalidation("local", s.cache.InvalidatePattern(p))
	}
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, patterns...); err != nil {
		s.logger.Warn("failed to publish cache invalidation",
			slog.String("error", err.Error()),
			slog.Any("patterns", patterns),
		)
	}
}

// call runs one store operation under tracing, the breaker and the retry
// policy, and normalizes whatever fails into a *domain.DataError.
func call[T any](ctx context.Context, s *ClientService, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, span := s.tracer.Start(ctx, "clients."+op, trace.WithAttributes(attribute.String("koravi.operation", op)))
	defer span.End()
	start := time.Now()

	v, err := retry.Do(ctx, s.retry, s.logger, op, func(ctx context.Context) (T, error) {
		var zero T
		if err := s.breaker.Allow(); err != nil {
			return zero, &domain.DataError{
				Op:        op,
				Message:   "backend temporarily unavailable",
				Code:      domain.CodeBackendUnavailable,
				Retryable: true,
				Err:       err,
			}
		}
		v, err := fn(ctx)
		if err != nil && domain.IsRetryable(err) {
			s.breaker.RecordFailure()
		} else {
			s.breaker.RecordSuccess()
		}
		return v, err
	})

	result := "success"
	if err != nil {
		result = "error"
		if errors.Is(err, domain.ErrNotFound) {
			result = "not_found"
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		err = asDataError(op, err)
	}
	metrics.ObserveBackend(op, result, time.Since(start))
	return v, err
}

func asDataError(op string, err error) error {
	var de *domain.DataError
	if errors.As(err, &de) {
		return err
	}
	return &domain.DataError{Op: op, Message: err.Error(), Code: domain.CodeUnexpected, Err: err}
}
