package premium_query

import (
	"context"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"premiummeter/internal/domain/premium"
	"premiummeter/internal/domain/stock"
	"premiummeter/internal/engine/aggregate"
	"premiummeter/internal/engine/expiry"
	"premiummeter/internal/engine/greeks"
	"premiummeter/internal/engine/strikes"
	"premiummeter/internal/metrics"
	"premiummeter/pkg/errors"
	"premiummeter/pkg/logger"
)

// Config holds the query parameters the service needs
type Config struct {
	DefaultToleranceDays int
	DefaultLookbackDays  int
	MaxLookbackDays      int
	MaxNearestCount      int
	ChartDurations       []int
	StoreTimeout         time.Duration
	MaxConcurrentReads   int
	CacheTTL             time.Duration
}

// DefaultConfig mirrors the configuration defaults
func DefaultConfig() Config {
	return Config{
		DefaultToleranceDays: 3,
		DefaultLookbackDays:  30,
		MaxLookbackDays:      3650,
		MaxNearestCount:      50,
		ChartDurations:       []int{7, 14, 30, 45, 60, 90},
		StoreTimeout:         15 * time.Second,
		MaxConcurrentReads:   4,
		CacheTTL:             5 * time.Minute,
	}
}

// Option customises a Service
type Option func(*Service)

// WithCatalog enables the ticker catalog check
func WithCatalog(catalog stock.Repository) Option {
	return func(s *Service) { s.catalog = catalog }
}

// WithCache enables the result cache
func WithCache(cache premium.ResultCache) Option {
	return func(s *Service) { s.cache = cache }
}

// WithCounter enables the daily query counter
func WithCounter(counter premium.QueryCounter) Option {
	return func(s *Service) { s.counter = counter }
}

// WithQueryLog enables the query log
func WithQueryLog(queryLog premium.QueryLog) Option {
	return func(s *Service) { s.queryLog = queryLog }
}

// WithLimiter throttles record store reads
func WithLimiter(limiter *rate.Limiter) Option {
	return func(s *Service) { s.limiter = limiter }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service drives premium and chart queries through the engine.
// It holds no per-query state and is safe for concurrent use.
type Service struct {
	records  premium.Repository
	catalog  stock.Repository
	cache    premium.ResultCache
	counter  premium.QueryCounter
	queryLog premium.QueryLog
	matcher  *expiry.Matcher
	calc     *greeks.Calculator
	limiter  *rate.Limiter
	cfg      Config
	now      func() time.Time
	log      *logger.Logger
}

// NewService creates a new premium query service
func NewService(
	records premium.Repository,
	matcher *expiry.Matcher,
	calc *greeks.Calculator,
	cfg Config,
	log *logger.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		records: records,
		cache:   premium.NoopCache{},
		matcher: matcher,
		calc:    calc,
		limiter: rate.NewLimiter(rate.Inf, 0),
		cfg:     cfg,
		now:     time.Now,
		log:     log.Component("premium_query"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.MaxConcurrentReads < 1 {
		s.cfg.MaxConcurrentReads = 1
	}
	return s
}

// QueryPremiums answers a premium statistics query
func (s *Service) QueryPremiums(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	start := s.now()
	id := uuid.NewString()
	ctx = errors.WithQueryID(ctx, id)
	log := s.log.With("query_id", id, "ticker", req.Ticker)
	p := newPipeline(string(premium.QueryKindPremium), log)

	resp, cacheHit, err := s.queryPremiums(ctx, id, req, p, log)

	entry := premium.QueryLogEntry{
		QueryID:    id,
		Kind:       string(premium.QueryKindPremium),
		Ticker:     req.Ticker,
		OptionType: req.OptionType,
		StrikeMode: req.StrikeMode,
		CacheHit:   cacheHit,
	}
	if resp != nil {
		entry.Ticker = resp.Ticker
		entry.Results = uint32(len(resp.Results))
		entry.DataPoints = uint64(resp.TotalDataPoints)
	}
	s.finish(ctx, p, entry, start, err, log)

	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *Service) queryPremiums(ctx context.Context, id string, req QueryRequest, p *pipeline, log *logger.Logger) (*QueryResponse, bool, error) {
	q, err := req.validate(s.cfg)
	if err != nil {
		return nil, false, err
	}
	p.advance(StateValidated)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	if err := s.checkTicker(ctx, q.ticker); err != nil {
		return nil, false, err
	}

	now := s.now().UTC()
	window := premium.LookbackWindow(now, q.lookbackDays)
	resp := newQueryResponse(id, q, now)

	if q.targetFromUnderlying {
		var target *decimal.Decimal
		err := s.read(ctx, "latest_underlying", func(ctx context.Context) (err error) {
			target, err = s.records.LatestUnderlyingPrice(ctx, q.ticker, window)
			return err
		})
		if err != nil {
			return nil, false, err
		}
		if target == nil {
			log.Infow("No underlying price in window, nearest target unknown")
			p.empty(StateStrikesResolved)
			return resp, false, nil
		}
		sel := q.selection.(premium.NearestStrikes)
		sel.Target = *target
		q.selection = sel
		resp.UnderlyingPrice = target
	}

	var observed []decimal.Decimal
	err = s.read(ctx, "observed_strikes", func(ctx context.Context) (err error) {
		observed, err = s.records.ObservedStrikes(ctx, q.ticker, q.optionType, window)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	targets := strikes.Resolve(q.selection, observed)
	p.advance(StateStrikesResolved)
	if len(targets) == 0 {
		log.Infow("No strikes matched", "mode", q.selection.Mode(), "observed", len(observed))
		p.empty(StateStrikesResolved)
		return resp, false, nil
	}
	resolved := strikes.Strikes(targets)

	var expirations []time.Time
	err = s.read(ctx, "observed_expirations", func(ctx context.Context) (err error) {
		expirations, err = s.records.ObservedExpirations(ctx, q.ticker, q.optionType, window)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	candidates := s.matcher.CandidateExpirations(q.duration, window, expirations)
	if len(candidates) == 0 {
		log.Infow("No expiration within tolerance", "duration", q.duration.RequestedDays, "tolerance", q.duration.ToleranceDays)
		p.empty(StateCohortsBuilt)
		return resp, false, nil
	}

	key := cacheKey(q, resolved, candidates, window, s.matcher.Counter().Name(), s.calc.Rate())
	generation, cached := s.lookupCache(ctx, q.ticker, key, log)
	if cached != nil {
		p.advance(StateAggregated)
		if resp.UnderlyingPrice == nil {
			resp.UnderlyingPrice = cached.UnderlyingPrice
		}
		resp.setResults(cached.Results)
		resp.Cached = true
		s.settle(p, len(cached.Results), StateCohortsBuilt)
		return resp, true, nil
	}

	var records []premium.Record
	err = s.read(ctx, "fetch_records", func(ctx context.Context) (err error) {
		records, err = s.records.FetchRecords(ctx, premium.RecordFilter{
			Ticker:      q.ticker,
			OptionType:  q.optionType,
			Strikes:     resolved,
			Expirations: candidates,
			Window:      window,
		})
		return err
	})
	if err != nil {
		return nil, false, err
	}

	cohorts := s.matcher.Match(q.duration, records)
	p.advance(StateCohortsBuilt)

	results, err := s.aggregateCohorts(cohorts)
	if err != nil {
		return nil, false, err
	}
	p.advance(StateAggregated)

	if resp.UnderlyingPrice == nil {
		resp.UnderlyingPrice = latestUnderlying(records)
	}
	resp.setResults(results)
	s.settle(p, len(results), StateCohortsBuilt)

	log.Debugw("Query answered",
		"records", humanize.Comma(int64(len(records))),
		"cohorts", len(cohorts),
		"strikes", resp.TotalStrikes,
	)

	s.storeCache(ctx, q.ticker, generation, key, &premium.CachedQuery{
		Results:         resp.Results,
		UnderlyingPrice: resp.UnderlyingPrice,
	}, log)

	return resp, false, nil
}

// settle moves an aggregated pipeline into its terminal state
func (s *Service) settle(p *pipeline, results int, emptyStage State) {
	if results == 0 {
		p.empty(emptyStage)
		return
	}
	p.advance(StateResponded)
}

// aggregateCohorts summarises cohorts, ordered by strike, duration, then expiration
func (s *Service) aggregateCohorts(cohorts []premium.Cohort) ([]premium.AggregatedResult, error) {
	results := make([]premium.AggregatedResult, 0, len(cohorts))
	for _, c := range cohorts {
		if len(c.Records) == 0 {
			continue
		}
		res, err := aggregate.Aggregate(c, s.greeksFor)
		if err != nil {
			return nil, errors.Wrap(err, "aggregate cohort")
		}
		results = append(results, res)
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if c := a.StrikePrice.Cmp(b.StrikePrice); c != 0 {
			return c < 0
		}
		if a.DurationDays != b.DurationDays {
			return a.DurationDays < b.DurationDays
		}
		return a.ExpirationDate.Before(b.ExpirationDate)
	})
	return results, nil
}

func (s *Service) greeksFor(r premium.Record, dte int) (premium.Greeks, bool) {
	g, outcome := s.calc.ForRecord(r, dte)
	metrics.RecordGreeks(string(outcome))
	return g, outcome == greeks.OutcomeOK
}

// checkTicker rejects tickers unknown to the catalog. Skipped without a catalog.
func (s *Service) checkTicker(ctx context.Context, ticker string) error {
	if s.catalog == nil {
		return nil
	}
	_, err := s.catalog.GetByTicker(ctx, ticker)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errors.ErrNotFound):
		return errors.Wrapf(errors.ErrTickerNotFound, "%s", ticker)
	case ctx.Err() != nil:
		return errors.Wrap(ctx.Err(), "ticker catalog")
	}
	return errors.Wrapf(errors.ErrUnavailable, "ticker catalog: %v", err)
}

// read runs one record store call behind the deadline check and the rate limiter
func (s *Service) read(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrapf(err, "before %s", op)
	}

	waitStart := time.Now()
	if err := s.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return errors.Wrapf(ctx.Err(), "waiting for %s", op)
		}
		return errors.Wrapf(errors.ErrTimeout, "waiting for %s: %v", op, err)
	}
	metrics.StoreReadWait.Observe(time.Since(waitStart).Seconds())

	if err := fn(ctx); err != nil {
		if ctx.Err() != nil {
			return errors.Wrapf(ctx.Err(), "%s", op)
		}
		return errors.Wrapf(errors.ErrUpstreamUnavailable, "%s: %v", op, err)
	}
	return nil
}

func (s *Service) lookupCache(ctx context.Context, ticker, key string, log *logger.Logger) (int64, *premium.CachedQuery) {
	generation, err := s.cache.Generation(ctx, ticker)
	if err != nil {
		metrics.RecordCacheLookup(false, err)
		log.Warnw("Cache generation lookup failed", "error", err)
		return -1, nil
	}

	cached, err := s.cache.Get(ctx, ticker, generation, key)
	metrics.RecordCacheLookup(cached != nil, err)
	if err != nil {
		log.Warnw("Cache lookup failed", "error", err)
		return generation, nil
	}
	return generation, cached
}

func (s *Service) storeCache(ctx context.Context, ticker string, generation int64, key string, value *premium.CachedQuery, log *logger.Logger) {
	if generation < 0 {
		return
	}
	if err := s.cache.Set(ctx, ticker, generation, key, value, s.cfg.CacheTTL); err != nil {
		log.Warnw("Cache store failed", "error", err)
	}
}

// finish records metrics, the daily counter and the query log for a completed query
func (s *Service) finish(ctx context.Context, p *pipeline, entry premium.QueryLogEntry, start time.Time, err error, log *logger.Logger) {
	latency := s.now().Sub(start)

	entry.Status = p.state.String()
	if err != nil {
		p.fail()
		apiErr := errors.ToAPIError(err)
		entry.Status = apiErr.Code
		if apiErr.Code == errors.CodeInternal || apiErr.Code == errors.CodeUpstreamUnavailable {
			log.ErrorWithContext(ctx, err, map[string]string{"query_kind": entry.Kind})
		} else {
			log.Infow("Query rejected", "code", apiErr.Code, "error", err)
		}
	}
	if stage := p.emptyStage(); stage != "" {
		entry.EmptyAt = stage
		metrics.RecordEmptyQuery(entry.Kind, stage)
	}

	metrics.RecordQuery(entry.Kind, entry.Status, latency, int(entry.Results))
	log.Infow("Query finished",
		"kind", entry.Kind,
		"status", entry.Status,
		"results", entry.Results,
		"latency", latency,
	)

	// bookkeeping must survive a cancelled request
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	if s.counter != nil {
		if _, cerr := s.counter.Increment(bg, start.UTC()); cerr != nil {
			log.Warnw("Query counter increment failed", "error", cerr)
		}
	}
	if s.queryLog != nil {
		entry.LatencyMs = uint32(latency.Milliseconds())
		entry.RequestedAt = start.UTC()
		if lerr := s.queryLog.Record(bg, entry); lerr != nil {
			log.Warnw("Query log append failed", "error", lerr)
		}
	}
}

// QueriesOn returns the number of queries served on the UTC day of day
func (s *Service) QueriesOn(ctx context.Context, day time.Time) (int64, error) {
	if s.counter == nil {
		return 0, errors.Wrap(errors.ErrUnavailable, "query counter disabled")
	}
	n, err := s.counter.Count(ctx, day)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrUnavailable, "query counter: %v", err)
	}
	return n, nil
}

// InvalidateTicker drops every cached answer for ticker
func (s *Service) InvalidateTicker(ctx context.Context, ticker string) error {
	gen, err := s.cache.Invalidate(ctx, ticker)
	if err != nil {
		return errors.Wrapf(err, "invalidate cache for %s", ticker)
	}
	metrics.CacheInvalidations.Inc()
	s.log.Debugw("Cache invalidated", "ticker", ticker, "generation", gen)
	return nil
}

func latestUnderlying(records []premium.Record) *decimal.Decimal {
	var latest *premium.Record
	for i := range records {
		r := &records[i]
		if r.UnderlyingPrice == nil {
			continue
		}
		if latest == nil || r.CollectionTimestamp.After(latest.CollectionTimestamp) {
			latest = r
		}
	}
	if latest == nil {
		return nil
	}
	price := *latest.UnderlyingPrice
	return &price
}
