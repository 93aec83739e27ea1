package premium_query

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"premiummeter/internal/domain/premium"
	"premiummeter/internal/engine/aggregate"
	"premiummeter/internal/engine/grid"
	"premiummeter/internal/engine/strikes"
	"premiummeter/pkg/errors"
	"premiummeter/pkg/logger"
)

// BuildChart answers a chart query. One record read is issued per strike,
// at most MaxConcurrentReads at a time.
func (s *Service) BuildChart(ctx context.Context, req ChartRequest) (*ChartResponse, error) {
	start := s.now()
	id := uuid.NewString()
	ctx = errors.WithQueryID(ctx, id)
	log := s.log.With("query_id", id, "ticker", req.Ticker, "chart_type", req.ChartType)
	p := newPipeline(string(premium.QueryKindChart), log)

	resp, err := s.buildChart(ctx, id, req, p, log)

	entry := premium.QueryLogEntry{
		QueryID:    id,
		Kind:       string(premium.QueryKindChart),
		Ticker:     req.Ticker,
		OptionType: req.OptionType,
		StrikeMode: req.ChartType,
	}
	if resp != nil {
		entry.Ticker = resp.Ticker
		entry.Results = uint32(len(resp.StrikePrices) * len(resp.DurationsDays))
		entry.DataPoints = uint64(resp.TotalDataPoints)
	}
	s.finish(ctx, p, entry, start, err, log)

	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *Service) buildChart(ctx context.Context, id string, req ChartRequest, p *pipeline, log *logger.Logger) (*ChartResponse, error) {
	q, err := req.validate(s.cfg)
	if err != nil {
		return nil, err
	}
	p.advance(StateValidated)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	if err := s.checkTicker(ctx, q.ticker); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	window := premium.LookbackWindow(now, q.lookbackDays)
	empty := func(stage State) (*ChartResponse, error) {
		p.empty(stage)
		g, err := grid.Build(q.chartType, grid.Input{Statistic: q.statistic, Durations: q.durations})
		if err != nil {
			return nil, err
		}
		return newChartResponse(id, q, window, g), nil
	}

	var observed []decimal.Decimal
	err = s.read(ctx, "observed_strikes", func(ctx context.Context) (err error) {
		observed, err = s.records.ObservedStrikes(ctx, q.ticker, q.optionType, window)
		return err
	})
	if err != nil {
		return nil, err
	}

	selected := strikes.Distinct(observed)
	if len(q.strikes) > 0 {
		selected = nil
		for _, k := range q.strikes {
			selected = append(selected, strikes.Strikes(strikes.Resolve(premium.ExactStrike{Strike: k}, observed))...)
		}
		selected = strikes.Distinct(selected)
	}
	p.advance(StateStrikesResolved)
	if len(selected) == 0 {
		return empty(StateStrikesResolved)
	}

	var expirations []time.Time
	err = s.read(ctx, "observed_expirations", func(ctx context.Context) (err error) {
		expirations, err = s.records.ObservedExpirations(ctx, q.ticker, q.optionType, window)
		return err
	})
	if err != nil {
		return nil, err
	}

	union := make(map[time.Time]struct{})
	var candidates []time.Time
	for _, d := range q.durations {
		for _, exp := range s.matcher.CandidateExpirations(q.durationRequest(d), window, expirations) {
			if _, ok := union[exp]; !ok {
				union[exp] = struct{}{}
				candidates = append(candidates, exp)
			}
		}
	}
	if len(candidates) == 0 {
		return empty(StateCohortsBuilt)
	}

	perStrike := make([][]premium.Record, len(selected))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrentReads)
	for i, k := range selected {
		g.Go(func() error {
			return s.read(gctx, "fetch_records", func(ctx context.Context) (err error) {
				perStrike[i], err = s.records.FetchRecords(ctx, premium.RecordFilter{
					Ticker:      q.ticker,
					OptionType:  q.optionType,
					Strikes:     []decimal.Decimal{k},
					Expirations: candidates,
					Window:      window,
				})
				return err
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	in := grid.Input{Statistic: q.statistic, Durations: q.durations}
	if q.chartType != premium.ChartTimeSeries2D {
		in.Strikes = selected
	}
	reqs := make([]premium.DurationRequest, len(q.durations))
	for j, d := range q.durations {
		reqs[j] = q.durationRequest(d)
	}
	for i, records := range perStrike {
		// overlapping tolerance bands must not count one observation in two columns
		parts := s.matcher.Partition(reqs, records)
		for j, d := range q.durations {
			cohorts := s.matcher.Match(reqs[j], parts[j])
			if len(cohorts) == 0 {
				continue
			}

			if q.chartType == premium.ChartTimeSeries2D {
				series := grid.SeriesInput{Strike: selected[i], DurationDays: d}
				for _, c := range cohorts {
					series.Records = append(series.Records, c.Records...)
				}
				in.Series = append(in.Series, series)
				continue
			}

			for _, c := range cohorts {
				res, err := aggregate.Aggregate(c, nil)
				if err != nil {
					return nil, errors.Wrap(err, "aggregate cohort")
				}
				// cells are keyed by the assigned requested duration, not the cohort's own DTE
				res.DurationDays = d
				in.Results = append(in.Results, res)
			}
		}
	}
	p.advance(StateCohortsBuilt)

	if len(in.Results) == 0 && len(in.Series) == 0 {
		return empty(StateCohortsBuilt)
	}

	chart, err := grid.Build(q.chartType, in)
	if err != nil {
		return nil, err
	}
	p.advance(StateAggregated)
	p.advance(StateResponded)

	log.Debugw("Chart built",
		"strikes", len(chart.StrikeAxis),
		"durations", len(chart.DurationAxis),
		"series", len(chart.Series),
	)
	return newChartResponse(id, q, window, chart), nil
}
