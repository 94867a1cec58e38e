// Package ticket runs the ticket query pipeline: station resolution, session
// warm-up, schedule query, filtering and stop enrichment.
package ticket

import (
	"context"
	"errors"
	"strings"

	"github.com/railticket-query/internal/common/config"
	"github.com/railticket-query/internal/common/logger"
	"github.com/railticket-query/internal/common/retry"
	"github.com/railticket-query/internal/ticket/enrich"
	"github.com/railticket-query/internal/ticket/filter"
	"github.com/railticket-query/internal/ticket/itinerary"
	"github.com/railticket-query/internal/ticket/query"
	"github.com/railticket-query/internal/ticket/session"
	"github.com/railticket-query/internal/ticket/station"
	"github.com/railticket-query/pkg/ticket/models"
)

const suggestionLimit = 5

// Request is one ticket search as a caller describes it.
type Request struct {
	FromStation  string
	ToStation    string
	Date         string
	Purpose      string
	StartTime    string
	EndTime      string
	TrainTypes   []string
	ViaStation   string
	IncludeStops bool
}

// Result is the outcome of a successful query. Failures lists stop lookups
// that did not complete; they never fail the query.
type Result struct {
	FromCode string
	ToCode   string
	Trains   []models.TrainRecord
	Failures []*models.EnrichmentError
}

type Engine struct {
	stations *station.Directory
	sessions *session.Manager
	executor *query.Executor
	enricher *enrich.Enricher
	logger   logger.Logger
}

func New(stations *station.Directory, sessions *session.Manager, executor *query.Executor,
	enricher *enrich.Enricher, log logger.Logger) *Engine {
	return &Engine{
		stations: stations,
		sessions: sessions,
		executor: executor,
		enricher: enricher,
		logger:   log,
	}
}

// NewFromConfig wires every stage of the pipeline from configuration.
func NewFromConfig(cfg *config.Config, log logger.Logger) *Engine {
	policy := retryPolicy(cfg.Retry)

	stations := station.NewDirectory(
		station.NewHTTPSource(cfg.Upstream.StationListURL, cfg.Upstream.Timeout),
		policy, log)

	sessions := session.NewManager(session.Config{
		HomeURL: cfg.Upstream.HomeURL,
		InitURL: cfg.Upstream.InitURL(),
		Timeout: cfg.Upstream.Timeout,
		Retry:   policy,
		Courtesy: retry.Courtesy{
			Min: cfg.Courtesy.SessionStepMin,
			Max: cfg.Courtesy.SessionStepMax,
		},
	}, log)

	executor := query.NewExecutor(query.Config{
		Endpoints: cfg.Upstream.QueryURLs(),
		Retry:     policy,
		Courtesy: retry.Courtesy{
			Min: cfg.Courtesy.CandidateMin,
			Max: cfg.Courtesy.CandidateMax,
		},
	}, stations, log)

	enricher := enrich.NewEnricher(enrich.Config{
		StopsURL:      cfg.Upstream.StopsURL(),
		MaxInFlight:   cfg.Enrich.MaxInFlight,
		LookupTimeout: cfg.Enrich.LookupTimeout,
		CacheSize:     cfg.Enrich.CacheSize,
		CacheTTL:      cfg.Enrich.CacheTTL,
	}, log)

	return New(stations, sessions, executor, enricher, log)
}

// retryPolicy overlays the configured retry settings on the default policy.
// Zero values keep the default.
func retryPolicy(c config.RetryConfig) retry.Policy {
	p := retry.DefaultPolicy()
	if c.MaxAttempts > 0 {
		p.MaxAttempts = c.MaxAttempts
	}
	if c.InitialDelay > 0 {
		p.InitialDelay = c.InitialDelay
	}
	if c.Multiplier > 0 {
		p.Multiplier = c.Multiplier
	}
	return p
}

// Query runs the full pipeline. It fails only with an *models.InvalidStationError
// or a *models.ConnectionError; an empty train list is a valid result.
func (e *Engine) Query(ctx context.Context, req Request) (*Result, error) {
	fromCode, err := e.ResolveStation(ctx, req.FromStation)
	if err != nil {
		return nil, err
	}
	toCode, err := e.ResolveStation(ctx, req.ToStation)
	if err != nil {
		return nil, err
	}

	window := e.timeWindow(req.StartTime, req.EndTime)

	e.logger.Info("Querying tickets",
		"from", req.FromStation,
		"from_code", fromCode,
		"to", req.ToStation,
		"to_code", toCode,
		"date", req.Date)

	sess, err := e.sessions.Establish(ctx)
	if err != nil {
		return nil, err
	}

	records, err := e.executor.Query(ctx, sess, query.Params{
		FromCode: fromCode,
		ToCode:   toCode,
		Date:     req.Date,
		Purpose:  query.PurposeCode(req.Purpose),
	})
	if err != nil {
		return nil, err
	}

	records = filter.Apply(records, window, req.TrainTypes)

	trains, failures := e.enricher.Enrich(ctx, sess, records, fromCode, toCode, req.Date, enrich.Options{
		ViaStation:   req.ViaStation,
		IncludeStops: req.IncludeStops,
	})

	e.logger.Info("Ticket query finished",
		"trains", len(trains),
		"enrichment_failures", len(failures))

	return &Result{
		FromCode: fromCode,
		ToCode:   toCode,
		Trains:   trains,
		Failures: failures,
	}, nil
}

// ResolveStation maps a display name to a station code.
func (e *Engine) ResolveStation(ctx context.Context, name string) (string, error) {
	code, err := e.stations.Resolve(ctx, name)
	if err == nil {
		return code, nil
	}
	if !errors.Is(err, models.ErrStationNotFound) {
		return "", err
	}
	invalid := &models.InvalidStationError{
		Name:        strings.TrimSpace(name),
		Suggestions: e.stations.Suggest(name, suggestionLimit),
	}
	e.logger.Warn("Station not found", "station", invalid.Name, "suggestions", invalid.Suggestions)
	return "", invalid
}

// SearchStations lists up to ten stations matching keyword.
func (e *Engine) SearchStations(ctx context.Context, keyword string) []models.Station {
	if e.stations.Len() == 0 {
		if err := e.stations.Load(ctx); err != nil {
			return nil
		}
	}
	return e.stations.Search(keyword)
}

// StopsFromIndex reloads the trains saved in an itinerary index and fetches
// their stops. A missing or damaged index yields an empty result.
func (e *Engine) StopsFromIndex(ctx context.Context, path, date string) (*Result, error) {
	entries := itinerary.Read(path)
	if len(entries) == 0 {
		return &Result{Trains: []models.TrainRecord{}}, nil
	}

	records := make([]models.TrainRecord, len(entries))
	for i, entry := range entries {
		records[i] = entry.Record()
	}

	sess, err := e.sessions.Establish(ctx)
	if err != nil {
		return nil, err
	}

	trains, failures := e.enricher.Enrich(ctx, sess, records, "", "", date, enrich.Options{IncludeStops: true})
	return &Result{Trains: trains, Failures: failures}, nil
}

// timeWindow ignores a bound that does not parse instead of failing the query.
func (e *Engine) timeWindow(start, end string) *filter.TimeWindow {
	var w filter.TimeWindow
	var err error
	if w.Start, err = filter.NormalizeClock(start); err != nil {
		e.logger.Warn("Ignoring start time", "value", start, "error", err)
	}
	if w.End, err = filter.NormalizeClock(end); err != nil {
		e.logger.Warn("Ignoring end time", "value", end, "error", err)
	}
	if w.IsZero() {
		return nil
	}
	return &w
}
