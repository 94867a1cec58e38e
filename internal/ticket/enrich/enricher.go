package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bluele/gcache"
	"github.com/railticket-query/internal/common/logger"
	"github.com/railticket-query/internal/ticket/session"
	"github.com/railticket-query/pkg/ticket/models"
)

type Config struct {
	StopsURL      string
	MaxInFlight   int
	LookupTimeout time.Duration
	CacheSize     int
	CacheTTL      time.Duration
}

type Options struct {
	ViaStation   string
	IncludeStops bool
}

func (o Options) needed() bool {
	return o.IncludeStops || strings.TrimSpace(o.ViaStation) != ""
}

// Enricher looks up stop itineraries for batches of trains.
type Enricher struct {
	config Config
	cache  gcache.Cache
	logger logger.Logger
}

func NewEnricher(config Config, log logger.Logger) *Enricher {
	if config.MaxInFlight <= 0 {
		config.MaxInFlight = 10
	}
	if config.LookupTimeout <= 0 {
		config.LookupTimeout = 10 * time.Second
	}

	e := &Enricher{
		config: config,
		logger: log.With("component", "enricher"),
	}
	if config.CacheSize > 0 {
		b := gcache.New(config.CacheSize).LRU()
		if config.CacheTTL > 0 {
			b = b.Expiration(config.CacheTTL)
		}
		e.cache = b.Build()
	}
	return e
}

type stopsResponse struct {
	Status bool `json:"status"`
	Data   struct {
		Data []struct {
			StationName  string `json:"station_name"`
			ArriveTime   string `json:"arrive_time"`
			StartTime    string `json:"start_time"`
			StopoverTime string `json:"stopover_time"`
		} `json:"data"`
	} `json:"data"`
}

var errNoStops = errors.New("no stops returned")

// Enrich fetches itineraries for records concurrently, with at most
// MaxInFlight lookups outstanding. Results keep the input order. A failed
// lookup leaves its record without stops, and drops it when ViaStation is
// set. With neither option set the records are returned untouched.
func (e *Enricher) Enrich(ctx context.Context, sess *session.Session, records []models.TrainRecord,
	fromCode, toCode, date string, opts Options) ([]models.TrainRecord, []*models.EnrichmentError) {
	if !opts.needed() || len(records) == 0 {
		return records, nil
	}
	via := strings.TrimSpace(opts.ViaStation)

	type outcome struct {
		stops []models.Stop
		err   error
	}
	outcomes := make([]outcome, len(records))

	tokens := make(chan struct{}, e.config.MaxInFlight)
	var wg sync.WaitGroup
	for i := range records {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			select {
			case tokens <- struct{}{}:
			case <-ctx.Done():
				outcomes[i].err = ctx.Err()
				return
			}
			defer func() { <-tokens }()

			rec := records[i]
			from, to := legCodes(rec, fromCode, toCode)
			stops, err := e.FetchStops(ctx, sess, rec.TrainNo, from, to, date)
			outcomes[i] = outcome{stops: stops, err: err}
		}(i)
	}
	wg.Wait()

	out := make([]models.TrainRecord, 0, len(records))
	var failures []*models.EnrichmentError
	for i, rec := range records {
		o := outcomes[i]
		if o.err != nil {
			failures = append(failures, &models.EnrichmentError{
				TrainNo:   rec.TrainNo,
				TrainCode: rec.TrainCode,
				Err:       o.err,
			})
			e.logger.Warn("Stop lookup failed", "train", rec.TrainCode, "train_no", rec.TrainNo, "error", o.err)
			if via != "" {
				continue
			}
			out = append(out, rec)
			continue
		}

		enriched := rec
		enriched.Stops = o.stops
		if via != "" && !enriched.HasStop(via) {
			continue
		}
		if !opts.IncludeStops {
			enriched.Stops = nil
		}
		out = append(out, enriched)
	}

	e.logger.Debug("Enrichment finished",
		"records", len(records),
		"kept", len(out),
		"failed", len(failures),
		"via", via)
	return out, failures
}

// FetchStops returns the itinerary of one train with boundary sentinels set.
// Each call has its own timeout.
func (e *Enricher) FetchStops(ctx context.Context, sess *session.Session, trainNo, fromCode, toCode, date string) ([]models.Stop, error) {
	key := strings.Join([]string{trainNo, fromCode, toCode, date}, "|")
	if e.cache != nil {
		if v, err := e.cache.Get(key); err == nil {
			return cloneStops(v.([]models.Stop)), nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.LookupTimeout)
	defer cancel()

	resp, err := sess.API(ctx).
		SetQueryParams(map[string]string{
			"train_no":              trainNo,
			"from_station_telecode": fromCode,
			"to_station_telecode":   toCode,
			"depart_date":           date,
		}).
		Get(e.config.StopsURL)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode())
	}

	var body stopsResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("%w: decoding stops: %v", models.ErrMalformedResponse, err)
	}
	if !body.Status || len(body.Data.Data) == 0 {
		return nil, errNoStops
	}

	stops := make([]models.Stop, 0, len(body.Data.Data))
	for _, row := range body.Data.Data {
		stops = append(stops, models.Stop{
			StationName:      strings.TrimSpace(row.StationName),
			ArrivalTime:      orSentinel(row.ArriveTime),
			DepartureTime:    orSentinel(row.StartTime),
			StopoverDuration: orSentinel(row.StopoverTime),
		})
	}
	markBoundaries(stops)

	if e.cache != nil {
		_ = e.cache.Set(key, cloneStops(stops))
	}
	return stops, nil
}

// markBoundaries sets the sentinel on the first arrival, the last departure
// and the stopover time at both ends.
func markBoundaries(stops []models.Stop) {
	if len(stops) == 0 {
		return
	}
	first, last := 0, len(stops)-1
	stops[first].ArrivalTime = models.Sentinel
	stops[first].StopoverDuration = models.Sentinel
	stops[last].DepartureTime = models.Sentinel
	stops[last].StopoverDuration = models.Sentinel
}

func legCodes(rec models.TrainRecord, fromCode, toCode string) (string, string) {
	from, to := rec.FromCode, rec.ToCode
	if from == "" {
		from = fromCode
	}
	if to == "" {
		to = toCode
	}
	return from, to
}

func orSentinel(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return models.Sentinel
	}
	return s
}

func cloneStops(stops []models.Stop) []models.Stop {
	out := make([]models.Stop, len(stops))
	copy(out, stops)
	return out
}
