package station

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/railticket-query/internal/common/logger"
	"github.com/railticket-query/internal/common/retry"
	"github.com/railticket-query/pkg/ticket/models"
	"golang.org/x/sync/singleflight"
)

const searchLimit = 10

// table is an immutable snapshot of the station list. Entries keep source
// order, which is the tie-break for fuzzy matches.
type table struct {
	stations []models.Station
	byName   map[string]string
	byCode   map[string]string
	names    []string
}

func newTable(stations []models.Station) *table {
	t := &table{
		stations: stations,
		byName:   make(map[string]string, len(stations)),
		byCode:   make(map[string]string, len(stations)),
		names:    make([]string, 0, len(stations)),
	}
	for _, s := range stations {
		if _, ok := t.byName[s.Name]; !ok {
			t.byName[s.Name] = s.Code
			t.names = append(t.names, s.Name)
		}
		if _, ok := t.byCode[s.Code]; !ok {
			t.byCode[s.Code] = s.Name
		}
	}
	return t
}

// Directory resolves station names to codes and back.
type Directory struct {
	source Source
	policy retry.Policy
	logger logger.Logger

	current atomic.Pointer[table]
	reloads singleflight.Group
}

func NewDirectory(source Source, policy retry.Policy, log logger.Logger) *Directory {
	d := &Directory{
		source: source,
		policy: policy,
		logger: log.With("component", "stations"),
	}
	d.current.Store(newTable(nil))
	return d
}

// Load fetches the station table, retrying with backoff. On failure the
// previous table is kept.
func (d *Directory) Load(ctx context.Context) error {
	_, err, _ := d.reloads.Do("load", func() (interface{}, error) {
		stations, err := retry.DoValue(ctx, d.policy, func(ctx context.Context, attempt int) ([]models.Station, error) {
			stations, err := d.source.FetchStations(ctx)
			if err != nil {
				d.logger.Warn("Station list load failed",
					"attempt", attempt,
					"max_attempts", d.policy.MaxAttempts,
					"error", err)
			}
			return stations, err
		})
		if err != nil {
			d.logger.Error("Station list unavailable", "error", err)
			return nil, err
		}
		d.current.Store(newTable(stations))
		d.logger.Info("Station list loaded", "stations", len(stations))
		return nil, nil
	})
	return err
}

// Len returns the number of stations in the current table.
func (d *Directory) Len() int {
	return len(d.current.Load().stations)
}

// Resolve maps a station name to its code: exact match first, then the first
// station in table order whose name contains, or is contained in, the query.
// An empty table is reloaded once before giving up.
func (d *Directory) Resolve(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", models.ErrStationNotFound
	}

	t := d.current.Load()
	if len(t.stations) == 0 {
		if err := d.Load(ctx); err != nil {
			return "", models.ErrStationNotFound
		}
		t = d.current.Load()
	}

	if code, ok := t.byName[name]; ok {
		return code, nil
	}
	for _, s := range t.stations {
		if strings.Contains(name, s.Name) || strings.Contains(s.Name, name) {
			d.logger.Debug("Fuzzy station match", "query", name, "match", s.Name)
			return s.Code, nil
		}
	}
	return "", models.ErrStationNotFound
}

// Name returns the display name for a station code.
func (d *Directory) Name(code string) (string, bool) {
	name, ok := d.current.Load().byCode[code]
	return name, ok
}

// Search returns up to ten stations whose name or code contains keyword,
// ignoring case.
func (d *Directory) Search(keyword string) []models.Station {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" {
		return nil
	}

	var results []models.Station
	for _, s := range d.current.Load().stations {
		if strings.Contains(strings.ToLower(s.Name), keyword) || strings.Contains(strings.ToLower(s.Code), keyword) {
			results = append(results, s)
			if len(results) == searchLimit {
				break
			}
		}
	}
	return results
}

// Suggest ranks station names by fuzzy distance to name.
func (d *Directory) Suggest(name string, limit int) []string {
	name = strings.TrimSpace(name)
	if name == "" || limit <= 0 {
		return nil
	}

	ranks := fuzzy.RankFindNormalizedFold(name, d.current.Load().names)
	sort.Stable(ranks)

	out := make([]string, 0, limit)
	for _, r := range ranks {
		out = append(out, r.Target)
		if len(out) == limit {
			break
		}
	}
	return out
}
