package station

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/railticket-query/pkg/ticket/models"
	resty "gopkg.in/resty.v1"
)

// Source supplies the full station table.
type Source interface {
	FetchStations(ctx context.Context) ([]models.Station, error)
}

// HTTPSource downloads the station list script published by the upstream.
type HTTPSource struct {
	url    string
	client *resty.Client
}

func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		url:    url,
		client: resty.NewWithClient(&http.Client{Timeout: timeout}),
	}
}

func (s *HTTPSource) FetchStations(ctx context.Context) ([]models.Station, error) {
	resp, err := s.client.R().SetContext(ctx).Get(s.url)
	if err != nil {
		return nil, fmt.Errorf("fetching station list: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("fetching station list: unexpected status %d", resp.StatusCode())
	}

	stations := ParseStationList(resp.String())
	if len(stations) == 0 {
		return nil, fmt.Errorf("station list contained no stations")
	}
	return stations, nil
}

// ParseStationList reads the upstream station table. The payload is a
// script assignment whose quoted string holds '@'-separated records of
// '|'-separated fields; field 1 is the display name and field 2 the code.
// Short records are skipped.
func ParseStationList(content string) []models.Station {
	if start := strings.IndexByte(content, '\''); start >= 0 {
		if end := strings.IndexByte(content[start+1:], '\''); end >= 0 {
			content = content[start+1 : start+1+end]
		}
	}

	var stations []models.Station
	for _, record := range strings.Split(content, "@") {
		fields := strings.Split(record, "|")
		if len(fields) < 3 {
			continue
		}
		name := strings.TrimSpace(fields[1])
		code := strings.TrimSpace(fields[2])
		if name == "" || code == "" {
			continue
		}
		stations = append(stations, models.Station{Name: name, Code: code})
	}
	return stations
}
