// Package upstreamtest runs an in-process stand-in for the ticketing service.
package upstreamtest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/railticket-query/internal/common/retry"
	"github.com/railticket-query/internal/ticket/session"
)

const (
	HomePath     = "/index/"
	InitPath     = "/otn/leftTicket/init"
	StationsPath = "/otn/resources/js/framework/station_name.js"
	StopsPath    = "/otn/czxx/queryByTrainNo"
)

// QueryPaths are the schedule endpoints in failover order.
var QueryPaths = []string{
	"/otn/leftTicket/query",
	"/otn/leftTicket/queryA",
	"/otn/leftTicket/queryZ",
	"/otn/leftTicket/queryT",
}

type StopRow struct {
	StationName  string `json:"station_name"`
	ArriveTime   string `json:"arrive_time"`
	StartTime    string `json:"start_time"`
	StopoverTime string `json:"stopover_time"`
}

type Server struct {
	*httptest.Server

	mu       sync.Mutex
	stations string
	queries  map[string]http.HandlerFunc
	stops    map[string][]StopRow
	failing  map[string]bool
	calls    map[string]int

	StopDelay   time.Duration
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func New() *Server {
	s := &Server{
		queries: make(map[string]http.HandlerFunc),
		stops:   make(map[string][]StopRow),
		failing: make(map[string]bool),
		calls:   make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(HomePath, s.count(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "test"})
	}))
	mux.HandleFunc(InitPath, s.count(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "tk", Value: "init"})
	}))
	mux.HandleFunc(StationsPath, s.count(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		body := s.stations
		s.mu.Unlock()
		io.WriteString(w, body)
	}))
	for _, p := range QueryPaths {
		path := p
		mux.HandleFunc(path, s.count(func(w http.ResponseWriter, r *http.Request) {
			s.mu.Lock()
			h := s.queries[path]
			s.mu.Unlock()
			if h == nil {
				http.NotFound(w, r)
				return
			}
			h(w, r)
		}))
	}
	mux.HandleFunc(StopsPath, s.count(s.serveStops))

	s.Server = httptest.NewServer(mux)
	return s
}

func (s *Server) count(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.URL.Path]++
		s.mu.Unlock()
		h(w, r)
	}
}

// Calls returns how many requests hit path.
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// MaxInFlight returns the peak number of concurrent stop lookups.
func (s *Server) MaxInFlight() int {
	return int(s.maxInFlight.Load())
}

// SetStations sets the station list as "name:code" pairs.
func (s *Server) SetStations(pairs ...string) {
	var b strings.Builder
	b.WriteString("var station_names ='")
	for i, p := range pairs {
		name, code, _ := strings.Cut(p, ":")
		b.WriteString("@x|" + name + "|" + code + "|pinyin|py|")
		b.WriteString(string(rune('0' + i%10)))
	}
	b.WriteString("';")

	s.mu.Lock()
	s.stations = b.String()
	s.mu.Unlock()
}

// HandleQuery installs a handler for one schedule endpoint.
func (s *Server) HandleQuery(path string, h http.HandlerFunc) {
	s.mu.Lock()
	s.queries[path] = h
	s.mu.Unlock()
}

// ServeResults answers a schedule endpoint with the given raw records.
func (s *Server) ServeResults(path string, records ...string) {
	s.HandleQuery(path, func(w http.ResponseWriter, r *http.Request) {
		WriteResults(w, records)
	})
}

func WriteResults(w http.ResponseWriter, records []string) {
	if records == nil {
		records = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"httpstatus": 200,
		"status":     true,
		"data": map[string]interface{}{
			"result": records,
			"flag":   "1",
		},
	})
}

// SetStops sets the itinerary returned for a train.
func (s *Server) SetStops(trainNo string, rows ...StopRow) {
	s.mu.Lock()
	s.stops[trainNo] = rows
	s.mu.Unlock()
}

// FailStops makes stop lookups for trainNo answer with a server error.
func (s *Server) FailStops(trainNo string) {
	s.mu.Lock()
	s.failing[trainNo] = true
	s.mu.Unlock()
}

func (s *Server) serveStops(w http.ResponseWriter, r *http.Request) {
	cur := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		peak := s.maxInFlight.Load()
		if cur <= peak || s.maxInFlight.CompareAndSwap(peak, cur) {
			break
		}
	}
	if s.StopDelay > 0 {
		time.Sleep(s.StopDelay)
	}

	trainNo := r.URL.Query().Get("train_no")
	s.mu.Lock()
	rows, ok := s.stops[trainNo]
	failing := s.failing[trainNo]
	s.mu.Unlock()

	if failing {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !ok {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": false,
			"data":   map[string]interface{}{"data": []StopRow{}},
		})
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": true,
		"data":   map[string]interface{}{"data": rows},
	})
}

// SessionConfig returns a session configuration pointed at the server with
// no courtesy delays.
func (s *Server) SessionConfig() session.Config {
	return session.Config{
		HomeURL: s.URL + HomePath,
		InitURL: s.URL + InitPath,
		Retry:   retry.Policy{MaxAttempts: 3},
	}
}

// QueryURLs returns the absolute schedule endpoints.
func (s *Server) QueryURLs() []string {
	urls := make([]string, len(QueryPaths))
	for i, p := range QueryPaths {
		urls[i] = s.URL + p
	}
	return urls
}
