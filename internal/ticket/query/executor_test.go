package query

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/railticket-query/internal/common/logger"
	"github.com/railticket-query/internal/common/retry"
	"github.com/railticket-query/internal/ticket/session"
	"github.com/railticket-query/internal/ticket/upstreamtest"
	"github.com/railticket-query/pkg/ticket/models"
)

func setup(t *testing.T) (*upstreamtest.Server, *Executor, *session.Session) {
	t.Helper()
	srv := upstreamtest.New()
	t.Cleanup(srv.Close)

	log := logger.New(io.Discard)
	sess, err := session.NewManager(srv.SessionConfig(), log).Establish(context.Background())
	if err != nil {
		t.Fatalf("establishing session: %v", err)
	}

	exec := NewExecutor(Config{
		Endpoints: srv.QueryURLs(),
		Retry:     retry.Policy{MaxAttempts: 3},
	}, mapNames{"VNP": "北京南", "AOH": "上海虹桥"}, log)
	return srv, exec, sess
}

var params = Params{FromCode: "BJP", ToCode: "SHH", Date: "2024-01-22"}

func TestQueryFirstEndpointSucceeds(t *testing.T) {
	srv, exec, sess := setup(t)
	srv.HandleQuery(upstreamtest.QueryPaths[0], func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("leftTicketDTO.from_station") != "BJP" || q.Get("leftTicketDTO.to_station") != "SHH" {
			t.Errorf("unexpected station params: %v", q)
		}
		if q.Get("leftTicketDTO.train_date") != "2024-01-22" || q.Get("purpose_codes") != PurposeAdult {
			t.Errorf("unexpected date/purpose params: %v", q)
		}
		if r.Header.Get("X-Requested-With") != "XMLHttpRequest" {
			t.Error("expected XHR header")
		}
		if _, err := r.Cookie("tk"); err != nil {
			t.Error("expected session cookies on the query")
		}
		upstreamtest.WriteResults(w, []string{
			sampleRecord("1", "G1", "07:00"),
			sampleRecord("2", "G3", "09:00"),
		})
	})

	records, err := exec.Query(context.Background(), sess, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 || records[0].TrainCode != "G1" {
		t.Fatalf("unexpected records: %+v", records)
	}
	if records[0].FromStation.StationName != "北京南" {
		t.Errorf("expected translated station name, got %q", records[0].FromStation.StationName)
	}
	if srv.Calls(upstreamtest.QueryPaths[1]) != 0 {
		t.Error("later endpoints must not be queried after a success")
	}
}

func TestQueryFailsOverToNextEndpoint(t *testing.T) {
	srv, exec, sess := setup(t)
	srv.HandleQuery(upstreamtest.QueryPaths[0], func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	srv.HandleQuery(upstreamtest.QueryPaths[1], func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>not json</html>")
	})
	srv.ServeResults(upstreamtest.QueryPaths[2], sampleRecord("3", "D5", "10:00"))

	records, err := exec.Query(context.Background(), sess, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 || records[0].TrainCode != "D5" {
		t.Fatalf("unexpected records: %+v", records)
	}
	if got := srv.Calls(upstreamtest.QueryPaths[0]); got != 3 {
		t.Errorf("expected 3 attempts on the first endpoint, got %d", got)
	}
	if got := srv.Calls(upstreamtest.QueryPaths[1]); got != 3 {
		t.Errorf("expected 3 attempts on the second endpoint, got %d", got)
	}
	if got := srv.Calls(upstreamtest.QueryPaths[3]); got != 0 {
		t.Errorf("expected the last endpoint to be untouched, got %d", got)
	}
}

func TestQueryAllEndpointsFail(t *testing.T) {
	srv, exec, sess := setup(t)
	for _, p := range upstreamtest.QueryPaths {
		srv.HandleQuery(p, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}

	_, err := exec.Query(context.Background(), sess, params)
	var connErr *models.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
	var exhausted *retry.ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Errorf("expected the last retry error to be carried, got %v", err)
	}
	if sess.Valid() {
		t.Error("expected the session to be invalidated")
	}
}

func TestQueryEmptyResultsAreNotErrors(t *testing.T) {
	srv, exec, sess := setup(t)
	for _, p := range upstreamtest.QueryPaths {
		srv.ServeResults(p)
	}

	records, err := exec.Query(context.Background(), sess, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Errorf("expected an empty non-nil list, got %#v", records)
	}
	for _, p := range upstreamtest.QueryPaths {
		if got := srv.Calls(p); got != 1 {
			t.Errorf("expected a single call to %s, got %d", p, got)
		}
	}
}

func TestQuerySkipsMalformedRecords(t *testing.T) {
	srv, exec, sess := setup(t)
	srv.ServeResults(upstreamtest.QueryPaths[0], "short|record", sampleRecord("1", "K7", "06:00"))

	records, err := exec.Query(context.Background(), sess, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 || records[0].TrainType != models.Conventional {
		t.Errorf("unexpected records: %+v", records)
	}
}
