package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/railticket-query/internal/common/logger"
	"github.com/railticket-query/internal/common/retry"
	"github.com/railticket-query/internal/ticket/session"
	"github.com/railticket-query/pkg/ticket/models"
)

const (
	PurposeAdult   = "ADULT"
	PurposeStudent = "0X00"
)

// PurposeCode maps a passenger type label to the upstream purpose code.
func PurposeCode(label string) string {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "学生票", "学生", "student", strings.ToLower(PurposeStudent):
		return PurposeStudent
	default:
		return PurposeAdult
	}
}

type Params struct {
	FromCode string
	ToCode   string
	Date     string // YYYY-MM-DD
	Purpose  string
}

type Config struct {
	Endpoints []string
	Retry     retry.Policy
	Courtesy  retry.Courtesy
}

// Executor queries the schedule endpoints in order until one answers.
type Executor struct {
	config Config
	names  NameResolver
	logger logger.Logger
}

func NewExecutor(config Config, names NameResolver, log logger.Logger) *Executor {
	return &Executor{
		config: config,
		names:  names,
		logger: log.With("component", "query"),
	}
}

type scheduleResponse struct {
	Status   *bool           `json:"status"`
	Messages json.RawMessage `json:"messages"`
	Data     *struct {
		Result []string `json:"result"`
	} `json:"data"`
}

var errEmptyResult = errors.New("empty result")

// Query returns the parsed records of the first endpoint that answers with a
// non-empty result. Endpoints answering with a well-formed empty result are
// skipped without retries; if all of them do, the result is empty.
func (e *Executor) Query(ctx context.Context, sess *session.Session, p Params) ([]models.TrainRecord, error) {
	if p.Purpose == "" {
		p.Purpose = PurposeAdult
	}

	var lastErr error
	for i, endpoint := range e.config.Endpoints {
		if i > 0 {
			if err := e.config.Courtesy.Wait(ctx); err != nil {
				return nil, &models.ConnectionError{Op: "querying schedule", Err: err}
			}
		}

		raw, err := retry.DoValue(ctx, e.config.Retry, func(ctx context.Context, attempt int) ([]string, error) {
			raw, err := e.fetch(ctx, sess, endpoint, p)
			if err != nil && !errors.Is(err, errEmptyResult) {
				e.logger.Warn("Schedule query attempt failed",
					"endpoint", endpoint,
					"attempt", attempt,
					"error", err)
			}
			return raw, err
		})
		if errors.Is(err, errEmptyResult) {
			e.logger.Info("Schedule endpoint returned no trains", "endpoint", endpoint)
			continue
		}
		if err != nil {
			lastErr = err
			continue
		}

		records, skipped := ParseRecords(raw, e.names)
		if skipped > 0 {
			e.logger.Warn("Skipped malformed schedule records", "endpoint", endpoint, "skipped", skipped)
		}
		e.logger.Info("Schedule query succeeded",
			"endpoint", endpoint,
			"from", p.FromCode,
			"to", p.ToCode,
			"date", p.Date,
			"trains", len(records))
		return records, nil
	}

	if lastErr != nil {
		sess.Invalidate()
		return nil, &models.ConnectionError{Op: "querying schedule", Err: lastErr}
	}
	return []models.TrainRecord{}, nil
}

func (e *Executor) fetch(ctx context.Context, sess *session.Session, endpoint string, p Params) ([]string, error) {
	resp, err := sess.API(ctx).
		SetQueryParams(map[string]string{
			"leftTicketDTO.train_date":   p.Date,
			"leftTicketDTO.from_station": p.FromCode,
			"leftTicketDTO.to_station":   p.ToCode,
			"purpose_codes":              p.Purpose,
		}).
		Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode())
	}

	var body scheduleResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("%w: decoding schedule: %v", models.ErrMalformedResponse, err)
	}
	if body.Data == nil || body.Data.Result == nil {
		if body.Status != nil && !*body.Status {
			return nil, fmt.Errorf("upstream rejected query: %s", string(body.Messages))
		}
		return nil, fmt.Errorf("%w: missing data.result", models.ErrMalformedResponse)
	}
	if len(body.Data.Result) == 0 {
		return nil, retry.Permanent(errEmptyResult)
	}
	return body.Data.Result, nil
}
