package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/railticket-query/internal/common/logger"
	"github.com/railticket-query/internal/common/retry"
	"github.com/railticket-query/pkg/ticket/models"
	resty "gopkg.in/resty.v1"
)

type Config struct {
	HomeURL    string
	InitURL    string
	Timeout    time.Duration
	Retry      retry.Policy
	Courtesy   retry.Courtesy
	UserAgents []string
}

// Manager builds sessions by replaying the warm-up page sequence a browser
// goes through before the query page.
type Manager struct {
	config Config
	logger logger.Logger
}

func NewManager(config Config, log logger.Logger) *Manager {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &Manager{
		config: config,
		logger: log.With("component", "session"),
	}
}

// Establish runs the warm-up sequence and returns a fresh session. Each
// attempt starts from a new cookie set.
func (m *Manager) Establish(ctx context.Context) (*Session, error) {
	sess, err := retry.DoValue(ctx, m.config.Retry, func(ctx context.Context, attempt int) (*Session, error) {
		s := newSession(m.newClient(), pickUserAgent(m.config.UserAgents), m.config.InitURL)
		if err := m.warmUp(ctx, s); err != nil {
			m.logger.Warn("Session warm-up failed",
				"attempt", attempt,
				"max_attempts", m.config.Retry.MaxAttempts,
				"error", err)
			return nil, err
		}
		return s, nil
	})
	if err != nil {
		m.logger.Error("Session could not be established", "error", err)
		return nil, &models.ConnectionError{Op: "establishing session", Err: err}
	}

	sess.valid.Store(true)
	m.logger.Debug("Session established", "cookies", len(sess.Cookies()))
	return sess, nil
}

func (m *Manager) newClient() *resty.Client {
	return resty.NewWithClient(&http.Client{Timeout: m.config.Timeout})
}

type warmUpStep struct {
	url     string
	referer string
}

func (m *Manager) warmUp(ctx context.Context, s *Session) error {
	steps := make([]warmUpStep, 0, 2)
	if m.config.HomeURL != "" {
		steps = append(steps, warmUpStep{url: m.config.HomeURL})
	}
	if m.config.InitURL != "" {
		steps = append(steps, warmUpStep{url: m.config.InitURL, referer: m.config.HomeURL})
	}

	for _, step := range steps {
		resp, err := s.Page(ctx, step.referer).Get(step.url)
		if err != nil {
			return fmt.Errorf("loading %s: %w", step.url, err)
		}
		if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
			return fmt.Errorf("loading %s: unexpected status %d", step.url, resp.StatusCode())
		}
		s.Absorb(resp.Cookies())

		if err := m.config.Courtesy.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
