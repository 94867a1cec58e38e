package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/railticket-query/internal/common/discord"
	"github.com/rs/zerolog"
)

type alertHook struct {
	client  *discord.Client
	pending sync.WaitGroup
	errOut  io.Writer
}

func newAlertHook(webhookURL string) *alertHook {
	return &alertHook{client: discord.NewClient(webhookURL), errOut: os.Stderr}
}

// Run forwards error events in the background. Fatal events are sent before
// returning because the process exits right after the hook.
func (h *alertHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	if level < zerolog.ErrorLevel || level == zerolog.NoLevel || level == zerolog.Disabled {
		return
	}
	name := strings.ToUpper(level.String())
	if level >= zerolog.FatalLevel {
		h.send(name, msg)
		return
	}

	h.pending.Add(1)
	go func() {
		defer h.pending.Done()
		h.send(name, msg)
	}()
}

// The logger cannot report its own delivery failures, so they go to stderr.
func (h *alertHook) send(level, msg string) {
	if err := h.client.SendLogMessage(level, msg, nil); err != nil {
		fmt.Fprintf(h.errOut, "alert delivery failed: %v\n", err)
	}
}

// wait blocks until queued alerts are sent or timeout passes. It reports
// whether everything was delivered in time.
func (h *alertHook) wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		h.pending.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
