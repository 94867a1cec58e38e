package session

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"

	resty "gopkg.in/resty.v1"
)

// Session is the cookie and header context the upstream expects on every
// request. It is valid until a request made with it fails.
type Session struct {
	client    *resty.Client
	userAgent string
	referer   string

	cookies atomic.Pointer[[]*http.Cookie]
	valid   atomic.Bool
}

func newSession(client *resty.Client, userAgent, referer string) *Session {
	s := &Session{
		client:    client,
		userAgent: userAgent,
		referer:   referer,
	}
	seed := make([]*http.Cookie, len(baseCookies))
	for i, c := range baseCookies {
		cp := *c
		seed[i] = &cp
	}
	s.cookies.Store(&seed)
	return s
}

// Page prepares a browser navigation request.
func (s *Session) Page(ctx context.Context, referer string) *resty.Request {
	headers := pageHeaders(s.userAgent)
	if referer != "" {
		headers["Referer"] = referer
	}
	return s.request(ctx, headers)
}

// API prepares an XHR style request against the query APIs.
func (s *Session) API(ctx context.Context) *resty.Request {
	return s.request(ctx, apiHeaders(s.userAgent, s.referer))
}

func (s *Session) request(ctx context.Context, headers map[string]string) *resty.Request {
	req := s.client.R().SetContext(ctx).SetHeaders(headers)
	if cookie := cookieHeader(s.Cookies()); cookie != "" {
		req.SetHeader("Cookie", cookie)
	}
	return req
}

// cookieHeader renders a snapshot as a single Cookie request header. The
// client itself never holds cookies, so concurrent requests on one session
// each send the snapshot they were built from.
func cookieHeader(cookies []*http.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		if c == nil || c.Name == "" {
			continue
		}
		parts = append(parts, (&http.Cookie{Name: c.Name, Value: c.Value}).String())
	}
	return strings.Join(parts, "; ")
}

// Cookies returns the current cookie snapshot. Callers must not modify it.
func (s *Session) Cookies() []*http.Cookie {
	if p := s.cookies.Load(); p != nil {
		return *p
	}
	return nil
}

// Absorb folds cookies from a response into the session. The snapshot is
// replaced as a whole so concurrent readers never see a partial update.
func (s *Session) Absorb(cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}
	for {
		old := s.cookies.Load()
		merged := mergeCookies(*old, cookies)
		if s.cookies.CompareAndSwap(old, &merged) {
			return
		}
	}
}

func mergeCookies(current, incoming []*http.Cookie) []*http.Cookie {
	merged := make([]*http.Cookie, 0, len(current)+len(incoming))
	index := make(map[string]int, len(current)+len(incoming))
	for _, c := range current {
		index[c.Name] = len(merged)
		merged = append(merged, c)
	}
	for _, c := range incoming {
		cp := &http.Cookie{Name: c.Name, Value: c.Value}
		if i, ok := index[c.Name]; ok {
			merged[i] = cp
			continue
		}
		index[c.Name] = len(merged)
		merged = append(merged, cp)
	}
	return merged
}

// Invalidate marks the session as failed. A failed session is not reused.
func (s *Session) Invalidate() {
	s.valid.Store(false)
}

func (s *Session) Valid() bool {
	return s != nil && s.valid.Load()
}

func (s *Session) UserAgent() string {
	return s.userAgent
}
