// Package rest persists scans through a PostgREST (Supabase) endpoint.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"RivalScanner/internal/ports"
)

const (
	preferRepresentation = "return=representation"
	preferMinimal        = "return=minimal"
	preferUpsert         = "resolution=merge-duplicates,return=representation"
)

// Store talks to the /rest/v1 tables with the service role key.
type Store struct {
	baseURL string
	key     string
	http    *http.Client
	now     func() time.Time
}

var _ ports.Store = (*Store)(nil)

// New creates a store for the project at baseURL.
func New(baseURL, serviceKey string, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Store{
		baseURL: strings.TrimRight(baseURL, "/") + "/rest/v1/",
		key:     serviceKey,
		http:    &http.Client{Timeout: timeout},
		now:     time.Now,
	}
}

// WithClock overrides the clock used for created_at/updated_at stamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) stamp() time.Time {
	return s.now().UTC()
}

// request issues one call; out, when non-nil, receives the decoded JSON body.
func (s *Store) request(ctx context.Context, method, table string, query url.Values, payload any, prefer string, out any) error {
	target := s.baseURL + table
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", table, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("apikey", s.key)
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, table, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s: status %s: %s", method, table, resp.Status, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", table, err)
	}
	return nil
}

func eq(v string) string { return "eq." + v }

func ts(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }
