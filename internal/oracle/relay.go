// Package oracle relays ended sessions from an upstream metering service to
// the vault, acting as the configured oracle.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"session-escrow-backend/config"
	"session-escrow-backend/internal/escrow"
	"session-escrow-backend/internal/logger"
)

// Finalizer settles bookings on behalf of the oracle.
type Finalizer interface {
	FinalizeSession(ctx context.Context, caller string, bookingID, actualDuration uint64) error
}

// Summary counts the outcome of one polling cycle.
type Summary struct {
	Fetched int
	Settled int
	Skipped int
	Failed  int
}

// Service polls the metering API and finalizes every reported session.
type Service struct {
	cfg       config.OracleConfig
	finalizer Finalizer
	client    *http.Client
	log       *logger.Logger
}

// NewService creates a relay service.
func NewService(cfg config.OracleConfig, finalizer Finalizer, log *logger.Logger) *Service {
	log = log.With("component", "oracle")

	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			log.Warn("invalid proxy url, relay will not use a proxy", "proxy", cfg.HTTPProxy, "error", err)
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	return &Service{
		cfg:       cfg,
		finalizer: finalizer,
		client: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
		log: log,
	}
}

// Run polls once per interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		s.log.Info("oracle relay is disabled, not starting")
		return
	}
	s.log.Info("starting oracle relay", "identity", s.cfg.Identity, "interval", s.cfg.Interval)

	s.PollOnce(ctx)

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("oracle relay shutting down")
			return
		case <-timer.C:
			s.PollOnce(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

// PollOnce fetches every page of ended sessions and finalizes them. A fetch
// error ends the cycle; reports already fetched are still settled.
func (s *Service) PollOnce(ctx context.Context) Summary {
	var reports []SessionReport
	total := 1
	pageSize := s.cfg.Request.PageSize
	for page := 1; (page-1)*pageSize < total; page++ {
		resp, err := s.fetchPage(ctx, page)
		if err != nil {
			s.log.Error("failed to fetch page", "page", page, "error", err)
			break
		}
		if resp.Data.Total == 0 || len(resp.Data.Items) == 0 {
			break
		}
		total = resp.Data.Total
		reports = append(reports, resp.Data.Items...)
		s.log.Debug("fetched page", "page", page, "total", total, "fetched", len(reports))
	}

	summary := Summary{Fetched: len(reports)}
	for _, r := range reports {
		err := s.finalizer.FinalizeSession(ctx, s.cfg.Identity, r.BookingID, r.ActualDuration)
		switch {
		case err == nil:
			summary.Settled++
		case errors.Is(err, escrow.ErrBookingNotPending):
			summary.Skipped++
		default:
			summary.Failed++
			s.log.Error("failed to finalize session", "booking_id", r.BookingID, "actual_duration", r.ActualDuration, "error", err)
		}
	}

	s.log.Info("relay cycle finished", "fetched", summary.Fetched, "settled", summary.Settled, "skipped", summary.Skipped, "failed", summary.Failed)
	return summary
}

// fetchPage fetches a single page of ended sessions from the metering API.
func (s *Service) fetchPage(ctx context.Context, page int) (*ApiResponse, error) {
	payload := make(map[string]any)
	for k, v := range s.cfg.Request.Payload {
		payload[k] = v
	}
	payload["page"] = page
	payload["pageSize"] = s.cfg.Request.PageSize

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Request.URL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range s.cfg.Request.Headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var apiResp ApiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal api response: %w", err)
	}

	if apiResp.Code != 0 {
		return nil, fmt.Errorf("API returned non-zero application code: %d", apiResp.Code)
	}

	return &apiResp, nil
}
