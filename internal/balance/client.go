// Package balance talks to the user service that owns account balances.
package balance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/Domenick1991/flightservice/internal/domain"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	internalKeyHeader    = "X-Internal-Key"
	idempotencyKeyHeader = "Idempotency-Key"
)

type User struct {
	ID           int64
	Email        string
	Name         string
	BalanceCents int64
}

type Config struct {
	BaseURL         string
	InternalKey     string
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

type Client struct {
	baseURL     string
	internalKey string
	http        *http.Client
	breaker     *gobreaker.CircuitBreaker
}

func NewClient(cfg Config) *Client {
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		internalKey: cfg.InternalKey,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "balance-service",
			Timeout: cfg.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			IsSuccessful: healthyOutcome,
		}),
	}
}

// StatusError is a non-200 answer from the user service.
type StatusError struct {
	Method  string
	Path    string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Code)
}

// healthyOutcome tells the breaker which errors say nothing about the user
// service being down: business rejections (4xx) and calls the caller gave up on.
func healthyOutcome(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && se.Code >= 400 && se.Code < 500
}

type amountRequest struct {
	UserID int64   `json:"user_id"`
	Amount float64 `json:"amount"`
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// userPayload mirrors the user service's wire names.
type userPayload struct {
	ID        int64   `json:"id"`
	FirstName string  `json:"ime"`
	LastName  string  `json:"prezime"`
	Email     string  `json:"email"`
	Balance   float64 `json:"stanje_racuna"`
}

// Deduct takes amountCents from the user's account. The idempotency key lets
// the user service drop a replayed deduction.
func (c *Client) Deduct(ctx context.Context, userID, amountCents int64, idempotencyKey string) error {
	_, err := c.do(ctx, http.MethodPost, "/api/internal/deduct-balance", idempotencyKey,
		amountRequest{UserID: userID, Amount: toUnits(amountCents)})
	if err != nil {
		return domain.External("balance deduction failed", err)
	}
	return nil
}

func (c *Client) Refund(ctx context.Context, userID, amountCents int64, idempotencyKey string) error {
	_, err := c.do(ctx, http.MethodPost, "/api/internal/refund-balance", idempotencyKey,
		amountRequest{UserID: userID, Amount: toUnits(amountCents)})
	if err != nil {
		return domain.External("balance refund failed", err)
	}
	return nil
}

func (c *Client) FetchUser(ctx context.Context, userID int64) (*User, error) {
	data, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/internal/user/%d", userID), "", nil)
	if err != nil {
		return nil, domain.External("user lookup failed", err)
	}
	var p userPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, domain.External("user lookup failed", fmt.Errorf("decode user: %w", err))
	}
	return &User{
		ID:           p.ID,
		Email:        p.Email,
		Name:         strings.TrimSpace(p.FirstName + " " + p.LastName),
		BalanceCents: toCents(p.Balance),
	}, nil
}

func (c *Client) do(ctx context.Context, method, path, idempotencyKey string, body any) (json.RawMessage, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		var reader io.Reader
		if body != nil {
			payload, err := json.Marshal(body)
			if err != nil {
				return nil, err
			}
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set(internalKeyHeader, c.internalKey)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if idempotencyKey != "" {
			req.Header.Set(idempotencyKeyHeader, idempotencyKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		var env envelope
		_ = json.Unmarshal(raw, &env)
		if resp.StatusCode != http.StatusOK {
			return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Message: env.Message}
		}
		return env.Data, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(json.RawMessage), nil
}

func toUnits(cents int64) float64 {
	return float64(cents) / 100
}

func toCents(units float64) int64 {
	return int64(math.Round(units * 100))
}
