package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/BearBump/FieldSync/internal/models"
)

// APIClient talks to the field-ops backend over HTTP.
type APIClient struct {
	baseURL string
	tokens  TokenSource
	httpc   *http.Client
	limiter *rate.Limiter
}

var _ Client = (*APIClient)(nil)

func New(baseURL string, tokens TokenSource, timeout time.Duration, perSecond float64) *APIClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &APIClient{
		baseURL: baseURL,
		tokens:  tokens,
		httpc:   &http.Client{Timeout: timeout},
	}
	if perSecond > 0 {
		// Пейсинг на случай большого бэклога после долгого оффлайна.
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return c
}

func (c *APIClient) SubmitAction(ctx context.Context, key, faultID string, payload json.RawMessage) error {
	return c.do(ctx, http.MethodPost, "/faults/"+url.PathEscape(faultID)+"/action", key, payload)
}

func (c *APIClient) AssignFault(ctx context.Context, key, faultID string, payload json.RawMessage) error {
	return c.do(ctx, http.MethodPatch, "/faults/"+url.PathEscape(faultID)+"/assign", key, payload)
}

func (c *APIClient) AssignTeam(ctx context.Context, key, faultID string, payload json.RawMessage) error {
	return c.do(ctx, http.MethodPatch, "/faults/"+url.PathEscape(faultID)+"/assign-team", key, payload)
}

func (c *APIClient) PostGeofenceEvent(ctx context.Context, key string, payload json.RawMessage) error {
	return c.do(ctx, http.MethodPost, "/geofence-events", key, payload)
}

func (c *APIClient) ListFaults(ctx context.Context) ([]*models.Fault, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/faults", "", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "list faults")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, classifyStatus(resp)
	}

	var out []*models.Fault
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "decode faults")
	}
	return out, nil
}

func (c *APIClient) do(ctx context.Context, method, path, idempotencyKey string, body json.RawMessage) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return errors.Wrap(err, "rate limit wait")
		}
	}

	req, err := c.newRequest(ctx, method, path, idempotencyKey, body)
	if err != nil {
		return err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		// таймаут и обрыв соединения — транзиентные, вернёмся позже
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 == 2 {
		return nil
	}
	return classifyStatus(resp)
}

func (c *APIClient) newRequest(ctx context.Context, method, path, idempotencyKey string, body json.RawMessage) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}

	tok, err := c.tokens.Token()
	if err != nil {
		return nil, errors.Wrap(err, "token source")
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	return req, nil
}

// classifyStatus maps a non-2xx response onto the error taxonomy:
// 408/429/5xx transient, остальные 4xx — терминальный отказ.
func classifyStatus(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	if resp.StatusCode == http.StatusRequestTimeout ||
		resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode >= 500 {
		return fmt.Errorf("transient: http %d: %s", resp.StatusCode, snippet)
	}
	if resp.StatusCode >= 400 {
		return &Rejection{StatusCode: resp.StatusCode, Reason: string(snippet)}
	}
	return fmt.Errorf("unexpected http %d", resp.StatusCode)
}
