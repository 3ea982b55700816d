package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/ricirt/plinko-sync/internal/domain"
	"github.com/ricirt/plinko-sync/internal/ratelimiter"
)

// RestGateway applies mutations through a PostgREST endpoint
// (<base>/rest/v1/<table>), the row API hosted Postgres backends expose.
// The base URL is injected from config so tests can point to httptest.
type RestGateway struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *ratelimiter.TableLimiters
}

func NewRestGateway(baseURL, apiKey string, timeout time.Duration, limiter *ratelimiter.TableLimiters) *RestGateway {
	if limiter == nil {
		limiter = ratelimiter.New(0)
	}
	return &RestGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: limiter,
	}
}

// Apply sends one mutation. Status handling:
//
//	2xx                  → applied
//	409 on insert        → row already exists, applied
//	408, 429, 5xx, I/O   → transient
//	other 4xx            → permanent
func (g *RestGateway) Apply(ctx context.Context, item domain.QueueItem) error {
	req, err := g.buildRequest(ctx, item)
	if err != nil {
		return Permanent(err)
	}

	// Block here until the per-table rate limiter grants a token.
	if err := g.limiter.Wait(ctx, item.Table); err != nil {
		return err
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return Transient(fmt.Errorf("%s %s: %w", item.Op, item.RowKey(), err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if item.Op == domain.OpUpdate {
			return checkUpdated(item, resp.Body)
		}
		return nil
	case resp.StatusCode == http.StatusConflict && item.Op == domain.OpInsert:
		return nil
	}

	statusErr := fmt.Errorf("%s %s: remote status %d: %s",
		item.Op, item.RowKey(), resp.StatusCode, readSnippet(resp.Body))
	switch {
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return Transient(statusErr)
	default:
		return Permanent(statusErr)
	}
}

// Ping treats any answer below 500 as reachable; auth problems are the
// gateway's concern, not the reachability probe's.
func (g *RestGateway) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/rest/v1/", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	g.setHeaders(req)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return fmt.Errorf("ping: remote status %d", resp.StatusCode)
	}
	return nil
}

func (g *RestGateway) ListPeriods(ctx context.Context) ([]domain.Period, error) {
	endpoint := g.baseURL + "/rest/v1/periods?select=id,nickname,points,chips&order=id.asc"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	g.setHeaders(req)

	if err := g.limiter.Wait(ctx, domain.TablePeriods); err != nil {
		return nil, err
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list periods: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list periods: remote status %d: %s", resp.StatusCode, readSnippet(resp.Body))
	}
	var periods []domain.Period
	if err := json.NewDecoder(resp.Body).Decode(&periods); err != nil {
		return nil, fmt.Errorf("decode periods: %w", err)
	}
	return periods, nil
}

func (g *RestGateway) buildRequest(ctx context.Context, item domain.QueueItem) (*http.Request, error) {
	schema, key, err := target(item)
	if err != nil {
		return nil, err
	}
	if _, err := columns(schema, item.Payload); err != nil {
		return nil, err
	}

	endpoint := g.baseURL + "/rest/v1/" + url.PathEscape(string(schema.Name))
	filter := url.Values{}
	if key != nil {
		filter.Set(schema.PrimaryKey, fmt.Sprintf("eq.%v", key))
	}

	var (
		method string
		body   domain.Payload
		prefer string
	)
	switch item.Op {
	case domain.OpInsert:
		method, body = http.MethodPost, item.Payload
		prefer = "return=minimal,resolution=ignore-duplicates"
		filter = url.Values{}
		if key != nil {
			filter.Set("on_conflict", schema.PrimaryKey)
		}
	case domain.OpUpdate:
		method, body = http.MethodPatch, make(domain.Payload, len(item.Payload))
		for col, v := range item.Payload {
			if col != schema.PrimaryKey {
				body[col] = v
			}
		}
		if len(body) == 0 {
			return nil, fmt.Errorf("update %s: no columns to set", item.RowKey())
		}
		prefer = "return=representation"
	case domain.OpDelete:
		method = http.MethodDelete
		prefer = "return=minimal"
	default:
		return nil, domain.ErrInvalidOperation
	}

	if len(filter) > 0 {
		endpoint += "?" + filter.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	g.setHeaders(req)
	req.Header.Set("Prefer", prefer)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (g *RestGateway) setHeaders(req *http.Request) {
	if g.apiKey == "" {
		return
	}
	req.Header.Set("apikey", g.apiKey)
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
}

// checkUpdated reads a return=representation body; an empty array means the
// row does not exist and the update can never apply.
func checkUpdated(item domain.QueueItem, body io.Reader) error {
	var rows []json.RawMessage
	if err := json.NewDecoder(body).Decode(&rows); err != nil {
		// The write was accepted; an unreadable echo is not worth a replay.
		return nil
	}
	if len(rows) == 0 {
		return Permanent(fmt.Errorf("update %s: %w", item.RowKey(), domain.ErrNotFound))
	}
	return nil
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(b))
}

var (
	_ Gateway      = (*RestGateway)(nil)
	_ Pinger       = (*RestGateway)(nil)
	_ PeriodLister = (*RestGateway)(nil)
)
