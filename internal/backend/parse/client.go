package parse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"grocerysync/config"
	"grocerysync/internal/backend"
	"grocerysync/internal/core/models"
	"grocerysync/metrics"
	"grocerysync/pkg/logger"
)

const (
	codeObjectNotFound      = 101
	codeInvalidSessionToken = 209
	maxSearchLimit          = 1000
)

// Client talks to the Parse Server REST API.
type Client struct {
	apiURL   string
	pageSize int
	log      logger.Logger
	client   *http.Client
	auth     AuthEngine
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
}

type parseError struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

func (e *parseError) Error() string {
	return fmt.Sprintf("parse error %d: %s", e.Code, e.Message)
}

// errServer marks a response the breaker counts as a failure.
type errServer struct {
	status int
	body   string
}

func (e *errServer) Error() string {
	return fmt.Sprintf("server error: status %d: %s", e.status, e.body)
}

func NewClient(cfg config.ParseConfig, log logger.Logger) *Client {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	pageSize := cfg.PageSize
	if pageSize < 1 {
		pageSize = 100
	}
	log = log.WithPrefix("parse")

	return &Client{
		apiURL:   strings.TrimRight(cfg.ServerURL, "/"),
		pageSize: pageSize,
		log:      log,
		client:   &http.Client{Timeout: cfg.RequestTimeout},
		auth:     NewKeyAuth(cfg.ApplicationID, cfg.JavaScriptKey, cfg.MasterKey, cfg.UseMasterKey),
		limiter:  rate.NewLimiter(limit, burst),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "parse-server",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				log.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

type response struct {
	status int
	body   []byte
}

func (c *Client) doRequest(ctx context.Context, method, class, endpoint string, cred backend.Credential, requestBody interface{}, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var bodyBytes []byte
	if requestBody != nil {
		var err error
		bodyBytes, err = json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	started := time.Now()
	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.apiURL+endpoint, bytes.NewReader(bodyBytes))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		c.auth.SetHeaders(req, cred)

		resp, err := c.client.Do(req)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("request was cancelled: %w", ctx.Err())
			default:
				return nil, fmt.Errorf("failed to execute request: %w", err)
			}
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		if resp.StatusCode >= 500 {
			return nil, &errServer{status: resp.StatusCode, body: string(body)}
		}
		return &response{status: resp.StatusCode, body: body}, nil
	})

	status := 0
	var srvErr *errServer
	switch {
	case result != nil:
		status = result.(*response).status
	case errors.As(err, &srvErr):
		status = srvErr.status
	}
	metrics.RecordRequest(method, class, status, time.Since(started))

	if err != nil {
		c.log.Debug("request failed", "method", method, "endpoint", endpoint, "error", err)
		return err
	}
	resp := result.(*response)

	if resp.status < 200 || resp.status >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func decodeError(resp *response) error {
	pe := &parseError{}
	if err := json.Unmarshal(resp.body, pe); err != nil || pe.Code == 0 {
		pe = &parseError{Message: strings.TrimSpace(string(resp.body))}
	}
	switch {
	case pe.Code == codeInvalidSessionToken, resp.status == http.StatusUnauthorized, resp.status == http.StatusForbidden:
		return fmt.Errorf("status %d: %v: %w", resp.status, pe, backend.ErrUnauthorized)
	case pe.Code == codeObjectNotFound, resp.status == http.StatusNotFound:
		return fmt.Errorf("status %d: %v: %w", resp.status, pe, backend.ErrNotFound)
	}
	return fmt.Errorf("status %d: %w", resp.status, pe)
}

func (c *Client) LogIn(ctx context.Context, username, password string) (backend.Credential, error) {
	q := url.Values{}
	q.Set("username", username)
	q.Set("password", password)

	var user struct {
		ObjectID     string `json:"objectId"`
		SessionToken string `json:"sessionToken"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "_User", "/login?"+q.Encode(), backend.Credential{}, nil, &user); err != nil {
		return backend.Credential{}, fmt.Errorf("log in %s: %w", username, err)
	}
	if user.SessionToken == "" {
		return backend.Credential{}, fmt.Errorf("log in %s: empty session token: %w", username, backend.ErrUnauthorized)
	}
	c.log.Info("logged in", "username", username, "userId", user.ObjectID)
	return backend.Credential{Token: user.SessionToken, UserID: user.ObjectID}, nil
}

// where builds the Parse query constraint for criteria, optionally restricted to objectIds after
// the given one.
func where(criteria backend.Criteria, after string) map[string]interface{} {
	w := make(map[string]interface{}, len(criteria.Conditions)+len(criteria.Exists)+1)
	for field, value := range criteria.Conditions {
		w[field] = value
	}
	for field, present := range criteria.Exists {
		w[field] = map[string]interface{}{"$exists": present}
	}
	if after != "" {
		w["objectId"] = map[string]interface{}{"$gt": after}
	}
	return w
}

func (c *Client) query(ctx context.Context, class string, w map[string]interface{}, limit int, cred backend.Credential) ([]backend.Record, error) {
	rawWhere, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("encode where: %w", err)
	}
	q := url.Values{}
	q.Set("where", string(rawWhere))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("order", "objectId")

	var out struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := c.doRequest(ctx, http.MethodGet, class, "/classes/"+url.PathEscape(class)+"?"+q.Encode(), cred, nil, &out); err != nil {
		return nil, err
	}

	records := make([]backend.Record, 0, len(out.Results))
	for _, raw := range out.Results {
		var head struct {
			ObjectID string `json:"objectId"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			return nil, fmt.Errorf("decode %s result: %w", class, err)
		}
		records = append(records, backend.Record{ID: head.ObjectID, Data: raw})
	}
	return records, nil
}

func (c *Client) Search(ctx context.Context, class string, criteria backend.Criteria, cred backend.Credential) ([]backend.Record, error) {
	limit := criteria.Limit
	if limit <= 0 || limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	return c.query(ctx, class, where(criteria, ""), limit, cred)
}

func (c *Client) SearchAll(_ context.Context, class string, criteria backend.Criteria, cred backend.Credential) backend.Cursor {
	return backend.NewPagedCursor(func(ctx context.Context, after string) ([]backend.Record, error) {
		return c.query(ctx, class, where(criteria, after), c.pageSize, cred)
	})
}

func (c *Client) Read(ctx context.Context, class, id string, cred backend.Credential) (backend.Record, error) {
	var raw json.RawMessage
	if err := c.doRequest(ctx, http.MethodGet, class, objectPath(class, id), cred, nil, &raw); err != nil {
		return backend.Record{}, err
	}
	return backend.Record{ID: id, Data: raw}, nil
}

func (c *Client) Create(ctx context.Context, class string, data map[string]interface{}, acl models.ACL, cred backend.Credential) (string, error) {
	body := make(map[string]interface{}, len(data)+1)
	for k, v := range data {
		if _, unset := v.(backend.Unset); unset {
			continue
		}
		body[k] = v
	}
	if acl != nil {
		body["ACL"] = acl
	}

	var created struct {
		ObjectID string `json:"objectId"`
	}
	if err := c.doRequest(ctx, http.MethodPost, class, "/classes/"+url.PathEscape(class), cred, body, &created); err != nil {
		return "", err
	}
	return created.ObjectID, nil
}

func (c *Client) Update(ctx context.Context, class, id string, data map[string]interface{}, cred backend.Credential) error {
	body := make(map[string]interface{}, len(data))
	for k, v := range data {
		if _, unset := v.(backend.Unset); unset {
			body[k] = map[string]string{"__op": "Delete"}
			continue
		}
		body[k] = v
	}
	return c.doRequest(ctx, http.MethodPut, class, objectPath(class, id), cred, body, nil)
}

func (c *Client) Delete(ctx context.Context, class, id string, cred backend.Credential) error {
	return c.doRequest(ctx, http.MethodDelete, class, objectPath(class, id), cred, nil, nil)
}

func objectPath(class, id string) string {
	return "/classes/" + url.PathEscape(class) + "/" + url.PathEscape(id)
}
