// Package client implements types.Backend against a remote hera server.
// Error envelopes are mapped back to the sentinel codes of pkg/types, so a
// referential conflict reported by the server is still a conflict here.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/hera/internal/ctxutil"
	"github.com/mesh-intelligence/hera/internal/httpapi"
	"github.com/mesh-intelligence/hera/pkg/types"
)

// Compile-time interface check.
var _ types.Backend = (*Client)(nil)

// Client talks to the /v1 routes of a hera server.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// WithRetries sets how many times a request is retried after a network
// failure or a 503 response.
func WithRetries(n int) Option {
	return func(c *Client) { c.http.SetRetryCount(n) }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New returns a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(30*time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(200*time.Millisecond).
			SetRetryMaxWaitTime(2*time.Second).
			SetHeader("Accept", "application/json"),
		logger: zap.NewNop(),
	}
	c.http.AddRetryCondition(retryUnavailable)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func retryUnavailable(r *resty.Response, err error) bool {
	return err == nil && r != nil && r.StatusCode() == http.StatusServiceUnavailable
}

// RemoteError is an error reported by the server. It matches errors.Is
// against its code, when the server named one, and its kind.
type RemoteError struct {
	Status  int
	Kind    error
	Code    *types.Code
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code != nil && e.Message == "" {
		return e.Code.Name()
	}
	return e.Message
}

// Unwrap exposes the code, or the kind when there is no code.
func (e *RemoteError) Unwrap() []error {
	if e.Code != nil {
		return []error{e.Code}
	}
	return []error{e.Kind}
}

func (c *Client) request(ctx context.Context) *resty.Request {
	req := c.http.R().SetContext(ctx)
	if role, ok := ctxutil.RoleFromContext(ctx); ok {
		req.SetHeader(httpapi.HeaderRole, role)
	}
	if actor := ctxutil.ActorFromContext(ctx); actor != "" {
		req.SetHeader(httpapi.HeaderActor, actor)
	}
	return req
}

func (c *Client) do(req *resty.Request, method, path string, result any) error {
	if result != nil {
		req.SetResult(result)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		c.logger.Warn("backend request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%s %s: %w: %w", method, path, types.ErrBackendUnavailable, err)
	}
	if resp.IsError() {
		return decodeError(resp)
	}
	return nil
}

func decodeError(resp *resty.Response) error {
	var body httpapi.ErrorBody
	if err := json.Unmarshal(resp.Body(), &body); err != nil || body.Error.Kind == "" {
		return &RemoteError{
			Status:  resp.StatusCode(),
			Kind:    kindForStatus(resp.StatusCode()),
			Message: fmt.Sprintf("unexpected response %s", resp.Status()),
		}
	}
	e := &RemoteError{
		Status:  resp.StatusCode(),
		Kind:    types.KindByName(body.Error.Kind),
		Message: body.Error.Message,
	}
	if c := types.LookupCode(body.Error.Code); c != nil && c.Kind() == e.Kind {
		e.Code = c
	}
	return e
}

func kindForStatus(status int) error {
	switch status {
	case http.StatusBadRequest:
		return types.ErrSchema
	case http.StatusUnprocessableEntity:
		return types.ErrValidation
	case http.StatusNotFound:
		return types.ErrNotFound
	case http.StatusConflict:
		return types.ErrConflict
	case http.StatusForbidden:
		return types.ErrForbidden
	}
	return types.ErrTransport
}

// EntityCreate implements types.Backend.
func (c *Client) EntityCreate(ctx context.Context, in types.NewEntity) (*types.Entity, error) {
	var e types.Entity
	if err := c.do(c.request(ctx).SetBody(in), http.MethodPost, "/v1/entities", &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// EntityGet implements types.Backend.
func (c *Client) EntityGet(ctx context.Context, id string) (*types.Entity, error) {
	var e types.Entity
	if err := c.do(c.request(ctx).SetPathParam("id", id), http.MethodGet, "/v1/entities/{id}", &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// EntityUpdate implements types.Backend.
func (c *Client) EntityUpdate(ctx context.Context, id string, patch types.EntityPatch) (*types.Entity, error) {
	var e types.Entity
	req := c.request(ctx).SetPathParam("id", id).SetBody(patch)
	if err := c.do(req, http.MethodPatch, "/v1/entities/{id}", &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// EntityDelete implements types.Backend.
func (c *Client) EntityDelete(ctx context.Context, id string, opts types.DeleteOptions) error {
	q := url.Values{}
	q.Set("hard_delete", strconv.FormatBool(opts.HardDelete))
	q.Set("cascade", strconv.FormatBool(opts.Cascade))
	if opts.Reason != "" {
		q.Set("reason", opts.Reason)
	}
	req := c.request(ctx).SetPathParam("id", id).SetQueryParamsFromValues(q)
	return c.do(req, http.MethodDelete, "/v1/entities/{id}", nil)
}

// EntityQuery implements types.Backend.
func (c *Client) EntityQuery(ctx context.Context, q types.EntityQuery) ([]*types.Entity, error) {
	var list []*types.Entity
	req := c.request(ctx).SetQueryParamsFromValues(httpapi.EncodeEntityQuery(q))
	if err := c.do(req, http.MethodGet, "/v1/entities", &list); err != nil {
		return nil, err
	}
	return list, nil
}

// TransactionCreate implements types.Backend.
func (c *Client) TransactionCreate(ctx context.Context, in types.NewTransaction) (*types.Transaction, error) {
	var t types.Transaction
	if err := c.do(c.request(ctx).SetBody(in), http.MethodPost, "/v1/transactions", &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// TransactionGet implements types.Backend.
func (c *Client) TransactionGet(ctx context.Context, id string) (*types.Transaction, error) {
	var t types.Transaction
	if err := c.do(c.request(ctx).SetPathParam("id", id), http.MethodGet, "/v1/transactions/{id}", &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// TransactionUpdate implements types.Backend.
func (c *Client) TransactionUpdate(ctx context.Context, id string, patch types.TransactionPatch) (*types.Transaction, error) {
	var t types.Transaction
	req := c.request(ctx).SetPathParam("id", id).SetBody(patch)
	if err := c.do(req, http.MethodPatch, "/v1/transactions/{id}", &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// TransactionCorrect implements types.Backend.
func (c *Client) TransactionCorrect(ctx context.Context, id string, status string, correction types.NewTransaction) (*types.Transaction, error) {
	var t types.Transaction
	req := c.request(ctx).SetPathParam("id", id).
		SetBody(httpapi.CorrectionRequest{Status: status, Correction: correction})
	if err := c.do(req, http.MethodPost, "/v1/transactions/{id}/corrections", &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// TransactionQuery implements types.Backend.
func (c *Client) TransactionQuery(ctx context.Context, q types.TransactionQuery) ([]*types.Transaction, error) {
	var list []*types.Transaction
	req := c.request(ctx).SetQueryParamsFromValues(httpapi.EncodeTransactionQuery(q))
	if err := c.do(req, http.MethodGet, "/v1/transactions", &list); err != nil {
		return nil, err
	}
	return list, nil
}
