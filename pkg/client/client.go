// Package client is the HTTP client of the parley API used by dashboards and tools.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/services"
	"github.com/hashicorp/go-retryablehttp"
)

const (
	DefaultTimeout  = 10 * time.Second
	DefaultRetryMax = 2
)

// Client talks to the parley REST API.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
}

type Option func(*retryablehttp.Client)

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *retryablehttp.Client) {
		c.HTTPClient = hc
	}
}

// WithRetryMax sets how many times an idempotent request is retried on 5xx or network errors.
func WithRetryMax(retries int) Option {
	return func(c *retryablehttp.Client) {
		c.RetryMax = retries
	}
}

// WithLogger routes retry diagnostics to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *retryablehttp.Client) {
		c.Logger = logger.With("module", "parley_client")
	}
}

// New creates a client for the API served at baseURL.
func New(baseURL string, opts ...Option) *Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = DefaultTimeout
	rc.RetryMax = DefaultRetryMax
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = time.Second
	rc.Logger = nil
	rc.CheckRetry = retryIdempotent
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	for _, opt := range opts {
		opt(rc)
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    rc,
	}
}

type requestMethodKey struct{}

// retryIdempotent retries GET requests only. The method is read from the request context
// since resp is nil on transport errors.
func retryIdempotent(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if method, _ := ctx.Value(requestMethodKey{}).(string); method != http.MethodGet {
		return false, nil
	}

	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// ListWorkflowsParams filters a workflow listing.
type ListWorkflowsParams struct {
	BusinessID string
	AgentID    *string
	Active     *bool
}

func (c *Client) ListWorkflows(ctx context.Context, params ListWorkflowsParams) ([]*models.ConversationWorkflow, error) {
	query := url.Values{}
	query.Set("businessId", params.BusinessID)

	if params.AgentID != nil {
		query.Set("agentId", *params.AgentID)
	}

	if params.Active != nil {
		query.Set("active", strconv.FormatBool(*params.Active))
	}

	var workflows []*models.ConversationWorkflow

	err := c.do(ctx, "ListWorkflows", "Failed to fetch workflows", http.MethodGet, "/workflows?"+query.Encode(), nil, &workflows)
	if err != nil {
		return nil, err
	}

	return workflows, nil
}

func (c *Client) GetWorkflow(ctx context.Context, id string) (*models.ConversationWorkflow, error) {
	var workflow models.ConversationWorkflow

	err := c.do(ctx, "GetWorkflow", "Failed to fetch workflow", http.MethodGet, "/workflows/"+url.PathEscape(id), nil, &workflow)
	if err != nil {
		return nil, err
	}

	return &workflow, nil
}

// CreateWorkflow creates a workflow. A blank name is rejected before any request is sent.
func (c *Client) CreateWorkflow(ctx context.Context, workflow *models.ConversationWorkflow) (*models.ConversationWorkflow, error) {
	if workflow == nil {
		return nil, services.ErrWorkflowNil
	}

	if strings.TrimSpace(workflow.Name) == "" {
		return nil, services.ErrWorkflowNameRequired
	}

	var created models.ConversationWorkflow

	err := c.do(ctx, "CreateWorkflow", "Failed to create workflow", http.MethodPost, "/workflows", workflow, &created)
	if err != nil {
		return nil, err
	}

	return &created, nil
}

// UpdateWorkflow replaces the present fields of a workflow.
func (c *Client) UpdateWorkflow(ctx context.Context, id string, req services.UpdateWorkflowRequest) (*models.ConversationWorkflow, error) {
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return nil, services.ErrWorkflowNameRequired
	}

	var updated models.ConversationWorkflow

	err := c.do(ctx, "UpdateWorkflow", "Failed to update workflow", http.MethodPut, "/workflows/"+url.PathEscape(id), req, &updated)
	if err != nil {
		return nil, err
	}

	return &updated, nil
}

func (c *Client) DeleteWorkflow(ctx context.Context, id string) error {
	return c.do(ctx, "DeleteWorkflow", "Failed to delete workflow", http.MethodDelete, "/workflows/"+url.PathEscape(id), nil, nil)
}

// ListConnectionsParams filters a connection listing.
type ListConnectionsParams struct {
	BusinessID string
	Kind       models.ConnectionKind
	AgentID    *string
}

// ListConnections returns the connections of a business with their statuses normalized.
func (c *Client) ListConnections(ctx context.Context, params ListConnectionsParams) ([]*models.ConnectionRecord, error) {
	query := url.Values{}
	query.Set("businessId", params.BusinessID)

	if params.Kind != "" {
		query.Set("kind", string(params.Kind))
	}

	if params.AgentID != nil {
		query.Set("agentId", *params.AgentID)
	}

	var records []*models.ConnectionRecord

	err := c.do(ctx, "ListConnections", "Failed to fetch connections", http.MethodGet, "/connections?"+query.Encode(), nil, &records)
	if err != nil {
		return nil, err
	}

	return records, nil
}

// UpdateConnectionRouting merge-patches the routing of a connection. Unipile accounts are
// patched through their config endpoint, WhatsApp Business numbers through the resource itself.
func (c *Client) UpdateConnectionRouting(
	ctx context.Context,
	kind models.ConnectionKind,
	connectionID string,
	patch services.RoutingPatch,
) (*models.ConnectionRecord, error) {
	path, err := routingPath(kind, connectionID)
	if err != nil {
		return nil, err
	}

	var record models.ConnectionRecord

	err = c.do(ctx, "UpdateConnectionRouting", "Failed to update channel configuration", http.MethodPatch, path, patch, &record)
	if err != nil {
		return nil, err
	}

	return &record, nil
}

func routingPath(kind models.ConnectionKind, connectionID string) (string, error) {
	escaped := url.PathEscape(connectionID)

	switch kind {
	case models.ConnectionKindUnipile:
		return "/connections/" + escaped + "/config", nil
	case models.ConnectionKindWhatsAppBusiness:
		return "/connections/" + escaped, nil
	default:
		return "", fmt.Errorf("%w: %q", models.ErrUnknownConnectionKind, kind)
	}
}

func (c *Client) ListChannels(ctx context.Context, businessID string) ([]*models.BusinessChannel, error) {
	var channels []*models.BusinessChannel

	err := c.do(ctx, "ListChannels", "Failed to fetch channels", http.MethodGet,
		"/channels?"+url.Values{"businessId": {businessID}}.Encode(), nil, &channels)
	if err != nil {
		return nil, err
	}

	return channels, nil
}

func (c *Client) do(ctx context.Context, op, fallback, method, path string, body, out any) error {
	var payload io.Reader

	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", op, err)
		}

		payload = bytes.NewReader(encoded)
	}

	ctx = context.WithValue(ctx, requestMethodKey{}, method)

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", op, err)
	}

	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Op: op, Message: fallback, Err: err}
	}

	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Message: fallback, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newError(op, resp.StatusCode, raw, fallback)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Message: fallback, Err: err}
	}

	return nil
}
