// Package sessionclient calls the session broker api on behalf of hosts and viewers.
package sessionclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/CzarSimon/httputil/client/rpc"
	"github.com/opentracing/opentracing-go"
	tracelog "github.com/opentracing/opentracing-go/log"
	"github.com/rtcheap/session-broker/internal/models"
)

// Doer performs http requests.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// APIError failed api call, carries the broker's error envelope.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("session broker responded %d: %s", e.Status, e.Message)
}

// Client session broker api client.
type Client struct {
	BaseURL string
	HTTP    Doer
}

// NewClient creates a client for the broker at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTP:    rpc.NewClient(timeout),
	}
}

// CreateSession creates a new session.
func (c *Client) CreateSession(ctx context.Context) (models.SessionView, error) {
	var res models.SessionResponse
	err := c.call(ctx, http.MethodPost, "/api/sessions", nil, &res)
	return res.Session, err
}

// GetSession looks up a session by its unique id.
func (c *Client) GetSession(ctx context.Context, uniqueID string) (models.SessionView, error) {
	var res models.SessionResponse
	err := c.call(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(uniqueID), nil, &res)
	return res.Session, err
}

// ListSessions lists all sessions, newest first.
func (c *Client) ListSessions(ctx context.Context) ([]models.SessionView, error) {
	var res models.SessionsResponse
	err := c.call(ctx, http.MethodGet, "/api/sessions", nil, &res)
	return res.Sessions, err
}

// IssueToken requests a realtime credential for a channel and role.
func (c *Client) IssueToken(ctx context.Context, channelName, role string) (models.Token, error) {
	var token models.Token
	req := models.TokenRequest{ChannelName: channelName, Role: role}
	err := c.call(ctx, http.MethodPost, "/api/sessions/token", req, &token)
	return token, err
}

// ReportStatus reports a capture state of the host.
func (c *Client) ReportStatus(ctx context.Context, uniqueID string, status models.CaptureStatus) error {
	return c.call(ctx, http.MethodPost, "/api/status/"+url.PathEscape(uniqueID), status, nil)
}

// JoinAsHost creates a session and then requests a host credential for its channel.
func (c *Client) JoinAsHost(ctx context.Context) (models.SessionView, models.Token, error) {
	session, err := c.CreateSession(ctx)
	if err != nil {
		return models.SessionView{}, models.Token{}, err
	}

	token, err := c.IssueToken(ctx, session.ChannelName(), models.RoleHost)
	if err != nil {
		return models.SessionView{}, models.Token{}, err
	}

	return session, token, nil
}

// JoinAsViewer looks up a session and then requests a viewer credential for its channel.
func (c *Client) JoinAsViewer(ctx context.Context, uniqueID string) (models.SessionView, models.Token, error) {
	session, err := c.GetSession(ctx, uniqueID)
	if err != nil {
		return models.SessionView{}, models.Token{}, err
	}

	token, err := c.IssueToken(ctx, session.ChannelName(), models.RoleViewer)
	if err != nil {
		return models.SessionView{}, models.Token{}, err
	}

	return session, token, nil
}

func (c *Client) call(ctx context.Context, method, path string, body, out interface{}) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "sessionclient."+method+"."+path)
	defer span.Finish()

	req, err := c.createRequest(ctx, method, path, body)
	if err != nil {
		span.LogFields(tracelog.Error(err))
		return err
	}

	opentracing.GlobalTracer().Inject(
		span.Context(),
		opentracing.HTTPHeaders,
		opentracing.HTTPHeadersCarrier(req.Header),
	)

	res, err := c.HTTP.Do(req)
	if res != nil {
		defer res.Body.Close()
	}
	if res != nil && res.StatusCode >= http.StatusBadRequest {
		err = decodeError(res)
		span.LogFields(tracelog.Error(err))
		return err
	}
	if err != nil {
		err = fmt.Errorf("%s %s failed. %w", method, path, err)
		span.LogFields(tracelog.Error(err))
		return err
	}

	if out == nil {
		return nil
	}

	err = rpc.DecodeJSON(res, out)
	if err != nil {
		err = fmt.Errorf("failed to decode response of %s %s. %w", method, path, err)
		span.LogFields(tracelog.Error(err))
		return err
	}

	return nil
}

func (c *Client) createRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var payload bytes.Buffer
	if body != nil {
		err := json.NewEncoder(&payload).Encode(body)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize request body. %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, &payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create request. %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

func decodeError(res *http.Response) error {
	var envelope models.ErrorResponse
	err := json.NewDecoder(res.Body).Decode(&envelope)
	if err != nil || envelope.Error == "" {
		return &APIError{Status: res.StatusCode, Message: http.StatusText(res.StatusCode)}
	}

	return &APIError{Status: res.StatusCode, Message: envelope.Error}
}
