package sessionclient_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rtcheap/session-broker/internal/models"
	"github.com/rtcheap/session-broker/internal/sessionclient"
	"github.com/stretchr/testify/assert"
)

func TestJoinAsViewer(t *testing.T) {
	assert := assert.New(t)
	broker := newFakeBroker()
	srv := httptest.NewServer(broker.router())
	defer srv.Close()
	c := &sessionclient.Client{BaseURL: srv.URL, HTTP: srv.Client()}

	session, token, err := c.JoinAsViewer(context.Background(), "abc-123")
	assert.NoError(err)
	assert.Equal("abc-123", session.UniqueID)
	assert.Equal("token-viewer-abc-123", token.Token)
	assert.Equal("app-id", token.AppID)
	assert.Equal([]string{"GET /api/sessions/abc-123", "POST /api/sessions/token viewer abc-123"}, broker.calls())
}

func TestJoinAsViewer_NotFound(t *testing.T) {
	assert := assert.New(t)
	broker := newFakeBroker()
	srv := httptest.NewServer(broker.router())
	defer srv.Close()
	c := &sessionclient.Client{BaseURL: srv.URL, HTTP: srv.Client()}

	_, token, err := c.JoinAsViewer(context.Background(), "does-not-exist")
	assert.Error(err)
	assert.Empty(token.Token)

	var apiErr *sessionclient.APIError
	assert.True(errors.As(err, &apiErr))
	assert.Equal(http.StatusNotFound, apiErr.Status)
	assert.Equal("Session not found", apiErr.Message)
	assert.Equal([]string{"GET /api/sessions/does-not-exist"}, broker.calls())
}

func TestJoinAsHost(t *testing.T) {
	assert := assert.New(t)
	broker := newFakeBroker()
	srv := httptest.NewServer(broker.router())
	defer srv.Close()
	c := &sessionclient.Client{BaseURL: srv.URL, HTTP: srv.Client()}

	session, token, err := c.JoinAsHost(context.Background())
	assert.NoError(err)
	assert.Equal("abc-123", session.UniqueID)
	assert.Equal("token-host-abc-123", token.Token)
	assert.Equal([]string{"POST /api/sessions", "POST /api/sessions/token host abc-123"}, broker.calls())
}

func TestJoinAsHost_TokenFailure(t *testing.T) {
	assert := assert.New(t)
	broker := newFakeBroker()
	broker.tokenErr = "Server configuration error: Missing Agora credentials"
	srv := httptest.NewServer(broker.router())
	defer srv.Close()
	c := &sessionclient.Client{BaseURL: srv.URL, HTTP: srv.Client()}

	_, _, err := c.JoinAsHost(context.Background())
	var apiErr *sessionclient.APIError
	assert.True(errors.As(err, &apiErr))
	assert.Equal(http.StatusInternalServerError, apiErr.Status)
	assert.Equal(broker.tokenErr, apiErr.Message)
}

func TestListSessionsAndReportStatus(t *testing.T) {
	assert := assert.New(t)
	broker := newFakeBroker()
	srv := httptest.NewServer(broker.router())
	defer srv.Close()
	c := &sessionclient.Client{BaseURL: srv.URL, HTTP: srv.Client()}

	sessions, err := c.ListSessions(context.Background())
	assert.NoError(err)
	assert.Len(sessions, 1)

	err = c.ReportStatus(context.Background(), "abc-123", models.CaptureStatus{Source: models.SourceScreen, State: models.StatePublished})
	assert.NoError(err)
	assert.Equal([]string{"GET /api/sessions", "POST /api/status/abc-123 screen published"}, broker.calls())
}

// ---- Test utils ----

type fakeBroker struct {
	mu       sync.Mutex
	log      []string
	tokenErr string
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{log: make([]string, 0)}
}

func (b *fakeBroker) record(call string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log = append(b.log, call)
}

func (b *fakeBroker) calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.log...)
}

func (b *fakeBroker) router() http.Handler {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	session := models.SessionView{
		ID:               "1",
		Type:             models.TypeAdmin,
		UniqueID:         "abc-123",
		ShareURL:         "http://localhost:3000/session/abc-123",
		AgoraChannelName: "abc-123",
		Active:           true,
	}

	r.POST("/api/sessions", func(c *gin.Context) {
		b.record("POST /api/sessions")
		c.JSON(http.StatusOK, models.SessionResponse{Success: true, Session: session})
	})
	r.GET("/api/sessions", func(c *gin.Context) {
		b.record("GET /api/sessions")
		c.JSON(http.StatusOK, models.SessionsResponse{Success: true, Sessions: []models.SessionView{session}})
	})
	r.GET("/api/sessions/:uniqueId", func(c *gin.Context) {
		uniqueID := c.Param("uniqueId")
		b.record("GET /api/sessions/" + uniqueID)
		if uniqueID != session.UniqueID {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Success: false, Error: "Session not found"})
			return
		}
		c.JSON(http.StatusOK, models.SessionResponse{Success: true, Session: session})
	})
	r.POST("/api/sessions/token", func(c *gin.Context) {
		var req models.TokenRequest
		c.ShouldBindJSON(&req)
		b.record("POST /api/sessions/token " + req.Role + " " + req.ChannelName)
		if b.tokenErr != "" {
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{Success: false, Error: b.tokenErr})
			return
		}
		c.JSON(http.StatusOK, models.Token{Token: "token-" + req.Role + "-" + req.ChannelName, AppID: "app-id"})
	})
	r.POST("/api/status/:uniqueId", func(c *gin.Context) {
		var status models.CaptureStatus
		c.ShouldBindJSON(&status)
		b.record("POST /api/status/" + c.Param("uniqueId") + " " + status.Source + " " + status.State)
		c.JSON(http.StatusOK, gin.H{"success": true, "listeners": 0})
	})

	return r
}
