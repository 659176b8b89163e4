package main

import (
	"errors"
	"net/http"

	"github.com/CzarSimon/httputil"
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	tracelog "github.com/opentracing/opentracing-go/log"
	"github.com/rtcheap/session-broker/internal/models"
	"go.uber.org/zap"
)

const internalErrorMessage = "Internal server error"

func (e *env) createSession(c *gin.Context) {
	span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "controller.createSession")
	defer span.Finish()

	session, err := e.sessionService.Create(ctx)
	if err != nil {
		span.LogFields(tracelog.Bool("success", false), tracelog.Error(err))
		sendError(c, err)
		return
	}

	span.LogFields(tracelog.Bool("success", true))
	c.JSON(http.StatusOK, models.SessionResponse{
		Success: true,
		Session: session.View(),
	})
}

func (e *env) getSession(c *gin.Context) {
	span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "controller.getSession")
	defer span.Finish()

	session, err := e.sessionService.GetByUniqueID(ctx, c.Param("uniqueId"))
	if err != nil {
		span.LogFields(tracelog.Bool("success", false), tracelog.Error(err))
		sendError(c, err)
		return
	}

	span.LogFields(tracelog.Bool("success", true))
	c.JSON(http.StatusOK, models.SessionResponse{
		Success: true,
		Session: session.View(),
	})
}

func (e *env) listSessions(c *gin.Context) {
	span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "controller.listSessions")
	defer span.Finish()

	sessions, err := e.sessionService.ListAll(ctx)
	if err != nil {
		span.LogFields(tracelog.Bool("success", false), tracelog.Error(err))
		sendError(c, err)
		return
	}

	views := make([]models.SessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, s.View())
	}

	span.LogFields(tracelog.Bool("success", true))
	c.JSON(http.StatusOK, models.SessionsResponse{
		Success:  true,
		Sessions: views,
	})
}

func (e *env) issueToken(c *gin.Context) {
	span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "controller.issueToken")
	defer span.Finish()

	// An unreadable body is validated as an empty request.
	var req models.TokenRequest
	err := c.ShouldBindJSON(&req)
	if err != nil {
		req = models.TokenRequest{}
	}

	token, err := e.tokenService.Issue(ctx, req.ChannelName, req.Role)
	if err != nil {
		span.LogFields(tracelog.Bool("success", false), tracelog.Error(err))
		sendError(c, err)
		return
	}

	span.LogFields(tracelog.Bool("success", true))
	c.JSON(http.StatusOK, token)
}

func (e *env) reportStatus(c *gin.Context) {
	span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "controller.reportStatus")
	defer span.Finish()

	var status models.CaptureStatus
	err := c.ShouldBindJSON(&status)
	if err != nil {
		status = models.CaptureStatus{}
	}

	listeners, err := e.statusService.Report(ctx, c.Param("uniqueId"), status)
	if err != nil {
		span.LogFields(tracelog.Bool("success", false), tracelog.Error(err))
		sendError(c, err)
		return
	}

	span.LogFields(tracelog.Bool("success", true), tracelog.Int("listeners", listeners))
	c.JSON(http.StatusOK, models.StatusResponse{
		Success:   true,
		Listeners: listeners,
	})
}

func (e *env) subscribeStatus(c *gin.Context) {
	span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "controller.subscribeStatus")
	defer span.Finish()

	err := e.statusService.Subscribe(ctx, c.Param("uniqueId"), c.Request, c.Writer)
	if err == nil {
		span.LogFields(tracelog.Bool("success", true))
		return
	}

	span.LogFields(tracelog.Bool("success", false), tracelog.Error(err))
	var httpErr *httputil.Error
	if errors.As(err, &httpErr) {
		sendError(c, err)
		return
	}

	// The upgrader has already answered the request.
	log.Warn("failed to upgrade status feed", zap.String("uniqueId", c.Param("uniqueId")), zap.Error(err))
}

// sendError writes the error envelope for err. Messages of unclassified errors stay server side.
func sendError(c *gin.Context, err error) {
	status, message := http.StatusInternalServerError, internalErrorMessage

	var httpErr *httputil.Error
	if errors.As(err, &httpErr) {
		status = httpErr.Status
		message = httpErr.Message
	}

	if status >= http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
	}

	c.AbortWithStatusJSON(status, models.ErrorResponse{
		Success: false,
		Error:   message,
	})
}
