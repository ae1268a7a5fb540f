package main

import (
	"net/http"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"github.com/nlapi/orchestra/engine/core"
	"github.com/nlapi/orchestra/engine/orchestrator"
	"github.com/nlapi/orchestra/pkg/logger"
	"github.com/nlapi/orchestra/pkg/metrics"
)

// chatRequestBody is the wire shape clients POST to start a request.
type chatRequestBody struct {
	ProjectID string          `json:"projectId" binding:"required"`
	UserID    string          `json:"userId"`
	Utterance string          `json:"utterance" binding:"required"`
	Auth      *authBlobWireIn `json:"auth,omitempty"`
}

type authBlobWireIn struct {
	Kind        string `json:"kind"`
	Token       string `json:"token,omitempty"`
	CookieName  string `json:"cookieName,omitempty"`
	CookieValue string `json:"cookieValue,omitempty"`
}

func (a *authBlobWireIn) toCore() *core.AuthBlob {
	if a == nil {
		return nil
	}
	return &core.AuthBlob{
		Kind:        core.AuthKind(a.Kind),
		Token:       a.Token,
		CookieName:  a.CookieName,
		CookieValue: a.CookieValue,
	}
}

func newRouter(orch *orchestrator.Orchestrator, metricsSvc *metrics.Service) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLoggerMiddleware())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	if metricsSvc != nil {
		r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))
	}

	v1 := r.Group("/v1")
	v1.POST("/chat", func(c *gin.Context) { handleChat(c, orch) })
	v1.POST("/chat/stream", func(c *gin.Context) { handleChatStream(c, orch) })

	return r
}

func requestLoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.FromContext(c.Request.Context()).Info("handled request",
			"method", c.Request.Method, "path", c.Request.URL.Path, "status", c.Writer.Status())
	}
}

func handleChat(c *gin.Context, orch *orchestrator.Orchestrator) {
	var body chatRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeProblem(c, core.NewError(err, core.ErrCodeBadRequest, "invalid request body", nil))
		return
	}

	resp, err := orch.Process(c.Request.Context(), orchestrator.ChatRequest{
		ProjectID: core.ID(body.ProjectID),
		UserID:    body.UserID,
		Utterance: body.Utterance,
		Auth:      body.Auth.toCore(),
	})
	if err != nil {
		writeProblem(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func handleChatStream(c *gin.Context, orch *orchestrator.Orchestrator) {
	var body chatRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeProblem(c, core.NewError(err, core.ErrCodeBadRequest, "invalid request body", nil))
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	updates := make(chan orchestrator.ChatStreamUpdate, 16)
	go func() {
		defer close(updates)
		if err := orch.ProcessStream(c.Request.Context(), orchestrator.ChatRequest{
			ProjectID: core.ID(body.ProjectID),
			UserID:    body.UserID,
			Utterance: body.Utterance,
			Auth:      body.Auth.toCore(),
		}, updates); err != nil {
			logger.FromContext(c.Request.Context()).Warn("stream processing returned an error", "err", err)
		}
	}()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			sse.Encode(c.Writer, sse.Event{Event: string(update.Type), Data: update})
			c.Writer.Flush()
		}
	}
}

func writeProblem(c *gin.Context, err error) {
	doc := core.ProblemFromError(err)
	c.JSON(doc.Status, doc)
}
