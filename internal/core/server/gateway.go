package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/solatis/formflow/internal/core/api"
	"github.com/solatis/formflow/internal/core/config"
	"github.com/solatis/formflow/internal/core/metrics"
	"github.com/solatis/formflow/internal/types"
	"github.com/solatis/formflow/internal/workflow"
)

// HTTPServer is the JSON gateway over the engine service.
type HTTPServer struct {
	engine *gin.Engine
	srv    *http.Server
	config *config.Config
	l      *slog.Logger
}

// NewHTTPServer builds the gateway routes. When metrics are enabled,
// gatherer backs GET /metrics (nil selects the default registry).
func NewHTTPServer(cfg *config.Config, service *api.EngineService, gatherer prometheus.Gatherer, l *slog.Logger) (*HTTPServer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if l == nil {
		l = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	g := gin.New()
	g.Use(gin.Recovery(), requestLogger(l))

	h := &gatewayHandler{svc: service}
	g.GET("/healthz", h.health)
	if cfg.Engine.MetricsEnabled {
		g.GET("/metrics", gin.WrapH(metrics.Handler(gatherer)))
	}

	v1 := g.Group("/v1")
	v1.GET("/templates", h.listTemplates)
	v1.POST("/templates/:id/instantiate", h.instantiateTemplate)

	v1.POST("/workflows", h.saveWorkflow)
	v1.GET("/workflows", h.listWorkflows)
	v1.POST("/workflows/validate", h.validateWorkflow)
	v1.GET("/workflows/:id", h.getWorkflow)
	v1.DELETE("/workflows/:id", h.deleteWorkflow)
	v1.POST("/workflows/:id/execute", h.executeWorkflow)
	v1.GET("/workflows/:id/runs", h.listRuns)
	v1.POST("/execute", h.executeInline)
	v1.POST("/events", h.dispatchEvent)

	v1.POST("/rules/debug", h.debugRules)
	v1.POST("/rules/edge-cases", h.edgeCases)
	v1.PUT("/rulesets/:id", h.saveRuleSet)
	v1.GET("/rulesets/:id", h.getRuleSet)

	return &HTTPServer{
		engine: g,
		srv: &http.Server{
			Addr:              cfg.HTTPAddr(),
			Handler:           g,
			ReadHeaderTimeout: 10 * time.Second,
		},
		config: cfg,
		l:      l,
	}, nil
}

// Handler returns the routed handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.engine
}

// Start serves on the configured address until Shutdown.
func (s *HTTPServer) Start(ctx context.Context) error {
	s.l.InfoContext(ctx, fmt.Sprintf("HTTP gateway listening on %s", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve %s: %w", s.srv.Addr, err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func requestLogger(l *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		l.DebugContext(c.Request.Context(), fmt.Sprintf("HTTP %s %s", c.Request.Method, c.FullPath()),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

type gatewayHandler struct {
	svc *api.EngineService
}

func fail(c *gin.Context, err error) {
	c.JSON(api.HTTPStatus(err), gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func (h *gatewayHandler) health(c *gin.Context) {
	if err := h.svc.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *gatewayHandler) listTemplates(c *gin.Context) {
	templates, err := h.svc.Templates()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": templates})
}

func (h *gatewayHandler) instantiateTemplate(c *gin.Context) {
	wf, err := h.svc.InstantiateTemplate(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, wf)
}

// readWorkflow decodes the request body as a schema-checked workflow.
func readWorkflow(c *gin.Context) (*types.Workflow, bool) {
	body, err := c.GetRawData()
	if err != nil {
		badRequest(c, err)
		return nil, false
	}
	wf, err := workflow.Decode(body)
	if err != nil {
		fail(c, err)
		return nil, false
	}
	return wf, true
}

func (h *gatewayHandler) saveWorkflow(c *gin.Context) {
	wf, ok := readWorkflow(c)
	if !ok {
		return
	}
	result, err := h.svc.SaveWorkflow(c.Request.Context(), wf)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflow": wf, "validation": result})
}

func (h *gatewayHandler) listWorkflows(c *gin.Context) {
	wfs, err := h.svc.ListWorkflows(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflows": wfs})
}

func (h *gatewayHandler) validateWorkflow(c *gin.Context) {
	wf, ok := readWorkflow(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.svc.ValidateWorkflow(wf))
}

func (h *gatewayHandler) getWorkflow(c *gin.Context) {
	wf, err := h.svc.GetWorkflow(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, wf)
}

func (h *gatewayHandler) deleteWorkflow(c *gin.Context) {
	if err := h.svc.DeleteWorkflow(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type valuesBody struct {
	Values types.Values `json:"values"`
}

func (h *gatewayHandler) executeWorkflow(c *gin.Context) {
	var body valuesBody
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, err)
			return
		}
	}
	report, err := h.svc.ExecuteWorkflow(c.Request.Context(), c.Param("id"), body.Values)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *gatewayHandler) executeInline(c *gin.Context) {
	var body struct {
		Workflow json.RawMessage `json:"workflow" binding:"required"`
		Values   types.Values    `json:"values"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	wf, err := workflow.Decode(body.Workflow)
	if err != nil {
		fail(c, err)
		return
	}
	report, err := h.svc.ExecuteInline(c.Request.Context(), wf, body.Values)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *gatewayHandler) dispatchEvent(c *gin.Context) {
	var body struct {
		Trigger types.TriggerType `json:"trigger" binding:"required,oneof=pageLoad formSubmit fieldChange"`
		FieldID string            `json:"fieldId" binding:"required_if=Trigger fieldChange"`
		Values  types.Values      `json:"values"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	reports, err := h.svc.DispatchEvent(c.Request.Context(), body.Trigger, body.FieldID, body.Values)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": reports})
}

func (h *gatewayHandler) listRuns(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = n
	}
	runs, err := h.svc.ListRuns(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (h *gatewayHandler) debugRules(c *gin.Context) {
	var req api.DebugRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	session, err := h.svc.DebugRules(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *gatewayHandler) edgeCases(c *gin.Context) {
	var req edgeCasesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cases, err := h.svc.EdgeCases(c.Request.Context(), req.RuleSetID, req.Rules)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"edgeCases": cases})
}

func (h *gatewayHandler) saveRuleSet(c *gin.Context) {
	var rs types.RuleSet
	if err := c.ShouldBindJSON(&rs); err != nil {
		badRequest(c, err)
		return
	}
	rs.ID = c.Param("id")
	issues, err := h.svc.SaveRuleSet(c.Request.Context(), &rs)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ruleSet": rs, "issues": issues})
}

func (h *gatewayHandler) getRuleSet(c *gin.Context) {
	rs, err := h.svc.GetRuleSet(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rs)
}
