// Copyright (C) 2026 Hydronav Contributors (dev@hydronav.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resolve

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hydronav/hydronav/services/resolve/agent"
	"github.com/hydronav/hydronav/services/resolve/routing"
)

// ErrorResponse is the uniform error body for all resolve endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// QueryRequest is the body for POST /v1/resolve/query and /route.
type QueryRequest struct {
	// Query is the natural-language question. Required.
	Query string `json:"query" binding:"required"`

	// MaxRows caps tabular tool output. 0 uses the tool default.
	MaxRows int `json:"max_rows"`
}

// QueryResponse is the body for POST /v1/resolve/query.
type QueryResponse struct {
	RequestID string           `json:"request_id"`
	Outcome   *routing.Outcome `json:"outcome"`
	Result    *agent.Result    `json:"result,omitempty"`
}

// RouteResponse is the body for POST /v1/resolve/route.
type RouteResponse struct {
	RequestID string           `json:"request_id"`
	Outcome   *routing.Outcome `json:"outcome"`
}

// EntityRequest is the body for POST /v1/resolve/entity.
type EntityRequest struct {
	Query string `json:"query" binding:"required"`
}

// EntityResponse is the body for POST /v1/resolve/entity.
type EntityResponse struct {
	RequestID  string `json:"request_id"`
	Resolved   bool   `json:"resolved"`
	Code       int    `json:"code,omitempty"`
	PlantName  string `json:"plant_name,omitempty"`
	FullName   string `json:"full_name,omitempty"`
	StationRef int    `json:"station_ref,omitempty"`
}

// ToolInfo is one entry of GET /v1/resolve/tools.
type ToolInfo struct {
	Name       string `json:"name"`
	Capability string `json:"capability"`
}

// Handlers holds the HTTP handlers for the resolve service.
type Handlers struct {
	service *Service
}

// NewHandlers creates handlers over a wired service.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// getOrCreateRequestID returns the inbound X-Request-ID or mints one, and
// tags the request span (created by the otelgin middleware) with it.
func getOrCreateRequestID(c *gin.Context) string {
	id := c.GetHeader("X-Request-ID")
	if id == "" {
		id = uuid.NewString()
	}
	if span := trace.SpanFromContext(c.Request.Context()); span.SpanContext().IsValid() {
		span.SetAttributes(attribute.String("request_id", id))
	}
	return id
}

// HandleQuery handles POST /v1/resolve/query.
//
// Description:
//
//	Resolves the query and, when confidence allows, executes the selected
//	tool. Disambiguate and decline outcomes return 200 with no result; the
//	client inspects outcome.kind. A disambiguation answer is sent back to
//	this same endpoint as the option's envelope string.
//
// Response:
//
//	200 OK: QueryResponse
//	400 Bad Request: Missing or empty query
//	502 Bad Gateway: The selected tool failed
func (h *Handlers) HandleQuery(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleQuery")

	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "query is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}

	result, outcome, err := h.service.Router().Run(c.Request.Context(), req.Query, agent.Options{
		MaxRows: req.MaxRows,
	})
	if err != nil {
		logger.Error("tool execution failed", slog.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error: err.Error(),
			Code:  "TOOL_FAILED",
		})
		return
	}

	c.Header("X-Request-ID", requestID)
	c.JSON(http.StatusOK, QueryResponse{
		RequestID: requestID,
		Outcome:   outcome,
		Result:    result,
	})
}

// HandleRoute handles POST /v1/resolve/route.
//
// Description:
//
//	Resolves the query without executing anything. Used by callers that
//	want the routing decision but run tools themselves.
//
// Response:
//
//	200 OK: RouteResponse
//	400 Bad Request: Missing or empty query
func (h *Handlers) HandleRoute(c *gin.Context) {
	requestID := getOrCreateRequestID(c)

	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "query is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}

	outcome := h.service.Router().Resolve(c.Request.Context(), req.Query)

	c.Header("X-Request-ID", requestID)
	c.JSON(http.StatusOK, RouteResponse{RequestID: requestID, Outcome: outcome})
}

// HandleEntity handles POST /v1/resolve/entity.
//
// Description:
//
//	Resolves a plant reference in free text to its canonical code. A query
//	with no identifiable plant returns 200 with resolved=false, not an
//	error: "no plant" is an answer.
//
// Response:
//
//	200 OK: EntityResponse
//	400 Bad Request: Missing or empty query
func (h *Handlers) HandleEntity(c *gin.Context) {
	requestID := getOrCreateRequestID(c)

	var req EntityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "query is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}

	resp := EntityResponse{RequestID: requestID}
	if rec, ok := h.service.Matcher().ResolveRecord(req.Query, nil); ok {
		resp.Resolved = true
		resp.Code = rec.Code
		resp.PlantName = rec.FileFormName
		resp.FullName = rec.CuratedFullName
		resp.StationRef = rec.StationRef
	}

	c.Header("X-Request-ID", requestID)
	c.JSON(http.StatusOK, resp)
}

// HandleTools handles GET /v1/resolve/tools.
func (h *Handlers) HandleTools(c *gin.Context) {
	descs := h.service.Registry().Descriptors()
	infos := make([]ToolInfo, 0, len(descs))
	for _, d := range descs {
		infos = append(infos, ToolInfo{Name: d.Name, Capability: d.Capability})
	}
	c.JSON(http.StatusOK, gin.H{"tools": infos})
}

// HandleHealth handles GET /v1/resolve/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"tools":           h.service.Registry().Len(),
		"plants":          len(h.service.Plants().Records()),
		"plants_degraded": h.service.Plants().Degraded(),
	})
}
