package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/overlaykit/userdir/pkg/errors"
	"github.com/overlaykit/userdir/pkg/metrics"
)

// healthCheck reports liveness and the reachability of the overlay store.
// The upstream catalog is deliberately not probed here: it has no health
// endpoint and a slow catalog must not make the service look dead.
func (s *Server) healthCheck(c *gin.Context) {
	status := "healthy"
	httpStatus := http.StatusOK
	checks := map[string]string{"store": "ok"}

	if err := s.overlay.HealthCheck(c.Request.Context()); err != nil {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
		checks["store"] = "unreachable"
		s.logger.Error("health check found store unreachable", err)
	}

	health := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
		Uptime:    time.Since(s.startTime).String(),
		Checks:    checks,
	}

	c.JSON(httpStatus, health)
}

// listUsers handles listing the merged directory
func (s *Server) listUsers(c *gin.Context) {
	users, err := s.registry.ListUsers(c.Request.Context())
	if err != nil {
		s.handleError(c, "Failed to list users", err)
		return
	}

	resp := UserListResponse{
		Code:    http.StatusOK,
		Message: "Users retrieved successfully",
		Data:    &users,
	}

	c.JSON(http.StatusOK, resp)
}

// getUser handles looking up a single user by id
func (s *Server) getUser(c *gin.Context) {
	id, ok := s.parseIDParam(c)
	if !ok {
		return
	}

	user, err := s.registry.GetUser(c.Request.Context(), id)
	if err != nil {
		s.handleError(c, "Failed to get user", err)
		return
	}

	resp := UserResponse{
		Code:    http.StatusOK,
		Message: "User retrieved successfully",
		Data:    &user,
	}

	c.JSON(http.StatusOK, resp)
}

// createUser handles user creation. Identifiers are allocated by the
// service; a request that carries its own id is rejected outright.
func (s *Server) createUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    http.StatusBadRequest,
			Message: "Invalid request format",
			Error:   err.Error(),
		})
		return
	}

	if req.ID != 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    http.StatusBadRequest,
			Message: "New user should not have an id present",
			Details: "user ids are allocated by the service",
		})
		return
	}

	user, err := s.registry.CreateUser(c.Request.Context(), req.ToUser())
	if err != nil {
		s.handleError(c, "Failed to create user", err)
		return
	}

	resp := UserResponse{
		Code:    http.StatusOK,
		Message: "User created successfully",
		Data:    &user,
	}

	c.JSON(http.StatusOK, resp)
}

// updateUser handles patching a user by id
func (s *Server) updateUser(c *gin.Context) {
	id, ok := s.parseIDParam(c)
	if !ok {
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    http.StatusBadRequest,
			Message: "Invalid request format",
			Error:   err.Error(),
		})
		return
	}

	user, err := s.registry.UpdateUser(c.Request.Context(), id, req.ToPatch())
	if err != nil {
		s.handleError(c, "Failed to update user", err)
		return
	}

	resp := UserResponse{
		Code:    http.StatusOK,
		Message: "User updated successfully",
		Data:    &user,
	}

	c.JSON(http.StatusOK, resp)
}

// getMetrics reports the in-process instrumentation snapshot
func (s *Server) getMetrics(c *gin.Context) {
	resp := MetricsResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(s.startTime).String(),
	}

	if recorder, ok := s.metrics.(*metrics.Recorder); ok {
		snapshot := recorder.Snapshot()
		resp.Enabled = true
		resp.Metrics = &snapshot
	}

	c.JSON(http.StatusOK, resp)
}

// Helper functions

// parseIDParam parses the :id path parameter. Ids are positive integers;
// anything else is answered with 400 before the registry is involved.
func (s *Server) parseIDParam(c *gin.Context) (uint64, bool) {
	raw := c.Param("id")

	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    http.StatusBadRequest,
			Message: "Invalid user id",
			Details: "the id path parameter must be a positive integer",
		})
		return 0, false
	}

	return id, true
}

// handleError maps a failed operation onto the boundary's status contract:
// a record in neither source is 404, an unanswerable catalog is 502, an
// overlay fault is 500 and rejected input is 400. Not-found is never
// conflated with upstream trouble.
func (s *Server) handleError(c *gin.Context, message string, err error) {
	requestID := c.GetString("request_id")

	status := http.StatusInternalServerError
	switch {
	case errors.IsNotFound(err):
		status = http.StatusNotFound
	case errors.IsUpstreamUnavailable(err):
		status = http.StatusBadGateway
	case errors.IsValidation(err):
		status = http.StatusBadRequest
	case errors.IsUnauthorized(err):
		status = http.StatusUnauthorized
	}

	logFields := map[string]interface{}{
		"request_id": requestID,
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
		"status":     status,
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error(message, err, logFields)
	} else {
		logFields["error"] = err.Error()
		s.logger.Warn(message, logFields)
	}

	c.JSON(status, ErrorResponse{
		Code:    status,
		Message: message,
		Error:   err.Error(),
		Details: fmt.Sprintf("Request ID: %s", requestID),
	})
}
