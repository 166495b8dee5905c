package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/slotmeter/internal/observability/context"
	sessiondomain "github.com/smallbiznis/slotmeter/internal/session/domain"
)

func (s *Server) StartUsageSession(c *gin.Context) {
	var req sessiondomain.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resourceID := strings.TrimSpace(req.ResourceID)
	userID := strings.TrimSpace(req.UserID)
	c.Set("resource_id", resourceID)
	ctx := obscontext.WithUserID(c.Request.Context(), userID)
	c.Request = c.Request.WithContext(ctx)

	resp, err := s.sessionSvc.Start(ctx, sessiondomain.StartRequest{
		ResourceID: resourceID,
		UserID:     userID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) StopUsageSession(c *gin.Context) {
	var req sessiondomain.StopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.sessionSvc.Stop(c.Request.Context(), strings.TrimSpace(req.SessionID))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetUsageSessionByID(c *gin.Context) {
	resp, err := s.sessionSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListUsageSessions(c *gin.Context) {
	var query struct {
		ResourceID string `form:"resource_id"`
		UserID     string `form:"user_id"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	s.listUsageSessions(c, sessiondomain.ListRequest{
		ResourceID: strings.TrimSpace(query.ResourceID),
		UserID:     strings.TrimSpace(query.UserID),
	})
}

func (s *Server) ListUsageSessionsByResource(c *gin.Context) {
	s.listUsageSessions(c, sessiondomain.ListRequest{
		ResourceID: strings.TrimSpace(c.Param("resource_id")),
	})
}

func (s *Server) ListUsageSessionsByUser(c *gin.Context) {
	s.listUsageSessions(c, sessiondomain.ListRequest{
		UserID: strings.TrimSpace(c.Param("user_id")),
	})
}

func (s *Server) listUsageSessions(c *gin.Context, req sessiondomain.ListRequest) {
	active, err := parseOptionalBool(c.Query("active"))
	if err != nil {
		AbortWithError(c, newValidationError("active", "invalid_active", "invalid active"))
		return
	}
	req.Active = active

	resp, err := s.sessionSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
