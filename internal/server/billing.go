package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/smallbiznis/slotmeter/internal/billing/domain"
)

type totalSpentResponse struct {
	UserID     string  `json:"user_id"`
	TotalSpent float64 `json:"total_spent"`
}

func (s *Server) ListBillingRecords(c *gin.Context) {
	var query struct {
		UserID     string `form:"user_id"`
		ResourceID string `form:"resource_id"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	s.listBillingRecords(c, billingdomain.ListRequest{
		UserID:     strings.TrimSpace(query.UserID),
		ResourceID: strings.TrimSpace(query.ResourceID),
	})
}

func (s *Server) ListBillingRecordsByUser(c *gin.Context) {
	s.listBillingRecords(c, billingdomain.ListRequest{
		UserID: strings.TrimSpace(c.Param("user_id")),
	})
}

func (s *Server) ListBillingRecordsByResource(c *gin.Context) {
	s.listBillingRecords(c, billingdomain.ListRequest{
		ResourceID: strings.TrimSpace(c.Param("resource_id")),
	})
}

func (s *Server) listBillingRecords(c *gin.Context, req billingdomain.ListRequest) {
	resp, err := s.billingSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetUserTotalSpent(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("user_id"))
	total, err := s.billingSvc.TotalSpent(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": totalSpentResponse{
		UserID:     userID,
		TotalSpent: total.InexactFloat64(),
	}})
}

func (s *Server) GetUserBillingSummary(c *gin.Context) {
	resp, err := s.billingSvc.UserSummary(c.Request.Context(), strings.TrimSpace(c.Param("user_id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetBillingRecordBySession(c *gin.Context) {
	resp, err := s.billingSvc.GetBySession(c.Request.Context(), strings.TrimSpace(c.Param("session_id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
