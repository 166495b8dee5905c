package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	resourcedomain "github.com/smallbiznis/slotmeter/internal/resource/domain"
)

type createResourceRequest struct {
	Name           string          `json:"name"`
	Description    *string         `json:"description"`
	Capacity       int             `json:"capacity"`
	PricePerMinute decimal.Decimal `json:"price_per_minute"`
}

type updateResourceRequest struct {
	Name           *string          `json:"name,omitempty"`
	Description    *string          `json:"description,omitempty"`
	Capacity       *int             `json:"capacity,omitempty"`
	PricePerMinute *decimal.Decimal `json:"price_per_minute,omitempty"`
}

func (s *Server) CreateResource(c *gin.Context) {
	var req createResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.resourceSvc.Create(c.Request.Context(), resourcedomain.CreateRequest{
		Name:           strings.TrimSpace(req.Name),
		Description:    trimStringPtr(req.Description),
		Capacity:       req.Capacity,
		PricePerMinute: req.PricePerMinute,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListResources(c *gin.Context) {
	resp, err := s.resourceSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetResourceByID(c *gin.Context) {
	resp, err := s.resourceSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateResource(c *gin.Context) {
	var req updateResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.resourceSvc.Update(c.Request.Context(), resourcedomain.UpdateRequest{
		ID:             strings.TrimSpace(c.Param("id")),
		Name:           trimStringPtr(req.Name),
		Description:    trimStringPtr(req.Description),
		Capacity:       req.Capacity,
		PricePerMinute: req.PricePerMinute,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteResource(c *gin.Context) {
	if err := s.resourceSvc.Delete(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
