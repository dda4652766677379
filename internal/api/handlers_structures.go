package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"fund-admin-backend/internal/database"
	"fund-admin-backend/internal/waterfall"
)

// createStructureRequest is the payload for POST /structures.
type createStructureRequest struct {
	Name     string `json:"name" binding:"required,min=1,max=200"`
	Currency string `json:"currency" binding:"omitempty,len=3"`
}

func (s *Server) handleCreateStructure(c *gin.Context) {
	var req createStructureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "bad_request", Message: err.Error()})
		return
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}

	structure := &database.Structure{Name: req.Name, Currency: req.Currency}
	if err := s.repo.CreateStructure(c.Request.Context(), structure); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, structure)
}

func (s *Server) handleGetStructure(c *gin.Context) {
	structure, err := s.repo.GetStructure(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, structure)
}

// createTierRequest is the payload for POST /structures/:id/tiers.
// ThresholdAmount is minimal currency units; omit it for the unbounded
// residual tier.
type createTierRequest struct {
	TierNumber      int    `json:"tier_number" binding:"required,min=1"`
	TierType        string `json:"tier_type" binding:"required"`
	LPSharePercent  string `json:"lp_share_percent" binding:"required"`
	GPSharePercent  string `json:"gp_share_percent" binding:"required"`
	ThresholdAmount *int64 `json:"threshold_amount,omitempty"`
	IsActive        *bool  `json:"is_active,omitempty"`
}

func (s *Server) handleCreateTier(c *gin.Context) {
	var req createTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "bad_request", Message: err.Error()})
		return
	}

	lp, err := decimal.NewFromString(req.LPSharePercent)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "invalid lp_share_percent"})
		return
	}
	gp, err := decimal.NewFromString(req.GPSharePercent)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "invalid gp_share_percent"})
		return
	}

	tier := waterfall.Tier{
		StructureID:     c.Param("id"),
		TierNumber:      req.TierNumber,
		TierType:        waterfall.TierType(req.TierType),
		LPSharePercent:  lp,
		GPSharePercent:  gp,
		ThresholdAmount: req.ThresholdAmount,
		IsActive:        true,
	}
	if req.IsActive != nil {
		tier.IsActive = *req.IsActive
	}
	if !tier.TierType.Valid() {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "unknown tier_type"})
		return
	}

	if err := s.repo.CreateTier(c.Request.Context(), &tier); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tier)
}

func (s *Server) handleGetTiers(c *gin.Context) {
	tiers, err := s.repo.GetTiers(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tiers": tiers})
}

// createInvestorPositionRequest is the payload for POST
// /structures/:id/investors. Weight is an ownership percentage.
type createInvestorPositionRequest struct {
	InvestorID string `json:"investor_id" binding:"required,min=1,max=100"`
	Weight     string `json:"weight" binding:"required"`
}

func (s *Server) handleCreateInvestorPosition(c *gin.Context) {
	var req createInvestorPositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "bad_request", Message: err.Error()})
		return
	}

	weight, err := decimal.NewFromString(req.Weight)
	if err != nil || weight.IsNegative() {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "invalid weight"})
		return
	}

	if err := s.repo.CreateInvestorPosition(c.Request.Context(), c.Param("id"), req.InvestorID, weight); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"structure_id": c.Param("id"),
		"investor_id":  req.InvestorID,
		"weight":       weight.String(),
	})
}

func (s *Server) handleGetInvestors(c *gin.Context) {
	weights, err := s.repo.GetInvestorWeights(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"investors": weights})
}
