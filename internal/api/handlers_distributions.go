package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fund-admin-backend/internal/waterfall"
)

// createDistributionRequest is the payload for POST
// /structures/:id/distributions. TotalAmount is minimal currency units.
type createDistributionRequest struct {
	TotalAmount int64 `json:"total_amount" binding:"required,gt=0"`
}

func (s *Server) handleCreateDistribution(c *gin.Context) {
	var req createDistributionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "bad_request", Message: err.Error()})
		return
	}

	// The structure must exist before a draft is accepted.
	if _, err := s.repo.GetStructure(c.Request.Context(), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}

	dist := &waterfall.Distribution{
		StructureID: c.Param("id"),
		TotalAmount: req.TotalAmount,
		Status:      waterfall.StatusDraft,
	}
	if err := s.repo.CreateDistribution(c.Request.Context(), dist); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dist)
}

func (s *Server) handleGetDistribution(c *gin.Context) {
	dist, err := s.repo.GetDistribution(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dist)
}

func (s *Server) handleListDistributions(c *gin.Context) {
	dists, err := s.repo.ListDistributions(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"distributions": dists})
}

// handleApplyWaterfall runs the waterfall for a draft distribution. The
// advisory Redis lock rejects obviously concurrent callers up front; the
// committing transaction remains the correctness guarantee either way.
func (s *Server) handleApplyWaterfall(c *gin.Context) {
	distributionID := c.Param("id")
	ctx := c.Request.Context()

	if s.lock != nil {
		acquired, err := s.lock.Acquire(ctx, distributionID)
		if err != nil {
			s.logger.Warn().Err(err).Str("distribution_id", distributionID).
				Msg("advisory lock unavailable, relying on transaction guard")
		} else if !acquired {
			s.writeError(c, &waterfall.ConflictError{
				DistributionID: distributionID,
				Reason:         "waterfall application already in progress",
			})
			return
		} else {
			defer func() {
				if err := s.lock.Release(ctx, distributionID); err != nil {
					s.logger.Warn().Err(err).Str("distribution_id", distributionID).
						Msg("failed to release advisory lock")
				}
			}()
		}
	}

	result, err := s.engine.ApplyWaterfall(ctx, distributionID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleMarkPaid(c *gin.Context) {
	dist, err := s.engine.MarkPaid(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dist)
}

func (s *Server) handleGetAllocations(c *gin.Context) {
	// 404 for an unknown distribution, not an empty list.
	if _, err := s.repo.GetDistribution(c.Request.Context(), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}

	lines, err := s.repo.ListAllocations(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"allocations": lines})
}
