package payout

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"wellnest-affiliate/pkg/errutil"
)

func registerRoutes(engine *gin.Engine, svc *Service) {
	v1 := engine.Group("/v1")
	v1.POST("/payouts/run", svc.handleRunBatch)
	v1.GET("/payouts/:payout_id", svc.handleGet)
	v1.POST("/payouts/:payout_id/complete", svc.handleComplete)
	v1.POST("/payouts/:payout_id/fail", svc.handleFail)
	v1.GET("/creators/:creator_id/payouts", svc.handleList)
}

type runBatchRequest struct {
	CreatorIDs []string `json:"creator_ids"`
}

func (s *Service) handleRunBatch(c *gin.Context) {
	var req runBatchRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(errutil.ValidationFailed("invalid batch request", err))
			return
		}
	}

	result, err := s.RunBatch(c.Request.Context(), req.CreatorIDs)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Service) handleGet(c *gin.Context) {
	record, err := s.Get(c.Request.Context(), c.Param("payout_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, record)
}

func (s *Service) handleComplete(c *gin.Context) {
	record, err := s.MarkCompleted(c.Request.Context(), c.Param("payout_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, record)
}

func (s *Service) handleFail(c *gin.Context) {
	record, err := s.MarkFailed(c.Request.Context(), c.Param("payout_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, record)
}

func (s *Service) handleList(c *gin.Context) {
	records, err := s.List(c.Request.Context(), c.Param("creator_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payouts": records})
}
