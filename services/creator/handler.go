package creator

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"wellnest-affiliate/pkg/errutil"
)

func registerRoutes(engine *gin.Engine, svc *Service) {
	v1 := engine.Group("/v1/creators")
	v1.POST("", svc.handleApply)
	v1.GET("/:creator_id", svc.handleGet)
	v1.POST("/:creator_id/approve", svc.handleApprove)
	v1.POST("/:creator_id/reject", svc.handleReject)
	v1.POST("/:creator_id/pause", svc.handlePause)
	v1.POST("/:creator_id/reactivate", svc.handleReactivate)
	v1.GET("/:creator_id/tier", svc.handleTierStatus)
}

func (s *Service) handleApply(c *gin.Context) {
	var req ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.ValidationFailed("invalid creator application", err))
		return
	}

	record, err := s.Apply(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, record)
}

func (s *Service) handleGet(c *gin.Context) {
	record, err := s.Get(c.Request.Context(), c.Param("creator_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, record)
}

func (s *Service) handleApprove(c *gin.Context) {
	s.handleTransition(c, s.Approve)
}

func (s *Service) handleReject(c *gin.Context) {
	s.handleTransition(c, s.Reject)
}

func (s *Service) handlePause(c *gin.Context) {
	s.handleTransition(c, s.Pause)
}

func (s *Service) handleReactivate(c *gin.Context) {
	s.handleTransition(c, s.Reactivate)
}

func (s *Service) handleTransition(c *gin.Context, fn func(ctx context.Context, id string) (*Creator, error)) {
	record, err := fn(c.Request.Context(), c.Param("creator_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, record)
}

func (s *Service) handleTierStatus(c *gin.Context) {
	status, err := s.GetTierStatus(c.Request.Context(), c.Param("creator_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, status)
}
