package commission

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"wellnest-affiliate/pkg/db/pagination"
	"wellnest-affiliate/pkg/errutil"
	"wellnest-affiliate/services/referral"
)

func registerRoutes(engine *gin.Engine, svc *Service) {
	v1 := engine.Group("/v1")
	v1.POST("/orders/paid", svc.handleOrderPaid)
	v1.POST("/orders/:order_id/refund", svc.handleRefund)
	v1.GET("/orders/:order_id/attribution", svc.handleGetAttribution)
	v1.POST("/commissions/advance-holds", svc.handleAdvanceHolds)
	v1.GET("/creators/:creator_id/earnings", svc.handleEarnings)
	v1.GET("/creators/:creator_id/entries", svc.handleListEntries)
}

func (s *Service) handleOrderPaid(c *gin.Context) {
	var event referral.OrderPaidEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		_ = c.Error(errutil.ValidationFailed("invalid order event", err))
		return
	}

	result, err := s.HandleOrderPaid(c.Request.Context(), &event)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Service) handleRefund(c *gin.Context) {
	reversed, err := s.Reverse(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"reversed_entries": reversed})
}

func (s *Service) handleGetAttribution(c *gin.Context) {
	attribution, err := s.referrals.GetAttribution(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, attribution)
}

func (s *Service) handleAdvanceHolds(c *gin.Context) {
	advanced, err := s.AdvanceHolds(c.Request.Context(), time.Now())
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"advanced_entries": advanced})
}

func (s *Service) handleEarnings(c *gin.Context) {
	overview, err := s.GetEarningsOverview(c.Request.Context(), c.Param("creator_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, overview)
}

func (s *Service) handleListEntries(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		_ = c.Error(errutil.ValidationFailed("invalid pagination", err))
		return
	}

	entries, info, err := s.ListEntries(c.Request.Context(), c.Param("creator_id"), &page)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries, "page_info": info})
}
