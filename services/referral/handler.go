package referral

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"wellnest-affiliate/pkg/errutil"
)

func registerRoutes(engine *gin.Engine, svc *Service) {
	v1 := engine.Group("/v1/creators/:creator_id")
	v1.POST("/links", svc.handleCreateLink)
	v1.GET("/links", svc.handleListLinks)
	v1.POST("/coupons", svc.handleCreateCoupon)
	v1.GET("/coupons", svc.handleListCoupons)

	engine.GET("/r/:slug", svc.handleClick)
}

func (s *Service) handleCreateLink(c *gin.Context) {
	var req CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.ValidationFailed("invalid link request", err))
		return
	}

	link, err := s.CreateLink(c.Request.Context(), c.Param("creator_id"), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, link)
}

func (s *Service) handleListLinks(c *gin.Context) {
	links, err := s.ListLinks(c.Request.Context(), c.Param("creator_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"links": links})
}

func (s *Service) handleCreateCoupon(c *gin.Context) {
	var req CreateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.ValidationFailed("invalid coupon request", err))
		return
	}

	coupon, err := s.CreateCoupon(c.Request.Context(), c.Param("creator_id"), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, coupon)
}

func (s *Service) handleListCoupons(c *gin.Context) {
	coupons, err := s.ListCoupons(c.Request.Context(), c.Param("creator_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"coupons": coupons})
}

func (s *Service) handleClick(c *gin.Context) {
	destination, err := s.TrackClick(c.Request.Context(), c.Param("slug"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.Redirect(http.StatusFound, destination)
}
