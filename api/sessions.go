package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/battswap/boothd/core/logger"
)

type sessionHandler struct {
	svc SessionService
	log logger.Logger
}

type startDepositRequest struct {
	UserID  string `json:"user_id" binding:"required"`
	BoothID string `json:"booth_id" binding:"required"`
}

func (h *sessionHandler) startDeposit(c *gin.Context) {
	var req startDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}, "code": "bad_request"})
		return
	}
	sess, err := h.svc.StartDeposit(c.Request.Context(), req.UserID, req.BoothID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

type startWithdrawalRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func (h *sessionHandler) startWithdrawal(c *gin.Context) {
	var req startWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}, "code": "bad_request"})
		return
	}
	sess, err := h.svc.StartWithdrawal(c.Request.Context(), req.UserID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (h *sessionHandler) get(c *gin.Context) {
	sess, err := h.svc.Session(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *sessionHandler) pay(c *gin.Context) {
	if err := h.svc.ConfirmPayment(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "paid"})
}

func (h *sessionHandler) open(c *gin.Context) {
	if err := h.svc.OpenForCollection(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "unlocking"})
}

func (h *sessionHandler) cancel(c *gin.Context) {
	if err := h.svc.CancelSession(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}
