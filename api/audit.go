package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/battswap/boothd/core/audit"
)

type auditHandler struct {
	store audit.Store
	token string
}

func (h *auditHandler) query(c *gin.Context) {
	auth := c.GetHeader("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != h.token {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "unauthorized"}, "code": "unauthorized"})
		return
	}
	q := audit.Query{
		BoothID: c.Query("booth_id"),
		SlotID:  c.Query("slot_id"),
		Kind:    c.Query("kind"),
	}
	if v := c.Query("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "invalid start"}, "code": "bad_request"})
			return
		}
		q.Start = t
	}
	if v := c.Query("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "invalid end"}, "code": "bad_request"})
			return
		}
		q.End = t
	}
	recs, err := h.store.Query(c.Request.Context(), q)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if recs == nil {
		recs = []audit.Record{}
	}
	c.JSON(http.StatusOK, recs)
}
