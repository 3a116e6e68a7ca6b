package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/battswap/boothd/core/inventory"
	"github.com/battswap/boothd/core/logger"
	"github.com/battswap/boothd/core/model"
)

type boothHandler struct {
	svc BoothService
	log logger.Logger
}

type createBoothRequest struct {
	ID           string   `json:"id" binding:"required"`
	Name         string   `json:"name"`
	Location     string   `json:"location"`
	ChargeCutoff float64  `json:"charge_cutoff"`
	Slots        []string `json:"slots"`
}

func (h *boothHandler) create(c *gin.Context) {
	var req createBoothRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}, "code": "bad_request"})
		return
	}
	b := inventory.Booth{ID: req.ID, Name: req.Name, Location: req.Location, ChargeCutoff: req.ChargeCutoff}
	if err := h.svc.AddBooth(b); err != nil {
		abortWithError(c, err)
		return
	}
	for _, slotID := range req.Slots {
		if err := h.svc.AddSlot(model.SlotRef{BoothID: req.ID, SlotID: slotID}); err != nil {
			abortWithError(c, err)
			return
		}
	}
	c.JSON(http.StatusCreated, gin.H{"id": req.ID})
}

func (h *boothHandler) list(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Booths())
}

func (h *boothHandler) status(c *gin.Context) {
	views, err := h.svc.BoothStatus(c.Param("booth"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

type addSlotRequest struct {
	SlotID string `json:"slot_id" binding:"required"`
}

func (h *boothHandler) addSlot(c *gin.Context) {
	var req addSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}, "code": "bad_request"})
		return
	}
	ref := model.SlotRef{BoothID: c.Param("booth"), SlotID: req.SlotID}
	if err := h.svc.AddSlot(ref); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"slot": ref})
}

func (h *boothHandler) deleteSlot(c *gin.Context) {
	ref := model.SlotRef{BoothID: c.Param("booth"), SlotID: c.Param("slot")}
	if err := h.svc.DeleteSlot(ref); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type commandRequest struct {
	Name   string         `json:"name" binding:"required"`
	Params map[string]any `json:"params"`
}

func (h *boothHandler) command(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}, "code": "bad_request"})
		return
	}
	name, ok := model.ParseCommandName(req.Name)
	if !ok {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "unknown command " + req.Name}, "code": "unknown_command"})
		return
	}
	ref := model.SlotRef{BoothID: c.Param("booth"), SlotID: c.Param("slot")}
	if err := h.svc.SendCommand(c.Request.Context(), ref, name, req.Params); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"slot": ref, "command": string(name)})
}

type setStatusRequest struct {
	Disabled *bool `json:"disabled" binding:"required"`
}

func (h *boothHandler) setStatus(c *gin.Context) {
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}, "code": "bad_request"})
		return
	}
	ref := model.SlotRef{BoothID: c.Param("booth"), SlotID: c.Param("slot")}
	if err := h.svc.SetAdminStatus(ref, *req.Disabled); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *boothHandler) reset(c *gin.Context) {
	ref := model.SlotRef{BoothID: c.Param("booth"), SlotID: c.Param("slot")}
	if err := h.svc.ResetSlot(c.Request.Context(), ref); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"slot": ref})
}

func (h *boothHandler) resetAll(c *gin.Context) {
	boothID := c.Param("booth")
	if err := h.svc.ResetAllSlots(c.Request.Context(), boothID); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"booth": boothID})
}
