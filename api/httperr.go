package api

import (
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"github.com/battswap/boothd/core/model"
)

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
	Code string `json:"code"`
}

// abortWithError maps domain sentinels to HTTP statuses and machine readable
// codes. Unknown errors are reported as 500 without leaking internals.
func abortWithError(c *gin.Context, err error) {
	status, code, msg := classify(err)
	var resp errorResponse
	resp.Error.Message = msg
	resp.Code = code
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, resp)
}

func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, model.ErrBoothNotFound):
		return http.StatusNotFound, "booth_not_found", err.Error()
	case errors.Is(err, model.ErrSlotNotFound):
		return http.StatusNotFound, "slot_not_found", err.Error()
	case errors.Is(err, model.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found", err.Error()
	case errors.Is(err, model.ErrSlotBusy):
		return http.StatusConflict, "slot_busy", err.Error()
	case errors.Is(err, model.ErrInventoryConflict):
		return http.StatusConflict, "inventory_conflict", err.Error()
	case errors.Is(err, model.ErrUserHasActiveSession):
		return http.StatusConflict, "user_has_active_session", err.Error()
	case errors.Is(err, model.ErrNoAvailableSlot):
		return http.StatusConflict, "no_available_slot", err.Error()
	case errors.Is(err, model.ErrNoActiveDeposit):
		return http.StatusConflict, "no_active_deposit", err.Error()
	case errors.Is(err, model.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition", err.Error()
	case errors.Is(err, model.ErrSlotDisabled):
		return http.StatusLocked, "slot_disabled", err.Error()
	case errors.Is(err, model.ErrSlotFaulty):
		return http.StatusLocked, "slot_faulty", err.Error()
	case errors.Is(err, model.ErrTransport):
		return http.StatusBadGateway, "transport_error", err.Error()
	default:
		return http.StatusInternalServerError, "internal", "internal error"
	}
}
