package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clinicore/labflow/internal/domain"
	"github.com/clinicore/labflow/internal/service"
)

type TimelineHandler struct {
	timelineSvc *service.TimelineService
}

func NewTimelineHandler(timelineSvc *service.TimelineService) *TimelineHandler {
	return &TimelineHandler{timelineSvc: timelineSvc}
}

func (h *TimelineHandler) GetForPatient(c *gin.Context) {
	claims := claimsFrom(c)
	patientID, ok := parseUUID(c, "patientId")
	if !ok {
		return
	}

	// Patients may only read their own timeline.
	if claims.Role == domain.RolePatient {
		if claims.PatientID == nil || *claims.PatientID != patientID {
			respondError(c, http.StatusForbidden, "access denied")
			return
		}
	}

	limit := parseQueryInt(c, "limit", 0)
	entries, err := h.timelineSvc.AggregateForPatient(c.Request.Context(), patientID, limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, entries)
}
