package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/clinicore/labflow/internal/domain/labsample"
	"github.com/clinicore/labflow/internal/service"
)

type SampleHandler struct {
	sampleSvc *service.SampleService
}

func NewSampleHandler(sampleSvc *service.SampleService) *SampleHandler {
	return &SampleHandler{sampleSvc: sampleSvc}
}

type registerSampleRequest struct {
	OrderItemID     uuid.UUID `json:"order_item_id" binding:"required"`
	SampleType      string    `json:"sample_type"`
	StorageLocation string    `json:"storage_location"`
}

func (h *SampleHandler) Register(c *gin.Context) {
	claims := claimsFrom(c)
	var req registerSampleRequest
	if !bindJSON(c, &req) {
		return
	}

	cmd := &labsample.RegisterSampleCommand{
		OrderItemID:     req.OrderItemID,
		SampleType:      req.SampleType,
		StorageLocation: req.StorageLocation,
		CollectedByID:   claims.UserID,
	}

	sample, err := h.sampleSvc.RegisterSample(c.Request.Context(), cmd, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondCreated(c, sample)
}

func (h *SampleHandler) Get(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	sample, err := h.sampleSvc.GetSample(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, sample)
}

func (h *SampleHandler) ListByOrder(c *gin.Context) {
	orderID, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	samples, err := h.sampleSvc.ListByOrder(c.Request.Context(), orderID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, samples)
}

type updateSampleStatusRequest struct {
	Status          labsample.Status `json:"status" binding:"required"`
	StorageLocation *string          `json:"storage_location"`
}

func (h *SampleHandler) UpdateStatus(c *gin.Context) {
	claims := claimsFrom(c)
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req updateSampleStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	cmd := &labsample.UpdateSampleStatusCommand{
		Status:          req.Status,
		StorageLocation: req.StorageLocation,
	}

	sample, err := h.sampleSvc.UpdateStatus(c.Request.Context(), id, cmd, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, sample)
}

type rejectSampleRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *SampleHandler) Reject(c *gin.Context) {
	claims := claimsFrom(c)
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req rejectSampleRequest
	if !bindJSON(c, &req) {
		return
	}

	sample, err := h.sampleSvc.RejectSample(c.Request.Context(), id, req.Reason, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, sample)
}
