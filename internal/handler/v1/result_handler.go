package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/clinicore/labflow/internal/domain/labresult"
	"github.com/clinicore/labflow/internal/service"
)

type ResultHandler struct {
	resultSvc *service.ResultService
	verifySvc *service.VerificationService
}

func NewResultHandler(resultSvc *service.ResultService, verifySvc *service.VerificationService) *ResultHandler {
	return &ResultHandler{resultSvc: resultSvc, verifySvc: verifySvc}
}

type enterResultRequest struct {
	OrderItemID    uuid.UUID      `json:"order_item_id" binding:"required"`
	ResultValue    string         `json:"result_value" binding:"required"`
	Units          string         `json:"units"`
	ReferenceRange string         `json:"reference_range"`
	Interpretation string         `json:"interpretation"`
	Flag           labresult.Flag `json:"flag"`
	Comments       string         `json:"comments"`
	AdditionalData map[string]any `json:"additional_data"`
}

func (h *ResultHandler) Enter(c *gin.Context) {
	claims := claimsFrom(c)
	var req enterResultRequest
	if !bindJSON(c, &req) {
		return
	}

	cmd := &labresult.EnterResultCommand{
		OrderItemID:    req.OrderItemID,
		ResultValue:    req.ResultValue,
		Units:          req.Units,
		ReferenceRange: req.ReferenceRange,
		Interpretation: req.Interpretation,
		Flag:           req.Flag,
		Comments:       req.Comments,
		AdditionalData: req.AdditionalData,
		PerformedByID:  claims.UserID,
	}

	result, err := h.resultSvc.EnterResult(c.Request.Context(), cmd, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondCreated(c, result)
}

func (h *ResultHandler) Get(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	result, err := h.resultSvc.GetResult(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, result)
}

func (h *ResultHandler) ListByOrder(c *gin.Context) {
	orderID, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	rows, err := h.resultSvc.ListByOrder(c.Request.Context(), orderID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, rows)
}

func (h *ResultHandler) ListByPatient(c *gin.Context) {
	patientID, ok := parseUUID(c, "patientId")
	if !ok {
		return
	}

	rows, err := h.resultSvc.ListByPatient(c.Request.Context(), patientID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, rows)
}

func (h *ResultHandler) Verify(c *gin.Context) {
	claims := claimsFrom(c)
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	result, err := h.verifySvc.Verify(c.Request.Context(), id, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, result)
}
