package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/clinicore/labflow/internal/domain/laborder"
	"github.com/clinicore/labflow/internal/service"
)

type OrderHandler struct {
	orderSvc *service.OrderService
}

func NewOrderHandler(orderSvc *service.OrderService) *OrderHandler {
	return &OrderHandler{orderSvc: orderSvc}
}

type createOrderRequest struct {
	DoctorID      uuid.UUID   `json:"doctor_id" binding:"required"`
	PatientID     uuid.UUID   `json:"patient_id" binding:"required"`
	TestIDs       []uuid.UUID `json:"test_ids" binding:"required"`
	ClinicalNotes string      `json:"clinical_notes"`
	Diagnosis     string      `json:"diagnosis"`
	IsUrgent      bool        `json:"is_urgent"`
}

type createOrderResponse struct {
	Order          *service.OrderDetail `json:"order"`
	SkippedTestIDs []uuid.UUID          `json:"skipped_test_ids,omitempty"`
}

func (h *OrderHandler) Create(c *gin.Context) {
	claims := claimsFrom(c)
	var req createOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	cmd := &laborder.CreateOrderCommand{
		DoctorID:      req.DoctorID,
		PatientID:     req.PatientID,
		TestIDs:       req.TestIDs,
		ClinicalNotes: req.ClinicalNotes,
		Diagnosis:     req.Diagnosis,
		IsUrgent:      req.IsUrgent,
		CreatedBy:     claims.UserID,
	}

	order, skipped, err := h.orderSvc.CreateOrder(c.Request.Context(), cmd, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	detail := h.orderSvc.Describe(c.Request.Context(), order)
	respondCreated(c, createOrderResponse{Order: detail, SkippedTestIDs: skipped})
}

func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	order, err := h.orderSvc.GetOrder(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, h.orderSvc.Describe(c.Request.Context(), order))
}

func (h *OrderHandler) List(c *gin.Context) {
	q := &laborder.ListOrdersQuery{
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "page_size", 20),
	}

	if raw := c.Query("status"); raw != "" {
		status := laborder.Status(raw)
		if !status.IsValid() {
			respondError(c, http.StatusBadRequest, "invalid status filter")
			return
		}
		q.Status = &status
	}

	if raw := c.Query("urgent"); raw != "" {
		urgent := raw == "true"
		q.Urgent = &urgent
	}

	page, err := h.orderSvc.ListOrders(c.Request.Context(), q)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, page)
}

func (h *OrderHandler) ListPending(c *gin.Context) {
	orders, err := h.orderSvc.ListPending(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, orders)
}

func (h *OrderHandler) ListByPatient(c *gin.Context) {
	patientID, ok := parseUUID(c, "patientId")
	if !ok {
		return
	}

	orders, err := h.orderSvc.ListByPatient(c.Request.Context(), patientID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, orders)
}

func (h *OrderHandler) ListByDoctor(c *gin.Context) {
	doctorID, ok := parseUUID(c, "doctorId")
	if !ok {
		return
	}

	orders, err := h.orderSvc.ListByDoctor(c.Request.Context(), doctorID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, orders)
}

type updateOrderStatusRequest struct {
	Status laborder.Status `json:"status" binding:"required"`
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	claims := claimsFrom(c)
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req updateOrderStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := h.orderSvc.UpdateStatus(c.Request.Context(), id, req.Status, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, order)
}

type cancelOrderRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *OrderHandler) Cancel(c *gin.Context) {
	claims := claimsFrom(c)
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req cancelOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	cmd := &laborder.CancelOrderCommand{
		Reason:      req.Reason,
		CancelledBy: claims.UserID,
	}

	order, err := h.orderSvc.CancelOrder(c.Request.Context(), id, cmd, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, order)
}
