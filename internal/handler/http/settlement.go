package http

import (
	"encoding/json"
	"net/http"

	"github.com/dairycoop/settlement-backend/internal/domain/settlement"
	"github.com/dairycoop/settlement-backend/internal/handler/http/response"
	"github.com/go-chi/chi/v5"
)

type SettlementHandler interface {
	// Collection ledger
	ListCollections(w http.ResponseWriter, r *http.Request)
	RecordCollection(w http.ResponseWriter, r *http.Request)
	ApproveCollection(w http.ResponseWriter, r *http.Request)

	// Daily summaries
	ListSummaries(w http.ResponseWriter, r *http.Request)
	RecordReceived(w http.ResponseWriter, r *http.Request)
	RecomputeSummary(w http.ResponseWriter, r *http.Request)
	PeriodOverview(w http.ResponseWriter, r *http.Request)

	// Penalty configs
	ListPenaltyConfigs(w http.ResponseWriter, r *http.Request)
	GetActivePenaltyConfig(w http.ResponseWriter, r *http.Request)
	CreatePenaltyConfig(w http.ResponseWriter, r *http.Request)
	ActivatePenaltyConfig(w http.ResponseWriter, r *http.Request)
	PreviewPenalty(w http.ResponseWriter, r *http.Request)

	// Collector payments
	GeneratePayment(w http.ResponseWriter, r *http.Request)
	ListPayments(w http.ResponseWriter, r *http.Request)
	GetPayment(w http.ResponseWriter, r *http.Request)
	ReviewPayment(w http.ResponseWriter, r *http.Request)
	PayPayment(w http.ResponseWriter, r *http.Request)
}

type settlementHandlerImpl struct {
	settlementService settlement.SettlementService
}

func NewSettlementHandler(settlementService settlement.SettlementService) SettlementHandler {
	return &settlementHandlerImpl{settlementService: settlementService}
}

func dateRangeFromRequest(r *http.Request) settlement.DateRangeRequest {
	return settlement.DateRangeRequest{
		CollectorID: chi.URLParam(r, "collectorId"),
		From:        r.URL.Query().Get("from"),
		To:          r.URL.Query().Get("to"),
	}
}

// ========== COLLECTION LEDGER ==========

func (h *settlementHandlerImpl) ListCollections(w http.ResponseWriter, r *http.Request) {
	result, err := h.settlementService.ListCollectorCollections(r.Context(), dateRangeFromRequest(r))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}

func (h *settlementHandlerImpl) RecordCollection(w http.ResponseWriter, r *http.Request) {
	var req settlement.RecordCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}

	result, err := h.settlementService.RecordCollection(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Created(w, "Collection recorded", result)
}

func (h *settlementHandlerImpl) ApproveCollection(w http.ResponseWriter, r *http.Request) {
	result, err := h.settlementService.ApproveCollection(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Collection approved", result)
}

// ========== DAILY SUMMARIES ==========

func (h *settlementHandlerImpl) ListSummaries(w http.ResponseWriter, r *http.Request) {
	result, err := h.settlementService.ListDailySummaries(r.Context(), dateRangeFromRequest(r))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}

func (h *settlementHandlerImpl) RecordReceived(w http.ResponseWriter, r *http.Request) {
	var req settlement.RecordReceivedLitersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}
	req.CollectorID = chi.URLParam(r, "collectorId")
	req.Date = chi.URLParam(r, "date")

	result, err := h.settlementService.RecordReceivedLiters(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Daily summary finalized", result)
}

func (h *settlementHandlerImpl) RecomputeSummary(w http.ResponseWriter, r *http.Request) {
	result, err := h.settlementService.RecomputeDailySummary(r.Context(), chi.URLParam(r, "collectorId"), chi.URLParam(r, "date"))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}

func (h *settlementHandlerImpl) PeriodOverview(w http.ResponseWriter, r *http.Request) {
	result, err := h.settlementService.GetPeriodOverview(r.Context(), dateRangeFromRequest(r))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}

// ========== PENALTY CONFIGS ==========

func (h *settlementHandlerImpl) ListPenaltyConfigs(w http.ResponseWriter, r *http.Request) {
	result, err := h.settlementService.ListPenaltyConfigs(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}

func (h *settlementHandlerImpl) GetActivePenaltyConfig(w http.ResponseWriter, r *http.Request) {
	result, err := h.settlementService.GetActivePenaltyConfig(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}

func (h *settlementHandlerImpl) CreatePenaltyConfig(w http.ResponseWriter, r *http.Request) {
	var req settlement.CreatePenaltyConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}

	result, err := h.settlementService.CreatePenaltyConfig(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Created(w, "Penalty config created", result)
}

func (h *settlementHandlerImpl) ActivatePenaltyConfig(w http.ResponseWriter, r *http.Request) {
	result, err := h.settlementService.ActivatePenaltyConfig(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Penalty config activated", result)
}

func (h *settlementHandlerImpl) PreviewPenalty(w http.ResponseWriter, r *http.Request) {
	var req settlement.PreviewPenaltyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}

	result, err := h.settlementService.PreviewPenalty(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}

// ========== COLLECTOR PAYMENTS ==========

func (h *settlementHandlerImpl) GeneratePayment(w http.ResponseWriter, r *http.Request) {
	var req settlement.GeneratePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}

	result, err := h.settlementService.GenerateCollectorPayment(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Created(w, "Collector payment generated", result)
}

func (h *settlementHandlerImpl) ListPayments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := settlement.PaymentFilter{
		Page:  getIntQueryParam(r, "page", 1),
		Limit: getIntQueryParam(r, "limit", 20),
	}
	if v := query.Get("collector_id"); v != "" {
		filter.CollectorID = &v
	}
	if v := query.Get("status"); v != "" {
		filter.Status = &v
	}

	result, err := h.settlementService.ListCollectorPayments(r.Context(), filter)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMeta(w, result.Data, response.NewMeta(result.Page, result.Limit, result.TotalCount))
}

func (h *settlementHandlerImpl) GetPayment(w http.ResponseWriter, r *http.Request) {
	result, err := h.settlementService.GetCollectorPayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}

func (h *settlementHandlerImpl) ReviewPayment(w http.ResponseWriter, r *http.Request) {
	result, err := h.settlementService.MarkPaymentPending(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Collector payment moved to Pending", result)
}

func (h *settlementHandlerImpl) PayPayment(w http.ResponseWriter, r *http.Request) {
	result, err := h.settlementService.MarkPaymentPaid(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Collector payment paid", result)
}
