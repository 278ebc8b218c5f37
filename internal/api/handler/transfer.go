package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ayo6706/interbank-transfers/internal/api/middleware"
	"github.com/ayo6706/interbank-transfers/internal/domain"
	"github.com/ayo6706/interbank-transfers/internal/models"
	"github.com/ayo6706/interbank-transfers/internal/protocol"
	"github.com/ayo6706/interbank-transfers/internal/service"
	"github.com/go-chi/chi/v5"
)

type TransferHandler struct {
	svc *service.TransferService
}

func NewTransferHandler(svc *service.TransferService) *TransferHandler {
	return &TransferHandler{svc: svc}
}

type createTransferRequest struct {
	Receiver    protocol.Party `json:"receiver"`
	Amount      domain.Money   `json:"amount"`
	Description *string        `json:"description,omitempty"`
}

// TransferResponse is the customer-facing view of a ledger row.
type TransferResponse struct {
	ID          string        `json:"id"`
	Status      string        `json:"status"`
	Direction   string        `json:"direction"`
	Origin      string        `json:"origin"`
	OriginBank  string        `json:"origin_bank_code"`
	Destination string        `json:"destination"`
	DestBank    string        `json:"destination_bank_code"`
	Amount      domain.Amount `json:"amount"`
	Currency    string        `json:"currency"`
	Description *string       `json:"description,omitempty"`
	Reason      *string       `json:"reason,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func newTransferResponse(t models.Transaction) TransferResponse {
	return TransferResponse{
		ID:          t.ID,
		Status:      t.Status,
		Direction:   t.Direction,
		Origin:      firstSet(t.OriginIBAN, t.OriginPhone),
		OriginBank:  t.OriginBank,
		Destination: firstSet(t.DestPhone, t.DestIBAN),
		DestBank:    t.DestBank,
		Amount:      t.Amount,
		Currency:    t.Currency,
		Description: t.Description,
		Reason:      t.Reason,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func firstSet(vals ...*string) string {
	for _, v := range vals {
		if v != nil && *v != "" {
			return *v
		}
	}
	return ""
}

// Create sends money from the caller's account to an IBAN or phone number.
func (h *TransferHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTransferRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body: "+err.Error())
		return
	}

	receiver, err := req.Receiver.Identifier()
	if err != nil {
		RespondDomainError(w, r, domain.InvalidPayload("receiver: %s", err.Error()))
		return
	}

	res, err := h.svc.Send(r.Context(), service.SendRequest{
		UserID:       middleware.UserIDFromContext(r.Context()),
		Receiver:     receiver,
		ReceiverBank: req.Receiver.BankCode,
		Amount:       req.Amount,
		Description:  req.Description,
	})
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, newTransferResponse(res.Transaction))
}

// Get returns one of the caller's transfers.
func (h *TransferHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, err := h.svc.Get(r.Context(), middleware.UserIDFromContext(r.Context()), id)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, newTransferResponse(t))
}
