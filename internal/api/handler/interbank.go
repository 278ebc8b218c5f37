package handler

import (
	"net/http"

	"github.com/ayo6706/interbank-transfers/internal/domain"
	"github.com/ayo6706/interbank-transfers/internal/protocol"
	"github.com/ayo6706/interbank-transfers/internal/service"
)

// InterbankHandler accepts transfers pushed by partner banks.
type InterbankHandler struct {
	executor *service.Executor
}

func NewInterbankHandler(executor *service.Executor) *InterbankHandler {
	return &InterbankHandler{executor: executor}
}

type interbankResponse struct {
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
	Replayed      bool   `json:"replayed,omitempty"`
}

func (h *InterbankHandler) TransferByIBAN(w http.ResponseWriter, r *http.Request) {
	h.accept(w, r, domain.TransferKindIBAN)
}

func (h *InterbankHandler) TransferByPhone(w http.ResponseWriter, r *http.Request) {
	h.accept(w, r, domain.TransferKindPhone)
}

func (h *InterbankHandler) accept(w http.ResponseWriter, r *http.Request, kind string) {
	msg, err := protocol.Decode(r.Body)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	if msg.Receiver.AccountNumber != nil || msg.Receiver.PhoneNumber != nil {
		if got := msg.Kind(); got != kind {
			RespondDomainError(w, r, domain.InvalidPayload("%s transfer posted to the %s endpoint", got, kind))
			return
		}
	}

	res, err := h.executor.Execute(r.Context(), msg, "bank:"+msg.Sender.BankCode)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	RespondJSON(w, status, interbankResponse{
		Status:        res.Transaction.Status,
		TransactionID: res.Transaction.ID,
		Replayed:      res.Replayed,
	})
}
