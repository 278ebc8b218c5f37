package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ayo6706/interbank-transfers/internal/api/problem"
	"github.com/ayo6706/interbank-transfers/internal/domain"
	"go.uber.org/zap"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

// RespondDomainError maps a transfer rejection to its problem document.
// Business rejections carry their reason; digest and storage failures do not.
func RespondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, slug := classify(err)
	detail := err.Error()
	switch domain.Code(err) {
	case "AuthenticationFailed":
		detail = domain.ErrAuthenticationFailed.Error()
	case "StorageFailure":
		zap.L().Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		detail = "the ledger could not record this transfer"
	}
	var remote *domain.RemoteBankError
	if errors.As(err, &remote) {
		detail = remote.Error()
	}
	problem.WriteTransfer(w, r, status, slug, domain.Code(err), detail)
}

func classify(err error) (int, string) {
	switch domain.Code(err) {
	case "InvalidPayload":
		return http.StatusBadRequest, "invalid-payload"
	case "AuthenticationFailed":
		return http.StatusUnauthorized, "authentication-failed"
	case "NoSharedSecret":
		return http.StatusForbidden, "no-shared-secret"
	case "AccountNotFound":
		return http.StatusNotFound, "account-not-found"
	case "BankCodeMismatch":
		return http.StatusUnprocessableEntity, "bank-code-mismatch"
	case "AccountNotActive":
		return http.StatusUnprocessableEntity, "account-not-active"
	case "InsufficientFunds":
		return http.StatusUnprocessableEntity, "insufficient-funds"
	case "NoRouteToBank":
		return http.StatusUnprocessableEntity, "no-route-to-bank"
	case "RemoteBankError":
		return http.StatusBadGateway, "remote-bank-error"
	case "DuplicateTransaction":
		return http.StatusConflict, "duplicate-transaction"
	case "TransactionNotFound":
		return http.StatusNotFound, "not-found"
	default:
		return http.StatusInternalServerError, "storage-failure"
	}
}
