package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/ayo6706/interbank-transfers/internal/domain"
	"github.com/ayo6706/interbank-transfers/internal/repository"
)

var transactionTransitions = map[string]map[string]struct{}{
	domain.TxStatusPending: {
		domain.TxStatusCompleted: {},
		domain.TxStatusRejected:  {},
	},
	domain.TxStatusCompleted: {},
	domain.TxStatusRejected:  {},
}

func normalizeState(state string) string {
	return strings.ToUpper(strings.TrimSpace(state))
}

func canTransition(current, next string) bool {
	current = normalizeState(current)
	next = normalizeState(next)
	nextStates, ok := transactionTransitions[current]
	if !ok {
		return false
	}
	_, ok = nextStates[next]
	return ok
}

// transitionTransactionState moves a ledger row to nextState under a row lock
// and records the change in the audit log. Moving to the current state is a
// no-op.
func transitionTransactionState(ctx context.Context, q repository.Querier, audit *AuditService, transactionID, nextState, actor, action string, reason *string, metadata []byte) error {
	currentState, err := q.GetTransactionStatusForUpdate(ctx, transactionID)
	if err != nil {
		return fmt.Errorf("get current transaction state: %w", err)
	}

	if normalizeState(currentState) == normalizeState(nextState) {
		return nil
	}
	if !canTransition(currentState, nextState) {
		return fmt.Errorf("invalid transaction state transition: %s -> %s", currentState, nextState)
	}

	rows, err := q.UpdateTransactionStatus(ctx, repository.UpdateTransactionStatusParams{
		ID:     transactionID,
		Status: nextState,
		Reason: reason,
	})
	if err != nil {
		return fmt.Errorf("update transaction state: %w", err)
	}
	if err := requireExactlyOne(rows, "update transaction state"); err != nil {
		return err
	}

	return audit.Write(ctx, q, "transaction", transactionID, actor, action, currentState, nextState, metadata)
}
