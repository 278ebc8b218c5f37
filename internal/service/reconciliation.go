package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ayo6706/interbank-transfers/internal/models"
	"github.com/ayo6706/interbank-transfers/internal/observability"
	"go.uber.org/zap"
)

const stalePendingLimit = 500

// ReconciliationService checks ledger invariants that the commit path is
// supposed to guarantee and reports violations. It never mutates the ledger.
type ReconciliationService struct {
	store      QueryStore
	staleAfter time.Duration
	now        func() time.Time
}

// ReconciliationReport lists the findings of one run.
type ReconciliationReport struct {
	NegativeBalances []models.Account
	StalePending     []models.Transaction
}

// Clean reports whether the run found nothing.
func (r ReconciliationReport) Clean() bool {
	return len(r.NegativeBalances) == 0 && len(r.StalePending) == 0
}

// NewReconciliationService creates a reconciliation service. Outbound rows
// still PENDING after staleAfter are reported.
func NewReconciliationService(store QueryStore, staleAfter time.Duration) *ReconciliationService {
	if staleAfter <= 0 {
		staleAfter = 5 * time.Minute
	}
	return &ReconciliationService{store: store, staleAfter: staleAfter, now: time.Now}
}

// Run performs one check and logs the findings.
func (s *ReconciliationService) Run(ctx context.Context) error {
	_, err := s.Check(ctx)
	return err
}

func (s *ReconciliationService) Check(ctx context.Context) (ReconciliationReport, error) {
	queries := s.store.Queries()

	negative, err := queries.ListNegativeBalances(ctx)
	if err != nil {
		return ReconciliationReport{}, fmt.Errorf("list negative balances: %w", err)
	}
	stale, err := queries.ListStalePending(ctx, s.now().Add(-s.staleAfter), stalePendingLimit)
	if err != nil {
		return ReconciliationReport{}, fmt.Errorf("list stale pending: %w", err)
	}

	report := ReconciliationReport{NegativeBalances: negative, StalePending: stale}
	for _, a := range negative {
		observability.IncrementLedgerAnomaly("negative_balance")
		zap.L().Error("CRITICAL: negative account balance",
			zap.String("iban", a.IBAN),
			zap.String("balance", a.Balance.Fixed()),
			zap.String("currency", a.Currency),
		)
	}
	for _, t := range stale {
		observability.IncrementLedgerAnomaly("stale_pending")
		zap.L().Warn("outbound transfer pending past threshold",
			zap.String("transaction_id", t.ID),
			zap.String("destination_bank", t.DestBank),
			zap.Duration("age", s.now().Sub(t.UpdatedAt)),
		)
	}

	if report.Clean() {
		zap.L().Info("ledger reconciled")
	}
	return report, nil
}
