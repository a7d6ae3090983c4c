package services

import (
	"context"
	"fmt"
	"time"

	"github.com/collateral-pay/backend/internal/events"
	"github.com/collateral-pay/backend/internal/models"
	"github.com/collateral-pay/backend/internal/repositories"
	"go.uber.org/zap"
)

// Violation kinds
const (
	ViolationOverpaid           = "amount_paid_exceeds_owed"
	ViolationVaultShortfall     = "vault_shortfall"
	ViolationVaultSurplus       = "vault_surplus"
	ViolationWithdrawnNotLocked = "withdrawn_without_lock"
)

const reconcilePageSize = 100

type Violation struct {
	ChannelID string `json:"channel_id"`
	Kind      string `json:"kind"`
	Expected  uint64 `json:"expected"`
	Actual    uint64 `json:"actual"`
}

type ReconcileReport struct {
	Checked    int           `json:"checked"`
	Violations []Violation   `json:"violations"`
	Duration   time.Duration `json:"duration"`
}

// Reconciler сверяет записи каналов с балансами леджера.
type Reconciler struct {
	store     repositories.Store
	publisher events.Publisher
	log       *zap.Logger
	pageSize  int
}

func NewReconciler(store repositories.Store, publisher events.Publisher, log *zap.Logger) *Reconciler {
	return &Reconciler{store: store, publisher: publisher, log: log, pageSize: reconcilePageSize}
}

// Run checks every channel once. Each violation is logged and published as an
// invariant_violation event; the run itself only fails on storage errors.
func (r *Reconciler) Run(ctx context.Context) (*ReconcileReport, error) {
	start := time.Now()
	report := &ReconcileReport{Violations: []Violation{}}

	cursor := &models.ChannelCursor{}
	for {
		page, err := r.store.ListChannels(ctx, models.ChannelFilter{After: cursor, Limit: r.pageSize})
		if err != nil {
			return nil, fmt.Errorf("list channels after %s: %w", cursor.ID, err)
		}
		for i := range page {
			found, err := r.check(ctx, &page[i])
			if err != nil {
				return nil, err
			}
			report.Checked++
			report.Violations = append(report.Violations, found...)
		}
		if len(page) < r.pageSize {
			break
		}
		cursor = models.CursorOf(&page[len(page)-1])
	}

	for _, v := range report.Violations {
		r.log.Error("channel invariant violated",
			zap.String("channel_id", v.ChannelID),
			zap.String("kind", v.Kind),
			zap.Uint64("expected", v.Expected),
			zap.Uint64("actual", v.Actual),
		)
		err := r.publisher.Publish(ctx, events.StreamChannel, events.New(events.EventInvariantViolation, map[string]any{
			"channel_id": v.ChannelID,
			"kind":       v.Kind,
			"expected":   v.Expected,
			"actual":     v.Actual,
		}))
		if err != nil {
			r.log.Warn("failed to publish violation", zap.Error(err))
		}
	}

	report.Duration = time.Since(start)
	r.log.Info("reconcile finished",
		zap.Int("checked", report.Checked),
		zap.Int("violations", len(report.Violations)),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

func (r *Reconciler) check(ctx context.Context, ch *models.PaymentChannel) ([]Violation, error) {
	var out []Violation
	id := ch.ID.String()

	if ch.AmountPaid > ch.AmountOwed {
		out = append(out, Violation{ChannelID: id, Kind: ViolationOverpaid, Expected: ch.AmountOwed, Actual: ch.AmountPaid})
	}
	if ch.CollateralWithdrawn && !ch.CollateralLocked {
		out = append(out, Violation{ChannelID: id, Kind: ViolationWithdrawnNotLocked})
	}

	balance, err := r.store.NativeBalance(ctx, ch.VaultAddress)
	if err != nil {
		return nil, fmt.Errorf("vault balance of channel %s: %w", id, err)
	}
	expected := ch.ExpectedVaultBalance()
	switch {
	case balance < expected:
		out = append(out, Violation{ChannelID: id, Kind: ViolationVaultShortfall, Expected: expected, Actual: balance})
	case balance > expected:
		out = append(out, Violation{ChannelID: id, Kind: ViolationVaultSurplus, Expected: expected, Actual: balance})
	}
	return out, nil
}
