package main

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LedgerClient is the read-only boundary to the public ledger. Responses are
// untrusted: transfers may repeat across polls and arrive in any order.
type LedgerClient interface {
	TransfersTo(ctx context.Context, address string) ([]Transfer, error)
}

// Reconciler periodically polls the ledger for inbound transfers and settles
// qualifying payments against pending registrations. It owns its lifecycle:
// Run blocks until the context is cancelled, and ticks execute inline on the
// loop goroutine so runs never overlap.
type Reconciler struct {
	ledger   LedgerClient
	store    *SQLiteStore
	notifier Notifier
	cfg      *Config
	metrics  *Metrics
	log      *slog.Logger
	nowFn    func() time.Time

	fetchTimeout  time.Duration
	notifyTimeout time.Duration
}

func NewReconciler(ledger LedgerClient, store *SQLiteStore, notifier Notifier, cfg *Config, log *slog.Logger) *Reconciler {
	return &Reconciler{
		ledger:        ledger,
		store:         store,
		notifier:      notifier,
		cfg:           cfg,
		metrics:       NewMetrics(),
		log:           log,
		nowFn:         time.Now,
		fetchTimeout:  15 * time.Second,
		notifyTimeout: 10 * time.Second,
	}
}

// Run drives the reconciliation loop until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	interval := r.cfg.PollInterval.Duration
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick performs one reconciliation pass. Any fetch or parse failure aborts
// the pass with state unchanged; the next interval retries.
func (r *Reconciler) tick(ctx context.Context) {
	r.metrics.RecordTick()
	log := r.log.With("tick_id", uuid.NewString())

	if ttl := r.cfg.PendingTTL.Duration; ttl > 0 {
		cutoff := r.nowFn().UTC().Add(-ttl)
		pruned, err := r.store.PrunePending(ctx, cutoff)
		if err != nil {
			log.Error("prune pending registrations", "error", err)
		} else if pruned > 0 {
			log.Info("pruned stale pending registrations", "count", pruned)
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	transfers, err := r.ledger.TransfersTo(fetchCtx, r.cfg.ReceiveAddress)
	cancel()
	if err != nil {
		r.metrics.RecordFetchFailure()
		log.Warn("ledger fetch failed, will retry next tick", "error", err)
		return
	}

	for _, transfer := range transfers {
		outcome := r.process(ctx, log, transfer)
		r.metrics.RecordTransfer(outcome)
	}
}

func (r *Reconciler) process(ctx context.Context, log *slog.Logger, transfer Transfer) string {
	if !r.qualifies(transfer) {
		return TransferFiltered
	}

	// Cheap pre-check before opening a write transaction: in steady state
	// most transfers in the window have already settled.
	settled, err := r.store.HasSettled(ctx, transfer.TxID)
	if err != nil {
		log.Error("settlement dedup lookup", "tx", transfer.TxID, "error", err)
		return TransferError
	}
	if settled {
		return TransferDuplicate
	}

	var minCreatedAt time.Time
	if ttl := r.cfg.PendingTTL.Duration; ttl > 0 {
		minCreatedAt = r.nowFn().UTC().Add(-ttl)
	}
	issued, err := r.store.SettlePayment(ctx, transfer.TxID, r.cfg.LicenseLifetime.Duration, minCreatedAt)
	switch {
	case errors.Is(err, ErrAlreadySettled):
		return TransferDuplicate
	case errors.Is(err, ErrNoPending):
		log.Warn("qualifying payment with no pending registration",
			"tx", transfer.TxID, "from", transfer.From,
			"amount", formatBaseUnits(transfer.RawAmount, r.cfg.TokenDecimals))
		return TransferUnmatched
	case err != nil:
		log.Error("settle payment", "tx", transfer.TxID, "error", err)
		return TransferError
	}

	r.metrics.RecordIssued()
	log.Info("license issued",
		"user", issued.UserID, "login", issued.Login,
		"tx", transfer.TxID, "expiry", issued.Expiry.Format(time.RFC3339))

	notifyCtx, cancel := context.WithTimeout(ctx, r.notifyTimeout)
	err = r.notifier.Deliver(notifyCtx, issued.UserID, issued.Key, issued.Expiry)
	cancel()
	if err != nil {
		// Non-fatal: the key stands and remains retrievable via /start.
		r.metrics.RecordNotifyFailure()
		log.Error("deliver license key", "user", issued.UserID, "error", err)
	}
	return TransferCredited
}

func (r *Reconciler) qualifies(transfer Transfer) bool {
	if !strings.EqualFold(transfer.TokenSymbol, r.cfg.TokenSymbol) {
		return false
	}
	if transfer.TokenContract != r.cfg.TokenContract {
		return false
	}
	if transfer.To != "" && transfer.To != r.cfg.ReceiveAddress {
		return false
	}
	return transfer.RawAmount >= r.cfg.RequiredBaseUnits
}
