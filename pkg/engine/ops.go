package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/proptrust/engine/pkg/contracts"
	"github.com/proptrust/engine/pkg/crossdoc"
	"github.com/proptrust/engine/pkg/ledger"
	"github.com/proptrust/engine/pkg/store"
)

// Latest returns the newest verification record and detail for a property.
func (e *Engine) Latest(ctx context.Context, propertyID string) (contracts.VerificationRecord, contracts.VerificationDetail, error) {
	r, d, err := e.store.LatestVerification(ctx, propertyID)
	if errors.Is(err, store.ErrNotFound) {
		return r, d, contracts.NewError(contracts.KindBadInput, store.Stage, "unknown property", err)
	}
	if err != nil {
		return r, d, contracts.NewError(contracts.KindPersistenceFailed, store.Stage, "load verification", err)
	}
	return r, d, nil
}

// CrossCheck compares the latest verified entities of an RTC property
// against those of its Mutation Register property and scores their
// consistency. Both properties must have at least one verification.
func (e *Engine) CrossCheck(ctx context.Context, rtcPropertyID, mrPropertyID string) (crossdoc.Report, error) {
	if rtcPropertyID == "" || mrPropertyID == "" {
		return crossdoc.Report{}, contracts.NewError(contracts.KindBadInput, "cross_check", "both property ids are required", nil)
	}

	_, rtcDetail, err := e.Latest(ctx, rtcPropertyID)
	if err != nil {
		return crossdoc.Report{}, err
	}
	_, mrDetail, err := e.Latest(ctx, mrPropertyID)
	if err != nil {
		return crossdoc.Report{}, err
	}

	rep := crossdoc.Compare(rtcDetail, mrDetail)
	e.recordAudit(ctx, contracts.OpCrossCheck, rtcPropertyID, contracts.AuditSuccess,
		fmt.Sprintf("mr=%s status=%s score=%d", mrPropertyID, rep.Status, rep.MatchScore))
	return rep, nil
}

// Delete removes a property and all dependent rows. The ledger is never
// touched; its history is the point of the system.
func (e *Engine) Delete(ctx context.Context, propertyID string) error {
	err := e.store.DeleteProperty(ctx, propertyID)
	if errors.Is(err, store.ErrNotFound) {
		return contracts.NewError(contracts.KindBadInput, store.Stage, "unknown property", err)
	}
	if err != nil {
		wrapped := contracts.NewError(contracts.KindPersistenceFailed, store.Stage, "delete property", err)
		e.recordAudit(ctx, contracts.OpDelete, propertyID, contracts.AuditFailure, wrapped.Error())
		return wrapped
	}
	e.recordAudit(ctx, contracts.OpDelete, propertyID, contracts.AuditSuccess, "cascade delete")
	return nil
}

// LedgerStatus reports backend connectivity.
func (e *Engine) LedgerStatus(ctx context.Context) (ledger.Status, error) {
	ledgerCtx, cancel := context.WithTimeout(ctx, e.timeouts.Ledger)
	defer cancel()
	s, err := e.ledger.Status(ledgerCtx)
	if err != nil {
		return s, contracts.NewError(contracts.KindExternalUnavailable, ledger.Stage, "ledger unavailable", err)
	}
	return s, nil
}

// Statistics aggregates engine-wide counts.
func (e *Engine) Statistics(ctx context.Context) (store.Statistics, error) {
	stats, err := e.store.Statistics(ctx)
	if err != nil {
		return stats, contracts.NewError(contracts.KindPersistenceFailed, store.Stage, "aggregate statistics", err)
	}
	return stats, nil
}
