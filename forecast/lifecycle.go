package forecast

import (
	"time"

	"github.com/warp/condo-engine/generic"
)

// =============================================================================
// PERIOD LIFECYCLE - draft -> closed, one way
// =============================================================================
//
//	draft   line items replaceable, area/surcharge editable, rate recomputable
//	closed  read-only; reconciliation and alerting still run on it
//
// There is no closed -> draft transition.

// IsClosed reports whether the period is locked.
func (p Period) IsClosed() bool { return p.Status == StatusClosed }

// EnsureMutable returns a PeriodClosedError for closed periods.
func (p Period) EnsureMutable() error {
	if p.IsClosed() {
		return &generic.PeriodClosedError{PeriodID: p.ID}
	}
	return nil
}

// Close moves a draft period to closed.
func (p *Period) Close(now time.Time) error {
	if err := p.EnsureMutable(); err != nil {
		return err
	}
	p.Status = StatusClosed
	p.UpdatedAt = now
	return nil
}

// ClosePeriod returns a closed copy of period stamped with now, or
// PeriodClosedError if it already was.
func ClosePeriod(period Period, now time.Time) (Period, error) {
	closed := period
	if err := closed.Close(now); err != nil {
		return Period{}, err
	}
	return closed, nil
}
