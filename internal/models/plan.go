package models

import "time"

// BillingInterval is the recurring charge cadence of a plan.
type BillingInterval string

const (
	IntervalMonth BillingInterval = "month"
	IntervalYear  BillingInterval = "year"
	// IntervalLifetime is a one-off purchase; no recurring charge is
	// ever scheduled for it.
	IntervalLifetime BillingInterval = "lifetime"
)

// Plan describes one subscription tier. Price is in minor currency units.
// A plan with a seat cap is a limited-run offer: SeatsTaken is incremented
// only on a successful lifetime purchase and the plan deactivates once the
// cap is reached.
type Plan struct {
	ID         string
	Name       string
	Price      int64
	Currency   string
	Interval   BillingInterval
	TrialDays  int
	MaxSeats   *int64
	SeatsTaken int64
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Available reports whether the plan can still be purchased. A seat-capped
// plan with no seats left counts as inactive even if the flag lags behind.
func (p *Plan) Available() bool {
	if !p.Active {
		return false
	}
	if p.MaxSeats != nil && p.SeatsTaken >= *p.MaxSeats {
		return false
	}
	return true
}
