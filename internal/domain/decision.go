package domain

import "time"

type DecisionAction string

const (
	DecisionAccept   DecisionAction = "accept"
	DecisionOverride DecisionAction = "override"
)

func (a DecisionAction) Valid() bool {
	return a == DecisionAccept || a == DecisionOverride
}

// PricingDecision is one append-only audit row recording what a user did with
// the system's recommendation. Corrections are later rows, never updates.
type PricingDecision struct {
	ID          string
	HotelID     string
	UserID      string
	AsOfDate    time.Time
	StayDate    time.Time
	Action      DecisionAction
	SystemPrice float64
	FinalPrice  float64
	Reason      string
	DecidedAt   time.Time
}

// Validate rejects rows that would corrupt the ledger: an override must carry
// a reason and a price that actually differs from the system's.
func (d PricingDecision) Validate() error {
	switch d.Action {
	case DecisionAccept:
		return nil
	case DecisionOverride:
		if d.Reason == "" {
			return ErrOverrideNeedsReason
		}
		if d.FinalPrice == d.SystemPrice {
			return ErrOverrideSamePrice
		}
		return nil
	default:
		return ErrInvalidDecision
	}
}
