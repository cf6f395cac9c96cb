package domain

import "time"

// ReservationStatus is the normalized state carried on a raw event. Corrections
// never update a row in place; they arrive as new events in a later job.
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationCancelled ReservationStatus = "cancelled"
)

func (s ReservationStatus) Valid() bool {
	switch s {
	case ReservationActive, ReservationCancelled:
		return true
	}
	return false
}

// ReservationEvent is one row of the append-only reservation ledger.
// Unique on (HotelID, ReservationRef, JobID): the same reservation may
// reappear across jobs but never twice within one.
type ReservationEvent struct {
	ID             int64
	HotelID        string
	JobID          string
	ReservationRef string // external reservation identifier
	BookingDate    time.Time
	ArrivalDate    time.Time
	DepartureDate  time.Time
	Rooms          int     // > 0
	Revenue        float64 // >= 0, total for the whole stay
	Status         ReservationStatus
	CancelDate     *time.Time
	LoadedAt       time.Time
}

// KnownAt reports whether the event was on the books at asOf (no lookahead).
func (e ReservationEvent) KnownAt(asOf time.Time) bool {
	return SameOrBefore(e.BookingDate, asOf)
}

// ActiveAt applies point-in-time cancellation visibility: a cancellation only
// suppresses the booking once its cancel date has passed asOf.
func (e ReservationEvent) ActiveAt(asOf time.Time) bool {
	if !e.KnownAt(asOf) {
		return false
	}
	if e.Status == ReservationCancelled && e.CancelDate != nil && SameOrBefore(*e.CancelDate, asOf) {
		return false
	}
	return true
}

func (e ReservationEvent) Nights() int {
	return DaysBetween(e.ArrivalDate, e.DepartureDate)
}

// Occupies reports whether the stay date falls inside [arrival, departure).
func (e ReservationEvent) Occupies(stay time.Time) bool {
	return SameOrBefore(e.ArrivalDate, stay) && Midnight(stay).Before(Midnight(e.DepartureDate))
}
