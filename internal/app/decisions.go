package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"revpilot/internal/domain"
)

// DecisionService records manager decisions against the audit ledger. A
// decision always binds to an existing recommendation for its snapshot key;
// the system price is read from storage, never trusted from the caller.
type DecisionService struct {
	repo  domain.Repository
	clock domain.Clock
}

func NewDecisionService(repo domain.Repository, clock domain.Clock) *DecisionService {
	return &DecisionService{repo: repo, clock: clock}
}

type DecisionInput struct {
	HotelID    string
	UserID     string
	AsOf       time.Time
	Stay       time.Time
	Action     domain.DecisionAction
	FinalPrice float64
	Reason     string
}

func (s *DecisionService) Record(ctx context.Context, in DecisionInput) (domain.PricingDecision, error) {
	asOf := domain.Midnight(in.AsOf)
	stay := domain.Midnight(in.Stay)

	rec, err := s.repo.GetRecommendation(ctx, in.HotelID, asOf, stay)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.PricingDecision{}, fmt.Errorf("%w: hotel %s as_of %s stay %s",
				domain.ErrNoRecommendation, in.HotelID, domain.FormatDate(asOf), domain.FormatDate(stay))
		}
		return domain.PricingDecision{}, err
	}

	d := domain.PricingDecision{
		ID:          uuid.NewString(),
		HotelID:     in.HotelID,
		UserID:      in.UserID,
		AsOfDate:    asOf,
		StayDate:    stay,
		Action:      in.Action,
		SystemPrice: rec.RecommendedPrice,
		FinalPrice:  in.FinalPrice,
		Reason:      in.Reason,
		DecidedAt:   s.clock.Now().UTC(),
	}
	if d.Action == domain.DecisionAccept {
		d.FinalPrice = rec.RecommendedPrice
	}
	if err := d.Validate(); err != nil {
		return domain.PricingDecision{}, err
	}
	if err := s.repo.AppendDecision(ctx, d); err != nil {
		return domain.PricingDecision{}, err
	}
	log.Info().Str("hotel", d.HotelID).Str("user", d.UserID).
		Str("action", string(d.Action)).Float64("final_price", d.FinalPrice).
		Msg("pricing decision recorded")
	return d, nil
}
