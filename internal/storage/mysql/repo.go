package mysql

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"revpilot/internal/domain"
)

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

var _ domain.Repository = (*Repo)(nil)

func day(t time.Time) string { return domain.FormatDate(t) }

func valTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return day(*p)
}

// ---------------------------------------------------------------------------
// Hotels & users
// ---------------------------------------------------------------------------

func (r *Repo) UpsertHotel(ctx context.Context, h domain.Hotel) error {
	_, err := r.db.ExecContext(ctx, upsertHotelSQL,
		h.ID, h.Name, h.Timezone, h.Capacity, h.Currency, h.BasePrice)
	return err
}

func (r *Repo) GetHotel(ctx context.Context, id string) (domain.Hotel, error) {
	var h domain.Hotel
	err := r.db.QueryRowContext(ctx, getHotelSQL, id).
		Scan(&h.ID, &h.Name, &h.Timezone, &h.Capacity, &h.Currency, &h.BasePrice)
	if err == sql.ErrNoRows {
		return domain.Hotel{}, domain.ErrNotFound
	}
	return h, err
}

func (r *Repo) ListHotels(ctx context.Context) ([]domain.Hotel, error) {
	rows, err := r.db.QueryContext(ctx, listHotelsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Hotel
	for rows.Next() {
		var h domain.Hotel
		if err := rows.Scan(&h.ID, &h.Name, &h.Timezone, &h.Capacity, &h.Currency, &h.BasePrice); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *Repo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.db.ExecContext(ctx, insertUserSQL, u.ID, u.Email, string(u.Role), u.HotelID)
	return err
}

func (r *Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	var u domain.User
	var role string
	err := r.db.QueryRowContext(ctx, getUserByEmailSQL, email).
		Scan(&u.ID, &u.Email, &role, &u.HotelID)
	if err == sql.ErrNoRows {
		return domain.User{}, domain.ErrNotFound
	}
	u.Role = domain.Role(role)
	return u, err
}

// ---------------------------------------------------------------------------
// Import jobs
// ---------------------------------------------------------------------------

func (r *Repo) CreateJob(ctx context.Context, j domain.ImportJob) error {
	_, err := r.db.ExecContext(ctx, insertJobSQL,
		j.ID, j.HotelID, j.FileName, j.FileHash, string(j.Status),
		j.ErrorSummary, j.CreatedAt, timePtr(j.FinishedAt))
	return err
}

func (r *Repo) UpdateJob(ctx context.Context, j domain.ImportJob) error {
	_, err := r.db.ExecContext(ctx, updateJobSQL,
		string(j.Status), j.ErrorSummary, timePtr(j.FinishedAt), j.ID)
	return err
}

func timePtr(p *time.Time) any {
	if p == nil {
		return nil
	}
	return *p
}

func (r *Repo) GetJob(ctx context.Context, id string) (domain.ImportJob, error) {
	return r.scanJob(r.db.QueryRowContext(ctx, getJobSQL, id))
}

func (r *Repo) FindJobByFingerprint(ctx context.Context, hotelID, fileHash string) (domain.ImportJob, error) {
	return r.scanJob(r.db.QueryRowContext(ctx, findJobByFingerprintSQL, hotelID, fileHash))
}

func (r *Repo) scanJob(row *sql.Row) (domain.ImportJob, error) {
	var j domain.ImportJob
	var status string
	var summary sql.NullString
	var finished sql.NullTime
	err := row.Scan(&j.ID, &j.HotelID, &j.FileName, &j.FileHash, &status,
		&summary, &j.CreatedAt, &finished)
	if err == sql.ErrNoRows {
		return domain.ImportJob{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.ImportJob{}, err
	}
	j.Status = domain.JobStatus(status)
	if summary.Valid {
		j.ErrorSummary = summary.String
	}
	if finished.Valid {
		t := finished.Time
		j.FinishedAt = &t
	}
	return j, nil
}

func (r *Repo) HotelHasProcessingJob(ctx context.Context, hotelID string) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, countProcessingJobsSQL, hotelID).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Repo) ListJobs(ctx context.Context, hotelID string, limit int) ([]domain.ImportJob, error) {
	rows, err := r.db.QueryContext(ctx, listJobsSQL, hotelID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ImportJob
	for rows.Next() {
		var j domain.ImportJob
		var status string
		var summary sql.NullString
		var finished sql.NullTime
		if err := rows.Scan(&j.ID, &j.HotelID, &j.FileName, &j.FileHash, &status,
			&summary, &j.CreatedAt, &finished); err != nil {
			return nil, err
		}
		j.Status = domain.JobStatus(status)
		if summary.Valid {
			j.ErrorSummary = summary.String
		}
		if finished.Valid {
			t := finished.Time
			j.FinishedAt = &t
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Reservation store
// ---------------------------------------------------------------------------

// AppendEvents inserts row by row so one duplicate never aborts the batch;
// INSERT IGNORE turns the unique-key clash into zero affected rows.
func (r *Repo) AppendEvents(ctx context.Context, events []domain.ReservationEvent) (domain.AppendResult, error) {
	var res domain.AppendResult
	for _, e := range events {
		out, err := r.db.ExecContext(ctx, insertEventSQL,
			e.HotelID, e.JobID, e.ReservationRef,
			day(e.BookingDate), day(e.ArrivalDate), day(e.DepartureDate),
			e.Rooms, e.Revenue, string(e.Status), valTime(e.CancelDate), e.LoadedAt)
		if err != nil {
			return res, err
		}
		n, err := out.RowsAffected()
		if err != nil {
			return res, err
		}
		if n == 0 {
			res.Duplicates++
		} else {
			res.Accepted++
		}
	}
	return res, nil
}

func (r *Repo) ListEventsAsOf(ctx context.Context, hotelID string, asOf time.Time) ([]domain.ReservationEvent, error) {
	rows, err := r.db.QueryContext(ctx, listEventsAsOfSQL, hotelID, day(asOf))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ReservationEvent
	for rows.Next() {
		var e domain.ReservationEvent
		var status string
		var cancel sql.NullTime
		if err := rows.Scan(&e.ID, &e.HotelID, &e.JobID, &e.ReservationRef,
			&e.BookingDate, &e.ArrivalDate, &e.DepartureDate,
			&e.Rooms, &e.Revenue, &status, &cancel, &e.LoadedAt); err != nil {
			return nil, err
		}
		e.Status = domain.ReservationStatus(status)
		e.BookingDate = domain.Midnight(e.BookingDate)
		e.ArrivalDate = domain.Midnight(e.ArrivalDate)
		e.DepartureDate = domain.Midnight(e.DepartureDate)
		if cancel.Valid {
			t := domain.Midnight(cancel.Time)
			e.CancelDate = &t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Snapshots
// ---------------------------------------------------------------------------

// ReplaceDailyOTB swaps the whole (hotel, as_of) slice inside one transaction
// so a reader never observes a partially recomputed snapshot.
func (r *Repo) ReplaceDailyOTB(ctx context.Context, hotelID string, asOf time.Time, otb []domain.DailyOTB) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, deleteOTBSliceSQL, hotelID, day(asOf)); err != nil {
		return err
	}
	if len(otb) > 0 {
		values := make([]string, 0, len(otb))
		args := make([]any, 0, len(otb)*5)
		for _, row := range otb {
			values = append(values, "(?,?,?,?,?)")
			args = append(args, row.HotelID, day(row.AsOfDate), day(row.StayDate), row.RoomsOTB, row.RevenueOTB)
		}
		if _, err := tx.ExecContext(ctx, insertOTBPrefix+strings.Join(values, ","), args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Repo) GetDailyOTB(ctx context.Context, hotelID string, asOf, stay time.Time) (domain.DailyOTB, error) {
	var o domain.DailyOTB
	err := r.db.QueryRowContext(ctx, getOTBSQL, hotelID, day(asOf), day(stay)).
		Scan(&o.HotelID, &o.AsOfDate, &o.StayDate, &o.RoomsOTB, &o.RevenueOTB)
	if err == sql.ErrNoRows {
		return domain.DailyOTB{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.DailyOTB{}, err
	}
	o.AsOfDate = domain.Midnight(o.AsOfDate)
	o.StayDate = domain.Midnight(o.StayDate)
	return o, nil
}

func (r *Repo) ListOTBByAsOf(ctx context.Context, hotelID string, asOf time.Time) ([]domain.DailyOTB, error) {
	return r.listOTB(ctx, listOTBByAsOfSQL, hotelID, day(asOf))
}

func (r *Repo) ListOTBByStay(ctx context.Context, hotelID string, stay time.Time) ([]domain.DailyOTB, error) {
	return r.listOTB(ctx, listOTBByStaySQL, hotelID, day(stay))
}

func (r *Repo) listOTB(ctx context.Context, q string, args ...any) ([]domain.DailyOTB, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DailyOTB
	for rows.Next() {
		var o domain.DailyOTB
		if err := rows.Scan(&o.HotelID, &o.AsOfDate, &o.StayDate, &o.RoomsOTB, &o.RevenueOTB); err != nil {
			return nil, err
		}
		o.AsOfDate = domain.Midnight(o.AsOfDate)
		o.StayDate = domain.Midnight(o.StayDate)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *Repo) ReplaceFeatures(ctx context.Context, hotelID string, asOf time.Time, feats []domain.FeaturesDaily) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, deleteFeaturesSliceSQL, hotelID, day(asOf)); err != nil {
		return err
	}
	if len(feats) > 0 {
		values := make([]string, 0, len(feats))
		args := make([]any, 0, len(feats)*13)
		for _, f := range feats {
			values = append(values, "(?,?,?,?,?,?,?,?,?,?,?,?,?)")
			var pace any
			if f.PaceVsLY != nil {
				pace = *f.PaceVsLY
			}
			args = append(args,
				f.HotelID, day(f.AsOfDate), day(f.StayDate),
				f.DOW, f.IsWeekend, f.Month,
				f.RoomsOTB, f.RevenueOTB,
				f.PickupT30, f.PickupT7, f.PickupT3,
				pace, f.RemainingSupply)
		}
		if _, err := tx.ExecContext(ctx, insertFeaturesPrefix+strings.Join(values, ","), args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Repo) ListFeatures(ctx context.Context, hotelID string, asOf time.Time) ([]domain.FeaturesDaily, error) {
	rows, err := r.db.QueryContext(ctx, listFeaturesSQL, hotelID, day(asOf))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.FeaturesDaily
	for rows.Next() {
		var f domain.FeaturesDaily
		var pace sql.NullFloat64
		if err := rows.Scan(&f.HotelID, &f.AsOfDate, &f.StayDate,
			&f.DOW, &f.IsWeekend, &f.Month,
			&f.RoomsOTB, &f.RevenueOTB,
			&f.PickupT30, &f.PickupT7, &f.PickupT3,
			&pace, &f.RemainingSupply); err != nil {
			return nil, err
		}
		f.AsOfDate = domain.Midnight(f.AsOfDate)
		f.StayDate = domain.Midnight(f.StayDate)
		if pace.Valid {
			v := pace.Float64
			f.PaceVsLY = &v
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *Repo) UpsertForecast(ctx context.Context, f domain.DemandForecast) error {
	_, err := r.db.ExecContext(ctx, upsertForecastSQL,
		f.HotelID, day(f.AsOfDate), day(f.StayDate), f.RemainingDemand, f.ModelVersion)
	return err
}

func (r *Repo) ListForecasts(ctx context.Context, hotelID string, asOf time.Time) ([]domain.DemandForecast, error) {
	rows, err := r.db.QueryContext(ctx, listForecastsSQL, hotelID, day(asOf))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DemandForecast
	for rows.Next() {
		var f domain.DemandForecast
		if err := rows.Scan(&f.HotelID, &f.AsOfDate, &f.StayDate, &f.RemainingDemand, &f.ModelVersion); err != nil {
			return nil, err
		}
		f.AsOfDate = domain.Midnight(f.AsOfDate)
		f.StayDate = domain.Midnight(f.StayDate)
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *Repo) UpsertRecommendation(ctx context.Context, rec domain.PriceRecommendation) error {
	_, err := r.db.ExecContext(ctx, upsertRecommendationSQL,
		rec.HotelID, day(rec.AsOfDate), day(rec.StayDate),
		rec.CurrentPrice, rec.RecommendedPrice, rec.ExpectedRevenue,
		rec.UpliftPct, rec.Explanation)
	return err
}

func (r *Repo) GetRecommendation(ctx context.Context, hotelID string, asOf, stay time.Time) (domain.PriceRecommendation, error) {
	var rec domain.PriceRecommendation
	err := r.db.QueryRowContext(ctx, getRecommendationSQL, hotelID, day(asOf), day(stay)).
		Scan(&rec.HotelID, &rec.AsOfDate, &rec.StayDate,
			&rec.CurrentPrice, &rec.RecommendedPrice, &rec.ExpectedRevenue,
			&rec.UpliftPct, &rec.Explanation)
	if err == sql.ErrNoRows {
		return domain.PriceRecommendation{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PriceRecommendation{}, err
	}
	rec.AsOfDate = domain.Midnight(rec.AsOfDate)
	rec.StayDate = domain.Midnight(rec.StayDate)
	return rec, nil
}

func (r *Repo) ListRecommendations(ctx context.Context, hotelID string, asOf time.Time) ([]domain.PriceRecommendation, error) {
	rows, err := r.db.QueryContext(ctx, listRecommendationsSQL, hotelID, day(asOf))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PriceRecommendation
	for rows.Next() {
		var rec domain.PriceRecommendation
		if err := rows.Scan(&rec.HotelID, &rec.AsOfDate, &rec.StayDate,
			&rec.CurrentPrice, &rec.RecommendedPrice, &rec.ExpectedRevenue,
			&rec.UpliftPct, &rec.Explanation); err != nil {
			return nil, err
		}
		rec.AsOfDate = domain.Midnight(rec.AsOfDate)
		rec.StayDate = domain.Midnight(rec.StayDate)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Decision ledger
// ---------------------------------------------------------------------------

func (r *Repo) AppendDecision(ctx context.Context, d domain.PricingDecision) error {
	_, err := r.db.ExecContext(ctx, insertDecisionSQL,
		d.ID, d.HotelID, d.UserID, day(d.AsOfDate), day(d.StayDate),
		string(d.Action), d.SystemPrice, d.FinalPrice, nullStr(d.Reason), d.DecidedAt)
	return err
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (r *Repo) ListDecisions(ctx context.Context, hotelID string, limit int) ([]domain.PricingDecision, error) {
	rows, err := r.db.QueryContext(ctx, listDecisionsSQL, hotelID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PricingDecision
	for rows.Next() {
		var d domain.PricingDecision
		var action string
		var reason sql.NullString
		if err := rows.Scan(&d.ID, &d.HotelID, &d.UserID, &d.AsOfDate, &d.StayDate,
			&action, &d.SystemPrice, &d.FinalPrice, &reason, &d.DecidedAt); err != nil {
			return nil, err
		}
		d.Action = domain.DecisionAction(action)
		d.AsOfDate = domain.Midnight(d.AsOfDate)
		d.StayDate = domain.Midnight(d.StayDate)
		if reason.Valid {
			d.Reason = reason.String
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
