package app

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"revpilot/internal/adapters/observability"
	"revpilot/internal/domain"
)

// ImportService is the import coordinator: one job per source file, file-level
// idempotency by content fingerprint, per-hotel serialization, per-row
// validation with a configurable failure threshold.
type ImportService struct {
	repo      domain.Repository
	clock     domain.Clock
	threshold float64 // rejected/total above this fails the whole job

	mu    sync.Mutex
	locks map[string]*sync.Mutex // one mutex per hotel
}

func NewImportService(repo domain.Repository, clock domain.Clock, threshold float64) *ImportService {
	return &ImportService{
		repo:      repo,
		clock:     clock,
		threshold: threshold,
		locks:     map[string]*sync.Mutex{},
	}
}

func (s *ImportService) hotelLock(hotelID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[hotelID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[hotelID] = l
	}
	return l
}

// Import ingests one tabular source file for a hotel and returns the job that
// tracks it. Re-importing a file with an identical fingerprint returns the
// already-completed job without touching the ledger; the boolean reports
// that reuse.
func (s *ImportService) Import(ctx context.Context, hotelID, fileName string, src io.Reader) (domain.ImportJob, bool, error) {
	if _, err := s.repo.GetHotel(ctx, hotelID); err != nil {
		return domain.ImportJob{}, false, err
	}

	raw, err := io.ReadAll(src)
	if err != nil {
		return domain.ImportJob{}, false, fmt.Errorf("read source: %w", err)
	}
	sum := sha256.Sum256(raw)
	hash := hex.EncodeToString(sum[:])

	lock := s.hotelLock(hotelID)
	lock.Lock()
	defer lock.Unlock()

	// File-level idempotency: an identical completed import short-circuits.
	if prev, err := s.repo.FindJobByFingerprint(ctx, hotelID, hash); err == nil {
		if prev.Status == domain.JobCompleted {
			log.Info().Str("job", prev.ID).Str("hotel", hotelID).Msg("identical file already imported")
			return prev, true, nil
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.ImportJob{}, false, err
	}

	// Per-hotel serialization also holds across processes via the jobs table.
	busy, err := s.repo.HotelHasProcessingJob(ctx, hotelID)
	if err != nil {
		return domain.ImportJob{}, false, err
	}
	if busy {
		return domain.ImportJob{}, false, domain.ErrImportInProgress
	}

	job := domain.ImportJob{
		ID:        uuid.NewString(),
		HotelID:   hotelID,
		FileName:  fileName,
		FileHash:  hash,
		Status:    domain.JobPending,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return domain.ImportJob{}, false, err
	}
	if err := job.Transition(domain.JobProcessing); err != nil {
		return domain.ImportJob{}, false, err
	}
	if err := s.repo.UpdateJob(ctx, job); err != nil {
		return domain.ImportJob{}, false, err
	}

	events, rowErrs, perr := parseSource(raw, hotelID, job.ID, s.clock.Now())
	if perr != nil {
		// Structural failure: no usable header/shape, the whole job fails.
		if ferr := job.Fail("parse: "+perr.Error(), s.clock.Now()); ferr != nil {
			return job, false, ferr
		}
		if err := s.repo.UpdateJob(ctx, job); err != nil {
			return job, false, err
		}
		return job, false, nil
	}

	res, err := s.repo.AppendEvents(ctx, events)
	if err != nil {
		if ferr := job.Fail("append events: "+err.Error(), s.clock.Now()); ferr != nil {
			return job, false, ferr
		}
		if uerr := s.repo.UpdateJob(ctx, job); uerr != nil {
			return job, false, uerr
		}
		return job, false, nil
	}

	for i := 0; i < res.Accepted; i++ {
		observability.ObserveImportRow("accepted")
	}
	for i := 0; i < res.Duplicates; i++ {
		observability.ObserveImportRow("duplicate")
	}
	for i := 0; i < len(rowErrs); i++ {
		observability.ObserveImportRow("rejected")
	}

	total := len(events) + len(rowErrs)
	if total > 0 && float64(len(rowErrs))/float64(total) > s.threshold {
		summary := fmt.Sprintf("%d/%d rows rejected: %s", len(rowErrs), total, summarize(rowErrs))
		if ferr := job.Fail(summary, s.clock.Now()); ferr != nil {
			return job, false, ferr
		}
		if err := s.repo.UpdateJob(ctx, job); err != nil {
			return job, false, err
		}
		log.Warn().Str("job", job.ID).Str("hotel", hotelID).
			Int("rejected", len(rowErrs)).Int("total", total).Msg("import failed: error rate over threshold")
		return job, false, nil
	}

	if len(rowErrs) > 0 {
		// Below threshold: job completes but the rejects stay visible.
		job.ErrorSummary = fmt.Sprintf("%d/%d rows rejected: %s", len(rowErrs), total, summarize(rowErrs))
	}
	if err := job.Complete(s.clock.Now()); err != nil {
		return job, false, err
	}
	if err := s.repo.UpdateJob(ctx, job); err != nil {
		return job, false, err
	}
	log.Info().Str("job", job.ID).Str("hotel", hotelID).
		Int("accepted", res.Accepted).Int("duplicates", res.Duplicates).Int("rejected", len(rowErrs)).
		Msg("import completed")
	return job, false, nil
}

func summarize(errs []string) string {
	const max = 3
	if len(errs) <= max {
		return strings.Join(errs, "; ")
	}
	return strings.Join(errs[:max], "; ") + "; ..."
}

// parseSource parses the tabular import contract. A missing or malformed
// header is a structural error; bad rows are collected per line.
func parseSource(raw []byte, hotelID, jobID string, loadedAt time.Time) ([]domain.ReservationEvent, []string, error) {
	rd := csv.NewReader(strings.NewReader(string(raw)))
	rd.TrimLeadingSpace = true

	header, err := rd.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("missing header: %w", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{
		"reservation_id", "booking_date", "arrival_date", "departure_date",
		"rooms", "revenue", "status",
	} {
		if _, ok := col[required]; !ok {
			return nil, nil, fmt.Errorf("header missing column %q", required)
		}
	}

	var (
		events  []domain.ReservationEvent
		rowErrs []string
	)
	line := 1 // header is line 1
	for {
		rec, err := rd.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			rowErrs = append(rowErrs, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		ev, err := parseRow(rec, col, hotelID, jobID, loadedAt)
		if err != nil {
			rowErrs = append(rowErrs, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		events = append(events, ev)
	}
	return events, rowErrs, nil
}

func parseRow(rec []string, col map[string]int, hotelID, jobID string, loadedAt time.Time) (domain.ReservationEvent, error) {
	field := func(name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	ref := field("reservation_id")
	if ref == "" {
		return domain.ReservationEvent{}, fmt.Errorf("empty reservation_id")
	}

	status, err := normalizeStatus(field("status"))
	if err != nil {
		return domain.ReservationEvent{}, err
	}

	booking, err := domain.ParseDate(field("booking_date"))
	if err != nil {
		return domain.ReservationEvent{}, fmt.Errorf("bad booking_date %q", field("booking_date"))
	}
	arrival, err := domain.ParseDate(field("arrival_date"))
	if err != nil {
		return domain.ReservationEvent{}, fmt.Errorf("bad arrival_date %q", field("arrival_date"))
	}
	departure, err := domain.ParseDate(field("departure_date"))
	if err != nil {
		return domain.ReservationEvent{}, fmt.Errorf("bad departure_date %q", field("departure_date"))
	}
	if !arrival.Before(departure) {
		return domain.ReservationEvent{}, fmt.Errorf("arrival must be before departure")
	}

	rooms, err := strconv.Atoi(field("rooms"))
	if err != nil || rooms <= 0 {
		return domain.ReservationEvent{}, fmt.Errorf("rooms must be > 0, got %q", field("rooms"))
	}
	revenue, err := strconv.ParseFloat(field("revenue"), 64)
	if err != nil || revenue < 0 {
		return domain.ReservationEvent{}, fmt.Errorf("revenue must be >= 0, got %q", field("revenue"))
	}

	var cancel *time.Time
	if v := field("cancel_date"); v != "" {
		d, err := domain.ParseDate(v)
		if err != nil {
			return domain.ReservationEvent{}, fmt.Errorf("bad cancel_date %q", v)
		}
		cancel = &d
	}
	if status == domain.ReservationCancelled && cancel == nil {
		log.Warn().Str("reservation", ref).Msg("cancelled row without cancel_date")
	}

	return domain.ReservationEvent{
		HotelID:        hotelID,
		JobID:          jobID,
		ReservationRef: ref,
		BookingDate:    booking,
		ArrivalDate:    arrival,
		DepartureDate:  departure,
		Rooms:          rooms,
		Revenue:        revenue,
		Status:         status,
		CancelDate:     cancel,
		LoadedAt:       loadedAt,
	}, nil
}

func normalizeStatus(raw string) (domain.ReservationStatus, error) {
	switch strings.ToLower(raw) {
	case "booked", "confirmed", "active":
		return domain.ReservationActive, nil
	case "cancelled", "canceled":
		return domain.ReservationCancelled, nil
	default:
		return "", fmt.Errorf("unknown status %q", raw)
	}
}
