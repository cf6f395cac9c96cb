package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"revpilot/internal/app"
	"revpilot/internal/domain"
)

// Version is stamped via -ldflags at build time.
var Version = "dev"

type Handlers struct {
	Q         *app.QueryService
	Imports   *app.ImportService
	Decisions *app.DecisionService
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"service": "revpilot", "version": Version})
	})
	s.mux.Post("/v1/hotels/{id}/imports", h.startImport)
	s.mux.Get("/v1/hotels/{id}/imports", h.listImports)
	s.mux.Get("/v1/imports/{jobID}", h.getImport)
	s.mux.Get("/v1/hotels/{id}/recommendations", h.listRecommendations)
	s.mux.Get("/v1/hotels/{id}/otb", h.otbHistory)
	s.mux.Post("/v1/hotels/{id}/decisions", h.recordDecision)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

func dateParam(r *http.Request, name string, def time.Time) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return domain.ParseDate(v)
}

type jobResponse struct {
	JobID        string     `json:"job_id"`
	HotelID      string     `json:"hotel_id"`
	FileName     string     `json:"file_name"`
	Status       string     `json:"status"`
	ErrorSummary string     `json:"error_summary,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

func toJobResponse(j domain.ImportJob) jobResponse {
	return jobResponse{
		JobID:        j.ID,
		HotelID:      j.HotelID,
		FileName:     j.FileName,
		Status:       string(j.Status),
		ErrorSummary: j.ErrorSummary,
		CreatedAt:    j.CreatedAt,
		FinishedAt:   j.FinishedAt,
	}
}

// startImport accepts the source file either as a multipart "file" field or as
// the raw request body, and returns the job tracking it.
func (h *Handlers) startImport(w http.ResponseWriter, r *http.Request) {
	hotelID := chi.URLParam(r, "id")

	var (
		src      io.Reader = r.Body
		fileName           = r.URL.Query().Get("file_name")
	)
	if ct := r.Header.Get("Content-Type"); strings.HasPrefix(ct, "multipart/form-data") {
		f, hdr, err := r.FormFile("file")
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid Upload", "multipart request needs a \"file\" field")
			return
		}
		defer f.Close()
		src = f
		if fileName == "" {
			fileName = hdr.Filename
		}
	}
	if fileName == "" {
		fileName = "upload.csv"
	}

	job, reused, err := h.Imports.Import(r.Context(), hotelID, fileName, src)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", "hotel not found")
		return
	case errors.Is(err, domain.ErrImportInProgress):
		writeProblem(w, http.StatusConflict, "Import In Progress", "another import is processing for this hotel")
		return
	default:
		log.Error().Err(err).Str("hotel", hotelID).Msg("import failed")
		writeProblem(w, http.StatusInternalServerError, "Import Failed", "")
		return
	}
	status := http.StatusAccepted
	if reused {
		// Identical file already imported: point at the existing job.
		status = http.StatusOK
	}
	writeJSON(w, status, toJobResponse(job))
}

func (h *Handlers) getImport(w http.ResponseWriter, r *http.Request) {
	job, err := h.Q.JobStatus(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Not Found", "import job not found")
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (h *Handlers) listImports(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if ls := r.URL.Query().Get("limit"); ls != "" {
		l, err := strconv.Atoi(ls)
		if err != nil || l <= 0 || l > 100 {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 100")
			return
		}
		limit = l
	}
	jobs, err := h.Q.ImportHistory(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Query Failed", "")
		return
	}
	out := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobResponse(j))
	}
	writeJSON(w, http.StatusOK, out)
}

type recommendationResponse struct {
	HotelID          string  `json:"hotel_id"`
	AsOfDate         string  `json:"as_of_date"`
	StayDate         string  `json:"stay_date"`
	CurrentPrice     float64 `json:"current_price"`
	RecommendedPrice float64 `json:"recommended_price"`
	ExpectedRevenue  float64 `json:"expected_revenue"`
	UpliftPct        float64 `json:"uplift_pct"`
	Explanation      string  `json:"explanation"`
}

func (h *Handlers) listRecommendations(w http.ResponseWriter, r *http.Request) {
	hotelID := chi.URLParam(r, "id")
	asOf, err := dateParam(r, "as_of", domain.Midnight(time.Now()))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid as_of", "as_of must be YYYY-MM-DD")
		return
	}

	recs, err := h.Q.Recommendations(r.Context(), hotelID, asOf)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Query Failed", "")
		return
	}
	// Dates without a recommendation are simply absent from the list.
	out := make([]recommendationResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, recommendationResponse{
			HotelID:          rec.HotelID,
			AsOfDate:         domain.FormatDate(rec.AsOfDate),
			StayDate:         domain.FormatDate(rec.StayDate),
			CurrentPrice:     rec.CurrentPrice,
			RecommendedPrice: rec.RecommendedPrice,
			ExpectedRevenue:  rec.ExpectedRevenue,
			UpliftPct:        rec.UpliftPct,
			Explanation:      rec.Explanation,
		})
	}

	etag, body := calcETagAndBody(out)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write recommendations body")
	}
}

type otbResponse struct {
	AsOfDate   string  `json:"as_of_date"`
	StayDate   string  `json:"stay_date"`
	RoomsOTB   int     `json:"rooms_otb"`
	RevenueOTB float64 `json:"revenue_otb"`
}

// otbHistory returns every snapshot of one stay date, oldest first: the
// pickup curve the stay has traced so far.
func (h *Handlers) otbHistory(w http.ResponseWriter, r *http.Request) {
	hotelID := chi.URLParam(r, "id")
	stay, err := dateParam(r, "stay", time.Time{})
	if err != nil || stay.IsZero() {
		writeProblem(w, http.StatusBadRequest, "Invalid stay", "stay is required and must be YYYY-MM-DD")
		return
	}

	rows, err := h.Q.OTBHistory(r.Context(), hotelID, stay)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Query Failed", "")
		return
	}
	out := make([]otbResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, otbResponse{
			AsOfDate:   domain.FormatDate(row.AsOfDate),
			StayDate:   domain.FormatDate(row.StayDate),
			RoomsOTB:   row.RoomsOTB,
			RevenueOTB: row.RevenueOTB,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type decisionRequest struct {
	UserID     string  `json:"user_id"`
	AsOfDate   string  `json:"as_of_date"`
	StayDate   string  `json:"stay_date"`
	Action     string  `json:"action"`
	FinalPrice float64 `json:"final_price"`
	Reason     string  `json:"reason,omitempty"`
}

type decisionResponse struct {
	ID          string    `json:"id"`
	HotelID     string    `json:"hotel_id"`
	UserID      string    `json:"user_id"`
	AsOfDate    string    `json:"as_of_date"`
	StayDate    string    `json:"stay_date"`
	Action      string    `json:"action"`
	SystemPrice float64   `json:"system_price"`
	FinalPrice  float64   `json:"final_price"`
	Reason      string    `json:"reason,omitempty"`
	DecidedAt   time.Time `json:"decided_at"`
}

func (h *Handlers) recordDecision(w http.ResponseWriter, r *http.Request) {
	hotelID := chi.URLParam(r, "id")

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "request body must be JSON")
		return
	}
	asOf, err := domain.ParseDate(req.AsOfDate)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid as_of_date", "as_of_date must be YYYY-MM-DD")
		return
	}
	stay, err := domain.ParseDate(req.StayDate)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid stay_date", "stay_date must be YYYY-MM-DD")
		return
	}

	d, err := h.Decisions.Record(r.Context(), app.DecisionInput{
		HotelID:    hotelID,
		UserID:     req.UserID,
		AsOf:       asOf,
		Stay:       stay,
		Action:     domain.DecisionAction(req.Action),
		FinalPrice: req.FinalPrice,
		Reason:     req.Reason,
	})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNoRecommendation):
		writeProblem(w, http.StatusNotFound, "No Recommendation", "no recommendation exists for this date")
		return
	case errors.Is(err, domain.ErrOverrideNeedsReason),
		errors.Is(err, domain.ErrOverrideSamePrice),
		errors.Is(err, domain.ErrInvalidDecision):
		writeProblem(w, http.StatusUnprocessableEntity, "Invalid Decision", err.Error())
		return
	default:
		log.Error().Err(err).Str("hotel", hotelID).Msg("record decision failed")
		writeProblem(w, http.StatusInternalServerError, "Decision Failed", "")
		return
	}

	writeJSON(w, http.StatusCreated, decisionResponse{
		ID:          d.ID,
		HotelID:     d.HotelID,
		UserID:      d.UserID,
		AsOfDate:    domain.FormatDate(d.AsOfDate),
		StayDate:    domain.FormatDate(d.StayDate),
		Action:      string(d.Action),
		SystemPrice: d.SystemPrice,
		FinalPrice:  d.FinalPrice,
		Reason:      d.Reason,
		DecidedAt:   d.DecidedAt,
	})
}
