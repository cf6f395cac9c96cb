//go:build integration || !unit

package mysql_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	"revpilot/internal/domain"
	mysqlrepo "revpilot/internal/storage/mysql"
)

func mustEnv(t *testing.T, k string) string {
	t.Helper()
	v := os.Getenv(k)
	if v == "" {
		t.Fatalf("%s not set; export it (e.g. MIGRATIONS_DIR=/path/to/sql)", k)
	}
	return v
}

func applyMigrations(t *testing.T, db *sql.DB) {
	t.Helper()
	dir := mustEnv(t, "MIGRATIONS_DIR")

	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		t.Fatalf("MIGRATIONS_DIR=%s is not a directory or missing", dir)
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}
	var files []string
	for _, e := range ents {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		t.Fatalf("no .sql files in %s", dir)
	}
	sort.Strings(files)
	for _, f := range files {
		sqlBytes, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if _, err := db.Exec(string(sqlBytes)); err != nil {
			t.Fatalf("exec %s: %v", f, err)
		}
	}
}

func startMySQL(t *testing.T) *sql.DB {
	t.Helper()
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("dockertest: %v", err)
	}
	runOpts := &dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env: []string{
			"MYSQL_ROOT_PASSWORD=root",
			"MYSQL_DATABASE=revpilot",
		},
	}
	resource, err := pool.RunWithOptions(runOpts, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	hostPort := resource.GetPort("3306/tcp")
	dsn := fmt.Sprintf("root:%s@tcp(127.0.0.1:%s)/%s?parseTime=true&multiStatements=true&charset=utf8mb4,utf8&loc=UTC",
		"root", hostPort, "revpilot")

	var db *sql.DB
	if err := pool.Retry(func() error {
		var e error
		db, e = sql.Open("mysql", dsn)
		if e != nil {
			return e
		}
		return db.Ping()
	}); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	applyMigrations(t, db)
	return db
}

func seedHotel(t *testing.T, repo *mysqlrepo.Repo, id string) {
	t.Helper()
	err := repo.UpsertHotel(context.Background(), domain.Hotel{
		ID: id, Name: "Harbour View", Timezone: "Europe/Lisbon",
		Capacity: 80, Currency: "EUR", BasePrice: 110,
	})
	if err != nil {
		t.Fatalf("UpsertHotel: %v", err)
	}
}

func TestRepo_MySQL_EventLedger(t *testing.T) {
	db := startMySQL(t)
	repo := mysqlrepo.New(db)
	ctx := context.Background()
	seedHotel(t, repo, "h1")

	job := domain.ImportJob{
		ID: "job-1", HotelID: "h1", FileName: "bookings.csv", FileHash: "abc123",
		Status: domain.JobPending, CreatedAt: time.Now().UTC(),
	}
	if err := repo.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	ev := domain.ReservationEvent{
		HotelID: "h1", JobID: "job-1", ReservationRef: "R-100",
		BookingDate:   domain.Date(2024, 1, 5),
		ArrivalDate:   domain.Date(2024, 6, 1),
		DepartureDate: domain.Date(2024, 6, 3),
		Rooms:         2, Revenue: 420.50,
		Status: domain.ReservationActive, LoadedAt: time.Now().UTC(),
	}
	res, err := repo.AppendEvents(ctx, []domain.ReservationEvent{ev, ev})
	if err != nil {
		t.Fatalf("AppendEvents: %v", err)
	}
	if res.Accepted != 1 || res.Duplicates != 1 {
		t.Fatalf("result = %+v, want 1 accepted / 1 duplicate", res)
	}

	// Cutoff filtering: before the booking date nothing is known.
	none, err := repo.ListEventsAsOf(ctx, "h1", domain.Date(2024, 1, 4))
	if err != nil {
		t.Fatalf("ListEventsAsOf: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("events before booking date = %d, want 0", len(none))
	}
	got, err := repo.ListEventsAsOf(ctx, "h1", domain.Date(2024, 1, 5))
	if err != nil {
		t.Fatalf("ListEventsAsOf: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("events = %d, want 1", len(got))
	}
	e := got[0]
	if e.ReservationRef != "R-100" || e.Rooms != 2 || e.Revenue != 420.50 {
		t.Errorf("event round-trip wrong: %+v", e)
	}
	if !e.BookingDate.Equal(domain.Date(2024, 1, 5)) {
		t.Errorf("booking date not normalized to UTC midnight: %v", e.BookingDate)
	}
	if e.CancelDate != nil {
		t.Errorf("cancel date should be nil, got %v", *e.CancelDate)
	}
}

func TestRepo_MySQL_JobLifecycleAndFingerprint(t *testing.T) {
	db := startMySQL(t)
	repo := mysqlrepo.New(db)
	ctx := context.Background()
	seedHotel(t, repo, "h1")

	job := domain.ImportJob{
		ID: "job-1", HotelID: "h1", FileName: "a.csv", FileHash: "hash-a",
		Status: domain.JobPending, CreatedAt: time.Now().UTC(),
	}
	if err := repo.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	if _, err := repo.FindJobByFingerprint(ctx, "h1", "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing fingerprint: err = %v, want ErrNotFound", err)
	}
	found, err := repo.FindJobByFingerprint(ctx, "h1", "hash-a")
	if err != nil {
		t.Fatalf("FindJobByFingerprint: %v", err)
	}
	if found.ID != "job-1" {
		t.Fatalf("found job %s, want job-1", found.ID)
	}

	if err := job.Transition(domain.JobProcessing); err != nil {
		t.Fatal(err)
	}
	if err := repo.UpdateJob(ctx, job); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	busy, err := repo.HotelHasProcessingJob(ctx, "h1")
	if err != nil {
		t.Fatalf("HotelHasProcessingJob: %v", err)
	}
	if !busy {
		t.Fatal("processing job should be visible")
	}

	if err := job.Fail("too many bad rows", time.Now().UTC()); err != nil {
		t.Fatal(err)
	}
	if err := repo.UpdateJob(ctx, job); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	stored, err := repo.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if stored.Status != domain.JobFailed || stored.ErrorSummary != "too many bad rows" || stored.FinishedAt == nil {
		t.Errorf("job round-trip wrong: %+v", stored)
	}
}

func TestRepo_MySQL_SnapshotReplaceAndReads(t *testing.T) {
	db := startMySQL(t)
	repo := mysqlrepo.New(db)
	ctx := context.Background()
	seedHotel(t, repo, "h1")

	asOf := domain.Date(2024, 6, 1)
	stay := domain.Date(2024, 7, 1)
	write := func(rooms int) {
		t.Helper()
		err := repo.ReplaceDailyOTB(ctx, "h1", asOf, []domain.DailyOTB{
			{HotelID: "h1", AsOfDate: asOf, StayDate: stay, RoomsOTB: rooms, RevenueOTB: float64(rooms) * 100},
		})
		if err != nil {
			t.Fatalf("ReplaceDailyOTB: %v", err)
		}
	}

	write(5)
	write(8) // recompute replaces, never accumulates

	row, err := repo.GetDailyOTB(ctx, "h1", asOf, stay)
	if err != nil {
		t.Fatalf("GetDailyOTB: %v", err)
	}
	if row.RoomsOTB != 8 || row.RevenueOTB != 800 {
		t.Fatalf("row = %+v, want 8 rooms / 800 revenue", row)
	}

	// Second as-of slice: the stay-date view sees both snapshots.
	asOf2 := domain.AddDays(asOf, 1)
	if err := repo.ReplaceDailyOTB(ctx, "h1", asOf2, []domain.DailyOTB{
		{HotelID: "h1", AsOfDate: asOf2, StayDate: stay, RoomsOTB: 9, RevenueOTB: 900},
	}); err != nil {
		t.Fatalf("ReplaceDailyOTB: %v", err)
	}
	hist, err := repo.ListOTBByStay(ctx, "h1", stay)
	if err != nil {
		t.Fatalf("ListOTBByStay: %v", err)
	}
	if len(hist) != 2 || hist[0].RoomsOTB != 8 || hist[1].RoomsOTB != 9 {
		t.Fatalf("history = %+v, want 8 then 9", hist)
	}

	pace := 1.25
	feats := []domain.FeaturesDaily{{
		HotelID: "h1", AsOfDate: asOf, StayDate: stay,
		DOW: int(stay.Weekday()), IsWeekend: false, Month: 7,
		RoomsOTB: 8, RevenueOTB: 800,
		PickupT30: 6, PickupT7: 2, PickupT3: 1,
		PaceVsLY: &pace, RemainingSupply: 72,
	}}
	if err := repo.ReplaceFeatures(ctx, "h1", asOf, feats); err != nil {
		t.Fatalf("ReplaceFeatures: %v", err)
	}
	gotFeats, err := repo.ListFeatures(ctx, "h1", asOf)
	if err != nil {
		t.Fatalf("ListFeatures: %v", err)
	}
	if len(gotFeats) != 1 {
		t.Fatalf("features = %d, want 1", len(gotFeats))
	}
	f := gotFeats[0]
	if f.PaceVsLY == nil || *f.PaceVsLY != 1.25 {
		t.Errorf("pace_vs_ly round-trip wrong: %v", f.PaceVsLY)
	}
	if f.PickupT30 != 6 || f.RemainingSupply != 72 {
		t.Errorf("features round-trip wrong: %+v", f)
	}
}

func TestRepo_MySQL_ForecastRecommendationDecision(t *testing.T) {
	db := startMySQL(t)
	repo := mysqlrepo.New(db)
	ctx := context.Background()
	seedHotel(t, repo, "h1")

	asOf := domain.Date(2024, 6, 1)
	stay := domain.Date(2024, 7, 1)

	fc := domain.DemandForecast{
		HotelID: "h1", AsOfDate: asOf, StayDate: stay,
		RemainingDemand: 14.5, ModelVersion: "v3",
	}
	if err := repo.UpsertForecast(ctx, fc); err != nil {
		t.Fatalf("UpsertForecast: %v", err)
	}
	fc.RemainingDemand = 16
	if err := repo.UpsertForecast(ctx, fc); err != nil {
		t.Fatalf("UpsertForecast (second): %v", err)
	}
	fcs, err := repo.ListForecasts(ctx, "h1", asOf)
	if err != nil {
		t.Fatalf("ListForecasts: %v", err)
	}
	if len(fcs) != 1 || fcs[0].RemainingDemand != 16 {
		t.Fatalf("forecasts = %+v, want single row with demand 16", fcs)
	}

	rec := domain.PriceRecommendation{
		HotelID: "h1", AsOfDate: asOf, StayDate: stay,
		CurrentPrice: 110, RecommendedPrice: 129, ExpectedRevenue: 3870,
		UpliftPct: 17.3, Explanation: "pace ahead of last year",
	}
	if err := repo.UpsertRecommendation(ctx, rec); err != nil {
		t.Fatalf("UpsertRecommendation: %v", err)
	}
	gotRec, err := repo.GetRecommendation(ctx, "h1", asOf, stay)
	if err != nil {
		t.Fatalf("GetRecommendation: %v", err)
	}
	if gotRec.RecommendedPrice != 129 || gotRec.Explanation != "pace ahead of last year" {
		t.Errorf("recommendation round-trip wrong: %+v", gotRec)
	}
	if _, err := repo.GetRecommendation(ctx, "h1", asOf, domain.AddDays(stay, 1)); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing recommendation: err = %v, want ErrNotFound", err)
	}

	if err := repo.CreateUser(ctx, domain.User{
		ID: "u1", Email: "rm@example.com", Role: domain.RoleManager, HotelID: "h1",
	}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	d := domain.PricingDecision{
		ID: "d1", HotelID: "h1", UserID: "u1", AsOfDate: asOf, StayDate: stay,
		Action: domain.DecisionOverride, SystemPrice: 129, FinalPrice: 119,
		Reason: "corporate group holds the rate", DecidedAt: time.Now().UTC(),
	}
	if err := repo.AppendDecision(ctx, d); err != nil {
		t.Fatalf("AppendDecision: %v", err)
	}
	ledger, err := repo.ListDecisions(ctx, "h1", 10)
	if err != nil {
		t.Fatalf("ListDecisions: %v", err)
	}
	if len(ledger) != 1 || ledger[0].Reason != "corporate group holds the rate" {
		t.Fatalf("ledger = %+v, want the override row", ledger)
	}
}
