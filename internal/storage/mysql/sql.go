package mysql

const upsertHotelSQL = `
INSERT INTO hotels
  (id, name, timezone, capacity, currency, base_price)
VALUES
  (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  name       = VALUES(name),
  timezone   = VALUES(timezone),
  capacity   = VALUES(capacity),
  currency   = VALUES(currency),
  base_price = VALUES(base_price),
  updated_at = CURRENT_TIMESTAMP
`

const getHotelSQL = `
SELECT id, name, timezone, capacity, currency, base_price
FROM hotels
WHERE id = ?
`

const listHotelsSQL = `
SELECT id, name, timezone, capacity, currency, base_price
FROM hotels
ORDER BY id
`

const insertUserSQL = `
INSERT INTO users (id, email, role, hotel_id)
VALUES (?, ?, ?, ?)
`

const getUserByEmailSQL = `
SELECT id, email, role, hotel_id
FROM users
WHERE email = ?
`

// ---------------------------------------------------------------------------
// IMPORT JOBS
// ---------------------------------------------------------------------------

const insertJobSQL = `
INSERT INTO import_jobs
  (id, hotel_id, file_name, file_hash, status, error_summary, created_at, finished_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?)
`

// Terminal-state immutability is enforced in the domain; the UPDATE is plain.
const updateJobSQL = `
UPDATE import_jobs
SET status = ?, error_summary = ?, finished_at = ?
WHERE id = ?
`

const getJobSQL = `
SELECT id, hotel_id, file_name, file_hash, status, error_summary, created_at, finished_at
FROM import_jobs
WHERE id = ?
`

const findJobByFingerprintSQL = `
SELECT id, hotel_id, file_name, file_hash, status, error_summary, created_at, finished_at
FROM import_jobs
WHERE hotel_id = ? AND file_hash = ?
ORDER BY created_at DESC, id DESC
LIMIT 1
`

const countProcessingJobsSQL = `
SELECT COUNT(*) FROM import_jobs
WHERE hotel_id = ? AND status = 'processing'
`

const listJobsSQL = `
SELECT id, hotel_id, file_name, file_hash, status, error_summary, created_at, finished_at
FROM import_jobs
WHERE hotel_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?
`

// ---------------------------------------------------------------------------
// RESERVATION STORE (append-only)
// ---------------------------------------------------------------------------

// INSERT IGNORE lets a duplicate (hotel_id, reservation_ref, job_id) row fall
// out with zero affected rows instead of aborting the batch.
const insertEventSQL = `
INSERT IGNORE INTO reservation_events
  (hotel_id, job_id, reservation_ref, booking_date, arrival_date, departure_date,
   rooms, revenue, status, cancel_date, loaded_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// The replay order makes "latest event wins" deterministic.
const listEventsAsOfSQL = `
SELECT id, hotel_id, job_id, reservation_ref, booking_date, arrival_date, departure_date,
       rooms, revenue, status, cancel_date, loaded_at
FROM reservation_events
WHERE hotel_id = ? AND booking_date <= ?
ORDER BY booking_date, loaded_at, id
`

// ---------------------------------------------------------------------------
// SNAPSHOTS (triple key hotel_id, as_of_date, stay_date everywhere)
// ---------------------------------------------------------------------------

const deleteOTBSliceSQL = `
DELETE FROM daily_otb WHERE hotel_id = ? AND as_of_date = ?
`

const insertOTBPrefix = `INSERT INTO daily_otb
  (hotel_id, as_of_date, stay_date, rooms_otb, revenue_otb)
VALUES `

const getOTBSQL = `
SELECT hotel_id, as_of_date, stay_date, rooms_otb, revenue_otb
FROM daily_otb
WHERE hotel_id = ? AND as_of_date = ? AND stay_date = ?
`

const listOTBByAsOfSQL = `
SELECT hotel_id, as_of_date, stay_date, rooms_otb, revenue_otb
FROM daily_otb
WHERE hotel_id = ? AND as_of_date = ?
ORDER BY stay_date
`

const listOTBByStaySQL = `
SELECT hotel_id, as_of_date, stay_date, rooms_otb, revenue_otb
FROM daily_otb
WHERE hotel_id = ? AND stay_date = ?
ORDER BY as_of_date
`

const deleteFeaturesSliceSQL = `
DELETE FROM features_daily WHERE hotel_id = ? AND as_of_date = ?
`

const insertFeaturesPrefix = `INSERT INTO features_daily
  (hotel_id, as_of_date, stay_date, dow, is_weekend, month,
   rooms_otb, revenue_otb, pickup_t30, pickup_t7, pickup_t3,
   pace_vs_ly, remaining_supply)
VALUES `

const listFeaturesSQL = `
SELECT hotel_id, as_of_date, stay_date, dow, is_weekend, month,
       rooms_otb, revenue_otb, pickup_t30, pickup_t7, pickup_t3,
       pace_vs_ly, remaining_supply
FROM features_daily
WHERE hotel_id = ? AND as_of_date = ?
ORDER BY stay_date
`

const upsertForecastSQL = `
INSERT INTO demand_forecast
  (hotel_id, as_of_date, stay_date, remaining_demand, model_version)
VALUES
  (?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  remaining_demand = VALUES(remaining_demand),
  model_version    = VALUES(model_version)
`

const listForecastsSQL = `
SELECT hotel_id, as_of_date, stay_date, remaining_demand, model_version
FROM demand_forecast
WHERE hotel_id = ? AND as_of_date = ?
ORDER BY stay_date
`

const upsertRecommendationSQL = `
INSERT INTO price_recommendations
  (hotel_id, as_of_date, stay_date, current_price, recommended_price,
   expected_revenue, uplift_pct, explanation)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  current_price     = VALUES(current_price),
  recommended_price = VALUES(recommended_price),
  expected_revenue  = VALUES(expected_revenue),
  uplift_pct        = VALUES(uplift_pct),
  explanation       = VALUES(explanation)
`

const getRecommendationSQL = `
SELECT hotel_id, as_of_date, stay_date, current_price, recommended_price,
       expected_revenue, uplift_pct, explanation
FROM price_recommendations
WHERE hotel_id = ? AND as_of_date = ? AND stay_date = ?
`

const listRecommendationsSQL = `
SELECT hotel_id, as_of_date, stay_date, current_price, recommended_price,
       expected_revenue, uplift_pct, explanation
FROM price_recommendations
WHERE hotel_id = ? AND as_of_date = ?
ORDER BY stay_date
`

// ---------------------------------------------------------------------------
// DECISION LEDGER (insert-only)
// ---------------------------------------------------------------------------

const insertDecisionSQL = `
INSERT INTO pricing_decisions
  (id, hotel_id, user_id, as_of_date, stay_date, action,
   system_price, final_price, reason, decided_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const listDecisionsSQL = `
SELECT id, hotel_id, user_id, as_of_date, stay_date, action,
       system_price, final_price, reason, decided_at
FROM pricing_decisions
WHERE hotel_id = ?
ORDER BY decided_at DESC, id DESC
LIMIT ?
`
