package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	_ "modernc.org/sqlite"

	"github.com/sells-group/macro-finder/internal/db"
	"github.com/sells-group/macro-finder/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode. A single connection keeps per-connection pragmas (foreign keys) in
// effect for every statement.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS brands (
	id               TEXT PRIMARY KEY,
	key              TEXT NOT NULL UNIQUE,
	display_name     TEXT NOT NULL,
	last_imported_at DATETIME,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS places (
	id          TEXT PRIMARY KEY,
	external_id TEXT NOT NULL UNIQUE,
	brand_id    TEXT NOT NULL REFERENCES brands(id),
	name        TEXT NOT NULL,
	lat         REAL,
	lng         REAL,
	street      TEXT NOT NULL DEFAULT '',
	city        TEXT NOT NULL DEFAULT '',
	state       TEXT NOT NULL DEFAULT '',
	postcode    TEXT NOT NULL DEFAULT '',
	source      TEXT NOT NULL DEFAULT '',
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_places_brand_id ON places(brand_id);
CREATE INDEX IF NOT EXISTS idx_places_lat_lng ON places(lat, lng);

CREATE TABLE IF NOT EXISTS menu_items (
	id                  TEXT PRIMARY KEY,
	brand_id            TEXT NOT NULL REFERENCES brands(id),
	name                TEXT NOT NULL,
	calories            INTEGER NOT NULL CHECK (calories >= 0),
	protein_g           INTEGER NOT NULL CHECK (protein_g >= 0),
	default_price       REAL,
	source              TEXT NOT NULL,
	external_ref        TEXT NOT NULL DEFAULT '',
	verification_status TEXT NOT NULL DEFAULT 'unverified',
	last_verified_at    DATETIME,
	notes               TEXT NOT NULL DEFAULT '',
	updated_at          DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (brand_id, name)
);

CREATE TABLE IF NOT EXISTS price_reports (
	place_id   TEXT NOT NULL REFERENCES places(id),
	item_id    TEXT NOT NULL REFERENCES menu_items(id),
	price      REAL NOT NULL CHECK (price > 0),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (place_id, item_id)
);

CREATE TABLE IF NOT EXISTS seed_jobs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'queued',
	radius_km    REAL NOT NULL,
	total        INTEGER NOT NULL DEFAULT 0,
	processed    INTEGER NOT NULL DEFAULT 0,
	succeeded    INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	results      TEXT NOT NULL DEFAULT '[]',
	error        TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_seed_jobs_created_at ON seed_jobs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Brands ---

const brandColumns = `id, key, display_name, last_imported_at, created_at`

func (s *SQLiteStore) EnsureBrand(ctx context.Context, key, displayName string) (*model.Brand, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO brands (id, key, display_name, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (key) DO NOTHING`,
		uuid.New().String(), key, displayName, time.Now().UTC(),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: ensure brand %s", key)
	}
	return s.GetBrand(ctx, key)
}

func (s *SQLiteStore) GetBrand(ctx context.Context, key string) (*model.Brand, error) {
	b, err := scanBrand(s.db.QueryRowContext(ctx, `SELECT `+brandColumns+` FROM brands WHERE key = ?`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: brand %s", key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get brand %s", key)
	}
	return b, nil
}

func (s *SQLiteStore) ListBrands(ctx context.Context) ([]model.Brand, error) {
	return s.queryBrands(ctx, `SELECT `+brandColumns+` FROM brands ORDER BY key`)
}

func (s *SQLiteStore) BrandsByID(ctx context.Context, ids []string) ([]model.Brand, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.queryBrands(ctx,
		`SELECT `+brandColumns+` FROM brands WHERE id IN (`+placeholders(len(ids))+`) ORDER BY key`,
		stringArgs(ids)...)
}

func (s *SQLiteStore) queryBrands(ctx context.Context, query string, args ...any) ([]model.Brand, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query brands")
	}
	defer rows.Close() //nolint:errcheck

	var brands []model.Brand
	for rows.Next() {
		b, err := scanBrand(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan brand")
		}
		brands = append(brands, *b)
	}
	return brands, eris.Wrap(rows.Err(), "sqlite: iterate brands")
}

func (s *SQLiteStore) MarkImported(ctx context.Context, brandID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE brands SET last_imported_at = ? WHERE id = ?`, at.UTC(), brandID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark imported %s", brandID)
	}
	return checkRowsAffected(res, "brand", brandID)
}

// --- Places ---

const placeColumns = `id, external_id, brand_id, name, lat, lng, street, city, state, postcode, source, updated_at`

func (s *SQLiteStore) UpsertPlace(ctx context.Context, p model.Place) (*model.Place, error) {
	p.UpdatedAt = time.Now().UTC()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO places (`+placeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_id) DO UPDATE SET
			brand_id = excluded.brand_id, name = excluded.name, lat = excluded.lat, lng = excluded.lng,
			street = excluded.street, city = excluded.city, state = excluded.state, postcode = excluded.postcode,
			source = excluded.source, updated_at = excluded.updated_at
		RETURNING id`,
		uuid.New().String(), p.ExternalID, p.BrandID, p.Name, p.Lat, p.Lng,
		p.Street, p.City, p.State, p.Postcode, p.Source, p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert place %s", p.ExternalID)
	}
	return &p, nil
}

func (s *SQLiteStore) PlacesInBounds(ctx context.Context, b *geom.Bounds) ([]model.Place, error) {
	minLat, maxLat, minLng, maxLng := boundsArgs(b)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+placeColumns+` FROM places WHERE lat BETWEEN ? AND ? AND lng BETWEEN ? AND ? ORDER BY id`,
		minLat, maxLat, minLng, maxLng,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: places in bounds")
	}
	defer rows.Close() //nolint:errcheck

	var places []model.Place
	for rows.Next() {
		var p model.Place
		if err := rows.Scan(&p.ID, &p.ExternalID, &p.BrandID, &p.Name, &p.Lat, &p.Lng,
			&p.Street, &p.City, &p.State, &p.Postcode, &p.Source, &p.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan place")
		}
		places = append(places, p)
	}
	return places, eris.Wrap(rows.Err(), "sqlite: iterate places")
}

// --- Menu items ---

const menuItemInsertSQLite = `INSERT INTO menu_items (id, brand_id, name, calories, protein_g, default_price,
	source, external_ref, verification_status, last_verified_at, notes, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (brand_id, name) DO UPDATE SET `

// importConflictSQLite keeps a stored default price; the COALESCE runs
// inside the upsert so a concurrent manual edit is never lost.
const importConflictSQLite = `calories = excluded.calories, protein_g = excluded.protein_g,
	source = excluded.source, external_ref = excluded.external_ref,
	verification_status = excluded.verification_status, updated_at = excluded.updated_at,
	default_price = COALESCE(menu_items.default_price, excluded.default_price)
RETURNING id`

const manualConflictSQLite = `calories = excluded.calories, protein_g = excluded.protein_g,
	source = excluded.source, verification_status = excluded.verification_status,
	last_verified_at = excluded.last_verified_at, notes = excluded.notes, updated_at = excluded.updated_at,
	default_price = COALESCE(excluded.default_price, menu_items.default_price)
RETURNING id`

func (s *SQLiteStore) UpsertMenuItems(ctx context.Context, brandID string, items []model.MenuItem) (db.UpsertResult, error) {
	res, err := s.upsertItems(ctx, menuItemInsertSQLite+importConflictSQLite, items, func(model.MenuItem) string { return brandID })
	return res, eris.Wrapf(err, "sqlite: upsert menu items for %s", brandID)
}

func (s *SQLiteStore) UpsertManualItems(ctx context.Context, items []model.MenuItem) (db.UpsertResult, error) {
	res, err := s.upsertItems(ctx, menuItemInsertSQLite+manualConflictSQLite, items, func(it model.MenuItem) string { return it.BrandID })
	return res, eris.Wrap(err, "sqlite: upsert manual items")
}

func (s *SQLiteStore) upsertItems(ctx context.Context, query string, items []model.MenuItem, brandOf func(model.MenuItem) string) (db.UpsertResult, error) {
	var res db.UpsertResult
	if len(items) == 0 {
		return res, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, eris.Wrap(err, "begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return res, eris.Wrap(err, "prepare")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	for _, it := range items {
		id := uuid.New().String()
		var got string
		if err := stmt.QueryRowContext(ctx, menuItemRow(id, brandOf(it), it, now)...).Scan(&got); err != nil {
			return db.UpsertResult{}, eris.Wrapf(err, "item %q", it.Name)
		}
		// A fresh id came back only when the row was inserted.
		if got == id {
			res.Inserted++
		} else {
			res.Updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return db.UpsertResult{}, eris.Wrap(err, "commit tx")
	}
	return res, nil
}

func (s *SQLiteStore) ListMenuItems(ctx context.Context, brandID string) ([]model.MenuItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, brand_id, name, calories, protein_g, default_price, source, external_ref,
			verification_status, last_verified_at, notes, updated_at
		FROM menu_items WHERE brand_id = ? ORDER BY name`,
		brandID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list menu items %s", brandID)
	}
	defer rows.Close() //nolint:errcheck

	var items []model.MenuItem
	for rows.Next() {
		var it model.MenuItem
		var source, status string
		if err := rows.Scan(&it.ID, &it.BrandID, &it.Name, &it.Calories, &it.ProteinG, &it.DefaultPrice,
			&source, &it.ExternalRef, &status, &it.LastVerifiedAt, &it.Notes, &it.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan menu item")
		}
		it.Source = model.ItemSource(source)
		it.VerificationStatus = model.Verification(status)
		items = append(items, it)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: iterate menu items")
}

// --- Prices and ranking ---

func (s *SQLiteStore) SetPrice(ctx context.Context, placeID, itemID string, price float64) (*model.PriceReport, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO price_reports (place_id, item_id, price, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (place_id, item_id) DO UPDATE SET price = excluded.price, updated_at = excluded.updated_at`,
		placeID, itemID, price, now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return nil, eris.Wrapf(ErrNotFound, "sqlite: place %s or item %s", placeID, itemID)
		}
		return nil, eris.Wrap(err, "sqlite: set price")
	}
	return &model.PriceReport{PlaceID: placeID, ItemID: itemID, Price: price, UpdatedAt: now}, nil
}

func (s *SQLiteStore) Candidates(ctx context.Context, f CandidateFilter) ([]model.Candidate, error) {
	var where []string
	var args []any
	if f.Bounds != nil {
		minLat, maxLat, minLng, maxLng := boundsArgs(f.Bounds)
		args = append(args, minLat, maxLat, minLng, maxLng)
		where = append(where, "p.lat BETWEEN ? AND ? AND p.lng BETWEEN ? AND ?")
	}
	if len(f.IncludeBrands) > 0 {
		args = append(args, stringArgs(f.IncludeBrands)...)
		where = append(where, "b.key IN ("+placeholders(len(f.IncludeBrands))+")")
	}

	q := candidateSelect
	if len(where) > 0 {
		q += "\nWHERE " + strings.Join(where, " AND ")
	}
	q += "\nORDER BY p.id, m.id"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: candidates")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Candidate
	for rows.Next() {
		var c model.Candidate
		var source, status string
		if err := rows.Scan(
			&c.Place.ID, &c.Place.ExternalID, &c.Place.BrandID, &c.Place.Name, &c.Place.Lat, &c.Place.Lng,
			&c.Place.Street, &c.Place.City, &c.Place.State, &c.Place.Postcode, &c.Place.Source, &c.Place.UpdatedAt,
			&c.BrandKey,
			&c.Item.ID, &c.Item.Name, &c.Item.Calories, &c.Item.ProteinG, &c.Item.DefaultPrice, &source,
			&c.Item.ExternalRef, &status, &c.Item.LastVerifiedAt, &c.Item.Notes, &c.Item.UpdatedAt,
			&c.ReportPrice, &c.ReportUpdated,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan candidate")
		}
		c.Item.BrandID = c.Place.BrandID
		c.Item.Source = model.ItemSource(source)
		c.Item.VerificationStatus = model.Verification(status)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate candidates")
}

func (s *SQLiteStore) Counts(ctx context.Context) (*model.StoreCounts, error) {
	var c model.StoreCounts
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT count(*) FROM brands),
		(SELECT count(*) FROM places),
		(SELECT count(*) FROM menu_items),
		(SELECT count(*) FROM price_reports)`,
	).Scan(&c.Brands, &c.Places, &c.MenuItems, &c.PriceReports)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: counts")
	}
	return &c, nil
}

// --- Seed jobs ---

func (s *SQLiteStore) CreateSeedJob(ctx context.Context, job *model.SeedJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = model.SeedQueued
	}
	now := time.Now().UTC()
	job.CreatedAt, job.UpdatedAt = now, now

	results, err := json.Marshal(nonNilOutcomes(job.Results))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal seed results")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO seed_jobs (id, status, radius_km, total, processed, succeeded, failed, results, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, string(job.Status), job.RadiusKm, job.Total, job.Processed, job.Succeeded, job.Failed,
		string(results), job.Error, now, now,
	)
	return eris.Wrap(err, "sqlite: insert seed job")
}

func (s *SQLiteStore) UpdateSeedJob(ctx context.Context, job *model.SeedJob) error {
	job.UpdatedAt = time.Now().UTC()
	results, err := json.Marshal(nonNilOutcomes(job.Results))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal seed results")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE seed_jobs SET status = ?, processed = ?, succeeded = ?, failed = ?, results = ?,
			error = ?, updated_at = ?, completed_at = ? WHERE id = ?`,
		string(job.Status), job.Processed, job.Succeeded, job.Failed, string(results),
		job.Error, job.UpdatedAt, job.CompletedAt, job.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update seed job %s", job.ID)
	}
	return checkRowsAffected(res, "seed job", job.ID)
}

const seedJobSelectSQLite = `SELECT id, status, radius_km, total, processed, succeeded, failed, results, error,
	created_at, updated_at, completed_at FROM seed_jobs`

func (s *SQLiteStore) GetSeedJob(ctx context.Context, id string) (*model.SeedJob, error) {
	job, err := scanSeedJob(s.db.QueryRowContext(ctx, seedJobSelectSQLite+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: seed job %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get seed job %s", id)
	}
	return job, nil
}

func (s *SQLiteStore) ListSeedJobs(ctx context.Context, limit int) ([]model.SeedJob, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, seedJobSelectSQLite+` ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list seed jobs")
	}
	defer rows.Close() //nolint:errcheck

	var jobs []model.SeedJob
	for rows.Next() {
		job, err := scanSeedJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan seed job")
		}
		jobs = append(jobs, *job)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: iterate seed jobs")
}

// --- helpers ---

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanBrand(row scannable) (*model.Brand, error) {
	var b model.Brand
	if err := row.Scan(&b.ID, &b.Key, &b.DisplayName, &b.LastImportedAt, &b.CreatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func scanSeedJob(row scannable) (*model.SeedJob, error) {
	var j model.SeedJob
	var status, results string
	if err := row.Scan(&j.ID, &status, &j.RadiusKm, &j.Total, &j.Processed, &j.Succeeded, &j.Failed,
		&results, &j.Error, &j.CreatedAt, &j.UpdatedAt, &j.CompletedAt); err != nil {
		return nil, err
	}
	j.Status = model.SeedStatus(status)
	if results != "" {
		if err := json.Unmarshal([]byte(results), &j.Results); err != nil {
			return nil, eris.Wrap(err, "unmarshal seed results")
		}
	}
	return &j, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
