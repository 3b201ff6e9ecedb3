package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/macro-finder/internal/db"
	"github.com/sells-group/macro-finder/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot read and write paths.
var preparedStatements = map[string]string{
	"get_brand":      `SELECT id, key, display_name, last_imported_at, created_at FROM brands WHERE key = $1`,
	"mark_imported":  `UPDATE brands SET last_imported_at = $1 WHERE id = $2`,
	"upsert_place":   placeUpsertPG,
	"upsert_price":   priceUpsertPG,
	"places_in_bbox": placesInBoundsPG,
}

const placeUpsertPG = `INSERT INTO places (id, external_id, brand_id, name, lat, lng, street, city, state, postcode, source, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (external_id) DO UPDATE SET
	brand_id = EXCLUDED.brand_id, name = EXCLUDED.name, lat = EXCLUDED.lat, lng = EXCLUDED.lng,
	street = EXCLUDED.street, city = EXCLUDED.city, state = EXCLUDED.state, postcode = EXCLUDED.postcode,
	source = EXCLUDED.source, updated_at = EXCLUDED.updated_at
RETURNING id`

const priceUpsertPG = `INSERT INTO price_reports (place_id, item_id, price, updated_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (place_id, item_id) DO UPDATE SET price = EXCLUDED.price, updated_at = EXCLUDED.updated_at`

const placesInBoundsPG = `SELECT id, external_id, brand_id, name, lat, lng, street, city, state, postcode, source, updated_at
FROM places WHERE lat BETWEEN $1 AND $2 AND lng BETWEEN $3 AND $4 ORDER BY id`

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				// Tables may not exist before the first migrate.
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
					continue
				}
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS brands (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	key              TEXT NOT NULL UNIQUE,
	display_name     TEXT NOT NULL,
	last_imported_at TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS places (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	external_id TEXT NOT NULL UNIQUE,
	brand_id    TEXT NOT NULL REFERENCES brands(id),
	name        TEXT NOT NULL,
	lat         DOUBLE PRECISION,
	lng         DOUBLE PRECISION,
	street      TEXT NOT NULL DEFAULT '',
	city        TEXT NOT NULL DEFAULT '',
	state       TEXT NOT NULL DEFAULT '',
	postcode    TEXT NOT NULL DEFAULT '',
	source      TEXT NOT NULL DEFAULT '',
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_places_brand_id ON places(brand_id);
CREATE INDEX IF NOT EXISTS idx_places_lat_lng ON places(lat, lng);

CREATE TABLE IF NOT EXISTS menu_items (
	id                  TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	brand_id            TEXT NOT NULL REFERENCES brands(id),
	name                TEXT NOT NULL,
	calories            INTEGER NOT NULL CHECK (calories >= 0),
	protein_g           INTEGER NOT NULL CHECK (protein_g >= 0),
	default_price       NUMERIC(10,2),
	source              TEXT NOT NULL,
	external_ref        TEXT NOT NULL DEFAULT '',
	verification_status TEXT NOT NULL DEFAULT 'unverified',
	last_verified_at    TIMESTAMPTZ,
	notes               TEXT NOT NULL DEFAULT '',
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (brand_id, name)
);

CREATE TABLE IF NOT EXISTS price_reports (
	place_id   TEXT NOT NULL REFERENCES places(id),
	item_id    TEXT NOT NULL REFERENCES menu_items(id),
	price      NUMERIC(10,2) NOT NULL CHECK (price > 0),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (place_id, item_id)
);

CREATE TABLE IF NOT EXISTS seed_jobs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'queued',
	radius_km    DOUBLE PRECISION NOT NULL,
	total        INTEGER NOT NULL DEFAULT 0,
	processed    INTEGER NOT NULL DEFAULT 0,
	succeeded    INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	results      JSONB NOT NULL DEFAULT '[]',
	error        TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_seed_jobs_created_at ON seed_jobs(created_at DESC);
`

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Brands ---

func (s *PostgresStore) EnsureBrand(ctx context.Context, key, displayName string) (*model.Brand, error) {
	var b model.Brand
	err := s.pool.QueryRow(ctx,
		`INSERT INTO brands (id, key, display_name, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE SET key = EXCLUDED.key
		RETURNING id, key, display_name, last_imported_at, created_at`,
		uuid.New().String(), key, displayName, time.Now().UTC(),
	).Scan(&b.ID, &b.Key, &b.DisplayName, &b.LastImportedAt, &b.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: ensure brand %s", key)
	}
	return &b, nil
}

func (s *PostgresStore) GetBrand(ctx context.Context, key string) (*model.Brand, error) {
	var b model.Brand
	err := s.pool.QueryRow(ctx,
		`SELECT id, key, display_name, last_imported_at, created_at FROM brands WHERE key = $1`,
		key,
	).Scan(&b.ID, &b.Key, &b.DisplayName, &b.LastImportedAt, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: brand %s", key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get brand %s", key)
	}
	return &b, nil
}

func (s *PostgresStore) ListBrands(ctx context.Context) ([]model.Brand, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, key, display_name, last_imported_at, created_at FROM brands ORDER BY key`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list brands")
	}
	return collectBrands(rows)
}

func (s *PostgresStore) BrandsByID(ctx context.Context, ids []string) ([]model.Brand, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, key, display_name, last_imported_at, created_at FROM brands WHERE id = ANY($1) ORDER BY key`,
		ids,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: brands by id")
	}
	return collectBrands(rows)
}

func collectBrands(rows pgx.Rows) ([]model.Brand, error) {
	defer rows.Close()
	var brands []model.Brand
	for rows.Next() {
		var b model.Brand
		if err := rows.Scan(&b.ID, &b.Key, &b.DisplayName, &b.LastImportedAt, &b.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan brand")
		}
		brands = append(brands, b)
	}
	return brands, eris.Wrap(rows.Err(), "postgres: iterate brands")
}

func (s *PostgresStore) MarkImported(ctx context.Context, brandID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE brands SET last_imported_at = $1 WHERE id = $2`,
		at.UTC(), brandID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark imported %s", brandID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: brand id %s", brandID)
	}
	return nil
}

// --- Places ---

func (s *PostgresStore) UpsertPlace(ctx context.Context, p model.Place) (*model.Place, error) {
	p.UpdatedAt = time.Now().UTC()
	err := s.pool.QueryRow(ctx, placeUpsertPG,
		uuid.New().String(), p.ExternalID, p.BrandID, p.Name, p.Lat, p.Lng,
		p.Street, p.City, p.State, p.Postcode, p.Source, p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert place %s", p.ExternalID)
	}
	return &p, nil
}

func (s *PostgresStore) PlacesInBounds(ctx context.Context, b *geom.Bounds) ([]model.Place, error) {
	minLat, maxLat, minLng, maxLng := boundsArgs(b)
	rows, err := s.pool.Query(ctx, placesInBoundsPG, minLat, maxLat, minLng, maxLng)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: places in bounds")
	}
	defer rows.Close()

	var places []model.Place
	for rows.Next() {
		var p model.Place
		if err := rows.Scan(&p.ID, &p.ExternalID, &p.BrandID, &p.Name, &p.Lat, &p.Lng,
			&p.Street, &p.City, &p.State, &p.Postcode, &p.Source, &p.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan place")
		}
		places = append(places, p)
	}
	return places, eris.Wrap(rows.Err(), "postgres: iterate places")
}

// --- Menu items ---

func (s *PostgresStore) UpsertMenuItems(ctx context.Context, brandID string, items []model.MenuItem) (db.UpsertResult, error) {
	now := time.Now().UTC()
	rows := make([][]any, len(items))
	for i, it := range items {
		rows[i] = menuItemRow(uuid.New().String(), brandID, it, now)
	}
	res, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "menu_items",
		Columns:      menuItemColumns,
		ConflictKeys: []string{"brand_id", "name"},
		UpdateCols:   []string{"calories", "protein_g", "source", "external_ref", "verification_status", "updated_at"},
		PreserveCols: []string{"default_price"},
	}, rows)
	return res, eris.Wrapf(err, "postgres: upsert menu items for %s", brandID)
}

func (s *PostgresStore) UpsertManualItems(ctx context.Context, items []model.MenuItem) (db.UpsertResult, error) {
	now := time.Now().UTC()
	rows := make([][]any, len(items))
	for i, it := range items {
		rows[i] = menuItemRow(uuid.New().String(), it.BrandID, it, now)
	}
	res, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "menu_items",
		Columns:      menuItemColumns,
		ConflictKeys: []string{"brand_id", "name"},
		UpdateCols:   []string{"calories", "protein_g", "source", "verification_status", "last_verified_at", "notes", "updated_at"},
		FillCols:     []string{"default_price"},
	}, rows)
	return res, eris.Wrap(err, "postgres: upsert manual items")
}

func (s *PostgresStore) ListMenuItems(ctx context.Context, brandID string) ([]model.MenuItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, brand_id, name, calories, protein_g, default_price::float8, source, external_ref,
			verification_status, last_verified_at, notes, updated_at
		FROM menu_items WHERE brand_id = $1 ORDER BY name`,
		brandID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list menu items %s", brandID)
	}
	defer rows.Close()

	var items []model.MenuItem
	for rows.Next() {
		var it model.MenuItem
		var source, status string
		if err := rows.Scan(&it.ID, &it.BrandID, &it.Name, &it.Calories, &it.ProteinG, &it.DefaultPrice,
			&source, &it.ExternalRef, &status, &it.LastVerifiedAt, &it.Notes, &it.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan menu item")
		}
		it.Source = model.ItemSource(source)
		it.VerificationStatus = model.Verification(status)
		items = append(items, it)
	}
	return items, eris.Wrap(rows.Err(), "postgres: iterate menu items")
}

// --- Prices and ranking ---

func (s *PostgresStore) SetPrice(ctx context.Context, placeID, itemID string, price float64) (*model.PriceReport, error) {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx, priceUpsertPG, placeID, itemID, price, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, eris.Wrapf(ErrNotFound, "postgres: place %s or item %s", placeID, itemID)
		}
		return nil, eris.Wrap(err, "postgres: set price")
	}
	return &model.PriceReport{PlaceID: placeID, ItemID: itemID, Price: price, UpdatedAt: now}, nil
}

func (s *PostgresStore) Candidates(ctx context.Context, f CandidateFilter) ([]model.Candidate, error) {
	var where []string
	var args []any
	if f.Bounds != nil {
		minLat, maxLat, minLng, maxLng := boundsArgs(f.Bounds)
		args = append(args, minLat, maxLat, minLng, maxLng)
		where = append(where, "p.lat BETWEEN $1 AND $2 AND p.lng BETWEEN $3 AND $4")
	}
	if len(f.IncludeBrands) > 0 {
		args = append(args, f.IncludeBrands)
		where = append(where, fmt.Sprintf("b.key = ANY($%d)", len(args)))
	}

	// NUMERIC columns are cast so they scan into float64.
	q := strings.Replace(candidateSelect, "m.default_price,", "m.default_price::float8,", 1)
	q = strings.Replace(q, "r.price,", "r.price::float8,", 1)
	if len(where) > 0 {
		q += "\nWHERE " + strings.Join(where, " AND ")
	}
	q += "\nORDER BY p.id, m.id"

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: candidates")
	}
	defer rows.Close()

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
			return nil, eris.Wrap(err, "postgres: scan candidate")
		}
		c.Item.BrandID = c.Place.BrandID
		c.Item.Source = model.ItemSource(source)
		c.Item.VerificationStatus = model.Verification(status)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate candidates")
}

func (s *PostgresStore) Counts(ctx context.Context) (*model.StoreCounts, error) {
	var c model.StoreCounts
	err := s.pool.QueryRow(ctx, `SELECT
		(SELECT count(*) FROM brands),
		(SELECT count(*) FROM places),
		(SELECT count(*) FROM menu_items),
		(SELECT count(*) FROM price_reports)`,
	).Scan(&c.Brands, &c.Places, &c.MenuItems, &c.PriceReports)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: counts")
	}
	return &c, nil
}

// --- Seed jobs ---

func (s *PostgresStore) CreateSeedJob(ctx context.Context, job *model.SeedJob) error {
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
		return eris.Wrap(err, "postgres: marshal seed results")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO seed_jobs (id, status, radius_km, total, processed, succeeded, failed, results, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		job.ID, string(job.Status), job.RadiusKm, job.Total, job.Processed, job.Succeeded, job.Failed,
		results, job.Error, now, now,
	)
	return eris.Wrap(err, "postgres: insert seed job")
}

func (s *PostgresStore) UpdateSeedJob(ctx context.Context, job *model.SeedJob) error {
	job.UpdatedAt = time.Now().UTC()
	results, err := json.Marshal(nonNilOutcomes(job.Results))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal seed results")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE seed_jobs SET status = $1, processed = $2, succeeded = $3, failed = $4, results = $5,
			error = $6, updated_at = $7, completed_at = $8 WHERE id = $9`,
		string(job.Status), job.Processed, job.Succeeded, job.Failed, results,
		job.Error, job.UpdatedAt, job.CompletedAt, job.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update seed job %s", job.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: seed job %s", job.ID)
	}
	return nil
}

const seedJobSelectPG = `SELECT id, status, radius_km, total, processed, succeeded, failed, results, error,
	created_at, updated_at, completed_at FROM seed_jobs`

func (s *PostgresStore) GetSeedJob(ctx context.Context, id string) (*model.SeedJob, error) {
	job, err := scanSeedJobPG(s.pool.QueryRow(ctx, seedJobSelectPG+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: seed job %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get seed job %s", id)
	}
	return job, nil
}

func (s *PostgresStore) ListSeedJobs(ctx context.Context, limit int) ([]model.SeedJob, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, seedJobSelectPG+` ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list seed jobs")
	}
	defer rows.Close()

	var jobs []model.SeedJob
	for rows.Next() {
		job, err := scanSeedJobPG(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan seed job")
		}
		jobs = append(jobs, *job)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: iterate seed jobs")
}

func scanSeedJobPG(row pgx.Row) (*model.SeedJob, error) {
	var j model.SeedJob
	var status string
	var results []byte
	if err := row.Scan(&j.ID, &status, &j.RadiusKm, &j.Total, &j.Processed, &j.Succeeded, &j.Failed,
		&results, &j.Error, &j.CreatedAt, &j.UpdatedAt, &j.CompletedAt); err != nil {
		return nil, err
	}
	j.Status = model.SeedStatus(status)
	if len(results) > 0 {
		if err := json.Unmarshal(results, &j.Results); err != nil {
			return nil, eris.Wrap(err, "unmarshal seed results")
		}
	}
	return &j, nil
}

func nonNilOutcomes(in []model.MetroOutcome) []model.MetroOutcome {
	if in == nil {
		return []model.MetroOutcome{}
	}
	return in
}
