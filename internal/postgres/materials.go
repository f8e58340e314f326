package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	embodiedflows "github.com/superdango/embodied-flows"
	"github.com/superdango/embodied-flows/internal/must"
	"github.com/superdango/embodied-flows/model/catalog"
)

// Schema of the materials table. Wastage is stored as a ratio of installed
// quantity and a null or negative service life means never replaced, like
// catalog files.
const Schema = `
CREATE TABLE IF NOT EXISTS materials (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  category TEXT NOT NULL DEFAULT '',
  functional_unit TEXT NOT NULL,
  density DOUBLE PRECISION,
  energy DOUBLE PRECISION NOT NULL,
  water DOUBLE PRECISION NOT NULL,
  ghg DOUBLE PRECISION NOT NULL,
  service_life DOUBLE PRECISION,
  wastage DOUBLE PRECISION,
  doi TEXT,
  process_energy DOUBLE PRECISION,
  process_water DOUBLE PRECISION,
  process_ghg DOUBLE PRECISION
);
`

const maxPingAttempts = 20

// Source loads the catalog from a Postgres materials table.
type Source struct {
	pool *pgxpool.Pool
}

// Connect opens a pool on dsn and waits until the database answers or ctx is done.
func Connect(ctx context.Context, dsn string) (*Source, error) {
	if dsn == "" {
		return nil, fmt.Errorf("db url missing")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	wait := must.NewWait(2 * time.Second)
	for attempt := 1; ; attempt++ {
		err = pool.Ping(ctx)
		if err == nil {
			break
		}
		slog.Debug("waiting for database", "attempt", attempt, "err", err)
		if attempt == maxPingAttempts || !wait.Linearly(ctx, 100*time.Millisecond) {
			pool.Close()
			return nil, fmt.Errorf("ping db: %w", err)
		}
	}

	return &Source{pool: pool}, nil
}

// Migrate creates the materials table when missing.
func (s *Source) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create materials table: %w", err)
	}
	return nil
}

// Upsert writes records, replacing existing rows sharing the same id.
func (s *Source) Upsert(ctx context.Context, records []embodiedflows.Record) error {
	batch := new(pgx.Batch)
	for _, r := range records {
		serviceLife := -1.0
		if !r.ServiceLife.IsInfinite() {
			serviceLife = float64(r.ServiceLife)
		}
		batch.Queue(`
INSERT INTO materials (id, name, category, functional_unit, density, energy, water, ghg,
  service_life, wastage, doi, process_energy, process_water, process_ghg)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (id) DO UPDATE
SET name = EXCLUDED.name,
    category = EXCLUDED.category,
    functional_unit = EXCLUDED.functional_unit,
    density = EXCLUDED.density,
    energy = EXCLUDED.energy,
    water = EXCLUDED.water,
    ghg = EXCLUDED.ghg,
    service_life = EXCLUDED.service_life,
    wastage = EXCLUDED.wastage,
    doi = EXCLUDED.doi,
    process_energy = EXCLUDED.process_energy,
    process_water = EXCLUDED.process_water,
    process_ghg = EXCLUDED.process_ghg
`, r.ID, r.Name, r.Category, string(r.FunctionalUnit), r.Density,
			r.Coefficients.Energy, r.Coefficients.Water, r.Coefficients.GHG,
			serviceLife, catalog.WastageRatio(r.Wastage), r.DOI,
			r.ProcessShares.Energy, r.ProcessShares.Water, r.ProcessShares.GHG)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert materials: %w", err)
	}
	return nil
}

// Load reads every material ordered by id.
func (s *Source) Load(ctx context.Context) (*catalog.Catalog, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, name, category, functional_unit, density, energy, water, ghg,
  service_life, wastage, doi, process_energy, process_water, process_ghg
FROM materials
ORDER BY id
`)
	if err != nil {
		return nil, fmt.Errorf("query materials: %w", err)
	}
	defer rows.Close()

	records := make([]embodiedflows.Record, 0)
	for rows.Next() {
		var (
			r                                       embodiedflows.Record
			fu                                      string
			density, serviceLife, wastage           *float64
			doi                                     *string
			processEnergy, processWater, processGHG *float64
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Category, &fu, &density,
			&r.Coefficients.Energy, &r.Coefficients.Water, &r.Coefficients.GHG,
			&serviceLife, &wastage, &doi, &processEnergy, &processWater, &processGHG); err != nil {
			return nil, fmt.Errorf("scan material: %w", err)
		}

		r.FunctionalUnit, err = embodiedflows.ParseFunctionalUnit(fu)
		if err != nil {
			return nil, fmt.Errorf("material %s: %w", r.ID, err)
		}
		r.Density = deref(density)
		r.ServiceLife = catalog.ServiceLifeFromYears(deref(serviceLife))
		r.Wastage = catalog.WastageFromRatio(deref(wastage))
		if doi != nil {
			r.DOI = *doi
		}
		r.ProcessShares = embodiedflows.Flows{
			Energy: deref(processEnergy),
			Water:  deref(processWater),
			GHG:    deref(processGHG),
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate materials: %w", err)
	}

	slog.Info("catalog loaded from postgres", "materials", len(records))

	return catalog.New(records), nil
}

func (s *Source) String() string { return "postgres" }

func (s *Source) Close() {
	s.pool.Close()
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
