package candidate

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roomcommute/roomcommute/pkg/geo"
)

// PostgresRepository is a PostgreSQL implementation of Repository over the rooms table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates a repository using pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const selectColumns = `
	id, gu, dong, COALESCE(lot_number, ''), COALESCE(building, ''), COALESCE(address_full, ''),
	COALESCE(contract_date, ''), rent_type, deposit, COALESCE(rent_fee, 0), COALESCE(area, 0),
	COALESCE(floor, 0), COALESCE(arch_year, 0), COALESCE(image, ''),
	x, y, geocode_status, geocode_attempts, COALESCE(geocode_source, ''), geocode_updated_at`

// updateGeocodeSQL never overwrites a SUCCESS row and counts the attempt in
// the row itself, so concurrent tick and sweep writes do not lose increments.
const updateGeocodeSQL = `
	UPDATE rooms
	SET x = $2, y = $3, geocode_status = $4, geocode_attempts = geocode_attempts + 1,
	    geocode_source = NULLIF($5, ''), geocode_updated_at = $6
	WHERE id = $1 AND geocode_status <> 'SUCCESS'`

// FindByArea returns candidates in a district and subdistrict ordered by id.
func (r *PostgresRepository) FindByArea(ctx context.Context, district, subdistrict string) ([]*Candidate, error) {
	query := `SELECT` + selectColumns + `
		FROM rooms
		WHERE gu = $1 AND dong = $2
		ORDER BY id`

	return r.query(ctx, query, district, subdistrict)
}

// NextPendingGeocode returns the oldest eligible PENDING candidate.
func (r *PostgresRepository) NextPendingGeocode(ctx context.Context, maxAttempts int) (*Candidate, error) {
	query := `SELECT` + selectColumns + `
		FROM rooms
		WHERE geocode_status = $1 AND geocode_attempts < $2
		ORDER BY id
		LIMIT 1`

	items, err := r.query(ctx, query, string(GeocodeStatusPending), maxAttempts)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	return items[0], nil
}

// FindMissingCoordinates returns candidates whose x or y is null or zero.
func (r *PostgresRepository) FindMissingCoordinates(ctx context.Context) ([]*Candidate, error) {
	query := `SELECT` + selectColumns + `
		FROM rooms
		WHERE x IS NULL OR x = 0 OR y IS NULL OR y = 0
		ORDER BY id`

	return r.query(ctx, query)
}

// Create inserts c and sets its ID.
func (r *PostgresRepository) Create(ctx context.Context, c *Candidate) error {
	if c.GeocodeStatus == "" {
		c.GeocodeStatus = GeocodeStatusPending
	}
	x, y := nullableCoords(c.Location)

	query := `
		INSERT INTO rooms (
			gu, dong, lot_number, building, address_full, contract_date, rent_type,
			deposit, rent_fee, area, floor, arch_year, image,
			x, y, geocode_status, geocode_attempts, geocode_source, geocode_updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NULLIF($18, ''), $19)
		RETURNING id`

	return r.pool.QueryRow(ctx, query,
		c.District, c.Subdistrict, c.LotNumber, c.Building, c.Address, c.ContractDate, string(c.RentType),
		c.Deposit, c.MonthlyFee, c.AreaM2, c.Floor, c.BuiltYear, c.ImageURL,
		x, y, string(c.GeocodeStatus), c.GeocodeAttempts, c.GeocodeSource, c.GeocodedAt,
	).Scan(&c.ID)
}

// UpdateGeocode writes one candidate's geocode fields in a single statement.
// A row that is already SUCCESS is left untouched.
func (r *PostgresRepository) UpdateGeocode(ctx context.Context, c *Candidate) error {
	x, y := nullableCoords(c.Location)
	tag, err := r.pool.Exec(ctx, updateGeocodeSQL,
		c.ID, x, y, string(c.GeocodeStatus), c.GeocodeSource, c.GeocodedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM rooms WHERE id = $1)`, c.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

// UpdateGeocodeBatch sends all updates as one pgx batch inside a transaction.
// Rows already at SUCCESS are skipped.
func (r *PostgresRepository) UpdateGeocodeBatch(ctx context.Context, cs []*Candidate) error {
	if len(cs) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin geocode batch: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }() //nolint:errcheck // no-op after commit

	batch := &pgx.Batch{}
	for _, c := range cs {
		x, y := nullableCoords(c.Location)
		batch.Queue(updateGeocodeSQL,
			c.ID, x, y, string(c.GeocodeStatus), c.GeocodeSource, c.GeocodedAt)
	}

	results := tx.SendBatch(ctx, batch)
	for range cs {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("exec geocode batch: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *PostgresRepository) query(ctx context.Context, query string, args ...any) ([]*Candidate, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

func scanCandidate(row pgx.Row) (*Candidate, error) {
	var (
		c        Candidate
		rentType string
		status   string
		x, y     *float64
	)
	err := row.Scan(
		&c.ID, &c.District, &c.Subdistrict, &c.LotNumber, &c.Building, &c.Address,
		&c.ContractDate, &rentType, &c.Deposit, &c.MonthlyFee, &c.AreaM2,
		&c.Floor, &c.BuiltYear, &c.ImageURL,
		&x, &y, &status, &c.GeocodeAttempts, &c.GeocodeSource, &c.GeocodedAt,
	)
	if err != nil {
		return nil, err
	}

	c.RentType = RentType(rentType)
	c.GeocodeStatus = GeocodeStatus(status)
	if x != nil {
		c.Location.Lng = *x
	}
	if y != nil {
		c.Location.Lat = *y
	}
	return &c, nil
}

// nullableCoords maps an ungeocoded point to SQL NULLs; x is longitude.
func nullableCoords(p geo.Point) (x, y *float64) {
	if !p.Valid() {
		return nil, nil
	}
	lng, lat := p.Lng, p.Lat
	return &lng, &lat
}
