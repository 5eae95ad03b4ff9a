package property

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Create(ctx context.Context, tx pgx.Tx, p Property) (Property, error)
	Get(ctx context.Context, id string) (Property, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Property, error)
	List(ctx context.Context, filter ListFilter) ([]Property, error)
	Update(ctx context.Context, tx pgx.Tx, id string, params UpdateParams, at time.Time) (Property, error)
	SetVerification(ctx context.Context, tx pgx.Tx, id string, status Status, at time.Time) (Property, error)
	SetAdvertised(ctx context.Context, tx pgx.Tx, id string, advertised bool, at time.Time) (Property, error)
	Delete(ctx context.Context, tx pgx.Tx, id string) (Property, error)
	DeleteByAgent(ctx context.Context, tx pgx.Tx, agentEmail string) (int64, error)
	CreateReport(ctx context.Context, tx pgx.Tx, r Report) (Report, error)
	ListReports(ctx context.Context) ([]Report, error)
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const propertyColumns = `id::text, agent_email, agent_name, agent_image, title, location, image_url,
	price_min, price_max, description, verification_status, is_advertised, verified_at, created_at, updated_at`

func (r *PGRepository) Create(ctx context.Context, tx pgx.Tx, p Property) (Property, error) {
	const query = `
		INSERT INTO properties (agent_email, agent_name, agent_image, title, location, image_url,
			price_min, price_max, description, verification_status, is_advertised, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		RETURNING ` + propertyColumns

	created, err := scanProperty(tx.QueryRow(ctx, query,
		p.AgentEmail,
		p.AgentName,
		p.AgentImage,
		p.Title,
		p.Location,
		p.ImageURL,
		p.PriceMin,
		p.PriceMax,
		p.Description,
		p.VerificationStatus,
		p.IsAdvertised,
		p.CreatedAt,
	))
	if err != nil {
		return Property{}, fmt.Errorf("property: create: %w", err)
	}
	return created, nil
}

func (r *PGRepository) Get(ctx context.Context, id string) (Property, error) {
	query := `SELECT ` + propertyColumns + ` FROM properties WHERE id = $1`
	return r.one(r.pool.QueryRow(ctx, query, id), "get")
}

func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Property, error) {
	query := `SELECT ` + propertyColumns + ` FROM properties WHERE id = $1 FOR UPDATE`
	return r.one(tx.QueryRow(ctx, query, id), "get for update")
}

func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]Property, error) {
	where := []string{"1=1"}
	args := []any{}

	if filter.AgentEmail != "" {
		where = append(where, fmt.Sprintf("lower(agent_email) = lower($%d)", len(args)+1))
		args = append(args, filter.AgentEmail)
	}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("verification_status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Advertised != nil {
		where = append(where, fmt.Sprintf("is_advertised = $%d", len(args)+1))
		args = append(args, *filter.Advertised)
	}

	query := `SELECT ` + propertyColumns + ` FROM properties WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("property: query list: %w", err)
	}
	defer rows.Close()

	list := []Property{}
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("property: scan list: %w", err)
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("property: list rows: %w", err)
	}
	return list, nil
}

func (r *PGRepository) Update(ctx context.Context, tx pgx.Tx, id string, params UpdateParams, at time.Time) (Property, error) {
	const query = `
		UPDATE properties
		SET title = COALESCE($2, title),
		    location = COALESCE($3, location),
		    image_url = COALESCE($4, image_url),
		    price_min = COALESCE($5, price_min),
		    price_max = COALESCE($6, price_max),
		    description = COALESCE($7, description),
		    updated_at = $8
		WHERE id = $1
		RETURNING ` + propertyColumns

	row := tx.QueryRow(ctx, query, id, params.Title, params.Location, params.ImageURL,
		params.PriceMin, params.PriceMax, params.Description, at)
	return r.one(row, "update")
}

// SetVerification is last-write-wins; every call re-stamps verified_at.
func (r *PGRepository) SetVerification(ctx context.Context, tx pgx.Tx, id string, status Status, at time.Time) (Property, error) {
	const query = `
		UPDATE properties
		SET verification_status = $2,
		    verified_at = $3,
		    updated_at = $3
		WHERE id = $1
		RETURNING ` + propertyColumns
	return r.one(tx.QueryRow(ctx, query, id, status, at), "set verification")
}

// SetAdvertised stamps updated_at only when advertising is switched on.
func (r *PGRepository) SetAdvertised(ctx context.Context, tx pgx.Tx, id string, advertised bool, at time.Time) (Property, error) {
	const query = `
		UPDATE properties
		SET is_advertised = $2,
		    updated_at = CASE WHEN $2 THEN $3 ELSE updated_at END
		WHERE id = $1
		RETURNING ` + propertyColumns
	return r.one(tx.QueryRow(ctx, query, id, advertised, at), "set advertised")
}

func (r *PGRepository) Delete(ctx context.Context, tx pgx.Tx, id string) (Property, error) {
	query := `DELETE FROM properties WHERE id = $1 RETURNING ` + propertyColumns
	return r.one(tx.QueryRow(ctx, query, id), "delete")
}

func (r *PGRepository) DeleteByAgent(ctx context.Context, tx pgx.Tx, agentEmail string) (int64, error) {
	tag, err := tx.Exec(ctx, `DELETE FROM properties WHERE lower(agent_email) = lower($1)`, agentEmail)
	if err != nil {
		return 0, fmt.Errorf("property: delete by agent: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PGRepository) CreateReport(ctx context.Context, tx pgx.Tx, rep Report) (Report, error) {
	const query = `
		INSERT INTO property_reports (property_id, property_title, agent_email, reporter_email, reporter_name, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id::text, property_id::text, property_title, agent_email, reporter_email, reporter_name, description, created_at
	`
	created, err := scanReport(tx.QueryRow(ctx, query,
		rep.PropertyID, rep.PropertyTitle, rep.AgentEmail, rep.ReporterEmail, rep.ReporterName, rep.Description, rep.CreatedAt))
	if err != nil {
		return Report{}, fmt.Errorf("property: create report: %w", err)
	}
	return created, nil
}

func (r *PGRepository) ListReports(ctx context.Context) ([]Report, error) {
	const query = `
		SELECT id::text, property_id::text, property_title, agent_email, reporter_email, reporter_name, description, created_at
		FROM property_reports
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("property: query reports: %w", err)
	}
	defer rows.Close()

	list := []Report{}
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("property: scan report: %w", err)
		}
		list = append(list, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("property: report rows: %w", err)
	}
	return list, nil
}

func (r *PGRepository) one(row pgx.Row, op string) (Property, error) {
	p, err := scanProperty(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Property{}, ErrNotFound
		}
		return Property{}, fmt.Errorf("property: %s: %w", op, err)
	}
	return p, nil
}

func scanProperty(row pgx.Row) (Property, error) {
	var p Property
	err := row.Scan(
		&p.ID,
		&p.AgentEmail,
		&p.AgentName,
		&p.AgentImage,
		&p.Title,
		&p.Location,
		&p.ImageURL,
		&p.PriceMin,
		&p.PriceMax,
		&p.Description,
		&p.VerificationStatus,
		&p.IsAdvertised,
		&p.VerifiedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}

func scanReport(row pgx.Row) (Report, error) {
	var rep Report
	err := row.Scan(
		&rep.ID,
		&rep.PropertyID,
		&rep.PropertyTitle,
		&rep.AgentEmail,
		&rep.ReporterEmail,
		&rep.ReporterName,
		&rep.Description,
		&rep.CreatedAt,
	)
	return rep, err
}
