// Package applications provides the PostgreSQL-backed application store.
package applications

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/scholarstream/internal/common"
	"github.com/dmitrijs2005/scholarstream/internal/dbx"
	"github.com/dmitrijs2005/scholarstream/internal/server/models"
	"github.com/google/uuid"
)

const uniqueUserScholarship = "applications_user_scholarship_key"

// PostgresRepository implements application storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// newID is a seam for tests.
var newID = func() string { return uuid.NewString() }

// Create inserts a pending, unpaid application and fills in ID and
// CreatedAt. A second application by the same user to the same scholarship
// returns common.ErrAlreadyExists.
func (r *PostgresRepository) Create(ctx context.Context, app *models.Application) (*models.Application, error) {
	query := `
		INSERT INTO applications (id, user_email, scholarship_id, application_status, payment_status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`

	if app.ID == "" {
		app.ID = newID()
	}
	if app.ApplicationStatus == "" {
		app.ApplicationStatus = models.ApplicationPending
	}
	app.PaymentStatus = models.PaymentUnpaid
	app.TrackingID = ""
	app.PaidAt = nil

	err := r.db.QueryRowContext(ctx, query,
		app.ID, app.UserEmail, app.ScholarshipID, app.ApplicationStatus, app.PaymentStatus).Scan(&app.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err, uniqueUserScholarship) {
			return nil, common.ErrAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return app, nil
}

const selectColumns = `id, user_email, scholarship_id, application_status, payment_status, tracking_id, created_at, paid_at`

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Application, error) {
	query := `SELECT ` + selectColumns + ` FROM applications WHERE id = $1`

	app, err := scanApplication(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return app, nil
}

// ListByUser returns the user's applications, newest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, email string) ([]*models.Application, error) {
	query := `SELECT ` + selectColumns + ` FROM applications WHERE user_email = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("failed to select applications: %w", err)
	}
	defer rows.Close()

	var result []*models.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, app)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkPaid is the conditional unpaid -> paid transition. Exactly one of any
// number of concurrent callers observes true.
func (r *PostgresRepository) MarkPaid(ctx context.Context, id, trackingID string, paidAt time.Time) (bool, error) {
	query := `
		UPDATE applications
		SET payment_status = 'paid', tracking_id = $2, paid_at = $3
		WHERE id = $1 AND payment_status = 'unpaid'
	`
	res, err := r.db.ExecContext(ctx, query, id, trackingID, paidAt)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected rows affected: %d", n)
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanApplication(s scanner) (*models.Application, error) {
	var (
		app        models.Application
		trackingID sql.NullString
		paidAt     sql.NullTime
	)
	if err := s.Scan(&app.ID, &app.UserEmail, &app.ScholarshipID, &app.ApplicationStatus,
		&app.PaymentStatus, &trackingID, &app.CreatedAt, &paidAt); err != nil {
		return nil, err
	}
	app.TrackingID = trackingID.String
	app.CreatedAt = app.CreatedAt.UTC()
	if paidAt.Valid {
		t := paidAt.Time.UTC()
		app.PaidAt = &t
	}
	return &app, nil
}
