// Package payments provides the PostgreSQL-backed payment ledger.
package payments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/scholarstream/internal/common"
	"github.com/dmitrijs2005/scholarstream/internal/dbx"
	"github.com/dmitrijs2005/scholarstream/internal/server/models"
	"github.com/google/uuid"
)

const uniqueTransaction = "payments_transaction_id_key"

// PostgresRepository implements the ledger over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

var newID = func() string { return uuid.NewString() }

// Insert is the ledger's compare-and-insert: the UNIQUE(transaction_id)
// constraint decides between concurrent writers.
func (r *PostgresRepository) Insert(ctx context.Context, p *models.Payment) error {
	query := `
		INSERT INTO payments (id, transaction_id, session_id, application_id, scholarship_id,
			scholarship_name, university_name, payer_email, amount, currency, tracking_id, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	if p.ID == "" {
		p.ID = newID()
	}

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.TransactionID, p.SessionID, p.ApplicationID, p.ScholarshipID,
		p.ScholarshipName, p.UniversityName, p.PayerEmail, p.Amount, p.Currency, p.TrackingID, p.PaidAt)
	if err != nil {
		if dbx.IsUniqueViolation(err, uniqueTransaction) {
			return common.ErrAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

const selectColumns = `id, transaction_id, session_id, application_id, scholarship_id, scholarship_name,
	university_name, payer_email, amount, currency, tracking_id, paid_at`

func (r *PostgresRepository) GetByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	query := `SELECT ` + selectColumns + ` FROM payments WHERE transaction_id = $1`

	p, err := scanPayment(r.db.QueryRowContext(ctx, query, transactionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return p, nil
}

// ListByPayer returns the payer's ledger entries, newest first.
func (r *PostgresRepository) ListByPayer(ctx context.Context, email string) ([]*models.Payment, error) {
	query := `SELECT ` + selectColumns + ` FROM payments WHERE payer_email = $1 ORDER BY paid_at DESC`
	return r.list(ctx, query, email)
}

func (r *PostgresRepository) ListByApplication(ctx context.Context, applicationID string) ([]*models.Payment, error) {
	query := `SELECT ` + selectColumns + ` FROM payments WHERE application_id = $1 ORDER BY paid_at`
	return r.list(ctx, query, applicationID)
}

func (r *PostgresRepository) list(ctx context.Context, query string, arg string) ([]*models.Payment, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to select payments: %w", err)
	}
	defer rows.Close()

	var result []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPayment(s scanner) (*models.Payment, error) {
	var p models.Payment
	if err := s.Scan(&p.ID, &p.TransactionID, &p.SessionID, &p.ApplicationID, &p.ScholarshipID,
		&p.ScholarshipName, &p.UniversityName, &p.PayerEmail, &p.Amount, &p.Currency,
		&p.TrackingID, &p.PaidAt); err != nil {
		return nil, err
	}
	// pgx returns timestamptz in the session's zone.
	p.PaidAt = p.PaidAt.UTC()
	return &p, nil
}
