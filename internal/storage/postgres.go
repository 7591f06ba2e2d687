package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"coown/internal/core"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

var _ Store = (*PostgresStore)(nil)

// PostgresStore is the hosted backend for deployments where the worker and
// the application share one database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects with the given DSN and runs migrations.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runPostgresMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *PostgresStore) DueTemplates(ctx context.Context, asOf core.Date) ([]core.RecurringTemplate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+templateColumns+`
		 FROM recurring_expenses
		 WHERE active = TRUE AND next_due_date <= $1
		 ORDER BY next_due_date, id`,
		asOf.String())
	if err != nil {
		return nil, fmt.Errorf("query due templates: %w", err)
	}
	defer rows.Close()

	return collectTemplates(rows)
}

func (s *PostgresStore) UpdateTemplate(ctx context.Context, id string, nextDue core.Date, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE recurring_expenses SET next_due_date = $1, active = $2 WHERE id = $3`,
		nextDue.String(), active, id)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	return requireOneRow(res, id)
}

func (s *PostgresStore) DeactivateTemplate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE recurring_expenses SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate template: %w", err)
	}
	return requireOneRow(res, id)
}

func (s *PostgresStore) CreateTemplate(ctx context.Context, tpl core.RecurringTemplate) error {
	if err := tpl.Validate(); err != nil {
		return fmt.Errorf("validate template: %w", err)
	}
	if tpl.ID == "" {
		tpl.ID = uuid.New().String()
	}
	cfg, err := json.Marshal(tpl.Config)
	if err != nil {
		return fmt.Errorf("marshal split config: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO recurring_expenses (`+templateColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		tpl.ID, tpl.PropertyID, tpl.Description, tpl.Amount.Cents, tpl.Category, tpl.PayerID,
		string(tpl.Method), string(cfg), string(tpl.Frequency), tpl.Interval,
		tpl.StartDate.String(), tpl.NextDue.String(), nullableDate(tpl.EndDate), tpl.Active, tpl.Notes)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

func (s *PostgresStore) PropertyMembers(ctx context.Context, propertyID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM property_members WHERE property_id = $1 ORDER BY user_id`,
		propertyID)
	if err != nil {
		return nil, fmt.Errorf("query property members: %w", err)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, userID)
	}
	return members, rows.Err()
}

func (s *PostgresStore) AddPropertyMember(ctx context.Context, propertyID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO property_members (property_id, user_id) VALUES ($1, $2)`,
		propertyID, userID)
	if err != nil {
		return fmt.Errorf("insert property member: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateExpenseWithSplits(ctx context.Context, e core.Expense) (string, error) {
	if err := e.Validate(); err != nil {
		return "", fmt.Errorf("validate expense: %w", err)
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO expenses (id, property_id, description, amount_cents, expense_date,
		                       category, payer_id, split_method, notes, receipt_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.PropertyID, e.Description, e.Amount.Cents, e.Date.String(),
		e.Category, e.PayerID, string(e.Method), e.Notes, nullableString(e.ReceiptURL))
	if err != nil {
		return "", fmt.Errorf("insert expense: %w", err)
	}

	for _, sp := range e.Splits {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO expense_splits (expense_id, user_id, amount_cents, status)
			 VALUES ($1, $2, $3, $4)`,
			e.ID, sp.UserID, sp.Amount.Cents, string(sp.Status))
		if err != nil {
			return "", fmt.Errorf("insert split for %s: %w", sp.UserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved",
		"id", e.ID,
		"property_id", e.PropertyID,
		"amount_cents", e.Amount.Cents,
		"splits", len(e.Splits))

	return e.ID, nil
}

func (s *PostgresStore) ExpenseWithSplits(ctx context.Context, id string) (*core.Expense, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, property_id, description, amount_cents, expense_date,
		        category, payer_id, split_method, notes, receipt_url
		 FROM expenses WHERE id = $1`, id)

	e, err := scanExpense(row)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, amount_cents, status FROM expense_splits
		 WHERE expense_id = $1 ORDER BY user_id`, id)
	if err != nil {
		return nil, fmt.Errorf("query splits: %w", err)
	}
	defer rows.Close()

	e.Splits, err = collectSplits(rows)
	if err != nil {
		return nil, err
	}
	return e, nil
}
