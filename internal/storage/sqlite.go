package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"coown/internal/core"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore is the single-node backend over a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) the database at dbPath and
// runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := runSQLiteMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

const templateColumns = `id, property_id, description, amount_cents, category, payer_id,
	split_method, split_config, frequency, recur_interval,
	start_date, next_due_date, end_date, active, notes`

func (s *SQLiteStore) DueTemplates(ctx context.Context, asOf core.Date) ([]core.RecurringTemplate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+templateColumns+`
		 FROM recurring_expenses
		 WHERE active = 1 AND next_due_date <= ?
		 ORDER BY next_due_date, id`,
		asOf.String())
	if err != nil {
		return nil, fmt.Errorf("query due templates: %w", err)
	}
	defer rows.Close()

	return collectTemplates(rows)
}

func (s *SQLiteStore) UpdateTemplate(ctx context.Context, id string, nextDue core.Date, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE recurring_expenses SET next_due_date = ?, active = ? WHERE id = ?`,
		nextDue.String(), active, id)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	return requireOneRow(res, id)
}

func (s *SQLiteStore) DeactivateTemplate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE recurring_expenses SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deactivate template: %w", err)
	}
	return requireOneRow(res, id)
}

func (s *SQLiteStore) CreateTemplate(ctx context.Context, tpl core.RecurringTemplate) error {
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
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tpl.ID, tpl.PropertyID, tpl.Description, tpl.Amount.Cents, tpl.Category, tpl.PayerID,
		string(tpl.Method), string(cfg), string(tpl.Frequency), tpl.Interval,
		tpl.StartDate.String(), tpl.NextDue.String(), nullableDate(tpl.EndDate), tpl.Active, tpl.Notes)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PropertyMembers(ctx context.Context, propertyID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM property_members WHERE property_id = ? ORDER BY user_id`,
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

func (s *SQLiteStore) AddPropertyMember(ctx context.Context, propertyID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO property_members (property_id, user_id) VALUES (?, ?)`,
		propertyID, userID)
	if err != nil {
		return fmt.Errorf("insert property member: %w", err)
	}
	return nil
}

// CreateExpenseWithSplits inserts the expense and all of its splits in one
// transaction. Either everything lands or nothing does.
func (s *SQLiteStore) CreateExpenseWithSplits(ctx context.Context, e core.Expense) (string, error) {
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
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.PropertyID, e.Description, e.Amount.Cents, e.Date.String(),
		e.Category, e.PayerID, string(e.Method), e.Notes, nullableString(e.ReceiptURL))
	if err != nil {
		return "", fmt.Errorf("insert expense: %w", err)
	}

	for _, sp := range e.Splits {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO expense_splits (expense_id, user_id, amount_cents, status)
			 VALUES (?, ?, ?, ?)`,
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

func (s *SQLiteStore) ExpenseWithSplits(ctx context.Context, id string) (*core.Expense, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, property_id, description, amount_cents, expense_date,
		        category, payer_id, split_method, notes, receipt_url
		 FROM expenses WHERE id = ?`, id)

	e, err := scanExpense(row)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, amount_cents, status FROM expense_splits
		 WHERE expense_id = ? ORDER BY user_id`, id)
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

func requireOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("template %s not found", id)
	}
	return nil
}

func nullableDate(d core.Date) any {
	if d.IsZero() {
		return nil
	}
	return d.String()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
