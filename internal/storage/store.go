// Package storage provides the persistence backends for templates, members,
// and the expense ledger.
package storage

import (
	"context"
	"fmt"

	"coown/internal/core"
)

// Store is the persistence interface consumed by the materializer and the
// export worker. Both backends implement it.
type Store interface {
	// DueTemplates returns all active templates with next_due_date <= asOf.
	DueTemplates(ctx context.Context, asOf core.Date) ([]core.RecurringTemplate, error)

	// UpdateTemplate persists a template's advanced schedule.
	UpdateTemplate(ctx context.Context, id string, nextDue core.Date, active bool) error

	// DeactivateTemplate clears a template's active flag.
	DeactivateTemplate(ctx context.Context, id string) error

	// CreateTemplate inserts a new recurring-expense template.
	CreateTemplate(ctx context.Context, tpl core.RecurringTemplate) error

	// PropertyMembers returns the user ids currently belonging to a property.
	PropertyMembers(ctx context.Context, propertyID string) ([]string, error)

	// AddPropertyMember adds a user to a property's member set.
	AddPropertyMember(ctx context.Context, propertyID, userID string) error

	// CreateExpenseWithSplits inserts the expense row and all split rows in
	// one transaction and returns the assigned expense id.
	CreateExpenseWithSplits(ctx context.Context, e core.Expense) (string, error)

	// ExpenseWithSplits loads an expense and its splits by id.
	ExpenseWithSplits(ctx context.Context, id string) (*core.Expense, error)

	Close() error
}

// BackendType selects a storage backend.
type BackendType string

const (
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
)

// IsValid returns true for a known backend type.
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, PostgresBackend:
		return true
	default:
		return false
	}
}

// Options selects and configures a backend.
type Options struct {
	Backend      BackendType
	SQLiteDBPath string
	PostgresDSN  string
}

// Open creates the configured store, running migrations on the way up.
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case SQLiteBackend:
		return NewSQLiteStore(opts.SQLiteDBPath)
	case PostgresBackend:
		return NewPostgresStore(opts.PostgresDSN)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %q", opts.Backend)
	}
}
