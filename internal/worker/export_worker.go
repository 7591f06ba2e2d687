// Package worker exports materialized expenses to an external statement.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"coown/internal/amqp"
	"coown/internal/cache"
	"coown/internal/core"
	"coown/internal/sheets"
)

// ExpenseLoader loads an expense with its splits by id.
type ExpenseLoader interface {
	ExpenseWithSplits(ctx context.Context, id string) (*core.Expense, error)
}

// SeenTTL bounds how long an exported expense id is remembered for
// redelivery dedupe.
const SeenTTL = 15 * time.Minute

// ExportWorker handles expense-created messages by loading the expense and
// appending it to the statement. Redelivered messages are deduplicated with a
// TTL cache keyed by expense id; callers own the cache so they can register
// it for periodic expiry sweeps.
type ExportWorker struct {
	store     ExpenseLoader
	statement sheets.StatementAppender
	seen      cache.Cache[struct{}]
}

func NewExportWorker(store ExpenseLoader, statement sheets.StatementAppender, seen cache.Cache[struct{}]) *ExportWorker {
	return &ExportWorker{
		store:     store,
		statement: statement,
		seen:      seen,
	}
}

// HandleExpenseCreated processes a single expense-created message.
func (w *ExportWorker) HandleExpenseCreated(ctx context.Context, msg *amqp.ExpenseCreatedMessage) error {
	if _, dup := w.seen.Get(msg.ExpenseID); dup {
		slog.InfoContext(ctx, "Skipping already exported expense", "expense_id", msg.ExpenseID)
		return nil
	}

	expense, err := w.store.ExpenseWithSplits(ctx, msg.ExpenseID)
	if err != nil {
		return fmt.Errorf("load expense %s: %w", msg.ExpenseID, err)
	}

	rowRef, err := w.statement.AppendExpense(ctx, *expense)
	if err != nil {
		return fmt.Errorf("append expense %s: %w", msg.ExpenseID, err)
	}

	w.seen.Set(msg.ExpenseID, struct{}{})

	slog.InfoContext(ctx, "Exported expense to statement",
		"expense_id", msg.ExpenseID,
		"property_id", expense.PropertyID,
		"row", rowRef)

	return nil
}
