// Package sheets defines the outbound ports for exporting the ledger.
package sheets

import (
	"context"

	"coown/internal/core"
)

// StatementAppender writes one materialized expense, splits included, to an
// external statement.
type StatementAppender interface {
	AppendExpense(ctx context.Context, e core.Expense) (rowRef string, err error)
}
