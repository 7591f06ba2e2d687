// Package services contains the business logic that turns due recurring
// templates into concrete ledger expenses.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"coown/internal/core"
	"coown/internal/schedule"
	"coown/internal/split"
)

// TemplateSource provides due templates and persists schedule updates.
type TemplateSource interface {
	DueTemplates(ctx context.Context, asOf core.Date) ([]core.RecurringTemplate, error)
	UpdateTemplate(ctx context.Context, id string, nextDue core.Date, active bool) error
	DeactivateTemplate(ctx context.Context, id string) error
}

// Ledger persists a generated expense together with its splits, atomically.
type Ledger interface {
	CreateExpenseWithSplits(ctx context.Context, e core.Expense) (string, error)
}

// MemberDirectory returns the current member set of a property.
type MemberDirectory interface {
	PropertyMembers(ctx context.Context, propertyID string) ([]string, error)
}

// EventPublisher announces a materialized expense to downstream consumers.
// Publish failures never fail the template; the expense is already persisted.
type EventPublisher interface {
	PublishExpenseCreated(ctx context.Context, expenseID, propertyID string) error
}

// Error kinds reported per failed template. Configuration errors mean the
// template data needs fixing; dependency errors mean a collaborator call
// failed; internal errors indicate a defect in the split computation.
const (
	KindConfig     = "config"
	KindDependency = "dependency"
	KindInternal   = "internal"
)

// Materializer converts due recurring-expense templates into expenses with
// computed splits and advances each template's schedule. It holds no mutable
// state of its own; a pass is a pure function of the current date and the
// collaborator calls.
type Materializer struct {
	templates TemplateSource
	ledger    Ledger
	members   MemberDirectory
	events    EventPublisher // optional
}

// NewMaterializer wires a materializer from its collaborators. events may be
// nil when no downstream transport is configured.
func NewMaterializer(templates TemplateSource, ledger Ledger, members MemberDirectory, events EventPublisher) *Materializer {
	return &Materializer{
		templates: templates,
		ledger:    ledger,
		members:   members,
		events:    events,
	}
}

// RunPass materializes every active template due on or before asOf. Each
// template is processed independently: a failure is logged and counted, and
// the pass moves on. The returned error covers only the due-template fetch;
// per-template outcomes are in the summary.
func (m *Materializer) RunPass(ctx context.Context, asOf core.Date) (core.PassSummary, error) {
	var summary core.PassSummary

	due, err := m.templates.DueTemplates(ctx, asOf)
	if err != nil {
		return summary, fmt.Errorf("fetch due templates: %w", err)
	}

	slog.InfoContext(ctx, "Materialization pass started",
		"as_of", asOf.String(),
		"due_templates", len(due))

	for _, tpl := range due {
		created, err := m.processTemplate(ctx, tpl)
		if err != nil {
			summary.Errors++
			slog.ErrorContext(ctx, "Template failed",
				"template_id", tpl.ID,
				"property_id", tpl.PropertyID,
				"kind", classify(err),
				"error", err)
			continue
		}
		summary.Processed++
		if created {
			summary.Created++
		} else {
			summary.Retired++
		}
	}

	slog.InfoContext(ctx, "Materialization pass complete",
		"processed", summary.Processed,
		"errors", summary.Errors,
		"created", summary.Created,
		"retired", summary.Retired)

	return summary, nil
}

// processTemplate runs the full per-template sequence: end-date precheck,
// member fetch, split computation, atomic expense creation, schedule advance.
// A failed template is left untouched so it is retried on the next pass. The
// returned bool reports whether an expense was created.
func (m *Materializer) processTemplate(ctx context.Context, tpl core.RecurringTemplate) (bool, error) {
	// A template already past its end date generates nothing; it is only
	// deactivated so it stops being selected.
	if !tpl.EndDate.IsZero() && tpl.NextDue.AfterDay(tpl.EndDate) {
		if err := m.templates.DeactivateTemplate(ctx, tpl.ID); err != nil {
			return false, fmt.Errorf("deactivate expired template: %w", err)
		}
		slog.InfoContext(ctx, "Template past end date, deactivated",
			"template_id", tpl.ID,
			"end_date", tpl.EndDate.String())
		return false, nil
	}

	// Fetched for every method, not just equal, so a broken membership
	// lookup surfaces the same way regardless of split method.
	members, err := m.members.PropertyMembers(ctx, tpl.PropertyID)
	if err != nil {
		return false, fmt.Errorf("fetch property members: %w", err)
	}

	splits, err := split.Compute(ctx, tpl, members)
	if err != nil {
		return false, fmt.Errorf("compute splits: %w", err)
	}

	// Resolve the next due date before writing anything: a template with an
	// unsupported frequency must fail without creating an expense.
	newDue, err := schedule.Advance(tpl.NextDue, tpl.Frequency, tpl.Interval)
	if err != nil {
		return false, fmt.Errorf("advance schedule: %w", err)
	}

	expense := core.Expense{
		PropertyID:  tpl.PropertyID,
		Description: tpl.Description,
		Amount:      tpl.Amount,
		Date:        tpl.NextDue,
		Category:    tpl.Category,
		PayerID:     tpl.PayerID,
		Method:      tpl.Method,
		Notes:       tpl.Notes,
		Splits:      splits,
	}

	expenseID, err := m.ledger.CreateExpenseWithSplits(ctx, expense)
	if err != nil {
		return false, fmt.Errorf("create expense: %w", err)
	}

	active := true
	if !tpl.EndDate.IsZero() && newDue.AfterDay(tpl.EndDate) {
		active = false
	}
	if err := m.templates.UpdateTemplate(ctx, tpl.ID, newDue, active); err != nil {
		// The expense exists but the schedule did not advance; the next pass
		// will generate it again unless the template is fixed by hand.
		return false, fmt.Errorf("advance template after expense %s was created: %w", expenseID, err)
	}

	slog.InfoContext(ctx, "Expense materialized",
		"template_id", tpl.ID,
		"expense_id", expenseID,
		"amount_cents", tpl.Amount.Cents,
		"splits", len(splits),
		"next_due", newDue.String(),
		"active", active)

	if m.events != nil {
		if err := m.events.PublishExpenseCreated(ctx, expenseID, tpl.PropertyID); err != nil {
			slog.WarnContext(ctx, "Failed to publish expense event",
				"expense_id", expenseID,
				"error", err)
		}
	}

	return true, nil
}

// classify maps a per-template error to its reporting kind.
func classify(err error) string {
	switch {
	case errors.Is(err, split.ErrDrift):
		return KindInternal
	case errors.Is(err, split.ErrEmptyConfig),
		errors.Is(err, split.ErrPercentSum),
		errors.Is(err, split.ErrCustomSum),
		errors.Is(err, split.ErrInvalidShare),
		errors.Is(err, split.ErrUnknownMethod),
		errors.Is(err, core.ErrInvalidFrequency),
		errors.Is(err, core.ErrInvalidInterval):
		return KindConfig
	default:
		return KindDependency
	}
}
