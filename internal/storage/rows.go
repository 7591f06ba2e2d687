package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"coown/internal/core"
)

// ErrExpenseNotFound is returned by ExpenseWithSplits for an unknown id.
var ErrExpenseNotFound = errors.New("expense not found")

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// collectTemplates drains a template query. Both backends select the same
// columns in the same order.
func collectTemplates(rows *sql.Rows) ([]core.RecurringTemplate, error) {
	var templates []core.RecurringTemplate
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, *tpl)
	}
	return templates, rows.Err()
}

func scanTemplate(row rowScanner) (*core.RecurringTemplate, error) {
	var (
		tpl       core.RecurringTemplate
		method    string
		config    string
		frequency string
		startDate string
		nextDue   string
		endDate   sql.NullString
	)
	err := row.Scan(&tpl.ID, &tpl.PropertyID, &tpl.Description, &tpl.Amount.Cents,
		&tpl.Category, &tpl.PayerID, &method, &config, &frequency, &tpl.Interval,
		&startDate, &nextDue, &endDate, &tpl.Active, &tpl.Notes)
	if err != nil {
		return nil, fmt.Errorf("scan template: %w", err)
	}

	tpl.Method = core.SplitMethod(method)
	tpl.Frequency = core.Frequency(frequency)
	if err := json.Unmarshal([]byte(config), &tpl.Config); err != nil {
		return nil, fmt.Errorf("unmarshal split config for %s: %w", tpl.ID, err)
	}
	if tpl.StartDate, err = core.ParseDate(startDate); err != nil {
		return nil, fmt.Errorf("parse start date for %s: %w", tpl.ID, err)
	}
	if tpl.NextDue, err = core.ParseDate(nextDue); err != nil {
		return nil, fmt.Errorf("parse next due date for %s: %w", tpl.ID, err)
	}
	if endDate.Valid && endDate.String != "" {
		if tpl.EndDate, err = core.ParseDate(endDate.String); err != nil {
			return nil, fmt.Errorf("parse end date for %s: %w", tpl.ID, err)
		}
	}
	return &tpl, nil
}

func scanExpense(row rowScanner) (*core.Expense, error) {
	var (
		e          core.Expense
		method     string
		date       string
		receiptURL sql.NullString
	)
	err := row.Scan(&e.ID, &e.PropertyID, &e.Description, &e.Amount.Cents, &date,
		&e.Category, &e.PayerID, &method, &e.Notes, &receiptURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrExpenseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan expense: %w", err)
	}

	e.Method = core.SplitMethod(method)
	e.ReceiptURL = receiptURL.String
	if e.Date, err = core.ParseDate(date); err != nil {
		return nil, fmt.Errorf("parse expense date for %s: %w", e.ID, err)
	}
	return &e, nil
}

func collectSplits(rows *sql.Rows) ([]core.Split, error) {
	var splits []core.Split
	for rows.Next() {
		var (
			sp     core.Split
			status string
		)
		if err := rows.Scan(&sp.UserID, &sp.Amount.Cents, &status); err != nil {
			return nil, fmt.Errorf("scan split: %w", err)
		}
		sp.Status = core.SplitStatus(status)
		splits = append(splits, sp)
	}
	return splits, rows.Err()
}
