// Package google exports the ledger to a Google Sheets statement.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"coown/internal/core"
	ports "coown/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

var _ ports.StatementAppender = (*Client)(nil)

// New creates a Sheets client authenticated with service-account credentials.
// credentialsJSON may be empty when credentialsFile is set, and vice versa.
func New(ctx context.Context, spreadsheetID, sheetName, credentialsJSON, credentialsFile string) (*Client, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if strings.TrimSpace(sheetName) == "" {
		sheetName = "Expenses"
	}

	creds := []byte(strings.TrimSpace(credentialsJSON))
	if len(creds) == 0 {
		path := strings.TrimSpace(credentialsFile)
		if path == "" {
			return nil, errors.New("missing service account credentials")
		}
		var err error
		creds, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetName: sheetName}, nil
}

// AppendExpense appends one row per expense: date, property, description,
// category, payer, amount in units, and a compact splits column.
func (c *Client) AppendExpense(ctx context.Context, e core.Expense) (string, error) {
	if err := e.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	rng := fmt.Sprintf("%s!A:G", c.sheetName)
	vr := &gsheet.ValueRange{Values: [][]any{{
		e.Date.String(),
		e.PropertyID,
		e.Description,
		e.Category,
		e.PayerID,
		e.Amount.Units(),
		formatSplits(e.Splits),
	}}}

	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", c.sheetName, err)
	}

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	return ref, nil
}

func formatSplits(splits []core.Split) string {
	parts := make([]string, 0, len(splits))
	for _, s := range splits {
		parts = append(parts, fmt.Sprintf("%s=%s(%s)", s.UserID, s.Amount, s.Status))
	}
	return strings.Join(parts, ", ")
}
