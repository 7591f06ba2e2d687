package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Daily     Frequency = "daily"
	Weekly    Frequency = "weekly"
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
	Annually  Frequency = "annually"
)

const (
	SplitEqual      SplitMethod = "equal"
	SplitPercentage SplitMethod = "percentage"
	SplitCustom     SplitMethod = "custom"
	SplitPayerOnly  SplitMethod = "payer_only"
)

const (
	StatusPaid SplitStatus = "paid"
	StatusOwed SplitStatus = "owed"
)

// CentTolerance is the accepted deviation, in cents, between a set of split
// amounts and the expense total they belong to.
const CentTolerance int64 = 1

type (
	Frequency   string
	SplitMethod string
	SplitStatus string

	// Date is a calendar day. The time-of-day portion is always midnight UTC.
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// PercentShare assigns a percentage of an expense to one member.
	PercentShare struct {
		UserID  string          `json:"user_id"`
		Percent decimal.Decimal `json:"percent"`
	}

	// CustomShare assigns a fixed amount of an expense to one member.
	CustomShare struct {
		UserID      string `json:"user_id"`
		AmountCents int64  `json:"amount_cents"`
	}

	// SplitConfig carries the method-specific split data. Percents is set for
	// the percentage method, Customs for the custom method; both are empty for
	// equal and payer_only.
	SplitConfig struct {
		Percents []PercentShare `json:"percents,omitempty"`
		Customs  []CustomShare  `json:"customs,omitempty"`
	}

	// RecurringTemplate is a standing rule that generates one expense per
	// period for a jointly owned property.
	RecurringTemplate struct {
		ID          string
		PropertyID  string
		Description string
		Amount      Money
		Category    string
		PayerID     string
		Method      SplitMethod
		Config      SplitConfig
		Frequency   Frequency
		Interval    int
		StartDate   Date
		NextDue     Date
		EndDate     Date // zero when the template is open-ended
		Active      bool
		Notes       string
	}

	// Split is one member's share of a generated expense.
	Split struct {
		UserID string
		Amount Money
		Status SplitStatus
	}

	// Expense is the concrete artifact materialized from a due template.
	Expense struct {
		ID          string
		PropertyID  string
		Description string
		Amount      Money
		Date        Date // the template's due date, not the run date
		Category    string
		PayerID     string
		Method      SplitMethod
		Notes       string
		ReceiptURL  string
		Splits      []Split
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyPayer       = errors.New("empty payer")
	ErrInvalidInterval  = errors.New("interval must be a positive integer")
	ErrInvalidFrequency = errors.New("invalid frequency")
	ErrInvalidMethod    = errors.New("invalid split method")
	ErrDueBeforeStart   = errors.New("next due date before start date")
)

// DateLayout is the wire and storage format for dates.
const DateLayout = "2006-01-02"

// NewDate creates a Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

// AfterDay reports whether d is a later calendar day than other.
func (d Date) AfterDay(other Date) bool {
	return d.Time.After(other.Time)
}

// OnOrBefore reports whether d is the same calendar day as other or earlier.
func (d Date) OnOrBefore(other Date) bool {
	return !d.Time.After(other.Time)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`null`), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekly, Monthly, Quarterly, Annually:
		return true
	default:
		return false
	}
}

func (sm SplitMethod) Valid() bool {
	switch sm {
	case SplitEqual, SplitPercentage, SplitCustom, SplitPayerOnly:
		return true
	default:
		return false
	}
}

// Validate checks the template's structural invariants. Split-configuration
// consistency (percentage and custom sums) is validated at materialization
// time so that a template corrected in place gets retried on the next pass.
func (t RecurringTemplate) Validate() error {
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.PayerID) == "" {
		return ErrEmptyPayer
	}
	if !t.Method.Valid() {
		return ErrInvalidMethod
	}
	if !t.Frequency.Valid() {
		return ErrInvalidFrequency
	}
	if t.Interval < 1 {
		return ErrInvalidInterval
	}
	if t.StartDate.IsZero() || t.NextDue.IsZero() {
		return errors.New("start and next due dates are required")
	}
	if t.NextDue.Time.Before(t.StartDate.Time) {
		return ErrDueBeforeStart
	}
	if !t.EndDate.IsZero() && t.EndDate.Time.Before(t.StartDate.Time) {
		return errors.New("end date before start date")
	}
	return nil
}

func (e Expense) Validate() error {
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.PayerID) == "" {
		return ErrEmptyPayer
	}
	if e.Date.IsZero() {
		return errors.New("expense date is required")
	}
	if len(e.Splits) == 0 {
		return errors.New("expense has no splits")
	}
	var sum int64
	for _, s := range e.Splits {
		sum += s.Amount.Cents
	}
	if diff := sum - e.Amount.Cents; diff > CentTolerance || diff < -CentTolerance {
		return errors.New("split amounts do not sum to the expense amount")
	}
	return nil
}
