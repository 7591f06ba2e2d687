package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"coown/internal/core"
	"coown/internal/split"

	"github.com/shopspring/decimal"
)

// fakeStore implements TemplateSource, Ledger and MemberDirectory in memory.
type fakeStore struct {
	templates map[string]*core.RecurringTemplate
	members   map[string][]string
	expenses  []core.Expense

	memberErr error
	createErr error
	updateErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		templates: make(map[string]*core.RecurringTemplate),
		members:   make(map[string][]string),
	}
}

func (f *fakeStore) add(tpl core.RecurringTemplate) {
	cp := tpl
	f.templates[tpl.ID] = &cp
}

func (f *fakeStore) DueTemplates(_ context.Context, asOf core.Date) ([]core.RecurringTemplate, error) {
	var due []core.RecurringTemplate
	for _, tpl := range f.templates {
		if tpl.Active && tpl.NextDue.OnOrBefore(asOf) {
			due = append(due, *tpl)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	return due, nil
}

func (f *fakeStore) UpdateTemplate(_ context.Context, id string, nextDue core.Date, active bool) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	tpl, ok := f.templates[id]
	if !ok {
		return fmt.Errorf("template %s not found", id)
	}
	tpl.NextDue = nextDue
	tpl.Active = active
	return nil
}

func (f *fakeStore) DeactivateTemplate(ctx context.Context, id string) error {
	tpl, ok := f.templates[id]
	if !ok {
		return fmt.Errorf("template %s not found", id)
	}
	tpl.Active = false
	return nil
}

func (f *fakeStore) PropertyMembers(_ context.Context, propertyID string) ([]string, error) {
	if f.memberErr != nil {
		return nil, f.memberErr
	}
	return f.members[propertyID], nil
}

func (f *fakeStore) CreateExpenseWithSplits(_ context.Context, e core.Expense) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	e.ID = fmt.Sprintf("exp-%d", len(f.expenses)+1)
	f.expenses = append(f.expenses, e)
	return e.ID, nil
}

type fakePublisher struct {
	published []string
	err       error
}

func (p *fakePublisher) PublishExpenseCreated(_ context.Context, expenseID, _ string) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, expenseID)
	return nil
}

func monthlyTemplate(id string) core.RecurringTemplate {
	return core.RecurringTemplate{
		ID:          id,
		PropertyID:  "prop-1",
		Description: "Mortgage",
		Amount:      core.Money{Cents: 10000},
		Category:    "housing",
		PayerID:     "alice",
		Method:      core.SplitEqual,
		Frequency:   core.Monthly,
		Interval:    1,
		StartDate:   core.NewDate(2024, 1, 1),
		NextDue:     core.NewDate(2024, 3, 1),
		Active:      true,
	}
}

func TestRunPassNoDueTemplates(t *testing.T) {
	store := newFakeStore()
	m := NewMaterializer(store, store, store, nil)

	summary, err := m.RunPass(context.Background(), core.NewDate(2024, 3, 1))
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}
	if summary.Processed != 0 || summary.Errors != 0 {
		t.Fatalf("summary = %+v, want zero", summary)
	}
}

func TestRunPassMaterializesDueTemplate(t *testing.T) {
	store := newFakeStore()
	store.members["prop-1"] = []string{"alice", "bob", "carol"}
	store.add(monthlyTemplate("tpl-1"))
	pub := &fakePublisher{}
	m := NewMaterializer(store, store, store, pub)

	summary, err := m.RunPass(context.Background(), core.NewDate(2024, 3, 1))
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}
	if summary.Processed != 1 || summary.Errors != 0 || summary.Created != 1 {
		t.Fatalf("summary = %+v, want 1 processed and 1 created", summary)
	}

	if len(store.expenses) != 1 {
		t.Fatalf("expected 1 expense, got %d", len(store.expenses))
	}
	e := store.expenses[0]
	if !e.Date.Equal(core.NewDate(2024, 3, 1).Time) {
		t.Errorf("expense date = %s, want the template's due date", e.Date)
	}
	if len(e.Splits) != 3 {
		t.Fatalf("expected 3 splits, got %d", len(e.Splits))
	}
	var sum int64
	for _, s := range e.Splits {
		sum += s.Amount.Cents
	}
	if sum != 10000 {
		t.Errorf("splits sum to %d, want 10000", sum)
	}

	tpl := store.templates["tpl-1"]
	if !tpl.NextDue.Equal(core.NewDate(2024, 4, 1).Time) {
		t.Errorf("next due = %s, want 2024-04-01", tpl.NextDue)
	}
	if !tpl.Active {
		t.Error("template should remain active")
	}

	if len(pub.published) != 1 {
		t.Errorf("expected 1 published event, got %d", len(pub.published))
	}
}

func TestRunPassFinalExpenseThenDeactivate(t *testing.T) {
	store := newFakeStore()
	store.members["prop-1"] = []string{"alice", "bob"}
	tpl := monthlyTemplate("tpl-1")
	tpl.NextDue = core.NewDate(2024, 3, 1)
	tpl.EndDate = core.NewDate(2024, 3, 1)
	store.add(tpl)
	m := NewMaterializer(store, store, store, nil)

	summary, err := m.RunPass(context.Background(), core.NewDate(2024, 3, 1))
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}
	if summary.Processed != 1 {
		t.Fatalf("summary = %+v, want 1 processed", summary)
	}
	if len(store.expenses) != 1 {
		t.Fatalf("expected the final expense to be created, got %d", len(store.expenses))
	}
	if store.templates["tpl-1"].Active {
		t.Error("template should be deactivated after its final generation")
	}

	// A later pass must not pick it up again.
	summary, err = m.RunPass(context.Background(), core.NewDate(2024, 4, 1))
	if err != nil {
		t.Fatalf("second RunPass() error = %v", err)
	}
	if summary.Total() != 0 || len(store.expenses) != 1 {
		t.Fatalf("deactivated template was processed again: %+v", summary)
	}
}

func TestRunPassPastEndDateDeactivatesWithoutExpense(t *testing.T) {
	store := newFakeStore()
	store.members["prop-1"] = []string{"alice", "bob"}
	tpl := monthlyTemplate("tpl-1")
	tpl.NextDue = core.NewDate(2024, 3, 2)
	tpl.EndDate = core.NewDate(2024, 3, 1)
	store.add(tpl)
	m := NewMaterializer(store, store, store, nil)

	summary, err := m.RunPass(context.Background(), core.NewDate(2024, 3, 5))
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}
	if summary.Processed != 1 || summary.Errors != 0 || summary.Retired != 1 {
		t.Fatalf("summary = %+v, want 1 processed and 1 retired", summary)
	}
	if len(store.expenses) != 0 {
		t.Fatalf("no expense should be created, got %d", len(store.expenses))
	}
	if store.templates["tpl-1"].Active {
		t.Error("template should be deactivated")
	}
}

func TestRunPassIsolatesFailures(t *testing.T) {
	store := newFakeStore()
	store.members["prop-1"] = []string{"alice", "bob"}

	// Three good equal templates, two with broken percentage configs.
	for i := 1; i <= 3; i++ {
		store.add(monthlyTemplate(fmt.Sprintf("tpl-good-%d", i)))
	}
	for i := 1; i <= 2; i++ {
		tpl := monthlyTemplate(fmt.Sprintf("tpl-bad-%d", i))
		tpl.Method = core.SplitPercentage
		tpl.Config.Percents = []core.PercentShare{
			{UserID: "alice", Percent: decimal.RequireFromString("40")},
			{UserID: "bob", Percent: decimal.RequireFromString("40")},
		}
		store.add(tpl)
	}

	m := NewMaterializer(store, store, store, nil)
	summary, err := m.RunPass(context.Background(), core.NewDate(2024, 3, 1))
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}
	if summary.Processed != 3 || summary.Errors != 2 {
		t.Fatalf("summary = %+v, want processed=3 errors=2", summary)
	}
	if len(store.expenses) != 3 {
		t.Fatalf("expected 3 expenses, got %d", len(store.expenses))
	}

	// The failed templates keep their schedule and stay active for retry.
	for _, id := range []string{"tpl-bad-1", "tpl-bad-2"} {
		tpl := store.templates[id]
		if !tpl.NextDue.Equal(core.NewDate(2024, 3, 1).Time) {
			t.Errorf("%s next due advanced to %s despite failure", id, tpl.NextDue)
		}
		if !tpl.Active {
			t.Errorf("%s was deactivated despite failure", id)
		}
	}
}

func TestRunPassDependencyFailureLeavesTemplateUntouched(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fakeStore)
	}{
		{"member fetch fails", func(s *fakeStore) { s.memberErr = errors.New("directory down") }},
		{"expense create fails", func(s *fakeStore) { s.createErr = errors.New("ledger down") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			store.members["prop-1"] = []string{"alice", "bob"}
			store.add(monthlyTemplate("tpl-1"))
			tt.setup(store)
			m := NewMaterializer(store, store, store, nil)

			summary, err := m.RunPass(context.Background(), core.NewDate(2024, 3, 1))
			if err != nil {
				t.Fatalf("RunPass() error = %v", err)
			}
			if summary.Processed != 0 || summary.Errors != 1 {
				t.Fatalf("summary = %+v, want errors=1", summary)
			}
			tpl := store.templates["tpl-1"]
			if !tpl.NextDue.Equal(core.NewDate(2024, 3, 1).Time) || !tpl.Active {
				t.Fatalf("failed template was mutated: %+v", tpl)
			}
		})
	}
}

func TestRunPassPublishFailureDoesNotFailTemplate(t *testing.T) {
	store := newFakeStore()
	store.members["prop-1"] = []string{"alice", "bob"}
	store.add(monthlyTemplate("tpl-1"))
	pub := &fakePublisher{err: errors.New("broker down")}
	m := NewMaterializer(store, store, store, pub)

	summary, err := m.RunPass(context.Background(), core.NewDate(2024, 3, 1))
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}
	if summary.Processed != 1 || summary.Errors != 0 {
		t.Fatalf("summary = %+v, want 1 processed", summary)
	}
}

func TestClassify(t *testing.T) {
	store := newFakeStore()
	store.members["prop-1"] = []string{"alice", "bob"}

	tests := []struct {
		name string
		tpl  func() core.RecurringTemplate
		want string
	}{
		{
			"bad frequency is config",
			func() core.RecurringTemplate {
				tpl := monthlyTemplate("t")
				tpl.Frequency = "fortnightly"
				return tpl
			},
			KindConfig,
		},
		{
			"bad method is config",
			func() core.RecurringTemplate {
				tpl := monthlyTemplate("t")
				tpl.Method = "halves"
				return tpl
			},
			KindConfig,
		},
		{
			"missing custom config is config",
			func() core.RecurringTemplate {
				tpl := monthlyTemplate("t")
				tpl.Method = core.SplitCustom
				return tpl
			},
			KindConfig,
		},
		{
			"negative percentage share is config",
			func() core.RecurringTemplate {
				tpl := monthlyTemplate("t")
				tpl.Method = core.SplitPercentage
				tpl.Config.Percents = []core.PercentShare{
					{UserID: "alice", Percent: decimal.NewFromInt(150)},
					{UserID: "bob", Percent: decimal.NewFromInt(-50)},
				}
				return tpl
			},
			KindConfig,
		},
	}

	m := NewMaterializer(store, store, store, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.processTemplate(context.Background(), tt.tpl())
			if err == nil {
				t.Fatal("expected error")
			}
			if got := classify(err); got != tt.want {
				t.Fatalf("classify(%v) = %s, want %s", err, got, tt.want)
			}
		})
	}

	if got := classify(errors.New("connection refused")); got != KindDependency {
		t.Fatalf("classify(plain error) = %s, want %s", got, KindDependency)
	}
	if got := classify(fmt.Errorf("compute splits: %w", split.ErrDrift)); got != KindInternal {
		t.Fatalf("classify(drift) = %s, want %s", got, KindInternal)
	}
}
