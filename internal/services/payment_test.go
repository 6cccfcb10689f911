package services

import (
	"context"
	"errors"
	"testing"

	"fintrack/internal/core"
	"fintrack/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkThenUnmarkRestoresState(t *testing.T) {
	f := newFixture(t)
	bills := f.category(t, alice, "Bills")
	e := f.expense(t, alice, "Rent", 90000, core.NewDate(2025, 3, 5))
	r := f.rule(t, alice, "Internet", 10, bills.ID, core.NewDate(2024, 1, 1), core.Date{})
	items := []core.RawReference{ref(core.ConcreteExpense, e.ID), ref(core.RecurringOccurrence, r.ID)}

	res, err := f.payments.Reconcile(f.ctx, alice, core.ActionMark, items, intPtr(4), intPtr(2025))
	require.NoError(t, err)
	assert.Equal(t, PaymentResult{ExpensesUpdated: 1, MarkersChanged: 1}, res)

	got, err := f.catalog.GetExpense(f.ctx, alice, e.ID)
	require.NoError(t, err)
	assert.True(t, got.Paid)

	april, err := f.projection.Project(f.ctx, alice, 2025, 4)
	require.NoError(t, err)
	require.Len(t, april, 1)
	assert.True(t, april[0].Paid)

	res, err = f.payments.Reconcile(f.ctx, alice, core.ActionUnmark, items, intPtr(4), intPtr(2025))
	require.NoError(t, err)
	assert.Equal(t, PaymentResult{ExpensesUpdated: 1, MarkersChanged: 1}, res)

	got, err = f.catalog.GetExpense(f.ctx, alice, e.ID)
	require.NoError(t, err)
	assert.False(t, got.Paid)

	april, err = f.projection.Project(f.ctx, alice, 2025, 4)
	require.NoError(t, err)
	assert.False(t, april[0].Paid)
}

func TestMarkRecurringTwiceKeepsOneMarker(t *testing.T) {
	f := newFixture(t)
	bills := f.category(t, alice, "Bills")
	r := f.rule(t, alice, "Internet", 31, bills.ID, core.NewDate(2024, 1, 1), core.Date{})
	items := []core.RawReference{ref(core.RecurringOccurrence, r.ID)}

	for i := 0; i < 2; i++ {
		_, err := f.payments.Reconcile(f.ctx, alice, core.ActionMark, items, intPtr(4), intPtr(2025))
		require.NoError(t, err)
	}

	markers, err := f.repo.Queries().ListMarkers(f.ctx, alice, core.Period{Year: 2025, Month: 4})
	require.NoError(t, err)
	require.Len(t, markers, 1)
	assert.Equal(t, 18, markers[0].Day, "paying in the current month records today")

	_, err = f.payments.Reconcile(f.ctx, alice, core.ActionMark, items, intPtr(2), intPtr(2025))
	require.NoError(t, err)
	markers, err = f.repo.Queries().ListMarkers(f.ctx, alice, core.Period{Year: 2025, Month: 2})
	require.NoError(t, err)
	require.Len(t, markers, 1)
	assert.Equal(t, 28, markers[0].Day, "other months record the clamped due day")
}

func TestUnmarkWithoutMarkerIsNoop(t *testing.T) {
	f := newFixture(t)
	bills := f.category(t, alice, "Bills")
	r := f.rule(t, alice, "Internet", 10, bills.ID, core.NewDate(2024, 1, 1), core.Date{})

	res, err := f.payments.Reconcile(f.ctx, alice, core.ActionUnmark,
		[]core.RawReference{ref(core.RecurringOccurrence, r.ID)}, intPtr(4), intPtr(2025))
	require.NoError(t, err)
	assert.Zero(t, res.MarkersChanged)
}

func TestRecurringWithoutPeriodMutatesNothing(t *testing.T) {
	f := newFixture(t)
	bills := f.category(t, alice, "Bills")
	e := f.expense(t, alice, "Rent", 90000, core.NewDate(2025, 4, 5))
	r := f.rule(t, alice, "Internet", 10, bills.ID, core.NewDate(2024, 1, 1), core.Date{})
	items := []core.RawReference{ref(core.ConcreteExpense, e.ID), ref(core.RecurringOccurrence, r.ID)}

	_, err := f.payments.Reconcile(f.ctx, alice, core.ActionMark, items, nil, nil)
	var v *core.ValidationError
	require.True(t, errors.As(err, &v), "expected validation error, got %v", err)
	assert.Contains(t, v.Fields, "month")

	got, err := f.catalog.GetExpense(f.ctx, alice, e.ID)
	require.NoError(t, err)
	assert.False(t, got.Paid, "concrete item must not be marked when the batch is rejected")
}

func TestMalformedItemRejectsWholeBatch(t *testing.T) {
	f := newFixture(t)
	e := f.expense(t, alice, "Rent", 90000, core.NewDate(2025, 4, 5))
	items := []core.RawReference{
		ref(core.ConcreteExpense, e.ID),
		{Type: "x", ID: &e.ID},
	}

	_, err := f.payments.Reconcile(f.ctx, alice, core.ActionMark, items, nil, nil)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	got, err := f.catalog.GetExpense(f.ctx, alice, e.ID)
	require.NoError(t, err)
	assert.False(t, got.Paid)
}

func TestMarkIgnoresOtherUsersRows(t *testing.T) {
	f := newFixture(t)
	theirs := f.expense(t, bob, "Bob's rent", 100, core.NewDate(2025, 4, 5))
	bobBills := f.category(t, bob, "Bills")
	theirRule := f.rule(t, bob, "Bob's internet", 10, bobBills.ID, core.NewDate(2024, 1, 1), core.Date{})

	res, err := f.payments.Reconcile(f.ctx, alice, core.ActionMark,
		[]core.RawReference{ref(core.ConcreteExpense, theirs.ID), ref(core.RecurringOccurrence, theirRule.ID)},
		intPtr(4), intPtr(2025))
	require.NoError(t, err)
	assert.Equal(t, PaymentResult{}, res)

	got, err := f.catalog.GetExpense(f.ctx, bob, theirs.ID)
	require.NoError(t, err)
	assert.False(t, got.Paid)
}

func TestMarkPublishesAffectedMonths(t *testing.T) {
	f := newFixture(t)
	bills := f.category(t, alice, "Bills")
	a := f.expense(t, alice, "A", 100, core.NewDate(2025, 2, 5))
	b := f.expense(t, alice, "B", 100, core.NewDate(2025, 3, 5))
	r := f.rule(t, alice, "Internet", 10, bills.ID, core.NewDate(2024, 1, 1), core.Date{})
	f.publisher.messages = nil

	_, err := f.payments.Reconcile(f.ctx, alice, core.ActionMark, []core.RawReference{
		ref(core.ConcreteExpense, b.ID),
		ref(core.InstallmentLine, a.ID),
		ref(core.RecurringOccurrence, r.ID),
	}, intPtr(4), intPtr(2025))
	require.NoError(t, err)

	assert.Equal(t, []core.Period{
		{Year: 2025, Month: 2},
		{Year: 2025, Month: 3},
		{Year: 2025, Month: 4},
	}, f.publisher.periods())
	for _, m := range f.publisher.messages {
		assert.Equal(t, ReasonMark, m.Reason)
		assert.Equal(t, alice, m.UserID)
	}
}

func TestPublishFailureDoesNotFailMark(t *testing.T) {
	f := newFixture(t)
	e := f.expense(t, alice, "Rent", 100, core.NewDate(2025, 4, 5))
	f.publisher.err = errors.New("broker down")

	res, err := f.payments.Reconcile(f.ctx, alice, core.ActionMark,
		[]core.RawReference{ref(core.ConcreteExpense, e.ID)}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExpensesUpdated)
}

func TestPaymentServiceWithoutPublisher(t *testing.T) {
	repo, err := storage.NewSQLiteRepository(storage.MemoryPath)
	require.NoError(t, err)
	defer repo.Close()

	svc := NewPaymentService(repo, nil)
	_, err = svc.Mark(context.Background(), alice, core.PaymentBatch{Concrete: []int64{1}})
	assert.NoError(t, err)
}

func TestUnknownAction(t *testing.T) {
	f := newFixture(t)
	e := f.expense(t, alice, "Rent", 100, core.NewDate(2025, 4, 5))
	_, err := f.payments.Reconcile(f.ctx, alice, core.Action("toggle"),
		[]core.RawReference{ref(core.ConcreteExpense, e.ID)}, nil, nil)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}
