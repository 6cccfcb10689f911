package services

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/storage"

	"github.com/stretchr/testify/require"
)

const (
	alice int64 = 1
	bob   int64 = 2
)

type recordingPublisher struct {
	mu       sync.Mutex
	messages []*amqp.MonthChangedMessage
	err      error
}

func (p *recordingPublisher) PublishMonthChanged(_ context.Context, msg *amqp.MonthChangedMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return p.err
}

func (p *recordingPublisher) periods() []core.Period {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]core.Period, 0, len(p.messages))
	for _, m := range p.messages {
		out = append(out, core.Period{Year: m.Year, Month: m.Month})
	}
	return out
}

type fixture struct {
	ctx          context.Context
	repo         *storage.SQLiteRepository
	publisher    *recordingPublisher
	projection   *ProjectionService
	payments     *PaymentService
	installments *InstallmentService
	catalog      *CatalogService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(storage.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	pub := &recordingPublisher{}
	f := &fixture{
		ctx:          context.Background(),
		repo:         repo,
		publisher:    pub,
		projection:   NewProjectionService(repo),
		payments:     NewPaymentService(repo, pub),
		installments: NewInstallmentService(repo, pub),
		catalog:      NewCatalogService(repo, pub),
	}
	fixed := func() time.Time { return time.Date(2025, 4, 18, 9, 0, 0, 0, time.UTC) }
	f.payments.now = fixed
	f.catalog.now = fixed
	return f
}

func (f *fixture) category(t *testing.T, user int64, name string) core.Category {
	t.Helper()
	c, err := f.catalog.CreateCategory(f.ctx, user, name)
	require.NoError(t, err)
	return c
}

func (f *fixture) expense(t *testing.T, user int64, name string, cents int64, due core.Date) core.Expense {
	t.Helper()
	e, err := f.catalog.CreateExpense(f.ctx, user, core.Expense{Name: name, Amount: core.Money{Cents: cents}, DueDate: due})
	require.NoError(t, err)
	return e
}

func (f *fixture) rule(t *testing.T, user int64, name string, dueDay int, category int64, start, end core.Date) core.RecurringExpense {
	t.Helper()
	r, err := f.catalog.CreateRule(f.ctx, user, core.RecurringExpense{
		Name:       name,
		Amount:     core.Money{Cents: 5000},
		DueDay:     dueDay,
		CategoryID: category,
		StartDate:  start,
		EndDate:    end,
		Active:     true,
	})
	require.NoError(t, err)
	return r
}

func ref(kind core.ReferenceKind, id int64) core.RawReference {
	return core.RawReference{Type: string(kind), ID: &id}
}

func intPtr(v int) *int { return &v }

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
