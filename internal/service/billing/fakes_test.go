// internal/service/billing/fakes_test.go
package billing

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"billing-service/internal/domain/account"
	"billing-service/internal/domain/billing"
	"billing-service/internal/gateway"
	xerrors "billing-service/internal/pkg/errors"

	"github.com/oklog/ulid/v2"
)

// In-memory store fakes. They mirror the postgres repositories' contracts,
// including version-guarded writes and idempotent inserts, so the services
// exercise the same conflict paths they hit in production.

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// ---- accounts ----

type fakeAccountStore struct {
	mu       sync.Mutex
	accounts map[int64]*account.Account
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{accounts: make(map[int64]*account.Account)}
}

func (f *fakeAccountStore) put(a *account.Account) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a.Version == 0 {
		a.Version = 1
	}
	cp := *a
	f.accounts[a.ID] = &cp
}

func (f *fakeAccountStore) FindByID(ctx context.Context, id int64) (*account.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *acct
	return &cp, nil
}

func (f *fakeAccountStore) UpdateStatus(ctx context.Context, id, version int64, status account.AccountStatus, graceStartedAt sql.NullTime) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[id]
	if !ok {
		return xerrors.ErrNotFound
	}
	if acct.Version != version {
		return xerrors.ErrVersionConflict
	}
	acct.Status = status
	acct.GracePeriodStartedAt = graceStartedAt
	acct.Version++
	return nil
}

func (f *fakeAccountStore) ListInGraceWindow(ctx context.Context) ([]account.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []account.Account
	for _, acct := range f.accounts {
		if acct.IsActive() && acct.GracePeriodStartedAt.Valid {
			out = append(out, *acct)
		}
	}
	return out, nil
}

// ---- subscriptions ----

type fakeSubscriptionStore struct {
	mu     sync.Mutex
	nextID int64
	subs   map[int64]*billing.Subscription
}

func newFakeSubscriptionStore() *fakeSubscriptionStore {
	return &fakeSubscriptionStore{subs: make(map[int64]*billing.Subscription)}
}

func (f *fakeSubscriptionStore) Create(ctx context.Context, sub *billing.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.subs {
		if existing.AccountID == sub.AccountID && existing.Tier == sub.Tier &&
			existing.Status != billing.SubscriptionStatusCanceled {
			return xerrors.ErrConflict
		}
	}
	f.nextID++
	sub.ID = f.nextID
	sub.Version = 1
	cp := *sub
	f.subs[sub.ID] = &cp
	return nil
}

func (f *fakeSubscriptionStore) FindByID(ctx context.Context, id int64) (*billing.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *sub
	return &cp, nil
}

func (f *fakeSubscriptionStore) FindCurrentByAccount(ctx context.Context, accountID int64) (*billing.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *billing.Subscription
	for _, sub := range f.subs {
		if sub.AccountID != accountID {
			continue
		}
		if best == nil {
			best = sub
			continue
		}
		bestLive := best.Status != billing.SubscriptionStatusCanceled
		subLive := sub.Status != billing.SubscriptionStatusCanceled
		if subLive && !bestLive {
			best = sub
		} else if subLive == bestLive && sub.ID > best.ID {
			best = sub
		}
	}
	if best == nil {
		return nil, xerrors.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (f *fakeSubscriptionStore) Update(ctx context.Context, sub *billing.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.subs[sub.ID]
	if !ok {
		return xerrors.ErrNotFound
	}
	if stored.Version != sub.Version {
		return xerrors.ErrVersionConflict
	}
	cp := *sub
	cp.Version++
	f.subs[sub.ID] = &cp
	sub.Version++
	return nil
}

func (f *fakeSubscriptionStore) FindDueForBilling(ctx context.Context, asOf time.Time) ([]billing.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []billing.Subscription
	for _, sub := range f.subs {
		if sub.Status != billing.SubscriptionStatusActive && sub.Status != billing.SubscriptionStatusPastDue {
			continue
		}
		if sub.NextBillingDate.Valid && !asOf.Before(sub.NextBillingDate.Time) {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (f *fakeSubscriptionStore) FindCanceledExpired(ctx context.Context, asOf time.Time) ([]billing.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []billing.Subscription
	for _, sub := range f.subs {
		if sub.Status == billing.SubscriptionStatusCanceled && !asOf.Before(sub.CurrentPeriodEnd) {
			out = append(out, *sub)
		}
	}
	return out, nil
}

// ---- invoices ----

type fakeInvoiceStore struct {
	mu       sync.Mutex
	nextID   int64
	counters map[int64]int
	invoices map[int64]*billing.Invoice
	locked   map[int64]bool
}

func newFakeInvoiceStore() *fakeInvoiceStore {
	return &fakeInvoiceStore{
		counters: make(map[int64]int),
		invoices: make(map[int64]*billing.Invoice),
		locked:   make(map[int64]bool),
	}
}

func (f *fakeInvoiceStore) CreateForPeriod(ctx context.Context, inv *billing.Invoice) (*billing.Invoice, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.invoices {
		if existing.SubscriptionID == inv.SubscriptionID && existing.PeriodStart.Equal(inv.PeriodStart) {
			cp := *existing
			return &cp, false, nil
		}
	}
	f.nextID++
	f.counters[inv.AccountID]++
	inv.ID = f.nextID
	inv.InvoiceNumber = fmt.Sprintf("INV-%d-%06d", inv.AccountID, f.counters[inv.AccountID])
	cp := *inv
	f.invoices[inv.ID] = &cp
	out := *inv
	return &out, true, nil
}

func (f *fakeInvoiceStore) FindByID(ctx context.Context, id int64) (*billing.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invoices[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (f *fakeInvoiceStore) FindByNumber(ctx context.Context, number string) (*billing.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inv := range f.invoices {
		if inv.InvoiceNumber == number {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (f *fakeInvoiceStore) ListByAccount(ctx context.Context, accountID int64, page, pageSize int) ([]billing.Invoice, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []billing.Invoice
	for _, inv := range f.invoices {
		if inv.AccountID == accountID {
			all = append(all, *inv)
		}
	}
	return all, int64(len(all)), nil
}

func (f *fakeInvoiceStore) MarkPaid(ctx context.Context, id int64, paidAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invoices[id]
	if !ok {
		return false, xerrors.ErrNotFound
	}
	if inv.Status != billing.InvoiceStatusUnpaid && inv.Status != billing.InvoiceStatusOverdue {
		return false, nil
	}
	inv.Status = billing.InvoiceStatusPaid
	inv.PaidDate = sql.NullTime{Time: paidAt, Valid: true}
	return true, nil
}

func (f *fakeInvoiceStore) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, inv := range f.invoices {
		if inv.Status == billing.InvoiceStatusUnpaid && inv.DueDate.Before(asOf) {
			inv.Status = billing.InvoiceStatusOverdue
			n++
		}
	}
	return n, nil
}

func (f *fakeInvoiceStore) AcquireSettlementLock(ctx context.Context, invoiceID int64) (func(), bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locked[invoiceID] {
		return nil, false, nil
	}
	f.locked[invoiceID] = true
	release := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.locked, invoiceID)
	}
	return release, true, nil
}

// ---- payment attempts ----

type fakeAttemptStore struct {
	mu       sync.Mutex
	nextID   int64
	attempts []billing.PaymentAttempt
	now      func() time.Time
}

func newFakeAttemptStore(now func() time.Time) *fakeAttemptStore {
	return &fakeAttemptStore{now: now}
}

func (f *fakeAttemptStore) Append(ctx context.Context, att *billing.PaymentAttempt) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.attempts {
		if f.attempts[i].GatewayReference == att.GatewayReference {
			*att = f.attempts[i]
			return false, nil
		}
	}
	f.nextID++
	att.ID = f.nextID
	att.CreatedAt = f.now()
	f.attempts = append(f.attempts, *att)
	return true, nil
}

func (f *fakeAttemptStore) LatestFailedByAccount(ctx context.Context, accountID int64) (*billing.PaymentAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *billing.PaymentAttempt
	for i := range f.attempts {
		att := &f.attempts[i]
		if att.AccountID != accountID || att.Outcome != billing.AttemptFailed {
			continue
		}
		if best == nil || att.CreatedAt.After(best.CreatedAt) ||
			(att.CreatedAt.Equal(best.CreatedAt) && att.ID > best.ID) {
			best = att
		}
	}
	if best == nil {
		return nil, xerrors.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (f *fakeAttemptStore) ListByInvoice(ctx context.Context, invoiceID int64) ([]billing.PaymentAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []billing.PaymentAttempt
	for _, att := range f.attempts {
		if att.InvoiceID == invoiceID {
			out = append(out, att)
		}
	}
	return out, nil
}

// ---- events ----

type fakeEventStore struct {
	mu     sync.Mutex
	events []billing.Event
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{}
}

func (f *fakeEventStore) Append(ctx context.Context, ev *billing.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.events {
		if f.events[i].ID == ev.ID {
			return nil
		}
	}
	f.events = append(f.events, *ev)
	return nil
}

func (f *fakeEventStore) ListUnpublished(ctx context.Context, limit int) ([]billing.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []billing.Event
	for _, ev := range f.events {
		if !ev.PublishedAt.Valid {
			out = append(out, ev)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeEventStore) MarkPublished(ctx context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		for i := range f.events {
			if f.events[i].ID == id {
				f.events[i].PublishedAt = sql.NullTime{Time: time.Now(), Valid: true}
			}
		}
	}
	return nil
}

func (f *fakeEventStore) ofType(typ billing.EventType) []billing.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []billing.Event
	for _, ev := range f.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// ---- gateway ----

type fakeCharger struct {
	mu      sync.Mutex
	results []*gateway.ChargeResult
	calls   int
}

func (f *fakeCharger) Charge(ctx context.Context, req gateway.ChargeRequest) (*gateway.ChargeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	res := &gateway.ChargeResult{Status: gateway.ChargeSucceeded}
	if len(f.results) > 0 {
		res = f.results[0]
		f.results = f.results[1:]
	}
	if res.GatewayReference == "" {
		res.GatewayReference = ulid.Make().String()
	}
	return res, nil
}

func (f *fakeCharger) enqueue(results ...*gateway.ChargeResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, results...)
}

func (f *fakeCharger) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func declined(reason string) *gateway.ChargeResult {
	return &gateway.ChargeResult{Status: gateway.ChargeDeclined, DeclineReason: reason}
}
