package ledger

// Shared test doubles for the ledger package tests.

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AshkanYarmoradi/go-ledger/adapters/memory"
)

// =============================================================================
// Test Logger
// =============================================================================

type testLogger struct {
	mu        sync.Mutex
	debugLogs []string
	infoLogs  []string
	warnLogs  []string
	errorLogs []string
}

func newTestLogger() *testLogger {
	return &testLogger{}
}

func (l *testLogger) Debug(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debugLogs = append(l.debugLogs, msg)
}

func (l *testLogger) Info(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infoLogs = append(l.infoLogs, msg)
}

func (l *testLogger) Warn(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnLogs = append(l.warnLogs, msg)
}

func (l *testLogger) Error(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errorLogs = append(l.errorLogs, msg)
}

func (l *testLogger) warnings() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.warnLogs...)
}

// =============================================================================
// Test Observer
// =============================================================================

type testObserver struct {
	mu          sync.Mutex
	hydrates    int
	saves       int
	saveErrors  int
	projections int
	checkpoints map[string]int64
}

func newTestObserver() *testObserver {
	return &testObserver{checkpoints: make(map[string]int64)}
}

func (o *testObserver) ObserveHydrate(string, time.Duration, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hydrates++
}

func (o *testObserver) ObserveSave(_ string, _ int, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.saves++
	if err != nil {
		o.saveErrors++
	}
}

func (o *testObserver) ObserveProjection(string, string, bool, time.Duration, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.projections++
}

func (o *testObserver) ObserveCheckpoint(projection string, position int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.checkpoints[projection] = position
}

// =============================================================================
// Test Cache
// =============================================================================

type mapCache struct {
	mu      sync.Mutex
	entries map[string]CacheEntry
	gets    int
	hits    int
	failGet bool
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string]CacheEntry)}
}

func (c *mapCache) Get(_ context.Context, key string) (CacheEntry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.failGet {
		return CacheEntry{}, false, errors.New("cache unavailable")
	}
	e, ok := c.entries[key]
	if ok {
		c.hits++
	}
	return e, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, e CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = e
	return nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *mapCache) entry(key string) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return e, ok
}

// =============================================================================
// Test Aggregate
// =============================================================================

type AccountOpened struct {
	Owner string `json:"owner"`
}

func (AccountOpened) EventName() string { return "AccountOpened" }

type MoneyDeposited struct {
	Amount int64 `json:"amount"`
}

func (MoneyDeposited) EventName() string { return "MoneyDeposited" }

type MoneyWithdrawn struct {
	Amount int64 `json:"amount"`
}

func (MoneyWithdrawn) EventName() string { return "MoneyWithdrawn" }

// AccountRenamedV2 is the second revision of a rename event.
type AccountRenamedV2 struct {
	First string `json:"first"`
	Last  string `json:"last"`
}

func (AccountRenamedV2) EventName() string       { return "AccountRenamed" }
func (AccountRenamedV2) EventSchemaVersion() int { return 2 }

type testAccount struct {
	AggregateBase

	Owner   string `json:"owner"`
	Balance int64  `json:"balance"`
}

func newTestAccount(id string) *testAccount {
	return &testAccount{AggregateBase: NewAggregateBase(id)}
}

func (a *testAccount) AggregateType() string { return "account" }

func (a *testAccount) ApplyEvent(e Event) error {
	switch p := e.Payload.(type) {
	case AccountOpened:
		a.Owner = p.Owner
	case MoneyDeposited:
		a.Balance += p.Amount
	case MoneyWithdrawn:
		a.Balance -= p.Amount
	case AccountRenamedV2:
		a.Owner = p.First + " " + p.Last
	default:
		return fmt.Errorf("account: unexpected event %q", e.Name)
	}
	return nil
}

func (a *testAccount) Open(owner string) ([]Event, error) {
	if a.Exists() {
		return nil, NewDomainRuleError("account", "already open")
	}
	return Raise(a, AccountOpened{Owner: owner})
}

func (a *testAccount) Deposit(amount int64) ([]Event, error) {
	if err := RequireExists(a); err != nil {
		return nil, err
	}
	return Raise(a, MoneyDeposited{Amount: amount})
}

func (a *testAccount) Withdraw(amount int64) ([]Event, error) {
	if err := RequireExists(a); err != nil {
		return nil, err
	}
	if amount > a.Balance {
		return nil, NewDomainRuleError("account", "insufficient funds")
	}
	return Raise(a, MoneyWithdrawn{Amount: amount})
}

func newTestRegistry(t testing.TB) *EventRegistry {
	t.Helper()
	r := NewEventRegistry()
	require.NoError(t, RegisterPayload[AccountOpened](r))
	require.NoError(t, RegisterPayload[MoneyDeposited](r))
	require.NoError(t, RegisterPayload[MoneyWithdrawn](r))
	require.NoError(t, RegisterPayload[AccountRenamedV2](r))
	return r
}

func newTestStore(t testing.TB, opts ...Option) (*EventStore, *memory.MemoryAdapter) {
	t.Helper()
	adapter := memory.NewAdapter()
	opts = append([]Option{WithRegistry(newTestRegistry(t))}, opts...)
	return New(adapter, opts...), adapter
}

func newTestRepository(t testing.TB, opts ...RepositoryOption) (*Repository[*testAccount], *EventStore, *memory.MemoryAdapter) {
	t.Helper()
	store, adapter := newTestStore(t)
	repo, err := NewRepository(store, newTestAccount, opts...)
	require.NoError(t, err)
	require.NoError(t, repo.Initialize(context.Background()))
	return repo, store, adapter
}

// openAccount saves an account with an opening deposit.
func openAccount(t testing.TB, repo *Repository[*testAccount], id string, deposit int64) *testAccount {
	t.Helper()
	a := newTestAccount(id)
	_, err := a.Open("owner-" + id)
	require.NoError(t, err)
	if deposit > 0 {
		_, err = a.Deposit(deposit)
		require.NoError(t, err)
	}
	require.NoError(t, repo.Save(context.Background(), a, nil))
	return a
}
