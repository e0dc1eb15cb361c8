package service

import (
	"context"
	"sync"
	"time"

	"github.com/vignex/escrow-engine/internal/domain"
)

// memBackend is an in-memory implementation of every store and cache
// interface the services need. It mirrors the conditional-update semantics
// of the real stores under one mutex, and WithTx restores a snapshot on
// error so a failed transition leaves no trace.
type memBackend struct {
	mu     sync.Mutex
	users  map[string]domain.User
	ads    map[string]domain.Ad
	trades map[string]domain.Trade
	audits []domain.AuditEntry

	events [][]byte

	lockMu    sync.Mutex
	keyLocks  map[string]*sync.Mutex
	rateCount map[string]int
	rates     map[string]int64
}

func newMemBackend() *memBackend {
	return &memBackend{
		users:     make(map[string]domain.User),
		ads:       make(map[string]domain.Ad),
		trades:    make(map[string]domain.Trade),
		keyLocks:  make(map[string]*sync.Mutex),
		rateCount: make(map[string]int),
		rates:     make(map[string]int64),
	}
}

// --- domain.TxRunner ---

func (m *memBackend) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	users := make(map[string]domain.User, len(m.users))
	for k, v := range m.users {
		users[k] = v
	}
	ads := make(map[string]domain.Ad, len(m.ads))
	for k, v := range m.ads {
		ads[k] = v
	}
	trades := make(map[string]domain.Trade, len(m.trades))
	for k, v := range m.trades {
		trades[k] = v
	}
	m.mu.Unlock()

	if err := fn(ctx); err != nil {
		m.mu.Lock()
		m.users = users
		m.ads = ads
		m.trades = trades
		m.mu.Unlock()
		return err
	}
	return nil
}

// --- domain.UserStore ---

func (m *memBackend) Create(ctx context.Context, u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *memBackend) GetByID(ctx context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (m *memBackend) Reserve(ctx context.Context, userID string, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	if u.Balance < amount {
		return domain.ErrInsufficientFunds
	}
	u.Balance -= amount
	u.ReservedBalance += amount
	m.users[userID] = u
	return nil
}

func (m *memBackend) Release(ctx context.Context, userID string, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	if u.ReservedBalance < amount {
		return domain.ErrLedgerCorrupt
	}
	u.ReservedBalance -= amount
	u.Balance += amount
	m.users[userID] = u
	return nil
}

func (m *memBackend) Debit(ctx context.Context, userID string, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	if u.ReservedBalance < amount {
		return domain.ErrLedgerCorrupt
	}
	u.ReservedBalance -= amount
	m.users[userID] = u
	return nil
}

func (m *memBackend) Credit(ctx context.Context, userID string, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.Balance += amount
	m.users[userID] = u
	return nil
}

// adStore and tradeStore wrap memBackend so method sets with colliding names
// (Create, GetByID) can satisfy separate interfaces.

type adStore struct{ *memBackend }

func (s adStore) Create(ctx context.Context, ad domain.Ad) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ads[ad.ID] = ad
	return nil
}

func (s adStore) GetByID(ctx context.Context, id string) (domain.Ad, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ad, ok := s.ads[id]
	if !ok {
		return domain.Ad{}, domain.ErrNotFound
	}
	return ad, nil
}

func (s adStore) ListOpen(ctx context.Context, side domain.AdSide, opts domain.ListOpts) ([]domain.Ad, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Ad
	for _, ad := range s.ads {
		if ad.Status != domain.AdStatusOpen {
			continue
		}
		if side != "" && ad.Side != side {
			continue
		}
		out = append(out, ad)
	}
	return out, nil
}

func (s adStore) ListByOwner(ctx context.Context, ownerID string) ([]domain.Ad, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Ad
	for _, ad := range s.ads {
		if ad.OwnerID == ownerID && ad.Status != domain.AdStatusDeleted {
			out = append(out, ad)
		}
	}
	return out, nil
}

func (s adStore) TakeQuantity(ctx context.Context, adID string, qty int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ad, ok := s.ads[adID]
	if !ok {
		return domain.ErrNotFound
	}
	if ad.Status != domain.AdStatusOpen {
		return domain.ErrAdNotOpen
	}
	if ad.RemainingQuantity < qty {
		return domain.ErrInsufficientInventory
	}
	ad.RemainingQuantity -= qty
	if ad.RemainingQuantity == 0 {
		ad.Status = domain.AdStatusExhausted
	}
	s.ads[adID] = ad
	return nil
}

func (s adStore) ReturnQuantity(ctx context.Context, adID string, qty int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ad, ok := s.ads[adID]
	if !ok {
		return domain.ErrNotFound
	}
	ad.RemainingQuantity += qty
	if ad.Status == domain.AdStatusExhausted {
		ad.Status = domain.AdStatusOpen
	}
	s.ads[adID] = ad
	return nil
}

func (s adStore) SetStatus(ctx context.Context, adID string, status domain.AdStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ad, ok := s.ads[adID]
	if !ok {
		return domain.ErrNotFound
	}
	if ad.Status == domain.AdStatusDeleted {
		return domain.ErrNotFound
	}
	if status != domain.AdStatusDeleted && ad.Status == domain.AdStatusExhausted {
		return domain.ErrPreconditionFailed
	}
	ad.Status = status
	s.ads[adID] = ad
	return nil
}

type tradeStore struct{ *memBackend }

func (s tradeStore) Create(ctx context.Context, t domain.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades[t.ID] = t
	return nil
}

func (s tradeStore) GetByID(ctx context.Context, id string) (domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trades[id]
	if !ok {
		return domain.Trade{}, domain.ErrNotFound
	}
	return t, nil
}

func (s tradeStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Trade
	for _, t := range s.trades {
		if t.MakerID == userID || t.TakerID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s tradeStore) ListByAd(ctx context.Context, adID string, opts domain.ListOpts) ([]domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Trade
	for _, t := range s.trades {
		if t.AdID == adID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s tradeStore) ListByMakerStatus(ctx context.Context, makerID string, status domain.TradeStatus, opts domain.ListOpts) ([]domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Trade
	for _, t := range s.trades {
		if t.MakerID == makerID && t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s tradeStore) Transition(ctx context.Context, id string, from domain.TradeStatus, upd domain.TradeUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trades[id]
	if !ok {
		return domain.ErrNotFound
	}
	if t.Status != from {
		if t.Status.Terminal() {
			return domain.ErrTradeClosed
		}
		return domain.ErrPreconditionFailed
	}
	t.Status = upd.Status
	t.VerificationDeadline = upd.VerificationDeadline
	t.PaymentDeadline = upd.PaymentDeadline
	t.ExtendedMinutes = upd.ExtendedMinutes
	t.ResolvedAt = upd.ResolvedAt
	s.trades[id] = t
	return nil
}

func (s tradeStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Trade
	for _, t := range s.trades {
		var deadline *time.Time
		switch t.Status {
		case domain.TradeStatusWaitingVerification:
			deadline = t.VerificationDeadline
		case domain.TradeStatusPendingPayment:
			deadline = t.PaymentDeadline
		default:
			continue
		}
		if deadline != nil && !deadline.After(now) {
			out = append(out, t)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// --- domain.AuditStore ---

type auditStore struct{ *memBackend }

func (s auditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, domain.AuditEntry{
		ID:     int64(len(s.audits) + 1),
		Event:  event,
		Detail: detail,
	})
	return nil
}

func (s auditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AuditEntry(nil), s.audits...), nil
}

// --- domain.LockManager ---

// Acquire blocks until the key's mutex is free, so concurrent writers
// serialize the way the Redis lock does in production.
func (m *memBackend) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	m.lockMu.Lock()
	l, ok := m.keyLocks[key]
	if !ok {
		l = &sync.Mutex{}
		m.keyLocks[key] = l
	}
	m.lockMu.Unlock()

	l.Lock()
	var once sync.Once
	return func() { once.Do(l.Unlock) }, nil
}

// --- domain.RateLimiter ---

func (m *memBackend) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	m.rateCount[key]++
	return m.rateCount[key] <= limit, nil
}

// --- domain.RateSource ---

func (m *memBackend) SetRate(ctx context.Context, asset, fiat string, rate int64, ts time.Time) error {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	m.rates[asset+"/"+fiat] = rate
	return nil
}

func (m *memBackend) GetRate(ctx context.Context, asset, fiat string) (int64, time.Time, error) {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	rate, ok := m.rates[asset+"/"+fiat]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return rate, time.Time{}, nil
}

// --- domain.SignalBus ---

func (m *memBackend) Publish(ctx context.Context, channel string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, payload)
	return nil
}

func (m *memBackend) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (m *memBackend) publishedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// Compile-time interface checks.
var (
	_ domain.TxRunner    = (*memBackend)(nil)
	_ domain.UserStore   = (*memBackend)(nil)
	_ domain.AdStore     = adStore{}
	_ domain.TradeStore  = tradeStore{}
	_ domain.AuditStore  = auditStore{}
	_ domain.LockManager = (*memBackend)(nil)
	_ domain.RateLimiter = (*memBackend)(nil)
	_ domain.RateSource  = (*memBackend)(nil)
	_ domain.SignalBus   = (*memBackend)(nil)
)
