// Package repotest provides an in-memory repository.Store for tests.
package repotest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dispatchly/backend/internal/models"
	repo "github.com/dispatchly/backend/internal/repository"
)

var _ repo.Store = (*Store)(nil)

// memDB is the state behind Store. clone gives WithTx its rollback point.
type memDB struct {
	users         map[string]models.User
	wallets       map[string]models.Wallet        // by user id
	drivers       map[string]models.DriverProfile // by user id
	ratings       map[string]int                  // score by order id
	txns          []models.Transaction
	orders        map[string]models.Order
	configs       map[string]models.SystemConfig
	notifications []models.Notification
	audit         []models.AuditLog
}

func (d *memDB) clone() *memDB {
	c := &memDB{
		users:         make(map[string]models.User, len(d.users)),
		wallets:       make(map[string]models.Wallet, len(d.wallets)),
		drivers:       make(map[string]models.DriverProfile, len(d.drivers)),
		ratings:       make(map[string]int, len(d.ratings)),
		txns:          append([]models.Transaction(nil), d.txns...),
		orders:        make(map[string]models.Order, len(d.orders)),
		configs:       make(map[string]models.SystemConfig, len(d.configs)),
		notifications: append([]models.Notification(nil), d.notifications...),
		audit:         append([]models.AuditLog(nil), d.audit...),
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.wallets {
		c.wallets[k] = v
	}
	for k, v := range d.orders {
		c.orders[k] = v
	}
	for k, v := range d.drivers {
		c.drivers[k] = v
	}
	for k, v := range d.ratings {
		c.ratings[k] = v
	}
	for k, v := range d.configs {
		c.configs[k] = v
	}
	return c
}

// Store is an in-memory repository.Store. Units of work run one at a time
// and restore the previous state on error, so WithTx behaves like a fully
// serialised database. Pool-bound calls never wait for an open unit of
// work: they see its uncommitted writes, and a rollback also discards
// pool-bound writes made while it was open.
type Store struct {
	txMu  sync.Mutex // serialises WithTx
	mu    sync.Mutex // guards db, clock and fail for a single call
	db    *memDB
	clock time.Time
	// fail makes the named operation ("transactions.create", ...) error out.
	fail map[string]error
}

func New() *Store {
	return &Store{
		db: &memDB{
			users:   map[string]models.User{},
			wallets: map[string]models.Wallet{},
			drivers: map[string]models.DriverProfile{},
			ratings: map[string]int{},
			orders:  map[string]models.Order{},
			configs: map[string]models.SystemConfig{},
		},
		clock: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		fail:  map[string]error{},
	}
}

func (s *Store) Repos() repo.Repos { return s.repos() }

func (s *Store) WithTx(_ context.Context, fn func(repo.Repos) error) (err error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	snapshot := s.db.clone()
	s.mu.Unlock()
	restore := func() {
		s.mu.Lock()
		s.db = snapshot
		s.mu.Unlock()
	}
	defer func() {
		if p := recover(); p != nil {
			restore()
			panic(p)
		}
		if err != nil {
			restore()
		}
	}()
	return fn(s.repos())
}

func (s *Store) repos() repo.Repos {
	m := &memRepos{s: s}
	return repo.Repos{
		Users:          memUsers{m},
		Wallets:        memWallets{m},
		DriverProfiles: memDrivers{m},
		Transactions:   memTxns{m},
		Orders:         memOrders{m},
		SystemConfigs:  memConfigs{m},
		Notifications:  memNotifications{m},
		AuditLogs:      memAudit{m},
	}
}

// tick returns a strictly increasing timestamp. Callers hold the lock.
func (s *Store) tick() time.Time {
	s.clock = s.clock.Add(time.Millisecond)
	return s.clock
}

// Fail makes the named operation ("transactions.create", "orders.update",
// ...) return err until cleared with a nil err.
func (s *Store) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, op)
		return
	}
	s.fail[op] = err
}

// Helpers below take the lock themselves.

func (s *Store) User(id string) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.users[id]
}

func (s *Store) PutUser(u models.User) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	s.db.users[u.ID] = u
	return u
}

func (s *Store) Users() []models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.User, 0, len(s.db.users))
	for _, u := range s.db.users {
		out = append(out, u)
	}
	return out
}

func (s *Store) PutConfig(c models.SystemConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.db.configs[c.Key] = c
}

func (s *Store) Wallet(userID string) models.Wallet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.wallets[userID]
}

func (s *Store) PutWallet(w models.Wallet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	s.db.wallets[w.UserID] = w
}

func (s *Store) Driver(userID string) models.DriverProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.drivers[userID]
}

func (s *Store) Order(id string) models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.orders[id]
}

func (s *Store) PutOrder(o models.Order) models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.tick()
	}
	s.db.orders[o.ID] = o
	return o
}

func (s *Store) WalletTxns(userID string) []models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.db.wallets[userID]
	var out []models.Transaction
	for _, t := range s.db.txns {
		if t.WalletID == w.ID {
			out = append(out, t)
		}
	}
	return out
}

func (s *Store) AuditLogs() []models.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AuditLog(nil), s.db.audit...)
}

type memRepos struct {
	s *Store
}

// guard locks the store for one call and applies any injected failure.
func (m *memRepos) guard(op string) (func(), error) {
	m.s.mu.Lock()
	if err := m.s.fail[op]; err != nil {
		m.s.mu.Unlock()
		return nil, err
	}
	return m.s.mu.Unlock, nil
}

// ----------------- users -----------------

type memUsers struct{ *memRepos }

func (r memUsers) Create(_ context.Context, u models.User) (models.User, error) {
	done, err := r.guard("users.create")
	if err != nil {
		return models.User{}, err
	}
	defer done()
	for _, existing := range r.s.db.users {
		if existing.Email == u.Email {
			return models.User{}, fmt.Errorf("%w: users_email_key", repo.ErrConflict)
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = r.s.tick()
	u.UpdatedAt = u.CreatedAt
	r.s.db.users[u.ID] = u
	return u, nil
}

func (r memUsers) GetByID(_ context.Context, id string) (models.User, error) {
	done, err := r.guard("users.get")
	if err != nil {
		return models.User{}, err
	}
	defer done()
	u, ok := r.s.db.users[id]
	if !ok {
		return models.User{}, repo.ErrNotFound
	}
	return u, nil
}

func (r memUsers) GetByEmail(_ context.Context, email string) (models.User, error) {
	done, err := r.guard("users.get")
	if err != nil {
		return models.User{}, err
	}
	defer done()
	for _, u := range r.s.db.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, repo.ErrNotFound
}

// ----------------- wallets -----------------

type memWallets struct{ *memRepos }

func (r memWallets) Create(_ context.Context, userID string) error {
	done, err := r.guard("wallets.create")
	if err != nil {
		return err
	}
	defer done()
	if _, ok := r.s.db.wallets[userID]; ok {
		return nil
	}
	now := r.s.tick()
	r.s.db.wallets[userID] = models.Wallet{ID: uuid.NewString(), UserID: userID, CreatedAt: now, UpdatedAt: now}
	return nil
}

func (r memWallets) GetByUserID(_ context.Context, userID string) (models.Wallet, error) {
	done, err := r.guard("wallets.get")
	if err != nil {
		return models.Wallet{}, err
	}
	defer done()
	w, ok := r.s.db.wallets[userID]
	if !ok {
		return models.Wallet{}, repo.ErrNotFound
	}
	return w, nil
}

func (r memWallets) LockByUserID(ctx context.Context, userID string) (models.Wallet, error) {
	return r.GetByUserID(ctx, userID)
}

func (r memWallets) Update(_ context.Context, w models.Wallet) (models.Wallet, error) {
	done, err := r.guard("wallets.update")
	if err != nil {
		return models.Wallet{}, err
	}
	defer done()
	if w.Balance.IsNegative() {
		return models.Wallet{}, fmt.Errorf("wallets_balance_check")
	}
	w.UpdatedAt = r.s.tick()
	r.s.db.wallets[w.UserID] = w
	return w, nil
}

// ----------------- driver profiles -----------------

type memDrivers struct{ *memRepos }

func (r memDrivers) Create(_ context.Context, userID string) error {
	done, err := r.guard("drivers.create")
	if err != nil {
		return err
	}
	defer done()
	if _, ok := r.s.db.drivers[userID]; ok {
		return nil
	}
	now := r.s.tick()
	r.s.db.drivers[userID] = models.DriverProfile{
		ID:         uuid.NewString(),
		UserID:     userID,
		IsVerified: true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return nil
}

func (r memDrivers) GetByUserID(_ context.Context, userID string) (models.DriverProfile, error) {
	done, err := r.guard("drivers.get")
	if err != nil {
		return models.DriverProfile{}, err
	}
	defer done()
	p, ok := r.s.db.drivers[userID]
	if !ok {
		return models.DriverProfile{}, repo.ErrNotFound
	}
	return p, nil
}

func (r memDrivers) LockByUserID(ctx context.Context, userID string) (models.DriverProfile, error) {
	return r.GetByUserID(ctx, userID)
}

func (r memDrivers) Update(_ context.Context, p models.DriverProfile) (models.DriverProfile, error) {
	done, err := r.guard("drivers.update")
	if err != nil {
		return models.DriverProfile{}, err
	}
	defer done()
	if _, ok := r.s.db.drivers[p.UserID]; !ok {
		return models.DriverProfile{}, repo.ErrNotFound
	}
	p.UpdatedAt = r.s.tick()
	r.s.db.drivers[p.UserID] = p
	return p, nil
}

func (r memDrivers) RecordRating(_ context.Context, orderID, _, _ string, score int) error {
	done, err := r.guard("drivers.rate")
	if err != nil {
		return err
	}
	defer done()
	if _, ok := r.s.db.ratings[orderID]; ok {
		return fmt.Errorf("%w: driver_ratings_pkey", repo.ErrConflict)
	}
	r.s.db.ratings[orderID] = score
	return nil
}

// ----------------- transactions -----------------

type memTxns struct{ *memRepos }

func (r memTxns) Create(_ context.Context, t models.Transaction) (models.Transaction, error) {
	done, err := r.guard("transactions.create")
	if err != nil {
		return models.Transaction{}, err
	}
	defer done()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = r.s.tick()
	r.s.db.txns = append(r.s.db.txns, t)
	return t, nil
}

func (r memTxns) GetByID(_ context.Context, walletID, id string) (models.Transaction, error) {
	done, err := r.guard("transactions.get")
	if err != nil {
		return models.Transaction{}, err
	}
	defer done()
	for _, t := range r.s.db.txns {
		if t.ID == id && t.WalletID == walletID {
			return t, nil
		}
	}
	return models.Transaction{}, repo.ErrNotFound
}

func (r memTxns) byWallet(walletID string) []models.Transaction {
	var out []models.Transaction
	for i := len(r.s.db.txns) - 1; i >= 0; i-- {
		if r.s.db.txns[i].WalletID == walletID {
			out = append(out, r.s.db.txns[i])
		}
	}
	return out
}

func (r memTxns) ListByWallet(_ context.Context, walletID string, limit, offset int) ([]models.Transaction, error) {
	done, err := r.guard("transactions.list")
	if err != nil {
		return nil, err
	}
	defer done()
	all := r.byWallet(walletID)
	if offset >= len(all) {
		return []models.Transaction{}, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r memTxns) CountByWallet(_ context.Context, walletID string) (int, error) {
	done, err := r.guard("transactions.list")
	if err != nil {
		return 0, err
	}
	defer done()
	return len(r.byWallet(walletID)), nil
}

func (r memTxns) LatestForOrder(_ context.Context, walletID, orderID, kind string) (models.Transaction, error) {
	done, err := r.guard("transactions.list")
	if err != nil {
		return models.Transaction{}, err
	}
	defer done()
	for _, t := range r.byWallet(walletID) {
		if t.OrderID != nil && *t.OrderID == orderID && t.Metadata["type"] == kind {
			return t, nil
		}
	}
	return models.Transaction{}, repo.ErrNotFound
}

// ----------------- orders -----------------

type memOrders struct{ *memRepos }

func (r memOrders) Create(_ context.Context, o models.Order) (models.Order, error) {
	done, err := r.guard("orders.create")
	if err != nil {
		return models.Order{}, err
	}
	defer done()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	o.CreatedAt = r.s.tick()
	o.UpdatedAt = o.CreatedAt
	r.s.db.orders[o.ID] = o
	return o, nil
}

func (r memOrders) GetByID(_ context.Context, id string) (models.Order, error) {
	done, err := r.guard("orders.get")
	if err != nil {
		return models.Order{}, err
	}
	defer done()
	o, ok := r.s.db.orders[id]
	if !ok {
		return models.Order{}, repo.ErrNotFound
	}
	return o, nil
}

func (r memOrders) LockByID(ctx context.Context, id string) (models.Order, error) {
	return r.GetByID(ctx, id)
}

func (r memOrders) Update(_ context.Context, o models.Order) (models.Order, error) {
	done, err := r.guard("orders.update")
	if err != nil {
		return models.Order{}, err
	}
	defer done()
	cur, ok := r.s.db.orders[o.ID]
	if !ok {
		return models.Order{}, repo.ErrNotFound
	}
	cur.DriverID = o.DriverID
	cur.Status = o.Status
	cur.FinalPrice = o.FinalPrice
	cur.AcceptedAt = o.AcceptedAt
	cur.PickedUpAt = o.PickedUpAt
	cur.DeliveredAt = o.DeliveredAt
	cur.DriverLatitude = o.DriverLatitude
	cur.DriverLongitude = o.DriverLongitude
	cur.UpdatedAt = r.s.tick()
	r.s.db.orders[o.ID] = cur
	return cur, nil
}

func (r memOrders) sorted(asc bool) []models.Order {
	out := make([]models.Order, 0, len(r.s.db.orders))
	for _, o := range r.s.db.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if asc {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r memOrders) List(_ context.Context, f models.OrderFilter) ([]models.Order, int, error) {
	done, err := r.guard("orders.list")
	if err != nil {
		return nil, 0, err
	}
	defer done()
	var match []models.Order
	for _, o := range r.sorted(false) {
		if f.CustomerID != "" && o.CustomerID != f.CustomerID {
			continue
		}
		if f.DriverID != "" && (o.DriverID == nil || *o.DriverID != f.DriverID) {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		match = append(match, o)
	}
	total := len(match)
	if f.Offset >= total {
		return []models.Order{}, total, nil
	}
	match = match[f.Offset:]
	if len(match) > f.Limit {
		match = match[:f.Limit]
	}
	return match, total, nil
}

func (r memOrders) ListPending(_ context.Context) ([]models.Order, error) {
	done, err := r.guard("orders.list")
	if err != nil {
		return nil, err
	}
	defer done()
	var out []models.Order
	for _, o := range r.sorted(true) {
		if o.Status == models.OrderPending {
			out = append(out, o)
		}
	}
	return out, nil
}

// ----------------- configs -----------------

type memConfigs struct{ *memRepos }

func (r memConfigs) List(_ context.Context) ([]models.SystemConfig, error) {
	done, err := r.guard("configs.list")
	if err != nil {
		return nil, err
	}
	defer done()
	out := make([]models.SystemConfig, 0, len(r.s.db.configs))
	for _, c := range r.s.db.configs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (r memConfigs) Get(_ context.Context, key string) (models.SystemConfig, error) {
	done, err := r.guard("configs.get")
	if err != nil {
		return models.SystemConfig{}, err
	}
	defer done()
	c, ok := r.s.db.configs[key]
	if !ok {
		return models.SystemConfig{}, repo.ErrNotFound
	}
	return c, nil
}

func (r memConfigs) InsertIfMissing(_ context.Context, c models.SystemConfig) error {
	done, err := r.guard("configs.insert")
	if err != nil {
		return err
	}
	defer done()
	if _, ok := r.s.db.configs[c.Key]; ok {
		return nil
	}
	c.ID = uuid.NewString()
	c.CreatedAt = r.s.tick()
	c.UpdatedAt = c.CreatedAt
	r.s.db.configs[c.Key] = c
	return nil
}

func (r memConfigs) Upsert(_ context.Context, c models.SystemConfig) (models.SystemConfig, error) {
	done, err := r.guard("configs.upsert")
	if err != nil {
		return models.SystemConfig{}, err
	}
	defer done()
	now := r.s.tick()
	if cur, ok := r.s.db.configs[c.Key]; ok {
		c.ID = cur.ID
		c.CreatedAt = cur.CreatedAt
		if c.Description == "" {
			c.Description = cur.Description
		}
	} else {
		c.ID = uuid.NewString()
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	r.s.db.configs[c.Key] = c
	return c, nil
}

func (r memConfigs) Delete(_ context.Context, key string) error {
	done, err := r.guard("configs.delete")
	if err != nil {
		return err
	}
	defer done()
	if _, ok := r.s.db.configs[key]; !ok {
		return repo.ErrNotFound
	}
	delete(r.s.db.configs, key)
	return nil
}

// ----------------- notifications -----------------

type memNotifications struct{ *memRepos }

func (r memNotifications) Create(_ context.Context, n models.Notification) (models.Notification, error) {
	done, err := r.guard("notifications.create")
	if err != nil {
		return models.Notification{}, err
	}
	defer done()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = r.s.tick()
	r.s.db.notifications = append(r.s.db.notifications, n)
	return n, nil
}

func (r memNotifications) ListByUser(_ context.Context, userID string, unreadOnly bool) ([]models.Notification, error) {
	done, err := r.guard("notifications.list")
	if err != nil {
		return nil, err
	}
	defer done()
	out := []models.Notification{}
	for i := len(r.s.db.notifications) - 1; i >= 0; i-- {
		n := r.s.db.notifications[i]
		if n.UserID == userID && (!unreadOnly || !n.IsRead) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r memNotifications) MarkRead(_ context.Context, userID, id string) (models.Notification, error) {
	done, err := r.guard("notifications.update")
	if err != nil {
		return models.Notification{}, err
	}
	defer done()
	for i, n := range r.s.db.notifications {
		if n.ID == id && n.UserID == userID {
			r.s.db.notifications[i].IsRead = true
			return r.s.db.notifications[i], nil
		}
	}
	return models.Notification{}, repo.ErrNotFound
}

func (r memNotifications) MarkAllRead(_ context.Context, userID string) (int64, error) {
	done, err := r.guard("notifications.update")
	if err != nil {
		return 0, err
	}
	defer done()
	var n int64
	for i := range r.s.db.notifications {
		if r.s.db.notifications[i].UserID == userID && !r.s.db.notifications[i].IsRead {
			r.s.db.notifications[i].IsRead = true
			n++
		}
	}
	return n, nil
}

// ----------------- audit -----------------

type memAudit struct{ *memRepos }

func (r memAudit) Create(_ context.Context, l models.AuditLog) error {
	done, err := r.guard("audit.create")
	if err != nil {
		return err
	}
	defer done()
	l.ID = int64(len(r.s.db.audit) + 1)
	l.CreatedAt = r.s.tick()
	r.s.db.audit = append(r.s.db.audit, l)
	return nil
}
