package services

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/dispatchly/backend/internal/models"
	"github.com/dispatchly/backend/internal/repository/repotest"
)

var testLog = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixture struct {
	store  *repotest.Store
	cfg    *ConfigService
	wallet *WalletService
	orders *OrderService
	events *recordingEvents
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repotest.New()
	cfg := NewConfigService(store, testLog)
	require.NoError(t, cfg.Init(context.Background()))
	wallet := NewWalletService(store, cfg, testLog)
	events := &recordingEvents{}
	return &fixture{
		store:  store,
		cfg:    cfg,
		wallet: wallet,
		orders: NewOrderService(store, wallet, cfg, events, testLog),
		events: events,
	}
}

func (f *fixture) setConfig(t *testing.T, key, value string) {
	t.Helper()
	_, err := f.cfg.Update(context.Background(), "admin", ConfigUpdate{Key: key, Value: value})
	require.NoError(t, err)
}

func (f *fixture) fund(t *testing.T, userID string, amount int64) {
	t.Helper()
	_, err := f.wallet.AddFunds(context.Background(), userID, FundsInput{Amount: decimal.NewFromInt(amount)})
	require.NoError(t, err)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type published struct {
	Room, Event string
	Payload     any
}

// recordingEvents captures lifecycle events synchronously.
type recordingEvents struct {
	mu        sync.Mutex
	notices   []Notice
	published []published
}

func (e *recordingEvents) Notify(_ context.Context, n Notice) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notices = append(e.notices, n)
}

func (e *recordingEvents) Publish(_ context.Context, room, event string, payload any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.published = append(e.published, published{room, event, payload})
}

func (e *recordingEvents) noticeTypes() []models.NotificationType {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []models.NotificationType
	for _, n := range e.notices {
		out = append(out, n.Type)
	}
	return out
}

func (e *recordingEvents) eventNames() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, p := range e.published {
		out = append(out, p.Event)
	}
	return strings.Join(out, ",")
}
