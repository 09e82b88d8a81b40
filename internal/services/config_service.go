package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/dispatchly/backend/internal/models"
	repo "github.com/dispatchly/backend/internal/repository"
)

const (
	KeyDriverMinBalance       = "DRIVER_MIN_BALANCE"
	KeyDriverCommissionPct    = "DRIVER_COMMISSION_PERCENTAGE"
	KeyOrderDeliveryRadiusKm  = "ORDER_DELIVERY_RADIUS_KM"
	KeyOrderBasePrice         = "ORDER_BASE_PRICE"
	KeyOrderPricePerKm        = "ORDER_PRICE_PER_KM"
	KeySmallMultiplier        = "PACKAGE_SIZE_SMALL_MULTIPLIER"
	KeyMediumMultiplier       = "PACKAGE_SIZE_MEDIUM_MULTIPLIER"
	KeyLargeMultiplier        = "PACKAGE_SIZE_LARGE_MULTIPLIER"
	KeyMaxOrdersPerDriver     = "MAX_ORDERS_PER_DRIVER"
	KeyOrderAutoCancelMinutes = "ORDER_AUTO_CANCEL_MINUTES"
	KeySecurityDepositEnabled = "DRIVER_SECURITY_DEPOSIT_ENABLED"
)

// Fallbacks used when a key is missing from both cache and database.
const (
	DefaultDriverMinBalance       = 5000.0
	DefaultCommissionPct          = 20.0
	DefaultDeliveryRadiusKm       = 50.0
	DefaultBasePrice              = 1000.0
	DefaultPricePerKm             = 100.0
	DefaultOrderAutoCancelMinutes = 30.0
)

var defaultConfigs = []models.SystemConfig{
	{Key: KeyDriverMinBalance, Value: "5000", DataType: models.ConfigNumber, Description: "Minimum wallet balance a driver needs to accept orders"},
	{Key: KeyDriverCommissionPct, Value: "20", DataType: models.ConfigNumber, Description: "Platform commission taken from each delivery, in percent"},
	{Key: KeyOrderDeliveryRadiusKm, Value: "50", DataType: models.ConfigNumber, Description: "Radius in km within which drivers see pending orders"},
	{Key: KeyOrderBasePrice, Value: "1000", DataType: models.ConfigNumber, Description: "Base delivery price"},
	{Key: KeyOrderPricePerKm, Value: "100", DataType: models.ConfigNumber, Description: "Price per km"},
	{Key: KeySmallMultiplier, Value: "1", DataType: models.ConfigNumber, Description: "Price multiplier for small packages"},
	{Key: KeyMediumMultiplier, Value: "1.5", DataType: models.ConfigNumber, Description: "Price multiplier for medium packages"},
	{Key: KeyLargeMultiplier, Value: "2", DataType: models.ConfigNumber, Description: "Price multiplier for large packages"},
	{Key: KeyMaxOrdersPerDriver, Value: "1", DataType: models.ConfigNumber, Description: "Maximum concurrent orders per driver"},
	{Key: KeyOrderAutoCancelMinutes, Value: "30", DataType: models.ConfigNumber, Description: "Minutes before an unaccepted order is cancelled, 0 disables"},
	{Key: KeySecurityDepositEnabled, Value: "false", DataType: models.ConfigBoolean, Description: "Hold DRIVER_MIN_BALANCE from the driver while an order is in progress"},
}

// ConfigUpdate is one entry of a bulk update.
type ConfigUpdate struct {
	Key         string                `json:"key" validate:"required"`
	Value       string                `json:"value"`
	DataType    models.ConfigDataType `json:"data_type,omitempty"`
	Description string                `json:"description,omitempty"`
}

// ConfigService is a read-through cache over system_configs. Writes go to the
// database first and then replace the cached entry.
type ConfigService struct {
	store repo.Store
	log   *slog.Logger

	mu    sync.RWMutex
	cache map[string]models.SystemConfig
}

func NewConfigService(store repo.Store, log *slog.Logger) *ConfigService {
	return &ConfigService{
		store: store,
		log:   log.With("svc", "config"),
		cache: map[string]models.SystemConfig{},
	}
}

// Init seeds missing defaults and loads every row into the cache.
func (s *ConfigService) Init(ctx context.Context) error {
	r := s.store.Repos()
	for _, c := range defaultConfigs {
		if err := r.SystemConfigs.InsertIfMissing(ctx, c); err != nil {
			return fmt.Errorf("seed %s: %w", c.Key, err)
		}
	}
	return s.RefreshCache(ctx)
}

// RefreshCache replaces the cache with the current database contents.
func (s *ConfigService) RefreshCache(ctx context.Context) error {
	rows, err := s.store.Repos().SystemConfigs.List(ctx)
	if err != nil {
		return err
	}
	fresh := make(map[string]models.SystemConfig, len(rows))
	for _, c := range rows {
		fresh[c.Key] = c
	}
	s.mu.Lock()
	s.cache = fresh
	s.mu.Unlock()
	s.log.Info("config cache loaded", "keys", len(fresh))
	return nil
}

func (s *ConfigService) lookup(ctx context.Context, key string) (models.SystemConfig, bool) {
	s.mu.RLock()
	c, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return c, true
	}
	c, err := s.store.Repos().SystemConfigs.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			s.log.Warn("config lookup failed", "key", key, "err", err)
		}
		return models.SystemConfig{}, false
	}
	s.put(c)
	return c, true
}

func (s *ConfigService) put(c models.SystemConfig) {
	s.mu.Lock()
	s.cache[c.Key] = c
	s.mu.Unlock()
}

// Get returns the parsed value of key, or def when the key is unknown.
func (s *ConfigService) Get(ctx context.Context, key string, def any) any {
	c, ok := s.lookup(ctx, key)
	if !ok {
		return def
	}
	return parseValue(c)
}

func (s *ConfigService) GetNumber(ctx context.Context, key string, def float64) float64 {
	if n, ok := s.Get(ctx, key, def).(float64); ok {
		return n
	}
	return def
}

func (s *ConfigService) GetBoolean(ctx context.Context, key string, def bool) bool {
	if b, ok := s.Get(ctx, key, def).(bool); ok {
		return b
	}
	return def
}

func (s *ConfigService) GetString(ctx context.Context, key string, def string) string {
	c, ok := s.lookup(ctx, key)
	if !ok {
		return def
	}
	return c.Value
}

// GetAll returns the cached entries sorted by key.
func (s *ConfigService) GetAll() []models.SystemConfig {
	s.mu.RLock()
	out := make([]models.SystemConfig, 0, len(s.cache))
	for _, c := range s.cache {
		out = append(out, c)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Update upserts one key. An empty dataType keeps the stored type, or string
// for a new key.
func (s *ConfigService) Update(ctx context.Context, actorID string, u ConfigUpdate) (models.SystemConfig, error) {
	out, err := s.BulkUpdate(ctx, actorID, []ConfigUpdate{u})
	if err != nil {
		return models.SystemConfig{}, err
	}
	return out[0], nil
}

// BulkUpdate applies every entry in one transaction; either all keys change
// or none do.
func (s *ConfigService) BulkUpdate(ctx context.Context, actorID string, updates []ConfigUpdate) ([]models.SystemConfig, error) {
	if len(updates) == 0 {
		return nil, fmt.Errorf("%w: no updates", ErrInvalidInput)
	}
	var saved []models.SystemConfig
	err := s.store.WithTx(ctx, func(r repo.Repos) error {
		saved = saved[:0]
		for _, u := range updates {
			c, err := s.prepare(ctx, r, u)
			if err != nil {
				return err
			}
			c, err = r.SystemConfigs.Upsert(ctx, c)
			if err != nil {
				return err
			}
			audit(ctx, r, s.log, actorID, "system_config", c.Key, "update", map[string]any{"value": c.Value})
			saved = append(saved, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, c := range saved {
		s.put(c)
	}
	return saved, nil
}

func (s *ConfigService) prepare(ctx context.Context, r repo.Repos, u ConfigUpdate) (models.SystemConfig, error) {
	key := strings.TrimSpace(u.Key)
	if key == "" {
		return models.SystemConfig{}, fmt.Errorf("%w: key is required", ErrInvalidInput)
	}
	dt := u.DataType
	if dt == "" {
		existing, err := r.SystemConfigs.Get(ctx, key)
		switch {
		case err == nil:
			dt = existing.DataType
		case errors.Is(err, repo.ErrNotFound):
			dt = models.ConfigString
		default:
			return models.SystemConfig{}, err
		}
	}
	if !dt.Valid() {
		return models.SystemConfig{}, fmt.Errorf("%w: unknown data type %q", ErrInvalidInput, dt)
	}
	if err := checkValue(dt, u.Value); err != nil {
		return models.SystemConfig{}, fmt.Errorf("%w: %s: %v", ErrInvalidInput, key, err)
	}
	return models.SystemConfig{Key: key, Value: u.Value, DataType: dt, Description: u.Description}, nil
}

func (s *ConfigService) Delete(ctx context.Context, actorID, key string) error {
	err := s.store.WithTx(ctx, func(r repo.Repos) error {
		if err := r.SystemConfigs.Delete(ctx, key); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrConfigNotFound, key)
			}
			return err
		}
		audit(ctx, r, s.log, actorID, "system_config", key, "delete", nil)
		return nil
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()
	return nil
}

func parseValue(c models.SystemConfig) any {
	switch c.DataType {
	case models.ConfigNumber:
		n, err := strconv.ParseFloat(strings.TrimSpace(c.Value), 64)
		if err != nil {
			return nil
		}
		return n
	case models.ConfigBoolean:
		return c.Value == "true" || c.Value == "1"
	case models.ConfigJSON:
		var v any
		if err := json.Unmarshal([]byte(c.Value), &v); err != nil {
			return c.Value
		}
		return v
	default:
		return c.Value
	}
}

func checkValue(dt models.ConfigDataType, v string) error {
	switch dt {
	case models.ConfigNumber:
		if _, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err != nil {
			return errors.New("not a number")
		}
	case models.ConfigBoolean:
		switch v {
		case "true", "false", "1", "0":
		default:
			return errors.New("not a boolean")
		}
	case models.ConfigJSON:
		if !json.Valid([]byte(v)) {
			return errors.New("not valid json")
		}
	}
	return nil
}
