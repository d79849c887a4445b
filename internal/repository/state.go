package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"arrears-recon/internal/domain"
)

// Keys of the three persisted collections.
const (
	RecordsKey = "bapenda_records"
	LogsKey    = "bapenda_logs"
	ConfigKey  = "bapenda_config"
)

// BlobStore is a flat key-value store of opaque documents. A missing key is
// reported with ok=false, not an error.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
}

type State struct {
	Records    []domain.ArrearsRecord
	Logs       []domain.ProcessLog
	YearConfig domain.YearConfig

	// YearConfigStored is false when YearConfig is the built-in default.
	YearConfigStored bool
}

// StateRepository stores each collection as its own JSON document.
type StateRepository struct {
	store BlobStore
}

func NewStateRepository(store BlobStore) *StateRepository {
	return &StateRepository{store: store}
}

// Load restores all three collections; absent keys fall back to empty
// collections and the default year range.
func (r *StateRepository) Load(ctx context.Context) (State, error) {
	st := State{
		Records:    []domain.ArrearsRecord{},
		Logs:       []domain.ProcessLog{},
		YearConfig: domain.DefaultYearConfig(),
	}

	if _, err := r.load(ctx, RecordsKey, &st.Records); err != nil {
		return st, err
	}
	if _, err := r.load(ctx, LogsKey, &st.Logs); err != nil {
		return st, err
	}
	found, err := r.load(ctx, ConfigKey, &st.YearConfig)
	if err != nil {
		return st, err
	}
	st.YearConfigStored = found
	return st, nil
}

func (r *StateRepository) load(ctx context.Context, key string, dest any) (bool, error) {
	data, ok, err := r.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if !ok || len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func (r *StateRepository) save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := r.store.Set(ctx, key, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (r *StateRepository) SaveRecords(ctx context.Context, records []domain.ArrearsRecord) error {
	if records == nil {
		records = []domain.ArrearsRecord{}
	}
	return r.save(ctx, RecordsKey, records)
}

func (r *StateRepository) SaveLogs(ctx context.Context, logs []domain.ProcessLog) error {
	if logs == nil {
		logs = []domain.ProcessLog{}
	}
	return r.save(ctx, LogsKey, logs)
}

func (r *StateRepository) SaveYearConfig(ctx context.Context, cfg domain.YearConfig) error {
	return r.save(ctx, ConfigKey, cfg)
}

// Clear removes every persisted collection.
func (r *StateRepository) Clear(ctx context.Context) error {
	if err := r.store.Delete(ctx, RecordsKey, LogsKey, ConfigKey); err != nil {
		return fmt.Errorf("failed to clear state: %w", err)
	}
	return nil
}
