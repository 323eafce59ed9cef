package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	appLog "shabbatcal/internal/log"
	"shabbatcal/internal/model"
)

// RecordKey is the single key under which the CacheRecord is stored.
const RecordKey = "shabbatcal.cache_record"

// SchemaVersion is bumped whenever model.CacheRecord changes shape. A stored
// value with another version reads as no record.
const SchemaVersion = 1

// ErrNotFound is returned by a Backend when the key has never been set.
var ErrNotFound = errors.New("cache: not found")

// Store persists the single CacheRecord. Load returns (nil, nil) when there
// is nothing usable stored.
type Store interface {
	Load(ctx context.Context) (*model.CacheRecord, error)
	Save(ctx context.Context, rec model.CacheRecord) error
	Close() error
}

// Backend is a versioned key/value blob store.
type Backend interface {
	Get(ctx context.Context, key string) (value []byte, version int, err error)
	Set(ctx context.Context, key string, value []byte, version int) error
	Close() error
}

// Options selects and configures a Backend.
type Options struct {
	// Backend is one of "file", "sqlite", "redis", "memory" or "none".
	Backend string
	// Path is the file path for the file and sqlite backends.
	Path string

	RedisAddr string
	RedisDB   int
}

// NewStore opens the configured backend and wraps it in a RecordStore.
func NewStore(ctx context.Context, opts Options) (*RecordStore, error) {
	var (
		b   Backend
		err error
	)
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", "file":
		b, err = NewFileBackend(opts.Path)
	case "sqlite":
		b, err = NewSQLiteBackend(ctx, opts.Path)
	case "redis":
		b, err = NewRedisBackend(ctx, opts.RedisAddr, opts.RedisDB)
	case "memory":
		b = NewMemoryBackend()
	case "none":
		b = NoneBackend{}
	default:
		return nil, fmt.Errorf("cache: unsupported backend %q (file, sqlite, redis, memory, none)", opts.Backend)
	}
	if err != nil {
		return nil, err
	}
	return NewRecordStore(b), nil
}

// RecordStore encodes the CacheRecord as JSON over a Backend.
type RecordStore struct {
	backend Backend
}

var _ Store = (*RecordStore)(nil)

// NewRecordStore wraps b.
func NewRecordStore(b Backend) *RecordStore {
	return &RecordStore{backend: b}
}

// Load reads the record. A missing, corrupt or outdated value is reported
// as no record so that the gate forces a refetch.
func (s *RecordStore) Load(ctx context.Context) (*model.CacheRecord, error) {
	data, version, err := s.backend.Get(ctx, RecordKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache: load: %w", err)
	}
	if version != SchemaVersion {
		appLog.Warn("cache record has stale schema; ignoring", "version", version, "want", SchemaVersion)
		return nil, nil
	}
	var rec model.CacheRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		appLog.Warn("cache record is corrupt; ignoring", "err", err.Error())
		return nil, nil
	}
	return &rec, nil
}

// Save replaces the stored record.
func (s *RecordStore) Save(ctx context.Context, rec model.CacheRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("cache: encode: %w", err)
	}
	if err := s.backend.Set(ctx, RecordKey, data, SchemaVersion); err != nil {
		return fmt.Errorf("cache: save: %w", err)
	}
	return nil
}

// Close releases the backend.
func (s *RecordStore) Close() error {
	return s.backend.Close()
}

// entry is the serialized form used by the file and redis backends.
type entry struct {
	Key       string          `json:"key"`
	Version   int             `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
	Value     json.RawMessage `json:"value"`
}

func encodeEntry(key string, value []byte, version int) ([]byte, error) {
	return json.Marshal(entry{
		Key:       key,
		Version:   version,
		UpdatedAt: time.Now().UTC(),
		Value:     value,
	})
}

func decodeEntry(key string, data []byte) ([]byte, int, error) {
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, 0, err
	}
	if e.Key != key {
		return nil, 0, ErrNotFound
	}
	return e.Value, e.Version, nil
}
