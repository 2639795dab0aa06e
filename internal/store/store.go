package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/netcrawl/netcrawl/internal/fsm"
	"github.com/netcrawl/netcrawl/pkg/util"
)

// Store is netcrawl's durable backing store. A single Store is shared
// by every worker and the reaper; all writes serialize behind mu, which
// matters for SQLite specifically since its native locking is coarser
// than a server database's row locks.
type Store struct {
	mu sync.Mutex
	db *gorm.DB
}

// Open creates/migrates the database file at path and returns a ready
// Store. An empty path uses an in-memory database, handy for tests.
func Open(path string) (*Store, error) {
	if path == "" {
		path = "file::memory:?cache=shared"
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	if err := db.AutoMigrate(&Device{}, &NeighborEdge{}, &StateTransition{}); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	// SQLite's writer lock is coarser than a server database's row
	// locks; a single connection plus mu above keeps every transaction
	// strictly serialized instead of surfacing "database is locked"
	// errors under concurrent workers.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AddDevice inserts a new device in QUEUED state, or is a no-op if
// address already exists. Returns the device's id either way.
func (s *Store) AddDevice(address, hostname string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing Device
	err := s.db.Where("address = ?", address).First(&existing).Error
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, util.NewDeviceError(address, "add_device", err)
	}

	now := time.Now().UTC()
	d := Device{
		Address:   address,
		Hostname:  hostname,
		State:     string(fsm.Queued),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.Create(&d).Error; err != nil {
		// Lost a race with another inserter on the unique index; treat
		// as the idempotent no-op the contract requires.
		var again Device
		if lookErr := s.db.Where("address = ?", address).First(&again).Error; lookErr == nil {
			return again.ID, nil
		}
		return 0, util.NewDeviceError(address, "add_device", err)
	}
	return d.ID, nil
}

// Claim atomically assigns one QUEUED device, FIFO by created_at, to
// workerID, transitioning it to CONNECTING. Returns nil, nil if none are
// available. The SELECT+UPDATE predicate is re-checked inside the
// transaction so two concurrent claims can never pick the same row.
func (s *Store) Claim(workerID string) (*Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var claimed *Device
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var candidate Device
		err := tx.Where("state = ?", string(fsm.Queued)).
			Order("created_at ASC").
			Limit(1).
			First(&candidate).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		res := tx.Model(&Device{}).
			Where("id = ? AND state = ?", candidate.ID, string(fsm.Queued)).
			Updates(map[string]interface{}{
				"claimed_by": workerID,
				"state":      string(fsm.Connecting),
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Another transaction claimed it between SELECT and UPDATE.
			return nil
		}

		candidate.ClaimedBy = workerID
		candidate.State = string(fsm.Connecting)
		candidate.UpdatedAt = now
		claimed = &candidate
		return nil
	})
	if err != nil {
		return nil, util.NewDeviceError("", "claim", err)
	}
	return claimed, nil
}

// GetByAddress fetches a device by its unique address, or nil if absent.
func (s *Store) GetByAddress(address string) (*Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var d Device
	err := s.db.Where("address = ?", address).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, util.NewDeviceError(address, "get_by_address", err)
	}
	return &d, nil
}

// UpdateState applies a validated FSM transition to device id, persists
// its new state and optional error message, and appends an audit
// StateTransition row, all inside one transaction.
func (s *Store) UpdateState(id int64, from, to fsm.State, errMsg string) error {
	tr, err := fsm.CreateTransition(id, from, to, errMsg)
	if err != nil {
		// spec.md §7: an invalid transition is a programming error; it
		// must not reach the store as a partial write.
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Device{}).Where("id = ?", id).Updates(map[string]interface{}{
			"state":      string(to),
			"last_error": errMsg,
			"updated_at": tr.Timestamp,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("store: update_state: device %d: %w", id, util.ErrNotFound)
		}

		row := StateTransition{
			DeviceID:  tr.DeviceID,
			FromState: string(tr.From),
			ToState:   string(tr.To),
			ErrorMsg:  tr.ErrorMsg,
			Timestamp: tr.Timestamp,
		}
		return tx.Create(&row).Error
	})
}

// DeviceInfo is the partial-update payload for UpdateInfo; zero-value
// fields are left untouched except where Ptr fields make "no change"
// explicit.
type DeviceInfo struct {
	Hostname *string
	Platform *string
	Serial   *string
	LastSeen *time.Time
	Enriched *bool
}

// UpdateInfo applies a partial update: only the non-nil fields of info
// change.
func (s *Store) UpdateInfo(id int64, info DeviceInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	changes := map[string]interface{}{"updated_at": time.Now().UTC()}
	if info.Hostname != nil {
		changes["hostname"] = *info.Hostname
	}
	if info.Platform != nil {
		changes["platform"] = *info.Platform
	}
	if info.Serial != nil {
		changes["serial"] = *info.Serial
	}
	if info.LastSeen != nil {
		changes["last_seen"] = *info.LastSeen
	}
	if info.Enriched != nil {
		changes["enriched"] = *info.Enriched
	}

	res := s.db.Model(&Device{}).Where("id = ?", id).Updates(changes)
	if res.Error != nil {
		return fmt.Errorf("store: update_info: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("store: update_info: device %d: %w", id, util.ErrNotFound)
	}
	return nil
}

// Neighbor is one adjacency discovered on a device.
type Neighbor struct {
	Address   string
	Hostname  string
	Interface string
}

// AddNeighbors appends one edge per neighbor and ensures each neighbor
// address exists in devices (idempotent insert), breaking cycles in the
// topology graph at insertion time.
func (s *Store) AddNeighbors(id int64, neighbors []Neighbor) error {
	for _, n := range neighbors {
		if _, err := s.AddDevice(n.Address, n.Hostname); err != nil {
			return err
		}

		s.mu.Lock()
		err := s.db.Create(&NeighborEdge{
			DeviceID:        id,
			NeighborAddress: n.Address,
			NeighborHost:    n.Hostname,
			LocalInterface:  n.Interface,
			CreatedAt:       time.Now().UTC(),
		}).Error
		s.mu.Unlock()
		if err != nil {
			return fmt.Errorf("store: add_neighbors: %w", err)
		}
	}
	return nil
}

// Release clears a device's claim without touching its state.
func (s *Store) Release(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.db.Model(&Device{}).Where("id = ?", id).Updates(map[string]interface{}{
		"claimed_by": "",
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return fmt.Errorf("store: release: %w", res.Error)
	}
	return nil
}

// IncrementRetry bumps a device's retry_count by one.
func (s *Store) IncrementRetry(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.db.Model(&Device{}).Where("id = ?", id).
		UpdateColumn("retry_count", gorm.Expr("retry_count + 1"))
	if res.Error != nil {
		return fmt.Errorf("store: increment_retry: %w", res.Error)
	}
	return nil
}

// ReapStaleClaims unclaims every device whose claim has gone silent
// longer than ttl, returning it to QUEUED and bumping its retry count.
// Returns the number of devices reaped.
func (s *Store) ReapStaleClaims(ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-ttl)
	res := s.db.Model(&Device{}).
		Where("claimed_by != ? AND updated_at < ?", "", cutoff).
		Updates(map[string]interface{}{
			"claimed_by":  "",
			"state":       string(fsm.Queued),
			"retry_count": gorm.Expr("retry_count + 1"),
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("store: reap_stale_claims: %w", res.Error)
	}
	return res.RowsAffected, nil
}
