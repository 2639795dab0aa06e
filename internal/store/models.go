// Package store is the durable, transactional backing for devices,
// neighbor edges, and state-transition audit records. It is the only
// package that touches the database; everything else in netcrawl talks
// to it through the Store type's methods.
package store

import (
	"time"
)

// Device is the fundamental entity tracked by the crawl.
type Device struct {
	ID          int64      `gorm:"primaryKey"`
	Address     string     `gorm:"uniqueIndex;not null"`
	Hostname    string     `gorm:""`
	Serial      string     `gorm:""`
	Platform    string     `gorm:""`
	State       string     `gorm:"index;not null"`
	LastSeen    *time.Time `gorm:""`
	Enriched    bool       `gorm:"not null;default:false"`
	LastError   string     `gorm:""`
	ClaimedBy   string     `gorm:""`
	RetryCount  int        `gorm:"not null;default:0"`
	CreatedAt   time.Time  `gorm:"not null"`
	UpdatedAt   time.Time  `gorm:"not null"`
}

func (Device) TableName() string { return "devices" }

// NeighborEdge is an append-only observed adjacency. Duplicates are
// permitted; each insert also ensures the neighbor exists in devices.
type NeighborEdge struct {
	ID              int64     `gorm:"primaryKey"`
	DeviceID        int64     `gorm:"index;not null"`
	NeighborAddress string    `gorm:"not null"`
	NeighborHost    string    `gorm:""`
	LocalInterface  string    `gorm:""`
	CreatedAt       time.Time `gorm:"not null"`
}

func (NeighborEdge) TableName() string { return "device_neighbors" }

// StateTransition is an append-only audit record of one accepted FSM
// transition.
type StateTransition struct {
	ID        int64     `gorm:"primaryKey"`
	DeviceID  int64     `gorm:"index;not null"`
	FromState string    `gorm:"not null"`
	ToState   string    `gorm:"not null"`
	ErrorMsg  string    `gorm:""`
	Timestamp time.Time `gorm:"not null"`
}

func (StateTransition) TableName() string { return "state_transitions" }
