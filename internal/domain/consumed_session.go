// Package domain defines the core persistence models for the application.
package domain

import "time"

// ConsumedSession marks a payment session id as used for generation. The
// unique index on SessionID makes a second consumption fail at the database,
// which gives replay protection that survives restarts and spans instances.
type ConsumedSession struct {
	ID         uint      `gorm:"primaryKey"`
	SessionID  string    `gorm:"type:varchar(200);not null;uniqueIndex:ux_consumed_session"`
	ConsumedAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (ConsumedSession) TableName() string { return "consumed_sessions" }
