// Package model contains the persisted-asset models for the database.
package model

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("no app found")
)

// App is the model for one patched application, keyed by its stable
// bundle identifier so records survive reinstalls and updates.
type App struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	Identifier string `gorm:"uniqueIndex;not null" json:"identifier"`

	Assets []Asset `gorm:"foreignKey:AppID;constraint:OnDelete:CASCADE" json:"assets,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Asset is one previously injected asset file path.
type Asset struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	AppID uint   `gorm:"index;not null" json:"app_id"`
	Path  string `gorm:"not null" json:"path"`

	CreatedAt time.Time `json:"created_at"`
}
