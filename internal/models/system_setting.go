package models

import (
	"time"

	"gorm.io/datatypes"
)

// SystemSetting is a runtime setting editable through the API. Keys under
// "feature." hold a JSON boolean and gate scheduled syncs, history and
// platform notifications.
type SystemSetting struct {
	ID    uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	Key   string         `gorm:"type:varchar(120);not null;uniqueIndex" json:"key"`
	Value datatypes.JSON `gorm:"type:jsonb;not null" json:"value"`

	Description string `gorm:"type:text" json:"description"`
	// UpdatedBy is the gateway role or project that last wrote the value.
	UpdatedBy string    `gorm:"type:varchar(120)" json:"updated_by,omitempty"`
	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime;index" json:"updated_at"`
}

func (SystemSetting) TableName() string {
	return "system_settings"
}
