package domain

import "time"

// APIUsage aggregates outbound provider calls per service and UTC day.
// Rows are only ever changed by atomic increments.
type APIUsage struct {
	Service    string    `json:"service"     gorm:"type:varchar(64);primaryKey"`
	Day        string    `json:"day"         gorm:"type:char(10);primaryKey"` // YYYY-MM-DD
	Calls      int64     `json:"calls"       gorm:"not null;default:0"`
	CostMicros int64     `json:"cost_micros" gorm:"not null;default:0"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName returns the database table name for APIUsage.
func (APIUsage) TableName() string { return "api_usage" }
