package models

import "time"

// ProviderCallLog records each AI provider evaluation for latency and
// availability tracking.
type ProviderCallLog struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Provider     string    `gorm:"size:100;index" json:"provider"`
	Backend      string    `gorm:"size:50" json:"backend"`
	Attempts     int       `json:"attempts"`
	LatencyMs    int64     `json:"latency_ms"`
	Success      bool      `json:"success"`
	Approved     bool      `json:"approved"`
	RiskLevel    string    `gorm:"size:20" json:"risk_level"`
	ErrorMessage string    `gorm:"size:500" json:"error_message,omitempty"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

func (ProviderCallLog) TableName() string { return "provider_call_logs" }
