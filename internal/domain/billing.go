package domain

import "time"

type BillingConfig struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	DoctorID        uint      `gorm:"not null;uniqueIndex" json:"doctor_id"`
	Price           float64   `gorm:"not null" json:"price"`
	DoctorPercent   float64   `gorm:"not null" json:"doctor_percent"`
	PlatformPercent float64   `gorm:"not null" json:"platform_percent"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (BillingConfig) TableName() string { return "billing_configs" }
