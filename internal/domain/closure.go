package domain

import "time"

// Closure is a doctor's monthly aggregate plus the two payout confirmations.
type Closure struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	DoctorID      uint      `gorm:"not null;uniqueIndex:idx_closures_period" json:"doctor_id"`
	Month         int       `gorm:"not null;uniqueIndex:idx_closures_period" json:"month"`
	Year          int       `gorm:"not null;uniqueIndex:idx_closures_period" json:"year"`
	Count         int64     `gorm:"not null" json:"count"`
	Gross         float64   `gorm:"not null" json:"gross"`
	DoctorShare   float64   `gorm:"not null" json:"doctor_share"`
	PlatformShare float64   `gorm:"not null" json:"platform_share"`
	ComputedAt    time.Time `json:"computed_at"`

	PlatformConfirmed   bool       `gorm:"not null;default:false" json:"platform_confirmed"`
	PlatformConfirmedAt *time.Time `json:"platform_confirmed_at,omitempty"`
	PlatformNote        string     `gorm:"size:500" json:"platform_note,omitempty"`

	DoctorConfirmed   bool       `gorm:"not null;default:false" json:"doctor_confirmed"`
	DoctorConfirmedAt *time.Time `json:"doctor_confirmed_at,omitempty"`
	DoctorNote        string     `gorm:"size:500" json:"doctor_note,omitempty"`
}

func (Closure) TableName() string { return "closures" }
