package domain

import "time"

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// DayLayout is the calendar-day key of a consultation.
const DayLayout = "2006-01-02"

// Consultation is the single billable fact for a room on a given day.
type Consultation struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	RoomID        uint          `gorm:"not null;uniqueIndex:idx_consultations_room_day" json:"room_id"`
	Day           string        `gorm:"size:10;not null;uniqueIndex:idx_consultations_room_day" json:"day"`
	DoctorID      uint          `gorm:"not null;index" json:"doctor_id"`
	PatientID     uint          `gorm:"not null;index" json:"patient_id"`
	NoteID        *uint         `json:"note_id,omitempty"`
	Total         float64       `gorm:"not null" json:"total"`
	DoctorShare   float64       `gorm:"not null" json:"doctor_share"`
	PlatformShare float64       `gorm:"not null" json:"platform_share"`
	Status        PaymentStatus `gorm:"size:16;not null;default:pending" json:"status"`
	CreatedAt     time.Time     `gorm:"index" json:"created_at"`
}

func (Consultation) TableName() string { return "consultations" }

// BillingSummary aggregates a doctor's consultations over a period.
type BillingSummary struct {
	DoctorID      uint    `json:"doctor_id"`
	Count         int64   `json:"count"`
	Gross         float64 `json:"gross"`
	DoctorShare   float64 `json:"doctor_share"`
	PlatformShare float64 `json:"platform_share"`
	Pending       int64   `json:"pending"`
	Paid          int64   `json:"paid"`
}
