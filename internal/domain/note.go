package domain

import "time"

type ClinicalNote struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	RoomID       uint      `gorm:"not null;index" json:"room_id"`
	DoctorID     uint      `gorm:"not null;index" json:"doctor_id"`
	PatientID    uint      `gorm:"not null;index" json:"patient_id"`
	Notes        string    `gorm:"type:text" json:"notes"`
	Diagnosis    string    `gorm:"type:text" json:"diagnosis"`
	Prescription string    `gorm:"type:text" json:"prescription"`
	CreatedAt    time.Time `json:"created_at"`
}

func (ClinicalNote) TableName() string { return "clinical_notes" }
