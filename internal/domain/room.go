package domain

import "time"

type RoomCode string

const RoomCodeLen = 6

type Room struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Code      RoomCode  `gorm:"size:16;uniqueIndex;not null" json:"code"`
	DoctorID  uint      `gorm:"not null;uniqueIndex:idx_rooms_pair" json:"doctor_id"`
	PatientID uint      `gorm:"not null;uniqueIndex:idx_rooms_pair" json:"patient_id"`
	Title     string    `gorm:"size:120" json:"title"`
	Active    bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Room) TableName() string { return "rooms" }
