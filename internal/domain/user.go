// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const MaxDisplayNameLen = 64

var (
	ErrDisplayNameEmpty   = errors.New("display name empty")
	ErrDisplayNameTooLong = errors.New("display name too long")
)

type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleDoctor, RolePatient, RoleAdmin:
		return true
	}
	return false
}

// Identity is who the auth module says is calling.
// ProfileID is the doctor id for doctors and the patient id for patients.
type Identity struct {
	UserID    uint `json:"user_id"`
	Role      Role `json:"role"`
	ProfileID uint `json:"profile_id"`
}

func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// ParticipatesIn reports whether the identity is one of the two owners of the room.
func (i Identity) ParticipatesIn(r *Room) bool {
	switch i.Role {
	case RoleDoctor:
		return r.DoctorID == i.ProfileID
	case RolePatient:
		return r.PatientID == i.ProfileID
	}
	return false
}

func ValidateDisplayName(name string) error {
	if len(name) == 0 {
		return ErrDisplayNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return ErrDisplayNameTooLong
	}
	return nil
}
