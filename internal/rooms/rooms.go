// Package rooms owns the standing doctor/patient call rooms.
package rooms

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/dkeye/Consult/internal/apperr"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/dkeye/Consult/internal/storage"
)

const codeAttempts = 5

type Service struct {
	db      *gorm.DB
	newCode func() domain.RoomCode
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, newCode: NewCode}
}

// NewCode returns a short upper-case hex code.
func NewCode() domain.RoomCode {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return domain.RoomCode(strings.ToUpper(raw[:domain.RoomCodeLen]))
}

// Open returns the pair's room, reactivating it if needed, or creates it.
// Only the doctor of the pair or an admin may open a room.
func (s *Service) Open(ctx context.Context, caller domain.Identity, doctorID, patientID uint, title string) (*domain.Room, bool, error) {
	if doctorID == 0 || patientID == 0 {
		return nil, false, apperr.Validation("doctor and patient are required")
	}
	if !caller.IsAdmin() && !(caller.Role == domain.RoleDoctor && caller.ProfileID == doctorID) {
		return nil, false, apperr.PermissionDenied("%s %d cannot open rooms for doctor %d", caller.Role, caller.ProfileID, doctorID)
	}

	db := s.db.WithContext(ctx)
	room, err := s.byPair(db, doctorID, patientID)
	if err != nil {
		return nil, false, storage.Classify(err, "open room")
	}
	if room != nil {
		if !room.Active {
			if err := db.Model(room).Update("active", true).Error; err != nil {
				return nil, false, storage.Classify(err, "reactivate room")
			}
			room.Active = true
			log.Info().Str("module", "rooms").Str("room", string(room.Code)).Msg("room reactivated")
		}
		return room, false, nil
	}

	for i := 0; i < codeAttempts; i++ {
		room = &domain.Room{
			Code:      s.newCode(),
			DoctorID:  doctorID,
			PatientID: patientID,
			Title:     title,
			Active:    true,
		}
		err = db.Create(room).Error
		if err == nil {
			log.Info().Str("module", "rooms").Str("room", string(room.Code)).Uint("doctor_id", doctorID).Uint("patient_id", patientID).Msg("room opened")
			return room, true, nil
		}
		if !storage.IsDuplicateKey(err) {
			return nil, false, storage.Classify(err, "create room")
		}
		// Either the code collided or a concurrent call created the pair.
		if existing, perr := s.byPair(db, doctorID, patientID); perr == nil && existing != nil {
			return existing, false, nil
		}
	}
	return nil, false, apperr.Internal("create room", errors.New("no free room code"))
}

func (s *Service) byPair(db *gorm.DB, doctorID, patientID uint) (*domain.Room, error) {
	var room domain.Room
	err := db.Where("doctor_id = ? AND patient_id = ?", doctorID, patientID).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *Service) Get(ctx context.Context, code domain.RoomCode) (*domain.Room, error) {
	var room domain.Room
	err := s.db.WithContext(ctx).Where("code = ?", code).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("room %s not found", code)
	}
	if err != nil {
		return nil, storage.Classify(err, "get room")
	}
	return &room, nil
}

// Authorize loads the room and checks the caller is one of its participants.
func (s *Service) Authorize(ctx context.Context, code domain.RoomCode, caller domain.Identity) (*domain.Room, error) {
	room, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if !caller.ParticipatesIn(room) {
		return nil, apperr.PermissionDenied("%s %d is not a participant of room %s", caller.Role, caller.ProfileID, code)
	}
	return room, nil
}

// Finish deactivates the room; the doctor reopens it with the next call.
func (s *Service) Finish(ctx context.Context, code domain.RoomCode, caller domain.Identity) (*domain.Room, error) {
	room, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && !(caller.Role == domain.RoleDoctor && caller.ProfileID == room.DoctorID) {
		return nil, apperr.PermissionDenied("only the doctor of room %s can finish it", code)
	}
	if !room.Active {
		return room, nil
	}
	if err := s.db.WithContext(ctx).Model(room).Update("active", false).Error; err != nil {
		return nil, storage.Classify(err, "finish room")
	}
	room.Active = false
	log.Info().Str("module", "rooms").Str("room", string(code)).Msg("room finished")
	return room, nil
}
