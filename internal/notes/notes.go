// Package notes stores the clinical notes a doctor files for a room.
package notes

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/dkeye/Consult/internal/apperr"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/dkeye/Consult/internal/rooms"
	"github.com/dkeye/Consult/internal/storage"
)

type Input struct {
	Notes        string `json:"notes"`
	Diagnosis    string `json:"diagnosis"`
	Prescription string `json:"prescription"`
}

func (in Input) empty() bool {
	return strings.TrimSpace(in.Notes) == "" &&
		strings.TrimSpace(in.Diagnosis) == "" &&
		strings.TrimSpace(in.Prescription) == ""
}

type Service struct {
	db    *gorm.DB
	rooms *rooms.Service
}

func NewService(db *gorm.DB, roomSvc *rooms.Service) *Service {
	return &Service{db: db, rooms: roomSvc}
}

func (s *Service) Save(ctx context.Context, code domain.RoomCode, caller domain.Identity, in Input) (*domain.ClinicalNote, error) {
	if caller.Role != domain.RoleDoctor {
		return nil, apperr.PermissionDenied("only doctors file clinical notes")
	}
	if in.empty() {
		return nil, apperr.Validation("note is empty")
	}
	room, err := s.rooms.Authorize(ctx, code, caller)
	if err != nil {
		return nil, err
	}
	note := &domain.ClinicalNote{
		RoomID:       room.ID,
		DoctorID:     room.DoctorID,
		PatientID:    room.PatientID,
		Notes:        in.Notes,
		Diagnosis:    in.Diagnosis,
		Prescription: in.Prescription,
	}
	if err := s.db.WithContext(ctx).Create(note).Error; err != nil {
		return nil, storage.Classify(err, "save note")
	}
	log.Info().Str("module", "notes").Str("room", string(code)).Uint("note_id", note.ID).Msg("note saved")
	return note, nil
}

func (s *Service) ListByRoom(ctx context.Context, code domain.RoomCode, caller domain.Identity) ([]domain.ClinicalNote, error) {
	room, err := s.rooms.Authorize(ctx, code, caller)
	if err != nil {
		return nil, err
	}
	var out []domain.ClinicalNote
	if err := s.db.WithContext(ctx).Where("room_id = ?", room.ID).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, storage.Classify(err, "list notes")
	}
	return out, nil
}
