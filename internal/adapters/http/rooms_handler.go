package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Consult/internal/apperr"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/dkeye/Consult/internal/events"
	"github.com/dkeye/Consult/internal/notes"
)

type openRoomRequest struct {
	DoctorID  uint   `json:"doctor_id"`
	PatientID uint   `json:"patient_id" binding:"required"`
	Title     string `json:"title"`
}

// openRoom returns the pair's room, creating or reactivating it. Doctors open
// rooms for themselves; the doctor id defaults to the caller's profile.
func (h *handlers) openRoom(c *gin.Context) {
	var req openRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	id := caller(c)
	if req.DoctorID == 0 && id.Role == domain.RoleDoctor {
		req.DoctorID = id.ProfileID
	}

	room, created, err := h.Rooms.Open(c.Request.Context(), id, req.DoctorID, req.PatientID, req.Title)
	if err != nil {
		appError(c, err)
		return
	}
	successResponse(c, gin.H{
		"room":    room,
		"created": created,
	})
}

func (h *handlers) getRoom(c *gin.Context) {
	code := domain.RoomCode(c.Param("code"))
	id := caller(c)

	var (
		room *domain.Room
		err  error
	)
	if id.IsAdmin() {
		room, err = h.Rooms.Get(c.Request.Context(), code)
	} else {
		room, err = h.Rooms.Authorize(c.Request.Context(), code, id)
	}
	if err != nil {
		appError(c, err)
		return
	}
	successResponse(c, gin.H{
		"room":  room,
		"peers": h.Orch.Registry.Peers(code),
	})
}

func (h *handlers) finishRoom(c *gin.Context) {
	room, err := h.Rooms.Finish(c.Request.Context(), domain.RoomCode(c.Param("code")), caller(c))
	if err != nil {
		appError(c, err)
		return
	}
	successResponse(c, room)
}

func (h *handlers) listNotes(c *gin.Context) {
	list, err := h.Notes.ListByRoom(c.Request.Context(), domain.RoomCode(c.Param("code")), caller(c))
	if err != nil {
		appError(c, err)
		return
	}
	successResponse(c, gin.H{
		"notes": list,
		"count": len(list),
	})
}

// saveNote stores the note, then records it against today's consultation.
// A ledger failure does not undo the note; it is reported alongside it.
func (h *handlers) saveNote(c *gin.Context) {
	var in notes.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	ctx := c.Request.Context()
	code := domain.RoomCode(c.Param("code"))
	id := caller(c)

	note, err := h.Notes.Save(ctx, code, id, in)
	if err != nil {
		appError(c, err)
		return
	}

	res, err := h.Orch.NoteSaved(ctx, events.NoteSaved{
		RoomCode: code,
		NoteID:   note.ID,
		DoctorID: id.ProfileID,
		UserID:   id.UserID,
		SavedAt:  note.CreatedAt,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("room", string(code)).Uint("note_id", note.ID).Msg("note saved without consultation")
		successResponse(c, gin.H{
			"note":               note,
			"consultation_error": apperr.Message(err),
		})
		return
	}
	successResponse(c, gin.H{
		"note":         note,
		"consultation": res.Consultation,
		"created":      res.Created,
	})
}
