package notes

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Consult/internal/apperr"
	"github.com/dkeye/Consult/internal/config"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/dkeye/Consult/internal/rooms"
	"github.com/dkeye/Consult/internal/storage"
)

func TestSaveAndList(t *testing.T) {
	db, err := storage.Open(config.DatabaseConfig{
		Driver:      storage.DriverSQLite,
		DSN:         filepath.Join(t.TempDir(), "notes.db"),
		LockTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	require.NoError(t, storage.Migrate(db))

	roomSvc := rooms.NewService(db)
	svc := NewService(db, roomSvc)
	ctx := context.Background()

	doc := domain.Identity{UserID: 10, Role: domain.RoleDoctor, ProfileID: 7}
	pat := domain.Identity{UserID: 20, Role: domain.RolePatient, ProfileID: 3}
	room, _, err := roomSvc.Open(ctx, doc, 7, 3, "")
	require.NoError(t, err)

	note, err := svc.Save(ctx, room.Code, doc, Input{Notes: "stable", Diagnosis: "J06.9"})
	require.NoError(t, err)
	assert.NotZero(t, note.ID)
	assert.Equal(t, uint(3), note.PatientID)

	_, err = svc.Save(ctx, room.Code, pat, Input{Notes: "x"})
	assert.True(t, apperr.Is(err, apperr.KindPermissionDenied))

	_, err = svc.Save(ctx, room.Code, doc, Input{Notes: "  "})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	list, err := svc.ListByRoom(ctx, room.Code, pat)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
