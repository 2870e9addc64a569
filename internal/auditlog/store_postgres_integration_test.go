//go:build integration

package auditlog

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mealflow/internal/workflow/models"
	"mealflow/pkg/sentinel"
	"mealflow/pkg/testutil/containers"
)

func TestPostgresStore_AppendAndHistory(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	s := NewPostgresStore(pg.DB)
	ctx := context.Background()
	entityID := uuid.New()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	_, err := s.MostRecent(ctx, models.KindTechSheet, entityID)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	actor := uuid.New()
	for i, code := range []int{201, 203, 204} {
		stored, err := s.Append(ctx, Entry{
			ID:            uuid.New(),
			Kind:          models.KindTechSheet,
			EntityUUID:    entityID,
			EventCode:     code,
			ActorID:       actor,
			ActorRole:     models.RoleSupplier,
			Justification: "movement",
			Attachments:   []models.Attachment{{Filename: "sheet.pdf", ContentRef: "blob://sheet"}},
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
		assert.Positive(t, stored.Seq)
	}

	latest, err := s.MostRecent(ctx, models.KindTechSheet, entityID)
	require.NoError(t, err)
	assert.Equal(t, 204, latest.EventCode)
	require.Len(t, latest.Attachments, 1)
	assert.Equal(t, "sheet.pdf", latest.Attachments[0].Filename)

	var codes []int
	for entry, err := range s.History(models.KindTechSheet, entityID) {
		require.NoError(t, err)
		codes = append(codes, entry.EventCode)
	}
	assert.Equal(t, []int{201, 203, 204}, codes)
}

func TestPostgresStore_MostRecent_TiesBreakBySeq(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	s := NewPostgresStore(pg.DB)
	ctx := context.Background()
	entityID := uuid.New()
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	for _, code := range []int{201, 203} {
		_, err := s.Append(ctx, Entry{
			ID:         uuid.New(),
			Kind:       models.KindTechSheet,
			EntityUUID: entityID,
			EventCode:  code,
			ActorID:    uuid.New(),
			ActorRole:  models.RoleSupplier,
			CreatedAt:  at,
		})
		require.NoError(t, err)
	}

	latest, err := s.MostRecent(ctx, models.KindTechSheet, entityID)
	require.NoError(t, err)
	assert.Equal(t, 203, latest.EventCode)
}
