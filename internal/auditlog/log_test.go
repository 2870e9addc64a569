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
)

func newTestLog(t *testing.T, now time.Time) (*Log, *InMemoryStore) {
	t.Helper()
	store := NewInMemoryStore()
	log, err := New(store, WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	return log, store
}

func TestLog_Append_StampsIDAndTime(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	log, _ := newTestLog(t, now)

	stored, err := log.Append(context.Background(), Entry{
		Kind:       models.KindTechSheet,
		EntityUUID: uuid.New(),
		EventCode:  201,
		ActorID:    uuid.New(),
		ActorRole:  models.RoleSupplier,
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, stored.ID)
	assert.Equal(t, now, stored.CreatedAt)
	assert.EqualValues(t, 1, stored.Seq)
}

func TestLog_Append_KeepsCallerTimestamp(t *testing.T) {
	log, _ := newTestLog(t, time.Now())
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	stored, err := log.Append(context.Background(), Entry{
		Kind:       models.KindTechSheet,
		EntityUUID: uuid.New(),
		EventCode:  201,
		CreatedAt:  at,
	})
	require.NoError(t, err)
	assert.Equal(t, at, stored.CreatedAt)
}

func TestLog_MostRecent_TiesBreakByInsertionOrder(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	log, _ := newTestLog(t, now)
	ctx := context.Background()
	id := uuid.New()

	// Same timestamp on both entries; the later append must win.
	for _, code := range []int{201, 203} {
		_, err := log.Append(ctx, Entry{Kind: models.KindTechSheet, EntityUUID: id, EventCode: code})
		require.NoError(t, err)
	}

	latest, err := log.MostRecent(ctx, models.KindTechSheet, id)
	require.NoError(t, err)
	assert.Equal(t, 203, latest.EventCode)
}

func TestLog_MostRecent_Empty(t *testing.T) {
	log, _ := newTestLog(t, time.Now())
	_, err := log.MostRecent(context.Background(), models.KindTechSheet, uuid.New())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestLog_History_OrderedByTimeThenSeq(t *testing.T) {
	log, _ := newTestLog(t, time.Now())
	ctx := context.Background()
	id := uuid.New()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	// Appended out of timestamp order on purpose.
	for _, e := range []struct {
		code int
		at   time.Time
	}{
		{code: 203, at: base.Add(time.Hour)},
		{code: 201, at: base},
		{code: 204, at: base.Add(time.Hour)},
	} {
		_, err := log.Append(ctx, Entry{
			Kind: models.KindTechSheet, EntityUUID: id, EventCode: e.code, CreatedAt: e.at,
		})
		require.NoError(t, err)
	}

	var codes []int
	for entry, err := range log.History(models.KindTechSheet, id) {
		require.NoError(t, err)
		codes = append(codes, entry.EventCode)
	}
	assert.Equal(t, []int{201, 203, 204}, codes)
}

func TestLog_History_IsRestartable(t *testing.T) {
	log, _ := newTestLog(t, time.Now())
	ctx := context.Background()
	id := uuid.New()
	for code := 201; code <= 203; code++ {
		_, err := log.Append(ctx, Entry{Kind: models.KindTechSheet, EntityUUID: id, EventCode: code})
		require.NoError(t, err)
	}

	history := log.History(models.KindTechSheet, id)
	for range 2 {
		n := 0
		for _, err := range history {
			require.NoError(t, err)
			n++
		}
		assert.Equal(t, 3, n)
	}
}

func TestLog_History_EarlyBreak(t *testing.T) {
	log, _ := newTestLog(t, time.Now())
	ctx := context.Background()
	id := uuid.New()
	for code := 201; code <= 205; code++ {
		_, err := log.Append(ctx, Entry{Kind: models.KindTechSheet, EntityUUID: id, EventCode: code})
		require.NoError(t, err)
	}

	n := 0
	for _, err := range log.History(models.KindTechSheet, id) {
		require.NoError(t, err)
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestLog_History_SeparatesKinds(t *testing.T) {
	log, _ := newTestLog(t, time.Now())
	ctx := context.Background()
	id := uuid.New()

	_, err := log.Append(ctx, Entry{Kind: models.KindTechSheet, EntityUUID: id, EventCode: 201})
	require.NoError(t, err)
	_, err = log.Append(ctx, Entry{Kind: models.KindPackagingLayout, EntityUUID: id, EventCode: 301})
	require.NoError(t, err)

	n := 0
	for entry, err := range log.History(models.KindTechSheet, id) {
		require.NoError(t, err)
		assert.Equal(t, models.KindTechSheet, entry.Kind)
		n++
	}
	assert.Equal(t, 1, n)
}
