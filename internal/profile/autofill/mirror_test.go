package autofill

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/gartstein/bizprofile/internal/profile/codec"
	e "github.com/gartstein/bizprofile/internal/profile/errors"
	"github.com/gartstein/bizprofile/internal/profile/events"
	"github.com/gartstein/bizprofile/internal/profile/kv"
	"github.com/gartstein/bizprofile/internal/profile/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const mirrorKey = "autofill:snapshot"

func snapshot(t *testing.T, list ...models.Business) json.RawMessage {
	t.Helper()
	blob, err := codec.Encode(list)
	require.NoError(t, err)
	return json.RawMessage(blob)
}

func TestMirror_ReplaceThenClear(t *testing.T) {
	ctx := context.Background()
	mirror := NewMirror(kv.NewMemory(), mirrorKey, "phone-1", zaptest.NewLogger(t))

	list, err := mirror.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	_, err = mirror.Primary(ctx)
	assert.ErrorIs(t, err, e.ErrNotFound)

	require.NoError(t, mirror.Apply(ctx, events.Event{
		Type:   events.SnapshotReplaced,
		Device: "phone-1",
		Payload: snapshot(t,
			models.Business{ID: "a", BusinessName: "Alpha"},
			models.Business{ID: "b", BusinessName: "Beta", IsPrimary: true},
		),
	}))

	list, err = mirror.All(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	primary, err := mirror.Primary(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", primary.ID)

	require.NoError(t, mirror.Apply(ctx, events.Event{Type: events.SnapshotCleared, Device: "phone-1"}))
	list, err = mirror.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMirror_IgnoresOtherDevices(t *testing.T) {
	ctx := context.Background()
	mirror := NewMirror(kv.NewMemory(), mirrorKey, "phone-1", zaptest.NewLogger(t))

	require.NoError(t, mirror.Apply(ctx, events.Event{
		Type:    events.SnapshotReplaced,
		Device:  "tablet",
		Payload: snapshot(t, models.Business{ID: "a", IsPrimary: true}),
	}))

	list, err := mirror.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMirror_RejectsMalformedSnapshot(t *testing.T) {
	ctx := context.Background()
	mirror := NewMirror(kv.NewMemory(), mirrorKey, "", zaptest.NewLogger(t))

	require.NoError(t, mirror.Apply(ctx, events.Event{
		Type:    events.SnapshotReplaced,
		Payload: snapshot(t, models.Business{ID: "a", IsPrimary: true}),
	}))

	err := mirror.Apply(ctx, events.Event{Type: events.SnapshotReplaced, Payload: json.RawMessage(`{"version":99}`)})
	assert.ErrorIs(t, err, e.ErrInvalidInput)

	list, err := mirror.All(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].ID)
}

func TestMirror_UnknownEventType(t *testing.T) {
	mirror := NewMirror(kv.NewMemory(), mirrorKey, "", zaptest.NewLogger(t))
	assert.NoError(t, mirror.Apply(context.Background(), events.Event{Type: "snapshot_rotated"}))
}

type brokenStorage struct{ err error }

func (b brokenStorage) Get(context.Context, string) (string, bool, error) { return "", false, b.err }
func (b brokenStorage) Set(context.Context, string, string) error         { return b.err }
func (b brokenStorage) Delete(context.Context, string) error              { return b.err }

func TestMirror_StorageFailures(t *testing.T) {
	ctx := context.Background()
	mirror := NewMirror(brokenStorage{err: errors.New("disk full")}, mirrorKey, "", zaptest.NewLogger(t))

	err := mirror.Apply(ctx, events.Event{Type: events.SnapshotReplaced, Payload: snapshot(t)})
	assert.ErrorIs(t, err, e.ErrPersistenceWrite)

	err = mirror.Apply(ctx, events.Event{Type: events.SnapshotCleared})
	assert.ErrorIs(t, err, e.ErrPersistenceWrite)

	_, err = mirror.All(ctx)
	assert.ErrorIs(t, err, e.ErrPersistenceRead)
}
