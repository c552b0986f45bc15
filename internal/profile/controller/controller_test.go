package controller

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/gartstein/bizprofile/internal/profile/codec"
	e "github.com/gartstein/bizprofile/internal/profile/errors"
	"github.com/gartstein/bizprofile/internal/profile/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// fakeStorage implements Storage over a map with injectable failures.
type fakeStorage struct {
	mu        sync.Mutex
	data      map[string]string
	getErr    error
	setErr    error
	deleteErr error
	sets      int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{data: map[string]string{}}
}

func (f *fakeStorage) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return "", false, f.getErr
	}
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeStorage) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.sets++
	f.data[key] = value
	return nil
}

func (f *fakeStorage) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.data, key)
	return nil
}

func (f *fakeStorage) raw() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[DefaultKey]
	return v, ok
}

func (f *fakeStorage) setCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sets
}

// recordingBridge is a test double for the autofill bridge.
type recordingBridge struct {
	mu       sync.Mutex
	replaced []string
	cleared  int
	err      error
	panicMsg string
	block    chan struct{}
}

func (b *recordingBridge) ReplaceAll(ctx context.Context, payload string) error {
	if b.block != nil {
		select {
		case <-b.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if b.panicMsg != "" {
		panic(b.panicMsg)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.replaced = append(b.replaced, payload)
	return nil
}

func (b *recordingBridge) ClearAll(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.cleared++
	return nil
}

func (b *recordingBridge) replaceCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.replaced)
}

func (b *recordingBridge) last() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.replaced) == 0 {
		return ""
	}
	return b.replaced[len(b.replaced)-1]
}

// countingMetrics records what the store reports.
type countingMetrics struct {
	mu             sync.Mutex
	ops            map[string]int
	failedOps      map[string]int
	readFailures   int
	bridgeFailures map[string]int
	records        int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{ops: map[string]int{}, failedOps: map[string]int{}, bridgeFailures: map[string]int{}}
}

func (m *countingMetrics) ObserveOperation(op string, err error, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops[op]++
	if err != nil {
		m.failedOps[op]++
	}
}

func (m *countingMetrics) IncReadFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readFailures++
}

func (m *countingMetrics) IncBridgeFailure(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bridgeFailures[op]++
}

func (m *countingMetrics) SetRecords(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = n
}

func newTestStore(t *testing.T, opts ...Option) (*ProfileStore, *fakeStorage, *recordingBridge) {
	t.Helper()
	storage := newFakeStorage()
	bridge := &recordingBridge{}
	s := NewProfileStore(storage, bridge, zaptest.NewLogger(t), opts...)
	t.Cleanup(s.Close)
	return s, storage, bridge
}

func business(id string, primary bool) models.Business {
	return models.Business{
		ID:           id,
		IsPrimary:    primary,
		BusinessName: "Business " + id,
		BRN:          "BRN-" + id,
		TIN:          "TIN-" + id,
		AddressLine1: "1 Jalan " + id,
		Postcode:     "50000",
		City:         "Kuala Lumpur",
		State:        "W.P. Kuala Lumpur",
		ContactName:  "Contact " + id,
		ContactEmail: id + "@example.com",
		ContactPhone: "+6012000000" + id,
	}
}

func primaries(list []models.Business) []string {
	var ids []string
	for _, b := range list {
		if b.IsPrimary {
			ids = append(ids, b.ID)
		}
	}
	return ids
}

func mustList(t *testing.T, s *ProfileStore) []models.Business {
	t.Helper()
	list, err := s.List(context.Background())
	require.NoError(t, err)
	return list
}

func TestProfileStore_Scenario(t *testing.T) {
	s, _, bridge := newTestStore(t)
	ctx := context.Background()

	assert.Empty(t, mustList(t, s))

	_, err := s.Add(ctx, business("1", false))
	require.NoError(t, err)
	list := mustList(t, s)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsPrimary)

	_, err = s.Add(ctx, business("2", true))
	require.NoError(t, err)
	list = mustList(t, s)
	require.Len(t, list, 2)
	assert.Equal(t, "1", list[0].ID)
	assert.False(t, list[0].IsPrimary)
	assert.Equal(t, "2", list[1].ID)
	assert.True(t, list[1].IsPrimary)

	require.NoError(t, s.Delete(ctx, "2"))
	list = mustList(t, s)
	require.Len(t, list, 1)
	assert.Equal(t, "1", list[0].ID)
	assert.True(t, list[0].IsPrimary)

	assert.Equal(t, 3, bridge.replaceCount(), "every write is forwarded to the bridge")
}

func TestProfileStore_AddFirstIsPrimary(t *testing.T) {
	for _, primary := range []bool{false, true} {
		t.Run(fmt.Sprintf("input primary %v", primary), func(t *testing.T) {
			s, _, _ := newTestStore(t)
			stored, err := s.Add(context.Background(), business("a", primary))
			require.NoError(t, err)
			assert.True(t, stored.IsPrimary)
			assert.True(t, mustList(t, s)[0].IsPrimary)
		})
	}
}

func TestProfileStore_AddNonPrimaryKeepsExistingPrimary(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, business("a", false))
	require.NoError(t, err)
	stored, err := s.Add(ctx, business("b", false))
	require.NoError(t, err)

	assert.False(t, stored.IsPrimary)
	assert.Equal(t, []string{"a"}, primaries(mustList(t, s)))
}

func TestProfileStore_AddGeneratesID(t *testing.T) {
	s, _, _ := newTestStore(t, WithIDGenerator(func() string { return "generated" }))

	b := business("", false)
	stored, err := s.Add(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, "generated", stored.ID)
	assert.Equal(t, "generated", mustList(t, s)[0].ID)
}

func TestProfileStore_AddDefaultIDIsUUID(t *testing.T) {
	s, _, _ := newTestStore(t)

	stored, err := s.Add(context.Background(), business("", false))
	require.NoError(t, err)
	assert.Len(t, stored.ID, 36)
}

func TestProfileStore_AddDuplicateID(t *testing.T) {
	s, storage, bridge := newTestStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, business("a", false))
	require.NoError(t, err)
	before, _ := storage.raw()

	_, err = s.Add(ctx, business("a", true))
	assert.ErrorIs(t, err, e.ErrDuplicateID)

	after, _ := storage.raw()
	assert.Equal(t, before, after)
	assert.Equal(t, 1, bridge.replaceCount())
}

func TestProfileStore_GetRoundTrip(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, business("a", false))
	require.NoError(t, err)

	in := business("b", false)
	in.HasSST = true
	in.SSTNumber = "A01-2345-67890123"
	in.AddressLine2 = "Level 3"
	_, err = s.Add(ctx, in)
	require.NoError(t, err)

	got, err := s.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, in, *got)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, e.ErrNotFound)
}

func TestProfileStore_ReturnedCopiesAreDetached(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	stored, err := s.Add(ctx, business("a", false))
	require.NoError(t, err)
	stored.BusinessName = "changed outside"

	list := mustList(t, s)
	list[0].BusinessName = "changed again"

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Business a", got.BusinessName)
}

func TestProfileStore_Update(t *testing.T) {
	s, _, bridge := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := s.Add(ctx, business(id, false))
		require.NoError(t, err)
	}

	changed := business("c", true)
	changed.City = "Ipoh"
	changed.State = "Perak"
	updated, err := s.Update(ctx, changed)
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, changed, *updated)

	list := mustList(t, s)
	assert.Equal(t, []string{"c"}, primaries(list))
	assert.Equal(t, "Ipoh", list[2].City)
	assert.Equal(t, []string{"a", "b", "c"}, []string{list[0].ID, list[1].ID, list[2].ID}, "order is preserved")
	assert.Equal(t, 4, bridge.replaceCount())
}

func TestProfileStore_UpdateCanClearPrimary(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, business("a", false))
	require.NoError(t, err)

	_, err = s.Update(ctx, business("a", false))
	require.NoError(t, err)
	assert.Empty(t, primaries(mustList(t, s)))
}

func TestProfileStore_UpdateUnknownIDIsNoop(t *testing.T) {
	s, storage, bridge := newTestStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, business("a", false))
	require.NoError(t, err)
	before, _ := storage.raw()
	sets := storage.setCount()

	updated, err := s.Update(ctx, business("missing", true))
	require.NoError(t, err)
	assert.Nil(t, updated)

	after, _ := storage.raw()
	assert.Equal(t, before, after, "blob must be byte-for-byte identical")
	assert.Equal(t, sets, storage.setCount(), "no persistence on a no-op update")
	assert.Equal(t, 1, bridge.replaceCount(), "no bridge sync on a no-op update")
}

func TestProfileStore_UpdateWithUpsert(t *testing.T) {
	s, _, _ := newTestStore(t, WithUpsert(true))
	ctx := context.Background()

	created, err := s.Update(ctx, business("x", false))
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.True(t, created.IsPrimary, "upsert into an empty store follows the add rules")

	created, err = s.Update(ctx, business("y", true))
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, []string{"y"}, primaries(mustList(t, s)))
}

func TestProfileStore_PatchAndSetPrimary(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		_, err := s.Add(ctx, business(id, false))
		require.NoError(t, err)
	}

	city := "Johor Bahru"
	patched, err := s.Patch(ctx, "b", models.BusinessPatch{City: &city})
	require.NoError(t, err)
	assert.Equal(t, "Johor Bahru", patched.City)
	assert.Equal(t, "Business b", patched.BusinessName)

	promoted, err := s.SetPrimary(ctx, "b", true)
	require.NoError(t, err)
	assert.True(t, promoted.IsPrimary)
	assert.Equal(t, []string{"b"}, primaries(mustList(t, s)))

	_, err = s.SetPrimary(ctx, "b", false)
	require.NoError(t, err)
	assert.Empty(t, primaries(mustList(t, s)))

	_, err = s.Patch(ctx, "missing", models.BusinessPatch{City: &city})
	assert.ErrorIs(t, err, e.ErrNotFound)
}

func TestProfileStore_SetPrimaryKeepsSSTNumber(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	a := business("a", false)
	a.SSTNumber = "SST-1"
	_, err := s.Add(ctx, a)
	require.NoError(t, err)
	_, err = s.Add(ctx, business("b", false))
	require.NoError(t, err)

	for _, primary := range []bool{false, true} {
		got, err := s.SetPrimary(ctx, "a", primary)
		require.NoError(t, err)
		assert.Equal(t, "SST-1", got.SSTNumber)
		stored, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "SST-1", stored.SSTNumber)
		assert.False(t, stored.HasSST)
	}
}

func TestProfileStore_PatchChecks(t *testing.T) {
	s, storage, bridge := newTestStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, business("a", false))
	require.NoError(t, err)
	before, _ := storage.raw()
	replaces := bridge.replaceCount()

	city := "Ipoh"
	var seen models.Business
	reject := func(b models.Business) error {
		seen = b
		return fmt.Errorf("%w: rejected", e.ErrInvalidInput)
	}
	_, err = s.Patch(ctx, "a", models.BusinessPatch{City: &city}, reject)
	assert.ErrorIs(t, err, e.ErrInvalidInput)
	assert.Equal(t, "Ipoh", seen.City, "check sees the merged record")

	after, _ := storage.raw()
	assert.Equal(t, before, after)
	assert.Equal(t, replaces, bridge.replaceCount())

	accept := func(models.Business) error { return nil }
	patched, err := s.Patch(ctx, "a", models.BusinessPatch{City: &city}, accept)
	require.NoError(t, err)
	assert.Equal(t, "Ipoh", patched.City)
}

func TestProfileStore_DeletePrimaryReassigns(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"A", "B", "C"} {
		_, err := s.Add(ctx, business(id, false))
		require.NoError(t, err)
	}
	require.Equal(t, []string{"A"}, primaries(mustList(t, s)))

	require.NoError(t, s.Delete(ctx, "A"))

	list := mustList(t, s)
	require.Len(t, list, 2)
	assert.True(t, list[0].IsPrimary, "B is promoted")
	assert.False(t, list[1].IsPrimary, "C stays secondary")
}

func TestProfileStore_DeleteNonPrimary(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"A", "B", "C"} {
		_, err := s.Add(ctx, business(id, false))
		require.NoError(t, err)
	}
	require.NoError(t, s.Delete(ctx, "B"))

	list := mustList(t, s)
	require.Len(t, list, 2)
	assert.Equal(t, []string{"A"}, primaries(list))
}

func TestProfileStore_DeleteLastRecord(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, business("A", false))
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "A"))
	assert.Empty(t, mustList(t, s))
}

func TestProfileStore_DeleteUnknownIDIsIdempotent(t *testing.T) {
	s, storage, bridge := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"A", "B"} {
		_, err := s.Add(ctx, business(id, false))
		require.NoError(t, err)
	}
	before := mustList(t, s)
	sets := storage.setCount()

	require.NoError(t, s.Delete(ctx, "missing"))

	assert.Equal(t, before, mustList(t, s))
	assert.Equal(t, sets+1, storage.setCount(), "the unchanged collection is still rewritten")
	assert.Equal(t, 3, bridge.replaceCount())
}

func TestProfileStore_ClearAll(t *testing.T) {
	s, storage, bridge := newTestStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, business("A", false))
	require.NoError(t, err)

	require.NoError(t, s.ClearAll(ctx))

	_, ok := storage.raw()
	assert.False(t, ok)
	assert.Empty(t, mustList(t, s))
	assert.Equal(t, 1, bridge.cleared)

	stored, err := s.Add(ctx, business("B", false))
	require.NoError(t, err)
	assert.True(t, stored.IsPrimary)
}

func TestProfileStore_ClearAllWriteFailure(t *testing.T) {
	s, storage, bridge := newTestStore(t)
	storage.deleteErr = errors.New("disk full")

	err := s.ClearAll(context.Background())
	assert.ErrorIs(t, err, e.ErrPersistenceWrite)
	assert.Equal(t, 0, bridge.cleared)
}

func TestProfileStore_WriteFailurePropagatesAndSkipsBridge(t *testing.T) {
	ops := map[string]func(*ProfileStore) error{
		"add": func(s *ProfileStore) error {
			_, err := s.Add(context.Background(), business("new", false))
			return err
		},
		"update": func(s *ProfileStore) error {
			_, err := s.Update(context.Background(), business("a", true))
			return err
		},
		"patch": func(s *ProfileStore) error {
			_, err := s.SetPrimary(context.Background(), "a", false)
			return err
		},
		"delete": func(s *ProfileStore) error {
			return s.Delete(context.Background(), "a")
		},
	}

	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			s, storage, bridge := newTestStore(t)
			_, err := s.Add(context.Background(), business("a", false))
			require.NoError(t, err)
			before, _ := storage.raw()

			storage.setErr = errors.New("disk full")
			err = op(s)
			require.Error(t, err)
			assert.ErrorIs(t, err, e.ErrPersistenceWrite)
			assert.Contains(t, err.Error(), "disk full")

			after, _ := storage.raw()
			assert.Equal(t, before, after)
			assert.Equal(t, 1, bridge.replaceCount(), "bridge must not see a failed write")
		})
	}
}

func TestProfileStore_BridgeFailureIsSwallowed(t *testing.T) {
	core, recorded := observer.New(zap.WarnLevel)
	storage := newFakeStorage()
	bridge := &recordingBridge{err: errors.New("native module missing")}
	metrics := newCountingMetrics()
	s := NewProfileStore(storage, bridge, zap.New(core), WithMetrics(metrics))
	defer s.Close()

	stored, err := s.Add(context.Background(), business("a", false))
	require.NoError(t, err)
	assert.True(t, stored.IsPrimary)

	_, ok := storage.raw()
	assert.True(t, ok, "write is kept although the bridge failed")
	assert.Equal(t, 1, recorded.FilterMessage("Failed to sync with autofill bridge").Len())
	assert.Equal(t, 1, metrics.bridgeFailures[opReplaceAll])

	require.NoError(t, s.ClearAll(context.Background()))
	assert.Equal(t, 1, metrics.bridgeFailures[opClearAll])
}

func TestProfileStore_BridgePanicIsSwallowed(t *testing.T) {
	core, recorded := observer.New(zap.WarnLevel)
	bridge := &recordingBridge{panicMsg: "boom"}
	s := NewProfileStore(newFakeStorage(), bridge, zap.New(core))
	defer s.Close()

	_, err := s.Add(context.Background(), business("a", false))
	require.NoError(t, err)
	assert.Equal(t, 1, recorded.FilterMessage("Failed to sync with autofill bridge").Len())
}

func TestProfileStore_BridgeTimeout(t *testing.T) {
	bridge := &recordingBridge{block: make(chan struct{})}
	defer close(bridge.block)
	s := NewProfileStore(newFakeStorage(), bridge, zaptest.NewLogger(t), WithBridgeTimeout(20*time.Millisecond))
	defer s.Close()

	start := time.Now()
	_, err := s.Add(context.Background(), business("a", false))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second, "a hung bridge must not stall the write path")
	assert.Len(t, mustList(t, s), 1)
}

func TestProfileStore_NilBridge(t *testing.T) {
	s := NewProfileStore(newFakeStorage(), nil, zaptest.NewLogger(t))
	defer s.Close()

	_, err := s.Add(context.Background(), business("a", false))
	require.NoError(t, err)
	require.NoError(t, s.ClearAll(context.Background()))
}

func TestProfileStore_BridgeReceivesStoredBlob(t *testing.T) {
	s, storage, bridge := newTestStore(t)

	_, err := s.Add(context.Background(), business("a", false))
	require.NoError(t, err)

	blob, _ := storage.raw()
	assert.Equal(t, blob, bridge.last())

	decoded, err := codec.Decode(bridge.last())
	require.NoError(t, err)
	assert.Equal(t, mustList(t, s), decoded)
}

func TestProfileStore_ReadFailureYieldsEmpty(t *testing.T) {
	core, recorded := observer.New(zap.ErrorLevel)
	storage := newFakeStorage()
	metrics := newCountingMetrics()
	s := NewProfileStore(storage, &recordingBridge{}, zap.New(core), WithMetrics(metrics))
	defer s.Close()

	_, err := s.Add(context.Background(), business("a", false))
	require.NoError(t, err)

	storage.getErr = errors.New("io error")
	list, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NotNil(t, list)

	_, err = s.Get(context.Background(), "a")
	assert.ErrorIs(t, err, e.ErrNotFound)

	assert.Equal(t, 2, recorded.FilterMessage("Failed to read businesses from storage").Len())
	assert.Equal(t, 2, metrics.readFailures)
}

func TestProfileStore_MalformedBlob(t *testing.T) {
	s, storage, _ := newTestStore(t)
	storage.data[DefaultKey] = "{not json"

	assert.Empty(t, mustList(t, s))

	stored, err := s.Add(context.Background(), business("a", false))
	require.NoError(t, err)
	assert.True(t, stored.IsPrimary, "an unreadable blob is treated as an empty collection")
	assert.Len(t, mustList(t, s), 1)
}

func TestProfileStore_StrictReads(t *testing.T) {
	s, storage, bridge := newTestStore(t, WithStrictReads(true))
	storage.data[DefaultKey] = "{not json"

	_, err := s.Add(context.Background(), business("a", false))
	assert.ErrorIs(t, err, e.ErrPersistenceRead)
	assert.Equal(t, "{not json", storage.data[DefaultKey], "the unreadable blob is left alone")
	assert.Equal(t, 0, bridge.replaceCount())

	err = s.Delete(context.Background(), "a")
	assert.ErrorIs(t, err, e.ErrPersistenceRead)
}

func TestProfileStore_LegacyBlobIsMigratedOnWrite(t *testing.T) {
	s, storage, _ := newTestStore(t)
	storage.data[DefaultKey] = `[{"id":"old","isPrimary":true,"businessName":"Old Co"}]`

	list := mustList(t, s)
	require.Len(t, list, 1)
	assert.Equal(t, "Old Co", list[0].BusinessName)

	_, err := s.Add(context.Background(), business("new", false))
	require.NoError(t, err)

	blob, _ := storage.raw()
	assert.Contains(t, blob, `"version":1`)
	assert.Equal(t, []string{"old"}, primaries(mustList(t, s)))
}

func TestProfileStore_WithKey(t *testing.T) {
	storage := newFakeStorage()
	s := NewProfileStore(storage, nil, zaptest.NewLogger(t), WithKey("custom"))
	defer s.Close()

	_, err := s.Add(context.Background(), business("a", false))
	require.NoError(t, err)
	_, ok := storage.data["custom"]
	assert.True(t, ok)
	_, ok = storage.data[DefaultKey]
	assert.False(t, ok)
}

func TestProfileStore_PrimaryUniquenessUnderRandomOps(t *testing.T) {
	s, _, _ := newTestStore(t, WithUpsert(true))
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	ids := []string{"a", "b", "c", "d", "e"}

	for i := 0; i < 300; i++ {
		id := ids[rng.Intn(len(ids))]
		primary := rng.Intn(2) == 0
		switch rng.Intn(4) {
		case 0:
			_, err := s.Add(ctx, business(id, primary))
			if err != nil {
				require.ErrorIs(t, err, e.ErrDuplicateID)
			}
		case 1:
			_, err := s.Update(ctx, business(id, primary))
			require.NoError(t, err)
		case 2:
			require.NoError(t, s.Delete(ctx, id))
		case 3:
			_, err := s.SetPrimary(ctx, id, primary)
			if err != nil {
				require.ErrorIs(t, err, e.ErrNotFound)
			}
		}

		list := mustList(t, s)
		require.LessOrEqual(t, len(primaries(list)), 1, "step %d", i)
		seen := map[string]bool{}
		for _, b := range list {
			require.NotEmpty(t, b.ID)
			require.False(t, seen[b.ID], "duplicate id %s", b.ID)
			seen[b.ID] = true
		}
	}
}

func TestProfileStore_ConcurrentAddsAreNotLost(t *testing.T) {
	s, _, bridge := newTestStore(t)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := s.Add(ctx, business(fmt.Sprintf("id-%d", i), i%3 == 0))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	list := mustList(t, s)
	assert.Len(t, list, n)
	assert.Len(t, primaries(list), 1)
	assert.Equal(t, n, bridge.replaceCount())
}

func TestProfileStore_Closed(t *testing.T) {
	s := NewProfileStore(newFakeStorage(), nil, zaptest.NewLogger(t))
	s.Close()
	s.Close()

	_, err := s.List(context.Background())
	assert.ErrorIs(t, err, e.ErrClosed)
	_, err = s.Add(context.Background(), business("a", false))
	assert.ErrorIs(t, err, e.ErrClosed)
}

func TestProfileStore_NoWritesAfterClose(t *testing.T) {
	for i := 0; i < 50; i++ {
		storage := newFakeStorage()
		s := NewProfileStore(storage, nil, zap.NewNop())

		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for n := 0; ; n++ {
					_, err := s.Add(context.Background(), business(fmt.Sprintf("%d-%d", w, n), false))
					if errors.Is(err, e.ErrClosed) {
						return
					}
				}
			}(w)
		}

		time.Sleep(time.Millisecond)
		s.Close()
		sets := storage.setCount()
		wg.Wait()
		assert.Equal(t, sets, storage.setCount(), "no write may land once Close has returned")

		_, err := s.List(context.Background())
		assert.ErrorIs(t, err, e.ErrClosed)
	}
}

func TestProfileStore_CancelledContext(t *testing.T) {
	s, storage, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Add(ctx, business("a", false))
	assert.ErrorIs(t, err, context.Canceled)
	_, ok := storage.raw()
	assert.False(t, ok)
}

func TestProfileStore_Export(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, business("a", false))
	require.NoError(t, err)

	text, err := s.Export(ctx, ExportText)
	require.NoError(t, err)
	assert.Equal(t, "Business: Business a\nBRN: BRN-a\n-------------------", text)

	js, err := s.Export(ctx, ExportJSON)
	require.NoError(t, err)
	assert.Contains(t, js, `"businessName": "Business a"`)

	_, err = s.Export(ctx, "xml")
	assert.ErrorIs(t, err, e.ErrInvalidInput)
}

func TestProfileStore_Metrics(t *testing.T) {
	storage := newFakeStorage()
	metrics := newCountingMetrics()
	s := NewProfileStore(storage, nil, zaptest.NewLogger(t), WithMetrics(metrics))
	defer s.Close()
	ctx := context.Background()

	_, err := s.Add(ctx, business("a", false))
	require.NoError(t, err)
	_, err = s.Add(ctx, business("b", false))
	require.NoError(t, err)
	_, err = s.Add(ctx, business("a", false))
	require.Error(t, err)
	_, err = s.List(ctx)
	require.NoError(t, err)

	s.Close()
	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.Equal(t, 3, metrics.ops[opAdd])
	assert.Equal(t, 1, metrics.failedOps[opAdd])
	assert.Equal(t, 1, metrics.ops[opList])
	assert.Equal(t, 2, metrics.records)
}
