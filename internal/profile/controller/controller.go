// Package controller implements the profile store: the authoritative CRUD
// over the business collection, enforcing the single-primary invariant,
// persisting the collection as one blob and forwarding every successful
// write to the autofill bridge.
package controller

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gartstein/bizprofile/internal/pkg/utils"
	"github.com/gartstein/bizprofile/internal/profile/codec"
	e "github.com/gartstein/bizprofile/internal/profile/errors"
	"github.com/gartstein/bizprofile/internal/profile/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultKey is the storage key holding the serialized collection.
const DefaultKey = "@business_identity_manager_businesses"

const defaultBridgeTimeout = 5 * time.Second

const (
	opList       = "list"
	opGet        = "get"
	opAdd        = "add"
	opUpdate     = "update"
	opPatch      = "patch"
	opDelete     = "delete"
	opClearAll   = "clear_all"
	opReplaceAll = "replace_all"
)

// Storage is the durable key-value capability the store persists through.
// Get reports found=false for an absent key without an error.
type Storage interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Bridge is the native autofill bridge. Both calls are best-effort.
type Bridge interface {
	ReplaceAll(ctx context.Context, payload string) error
	ClearAll(ctx context.Context) error
}

// Metrics receives store instrumentation.
type Metrics interface {
	ObserveOperation(op string, err error, elapsed time.Duration)
	IncReadFailure()
	IncBridgeFailure(op string)
	SetRecords(n int)
}

// ProfileStore owns the business collection. All operations are executed one
// at a time by a single goroutine, so a mutation's read-modify-write round
// trip, including its bridge sync, completes before the next one starts.
type ProfileStore struct {
	storage Storage
	bridge  Bridge
	logger  *zap.Logger
	metrics Metrics

	key           string
	newID         func() string
	bridgeTimeout time.Duration
	upsert        bool
	strictReads   bool

	requests  chan request
	quit      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

type request struct {
	ctx  context.Context
	op   string
	fn   func(ctx context.Context) error
	done chan error
}

// Option configures a ProfileStore.
type Option func(*ProfileStore)

// WithKey overrides the storage key.
func WithKey(key string) Option {
	return func(s *ProfileStore) {
		if key != "" {
			s.key = key
		}
	}
}

// WithIDGenerator sets the generator used when Add receives an empty id.
func WithIDGenerator(fn func() string) Option {
	return func(s *ProfileStore) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithBridgeTimeout bounds each bridge call.
func WithBridgeTimeout(d time.Duration) Option {
	return func(s *ProfileStore) {
		if d > 0 {
			s.bridgeTimeout = d
		}
	}
}

// WithUpsert makes Update insert records whose id is unknown instead of
// ignoring them.
func WithUpsert(enabled bool) Option {
	return func(s *ProfileStore) { s.upsert = enabled }
}

// WithStrictReads makes mutations fail when the stored blob cannot be read,
// instead of treating it as an empty collection and overwriting it.
func WithStrictReads(enabled bool) Option {
	return func(s *ProfileStore) { s.strictReads = enabled }
}

// WithMetrics sets the instrumentation sink.
func WithMetrics(m Metrics) Option {
	return func(s *ProfileStore) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewProfileStore constructs a ProfileStore and starts its writer goroutine.
// A nil bridge disables autofill sync. Call Close to stop the writer.
func NewProfileStore(storage Storage, bridge Bridge, logger *zap.Logger, opts ...Option) *ProfileStore {
	s := &ProfileStore{
		storage:       storage,
		bridge:        bridge,
		logger:        logger.Named("profile_store"),
		metrics:       nopMetrics{},
		key:           DefaultKey,
		newID:         uuid.NewString,
		bridgeTimeout: defaultBridgeTimeout,
		requests:      make(chan request),
		quit:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	go s.run()
	return s
}

// Close stops the writer goroutine. Operations issued afterwards fail with
// ErrClosed. Close is safe to call more than once.
func (s *ProfileStore) Close() {
	s.closeOnce.Do(func() {
		close(s.quit)
	})
	<-s.stopped
}

func (s *ProfileStore) run() {
	defer close(s.stopped)
	for {
		if s.closed() {
			return
		}
		select {
		case req := <-s.requests:
			if s.closed() {
				req.done <- e.ErrClosed
				return
			}
			if err := req.ctx.Err(); err != nil {
				req.done <- err
				continue
			}
			start := time.Now()
			err := req.fn(req.ctx)
			s.metrics.ObserveOperation(req.op, err, time.Since(start))
			req.done <- err
		case <-s.quit:
			return
		}
	}
}

func (s *ProfileStore) closed() bool {
	select {
	case <-s.quit:
		return true
	default:
		return false
	}
}

// do hands fn to the writer goroutine and waits for it to finish.
func (s *ProfileStore) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if s.closed() {
		return e.ErrClosed
	}
	req := request{ctx: ctx, op: op, fn: fn, done: make(chan error, 1)}
	select {
	case s.requests <- req:
	case <-s.quit:
		return e.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// List returns all stored businesses in insertion order. Read failures are
// logged and yield an empty collection; the only errors returned come from
// ctx or a closed store.
func (s *ProfileStore) List(ctx context.Context) ([]models.Business, error) {
	var out []models.Business
	err := s.do(ctx, opList, func(ctx context.Context) error {
		out, _ = s.load(ctx)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns the business with the given id or ErrNotFound.
func (s *ProfileStore) Get(ctx context.Context, id string) (*models.Business, error) {
	var found models.Business
	err := s.do(ctx, opGet, func(ctx context.Context) error {
		list, _ := s.load(ctx)
		idx := models.IndexOf(list, id)
		if idx < 0 {
			return fmt.Errorf("%w: business %s", e.ErrNotFound, id)
		}
		found = list[idx]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &found, nil
}

// Add inserts a new business. An empty id is replaced with a generated one.
// The first business stored is always primary; adding a primary business
// demotes every other one. The stored copy is returned.
func (s *ProfileStore) Add(ctx context.Context, business models.Business) (*models.Business, error) {
	var stored models.Business
	err := s.do(ctx, opAdd, func(ctx context.Context) error {
		list, err := s.loadForWrite(ctx)
		if err != nil {
			return err
		}
		list, stored, err = s.insert(list, business)
		if err != nil {
			return err
		}
		return s.save(ctx, opAdd, list)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Business added",
		zap.String("business_id", stored.ID),
		zap.Bool("primary", stored.IsPrimary),
	)
	return &stored, nil
}

// Update replaces the stored business carrying the same id. Setting the
// primary flag demotes every other business. An unknown id is ignored and
// (nil, nil) is returned, unless the store was built WithUpsert.
func (s *ProfileStore) Update(ctx context.Context, business models.Business) (*models.Business, error) {
	var (
		stored models.Business
		noop   bool
	)
	err := s.do(ctx, opUpdate, func(ctx context.Context) error {
		list, err := s.loadForWrite(ctx)
		if err != nil {
			return err
		}
		idx := models.IndexOf(list, business.ID)
		if idx < 0 {
			if !s.upsert {
				noop = true
				return nil
			}
			list, stored, err = s.insert(list, business)
			if err != nil {
				return err
			}
			return s.save(ctx, opUpdate, list)
		}
		stored = replaceAt(list, idx, business)
		return s.save(ctx, opUpdate, list)
	})
	if err != nil {
		return nil, err
	}
	if noop {
		s.logger.Debug("Update ignored for unknown business", zap.String("business_id", business.ID))
		return nil, nil
	}
	return &stored, nil
}

// Patch merges the non-nil fields of patch onto the stored business and
// writes it back with Update semantics. Unknown ids yield ErrNotFound.
// Each check sees the merged record before it is written; the first error
// aborts the patch and leaves storage untouched.
func (s *ProfileStore) Patch(ctx context.Context, id string, patch models.BusinessPatch, checks ...func(models.Business) error) (*models.Business, error) {
	var stored models.Business
	err := s.do(ctx, opPatch, func(ctx context.Context) error {
		list, err := s.loadForWrite(ctx)
		if err != nil {
			return err
		}
		idx := models.IndexOf(list, id)
		if idx < 0 {
			return fmt.Errorf("%w: business %s", e.ErrNotFound, id)
		}
		merged := patch.Apply(list[idx])
		for _, check := range checks {
			if err := check(merged); err != nil {
				return err
			}
		}
		stored = replaceAt(list, idx, merged)
		return s.save(ctx, opPatch, list)
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// SetPrimary sets or clears the primary flag of one business.
func (s *ProfileStore) SetPrimary(ctx context.Context, id string, primary bool) (*models.Business, error) {
	return s.Patch(ctx, id, models.BusinessPatch{IsPrimary: utils.Ptr(primary)})
}

// Delete removes the business with the given id. When the primary business
// is removed and others remain, the first remaining one becomes primary.
// Unknown ids leave the collection unchanged but it is still rewritten.
func (s *ProfileStore) Delete(ctx context.Context, id string) error {
	return s.do(ctx, opDelete, func(ctx context.Context) error {
		list, err := s.loadForWrite(ctx)
		if err != nil {
			return err
		}
		idx := models.IndexOf(list, id)
		wasPrimary := idx >= 0 && list[idx].IsPrimary
		if idx >= 0 {
			list = slices.Delete(list, idx, idx+1)
		}
		if wasPrimary && len(list) > 0 {
			list[0].IsPrimary = true
		}
		return s.save(ctx, opDelete, list)
	})
}

// ClearAll removes every business and tells the bridge to drop its copy.
func (s *ProfileStore) ClearAll(ctx context.Context) error {
	return s.do(ctx, opClearAll, func(ctx context.Context) error {
		if err := s.storage.Delete(ctx, s.key); err != nil {
			return fmt.Errorf("%w: %w", e.ErrPersistenceWrite, err)
		}
		s.metrics.SetRecords(0)
		s.syncBridge(ctx, opClearAll, func(ctx context.Context) error {
			return s.bridge.ClearAll(ctx)
		})
		return nil
	})
}

// insert applies the add rules to list and returns the grown list together
// with the record as stored.
func (s *ProfileStore) insert(list []models.Business, business models.Business) ([]models.Business, models.Business, error) {
	if business.ID == "" {
		business.ID = s.newID()
	}
	if models.IndexOf(list, business.ID) >= 0 {
		return nil, models.Business{}, fmt.Errorf("%w: %s", e.ErrDuplicateID, business.ID)
	}
	if len(list) == 0 {
		business.IsPrimary = true
	} else if business.IsPrimary {
		demoteAll(list, "")
	}
	return append(list, business), business, nil
}

func replaceAt(list []models.Business, idx int, business models.Business) models.Business {
	business.ID = list[idx].ID
	if business.IsPrimary {
		demoteAll(list, business.ID)
	}
	list[idx] = business
	return business
}

func demoteAll(list []models.Business, except string) {
	for i := range list {
		if list[i].ID != except {
			list[i].IsPrimary = false
		}
	}
}

// load reads and decodes the collection. Failures are logged and counted
// and an empty collection is returned alongside the error.
func (s *ProfileStore) load(ctx context.Context) ([]models.Business, error) {
	blob, found, err := s.storage.Get(ctx, s.key)
	if err != nil {
		err = fmt.Errorf("%w: %w", e.ErrPersistenceRead, err)
		s.readFailed(err)
		return []models.Business{}, err
	}
	if !found {
		return []models.Business{}, nil
	}
	list, err := codec.Decode(blob)
	if err != nil {
		s.readFailed(err)
		return []models.Business{}, err
	}
	return list, nil
}

func (s *ProfileStore) loadForWrite(ctx context.Context) ([]models.Business, error) {
	list, err := s.load(ctx)
	if err != nil && s.strictReads {
		return nil, err
	}
	return list, nil
}

func (s *ProfileStore) readFailed(err error) {
	s.metrics.IncReadFailure()
	s.logger.Error("Failed to read businesses from storage",
		zap.Error(err),
		zap.String("key", s.key),
	)
}

// save persists the whole collection and then forwards it to the bridge.
// The bridge is not called when persisting fails.
func (s *ProfileStore) save(ctx context.Context, op string, list []models.Business) error {
	blob, err := codec.Encode(list)
	if err != nil {
		return fmt.Errorf("%w: %w", e.ErrPersistenceWrite, err)
	}
	if err := s.storage.Set(ctx, s.key, blob); err != nil {
		s.logger.Error("Failed to save businesses to storage",
			zap.Error(err),
			zap.String("operation", op),
		)
		return fmt.Errorf("%w: %w", e.ErrPersistenceWrite, err)
	}
	s.metrics.SetRecords(len(list))
	s.syncBridge(ctx, opReplaceAll, func(ctx context.Context) error {
		return s.bridge.ReplaceAll(ctx, blob)
	})
	return nil
}

// syncBridge is the single best-effort sink for bridge calls. The call is
// bounded by bridgeTimeout; errors and panics are logged and dropped.
func (s *ProfileStore) syncBridge(ctx context.Context, op string, call func(ctx context.Context) error) {
	if s.bridge == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.bridgeTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				errCh <- fmt.Errorf("bridge panic: %v", r)
			}
		}()
		errCh <- call(ctx)
	}()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		s.metrics.IncBridgeFailure(op)
		s.logger.Warn("Failed to sync with autofill bridge",
			zap.Error(fmt.Errorf("%w: %w", e.ErrBridgeSync, err)),
			zap.String("operation", op),
		)
	}
}

type nopMetrics struct{}

func (nopMetrics) ObserveOperation(string, error, time.Duration) {}
func (nopMetrics) IncReadFailure() {}
func (nopMetrics) IncBridgeFailure(string) {}
func (nopMetrics) SetRecords(int) {}
