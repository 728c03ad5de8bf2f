package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bookfeed/internal/common"
	"bookfeed/internal/logging"
	"bookfeed/internal/node"
	"bookfeed/internal/repositories/records"
	"bookfeed/internal/repositories/settings"
)

const (
	// DefaultBatchSize bounds one fetch window.
	DefaultBatchSize = 100
	// DefaultInterval is the idle sleep between polls when the log is quiet.
	DefaultInterval = 2 * time.Second
)

// Subscriber receives the net set of records changed by one poll iteration.
type Subscriber func(groupID string, changed []records.ContentRecord)

// Config wires an Engine to its group and collaborators.
type Config struct {
	GroupID  string
	Node     node.Client
	Records  records.Repository
	Settings settings.Repository
	Logger   logging.Logger

	// Interval and BatchSize fall back to the defaults when zero.
	Interval  time.Duration
	BatchSize int
}

// Engine is the object poller for one group. It pulls transactions from a
// moving cursor, applies each to the store exactly once (via Classify), and
// notifies subscribers of the net changes. The cursor is persisted only
// after a whole window is processed, so reprocessing after a crash is
// expected and safe.
type Engine struct {
	groupID  string
	node     node.Client
	records  records.Repository
	settings settings.Repository
	log      logging.Logger

	interval  time.Duration
	batchSize int

	mu      sync.Mutex
	subs    map[int]Subscriber
	nextSub int

	stopOnce sync.Once
	stopped  chan struct{}
}

func New(cfg Config) *Engine {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	log := cfg.Logger
	if log == nil {
		log = logging.NewNoop()
	}
	return &Engine{
		groupID:   cfg.GroupID,
		node:      cfg.Node,
		records:   cfg.Records,
		settings:  cfg.Settings,
		log:       log.With("component", "syncer", "group", cfg.GroupID),
		interval:  interval,
		batchSize: batch,
		subs:      make(map[int]Subscriber),
		stopped:   make(chan struct{}),
	}
}

// Subscribe registers fn for change batches and returns an unsubscribe
// function. Every subscriber receives the same batch.
func (e *Engine) Subscribe(fn Subscriber) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subs, id)
	}
}

// Stop asks the engine to exit its loop. Safe to call more than once. The
// loop observes the flag before its next fetch, sleep, and store write.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopped) })
}

func (e *Engine) isStopped() bool {
	select {
	case <-e.stopped:
		return true
	default:
		return false
	}
}

// Run polls until Stop is called or ctx is cancelled. Fetch failures are
// logged and retried after the idle interval; they never kill the loop.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info(ctx, "poller started")
	defer e.log.Info(ctx, "poller stopped")

	for {
		if e.isStopped() || ctx.Err() != nil {
			return nil
		}

		cursor, err := e.loadCursor(ctx)
		if err != nil {
			e.log.Error(ctx, "failed to load cursor", "error", err)
			if !e.sleep(ctx) {
				return nil
			}
			continue
		}

		trxs, err := e.node.GetContentSince(ctx, e.groupID, node.ListOptions{
			Count:      e.batchSize,
			AfterTrxID: cursor,
		})
		if err != nil {
			if errors.Is(err, common.ErrUnavailable) {
				e.log.Warn(ctx, "node unavailable, will retry", "error", err)
			} else {
				e.log.Error(ctx, "fetch failed, will retry", "error", err)
			}
			if !e.sleep(ctx) {
				return nil
			}
			continue
		}

		if len(trxs) == 0 {
			if !e.sleep(ctx) {
				return nil
			}
			continue
		}

		changed, err := e.processWindow(ctx, trxs)
		if err != nil {
			if errors.Is(err, common.ErrStopped) {
				return nil
			}
			e.log.Error(ctx, "window processing failed, will retry", "error", err)
			if !e.sleep(ctx) {
				return nil
			}
			continue
		}

		last := trxs[len(trxs)-1].ID
		if err := e.settings.Set(ctx, common.CursorSettingKey(e.groupID), []byte(last)); err != nil {
			e.log.Error(ctx, "failed to persist cursor", "error", err)
			if !e.sleep(ctx) {
				return nil
			}
			continue
		}

		ids := make([]string, len(trxs))
		for i, trx := range trxs {
			ids[i] = trx.ID
		}
		if err := e.node.AckTrxs(ctx, ids); err != nil {
			e.log.Debug(ctx, "ack failed", "error", err)
		}

		if len(changed) > 0 {
			e.notify(changed)
		}
	}
}

func (e *Engine) loadCursor(ctx context.Context) (string, error) {
	v, err := e.settings.Get(ctx, common.CursorSettingKey(e.groupID))
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// processWindow applies every transaction of one fetch window in order and
// returns the net set of changed records (last change per logical id wins).
// It refuses to write to the store once the stop flag is observed.
func (e *Engine) processWindow(ctx context.Context, trxs []node.Transaction) ([]records.ContentRecord, error) {
	byObject := make(map[string]records.ContentRecord)
	order := make([]string, 0, len(trxs))

	for i := range trxs {
		trx := &trxs[i]

		if e.isStopped() {
			return nil, common.ErrStopped
		}

		content, err := node.DecodeContent(trx.Data)
		if err != nil || content.ID == "" {
			e.log.Debug(ctx, "skipping undecodable transaction", "trx", trx.ID)
			continue
		}

		changedRec, visible, err := e.apply(ctx, trx, content)
		if err != nil {
			return nil, fmt.Errorf("apply trx %s: %w", trx.ID, err)
		}
		if !visible {
			continue
		}
		if _, seen := byObject[content.ID]; !seen {
			order = append(order, content.ID)
		}
		byObject[content.ID] = *changedRec
	}

	changed := make([]records.ContentRecord, 0, len(order))
	for _, id := range order {
		changed = append(changed, byObject[id])
	}
	return changed, nil
}

func (e *Engine) apply(ctx context.Context, trx *node.Transaction, content *node.Content) (*records.ContentRecord, bool, error) {
	byTrx, err := e.getOrNil(e.records.GetByTrxID(ctx, e.groupID, trx.ID))
	if err != nil {
		return nil, false, err
	}
	byObject, err := e.getOrNil(e.records.GetByObjectID(ctx, e.groupID, content.ID))
	if err != nil {
		return nil, false, err
	}

	action := Classify(byTrx, byObject, content)
	e.log.Debug(ctx, "classified transaction", "trx", trx.ID, "object", content.ID, "action", action.String())

	switch action {
	case ActionNoop:
		return nil, false, nil

	case ActionFlipStatus:
		if err := e.records.UpdateStatus(ctx, e.groupID, trx.ID, records.StatusSynced); err != nil {
			return nil, false, err
		}
		byTrx.Status = records.StatusSynced
		return byTrx, true, nil

	case ActionReplaceAndTombstone:
		if err := e.records.DeleteByObjectID(ctx, e.groupID, content.ID); err != nil {
			return nil, false, err
		}
		// Deletions are not reported: the superseding tombstone has no
		// record to surface.
		return nil, false, nil

	case ActionReplaceAndInsert:
		if err := e.records.DeleteByObjectID(ctx, e.groupID, content.ID); err != nil {
			return nil, false, err
		}
		fallthrough

	case ActionInsert:
		rec := &records.ContentRecord{
			GroupID:   e.groupID,
			TrxID:     trx.ID,
			Publisher: trx.Sender,
			TypeURL:   content.Type,
			Timestamp: trx.Timestamp,
			ObjectID:  content.ID,
			Name:      content.Name,
			Content:   trx.Data,
			Status:    records.StatusSynced,
		}
		if err := e.records.Add(ctx, rec); err != nil {
			return nil, false, err
		}
		return rec, true, nil

	default:
		return nil, false, fmt.Errorf("unexpected action %v", action)
	}
}

func (e *Engine) getOrNil(rec *records.ContentRecord, err error) (*records.ContentRecord, error) {
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (e *Engine) notify(changed []records.ContentRecord) {
	e.mu.Lock()
	subs := make([]Subscriber, 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.mu.Unlock()

	for _, fn := range subs {
		fn(e.groupID, changed)
	}
}

// sleep waits for the idle interval; returns false when the engine should
// exit instead of continuing.
func (e *Engine) sleep(ctx context.Context) bool {
	t := time.NewTimer(e.interval)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-e.stopped:
		return false
	case <-ctx.Done():
		return false
	}
}
