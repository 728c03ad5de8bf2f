// Package publish implements the confirm-then-advance upload protocol: one
// fileinfo transaction followed by one transaction per segment, each awaited
// until the node can serve it back before the next is sent. Progress is
// persisted after every item so an interrupted job can resume by skipping
// items already confirmed.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bookfeed/internal/common"
	"bookfeed/internal/compressx"
	"bookfeed/internal/epub"
	"bookfeed/internal/logging"
	"bookfeed/internal/node"
	"bookfeed/internal/repositories/records"
	"bookfeed/internal/repositories/settings"
)

// Item statuses. Items are never retried individually: a failure halts the
// job and leaves the remaining items pending.
type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemUploading ItemStatus = "uploading"
	ItemDone      ItemStatus = "done"
)

// Job states. A failed run drops back to StateSelected; confirmed items keep
// their done marker so a retry does not re-upload them.
type JobState string

const (
	StateIdle      JobState = "idle"
	StateSelected  JobState = "selected"
	StateUploading JobState = "uploading"
	StateDone      JobState = "done"
)

// Item is one entry of a job's ordered progress list.
type Item struct {
	Name   string     `json:"name"`
	Status ItemStatus `json:"status"`
}

// Job is one upload of a verified package to a group.
type Job struct {
	ID      string        `json:"id"`
	GroupID string        `json:"group_id"`
	State   JobState      `json:"state"`
	Items   []Item        `json:"items"`
	Package *epub.Package `json:"-"`
}

// NewJob builds a selected job with every item pending, in publish order:
// the manifest first, then each segment ascending.
func NewJob(id, groupID string, pkg *epub.Package) *Job {
	items := make([]Item, 0, len(pkg.Segments)+1)
	items = append(items, Item{Name: common.FileInfoName, Status: ItemPending})
	for _, s := range pkg.Segments {
		items = append(items, Item{Name: s.ID, Status: ItemPending})
	}
	return &Job{
		ID:      id,
		GroupID: groupID,
		State:   StateSelected,
		Items:   items,
		Package: pkg,
	}
}

// Observer is notified after every externally visible progress mutation.
type Observer func(job *Job)

// Config wires a Pipeline to its collaborators.
type Config struct {
	Node     node.Client
	Records  records.Repository
	Settings settings.Repository
	Logger   logging.Logger

	// Compression names the algorithm applied to item payloads ("", "gzip",
	// "zstd"). Digests always cover the uncompressed bytes.
	Compression string

	// ConfirmInterval and ConfirmAttempts bound the poll-by-id loop that
	// waits for the node to durably accept each transaction.
	ConfirmInterval time.Duration
	ConfirmAttempts int
}

const (
	defaultConfirmInterval = time.Second
	defaultConfirmAttempts = 30
)

type Pipeline struct {
	node     node.Client
	records  records.Repository
	settings settings.Repository
	log      logging.Logger

	compression     string
	confirmInterval time.Duration
	confirmAttempts int

	observers []Observer
}

func New(cfg Config) (*Pipeline, error) {
	if !compressx.Valid(cfg.Compression) {
		return nil, fmt.Errorf("unsupported compression %q", cfg.Compression)
	}
	interval := cfg.ConfirmInterval
	if interval <= 0 {
		interval = defaultConfirmInterval
	}
	attempts := cfg.ConfirmAttempts
	if attempts <= 0 {
		attempts = defaultConfirmAttempts
	}
	log := cfg.Logger
	if log == nil {
		log = logging.NewNoop()
	}
	return &Pipeline{
		node:            cfg.Node,
		records:         cfg.Records,
		settings:        cfg.Settings,
		log:             log.With("component", "publish"),
		compression:     cfg.Compression,
		confirmInterval: interval,
		confirmAttempts: attempts,
	}, nil
}

// AddObserver registers fn for progress updates. Not safe to call while a
// job is running.
func (p *Pipeline) AddObserver(fn Observer) {
	p.observers = append(p.observers, fn)
}

// CheckDuplicate reports whether a manifest with the given whole-file digest
// already exists in the group. Callers surface this as a confirmation
// prompt, not a failure.
func (p *Pipeline) CheckDuplicate(ctx context.Context, groupID, sha256 string) (bool, error) {
	manifests, err := p.records.ListByName(ctx, groupID, common.FileInfoName)
	if err != nil {
		return false, err
	}
	for i := range manifests {
		fi, err := DecodeFileInfo(manifests[i].Content)
		if err != nil {
			continue
		}
		if fi.SHA256 == sha256 {
			return true, nil
		}
	}
	return false, nil
}

// Run executes the job: fileinfo first, then each segment in ascending
// order, each submitted only after the previous transaction was confirmed
// retrievable. Any failure halts the job, reverts its state to Selected,
// and leaves the remaining items pending; done items are skipped when the
// job is run again.
func (p *Pipeline) Run(ctx context.Context, job *Job) error {
	if job.State != StateSelected {
		return fmt.Errorf("job %s is %s, want %s", job.ID, job.State, StateSelected)
	}

	if err := p.restore(ctx, job); err != nil {
		return err
	}

	job.State = StateUploading
	p.notify(job)

	if err := p.runItems(ctx, job); err != nil {
		job.State = StateSelected
		p.persist(ctx, job)
		p.notify(job)
		return err
	}

	job.State = StateDone
	p.persist(ctx, job)
	p.notify(job)
	return nil
}

func (p *Pipeline) runItems(ctx context.Context, job *Job) error {
	for i := range job.Items {
		item := &job.Items[i]
		if item.Status == ItemDone {
			continue
		}

		content, err := p.buildContent(job, item.Name)
		if err != nil {
			return err
		}

		item.Status = ItemUploading
		p.persist(ctx, job)
		p.notify(job)

		trxID, err := p.node.PostToGroup(ctx, job.GroupID, content)
		if err != nil {
			return fmt.Errorf("submit %s: %w", item.Name, err)
		}

		if err := p.insertOptimistic(ctx, job.GroupID, trxID, content); err != nil {
			return fmt.Errorf("record %s: %w", item.Name, err)
		}

		if err := p.awaitConfirmation(ctx, job.GroupID, trxID); err != nil {
			return fmt.Errorf("confirm %s: %w", item.Name, err)
		}

		item.Status = ItemDone
		p.persist(ctx, job)
		p.notify(job)
		p.log.Info(ctx, "item confirmed", "job", job.ID, "item", item.Name, "trx", trxID)
	}
	return nil
}

// buildContent renders the payload for one item. Logical object ids derive
// from the package digest so a re-publish of the same bytes supersedes the
// earlier records instead of duplicating them.
func (p *Pipeline) buildContent(job *Job, name string) (*node.Content, error) {
	fi := &job.Package.FileInfo

	if name == common.FileInfoName {
		manifest, err := json.Marshal(fi)
		if err != nil {
			return nil, err
		}
		return p.fileContent(fi.SHA256, common.FileInfoName, "application/json", manifest)
	}

	for _, s := range job.Package.Segments {
		if s.ID == name {
			return p.fileContent(fi.SHA256+"."+s.ID, s.ID, "application/octet-stream", s.Buffer)
		}
	}
	return nil, fmt.Errorf("job %s has no segment %s", job.ID, name)
}

func (p *Pipeline) fileContent(objectID, name, mediaType string, payload []byte) (*node.Content, error) {
	packed, err := compressx.Compress(p.compression, payload)
	if err != nil {
		return nil, err
	}
	return &node.Content{
		ID:   objectID,
		Type: "File",
		Name: name,
		File: &node.FilePayload{
			Compression: p.compression,
			MediaType:   mediaType,
			Content:     packed,
		},
	}, nil
}

// insertOptimistic materializes the just-submitted transaction locally with
// status Syncing; the sync engine flips it to Synced when the echo arrives.
func (p *Pipeline) insertOptimistic(ctx context.Context, groupID, trxID string, content *node.Content) error {
	data, err := node.EncodeContent(content)
	if err != nil {
		return err
	}

	// A previous unconfirmed attempt may have left a record under the same
	// logical id; replace it.
	if err := p.records.DeleteByObjectID(ctx, groupID, content.ID); err != nil {
		return err
	}
	return p.records.Add(ctx, &records.ContentRecord{
		GroupID:   groupID,
		TrxID:     trxID,
		TypeURL:   content.Type,
		Timestamp: time.Now().UnixNano(),
		ObjectID:  content.ID,
		Name:      content.Name,
		Content:   data,
		Status:    records.StatusSyncing,
	})
}

func (p *Pipeline) awaitConfirmation(ctx context.Context, groupID, trxID string) error {
	for attempt := 0; attempt < p.confirmAttempts; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(p.confirmInterval)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			}
		}

		_, err := p.node.GetTrx(ctx, groupID, trxID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, common.ErrNotFound) && !errors.Is(err, common.ErrUnavailable) {
			return err
		}
	}
	return fmt.Errorf("%w: trx %s after %d attempts", common.ErrConfirmTimeout, trxID, p.confirmAttempts)
}

type persistedProgress struct {
	State JobState `json:"state"`
	Items []Item   `json:"items"`
}

// persist stores the progress list; failures are logged, not fatal, since
// progress persistence is an optimization for resuming.
func (p *Pipeline) persist(ctx context.Context, job *Job) {
	data, err := json.Marshal(persistedProgress{State: job.State, Items: job.Items})
	if err == nil {
		err = p.settings.Set(ctx, common.PublishSettingKey(job.GroupID, job.ID), data)
	}
	if err != nil {
		p.log.Warn(ctx, "failed to persist publish progress", "job", job.ID, "error", err)
	}
}

// restore merges previously persisted done markers into the job, so a job
// rebuilt after a crash skips items that were already confirmed. An item
// interrupted mid-upload was never confirmed and stays pending.
func (p *Pipeline) restore(ctx context.Context, job *Job) error {
	data, err := p.settings.Get(ctx, common.PublishSettingKey(job.GroupID, job.ID))
	if err != nil {
		return err
	}
	if data == nil {
		return nil
	}

	var saved persistedProgress
	if err := json.Unmarshal(data, &saved); err != nil {
		p.log.Warn(ctx, "discarding unreadable publish progress", "job", job.ID, "error", err)
		return nil
	}

	done := make(map[string]bool, len(saved.Items))
	for _, it := range saved.Items {
		if it.Status == ItemDone {
			done[it.Name] = true
		}
	}
	for i := range job.Items {
		if done[job.Items[i].Name] {
			job.Items[i].Status = ItemDone
		}
	}
	return nil
}

func (p *Pipeline) notify(job *Job) {
	for _, fn := range p.observers {
		fn(job)
	}
}

// DecodeFileInfo parses a stored fileinfo record payload back into the
// manifest, honoring the payload's declared compression.
func DecodeFileInfo(recordContent []byte) (*epub.FileInfo, error) {
	content, err := node.DecodeContent(recordContent)
	if err != nil {
		return nil, err
	}
	if content.File == nil {
		return nil, fmt.Errorf("record carries no file payload")
	}
	raw, err := compressx.Decompress(content.File.Compression, content.File.Content)
	if err != nil {
		return nil, err
	}
	var fi epub.FileInfo
	if err := json.Unmarshal(raw, &fi); err != nil {
		return nil, err
	}
	return &fi, nil
}
