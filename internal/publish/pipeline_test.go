package publish

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookfeed/internal/chunker"
	"bookfeed/internal/common"
	"bookfeed/internal/compressx"
	"bookfeed/internal/epub"
	"bookfeed/internal/node"
	"bookfeed/internal/repositories/records"
	"bookfeed/internal/repositories/settings"

	_ "modernc.org/sqlite"
)

func setupRepos(t *testing.T) (records.Repository, settings.Repository) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE content_records (
  local_id INTEGER PRIMARY KEY AUTOINCREMENT,
  group_id TEXT NOT NULL,
  trx_id TEXT NOT NULL,
  publisher TEXT NOT NULL DEFAULT '',
  type_url TEXT NOT NULL DEFAULT '',
  timestamp INTEGER NOT NULL DEFAULT 0,
  object_id TEXT NOT NULL,
  name TEXT NOT NULL DEFAULT '',
  content BLOB NOT NULL,
  status TEXT NOT NULL DEFAULT 'synced'
);
CREATE UNIQUE INDEX idx_content_records_group_object ON content_records (group_id, object_id);
CREATE TABLE settings (key TEXT PRIMARY KEY, value BLOB NOT NULL);
`)
	require.NoError(t, err)
	return records.NewSQLiteRepository(db), settings.NewSQLiteRepository(db)
}

// fakeNode accepts posts and confirms them on poll, except for names listed
// in neverConfirm.
type fakeNode struct {
	node.Client

	mu           sync.Mutex
	posted       []node.Content
	trxSeq       int
	nameByTrx    map[string]string
	neverConfirm map[string]bool
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		nameByTrx:    make(map[string]string),
		neverConfirm: make(map[string]bool),
	}
}

func (f *fakeNode) PostToGroup(ctx context.Context, groupID string, content *node.Content) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trxSeq++
	id := fmt.Sprintf("trx-%d", f.trxSeq)
	f.posted = append(f.posted, *content)
	f.nameByTrx[id] = content.Name
	return id, nil
}

func (f *fakeNode) GetTrx(ctx context.Context, groupID, trxID string) (*node.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name, ok := f.nameByTrx[trxID]
	if !ok || f.neverConfirm[name] {
		return nil, common.ErrNotFound
	}
	return &node.Transaction{ID: trxID, GroupID: groupID}, nil
}

func (f *fakeNode) postedNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.posted))
	for i := range f.posted {
		names[i] = f.posted[i].Name
	}
	return names
}

func testPackage(t *testing.T) *epub.Package {
	t.Helper()
	seg1 := []byte("first segment bytes")
	seg2 := []byte("second segment bytes")
	whole := append(append([]byte{}, seg1...), seg2...)
	return &epub.Package{
		FileInfo: epub.FileInfo{
			MediaType: epub.EpubMediaType,
			Name:      "book.epub",
			Title:     "A Book",
			SHA256:    chunker.Digest(whole),
			Segments: []epub.SegmentRef{
				{ID: "seg-1", SHA256: chunker.Digest(seg1)},
				{ID: "seg-2", SHA256: chunker.Digest(seg2)},
			},
		},
		Segments: []chunker.Segment{
			{ID: "seg-1", SHA256: chunker.Digest(seg1), Buffer: seg1},
			{ID: "seg-2", SHA256: chunker.Digest(seg2), Buffer: seg2},
		},
	}
}

func newTestPipeline(t *testing.T, n node.Client, recs records.Repository, sets settings.Repository, compression string) *Pipeline {
	t.Helper()
	p, err := New(Config{
		Node:            n,
		Records:         recs,
		Settings:        sets,
		Compression:     compression,
		ConfirmInterval: time.Millisecond,
		ConfirmAttempts: 3,
	})
	require.NoError(t, err)
	return p
}

func TestRun_UploadsManifestThenSegmentsInOrder(t *testing.T) {
	recs, sets := setupRepos(t)
	n := newFakeNode()
	p := newTestPipeline(t, n, recs, sets, compressx.None)
	ctx := context.Background()

	job := NewJob("job1", "g1", testPackage(t))
	require.NoError(t, p.Run(ctx, job))

	assert.Equal(t, StateDone, job.State)
	assert.Equal(t, []string{common.FileInfoName, "seg-1", "seg-2"}, n.postedNames())

	// Each confirmed item has an optimistic record awaiting its sync echo.
	all, err := recs.ListByGroup(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, rec := range all {
		assert.Equal(t, records.StatusSyncing, rec.Status)
	}

	// Progress survives in the settings store under the publish key.
	data, err := sets.Get(ctx, common.PublishSettingKey("g1", "job1"))
	require.NoError(t, err)
	require.NotNil(t, data)
}

func TestRun_ThreeSegmentBookEmitsFourTransactions(t *testing.T) {
	recs, sets := setupRepos(t)
	n := newFakeNode()
	p := newTestPipeline(t, n, recs, sets, compressx.None)

	raw := make([]byte, 310*1024)
	for i := range raw {
		raw[i] = byte(i % 251)
	}
	segs := chunker.Split(raw, chunker.DefaultChunkSize)
	require.Len(t, segs, 3)

	pkg := &epub.Package{
		FileInfo: epub.FileInfo{
			MediaType: epub.EpubMediaType,
			Name:      "big.epub",
			Title:     "Big",
			SHA256:    chunker.Digest(raw),
		},
		Segments: segs,
	}
	for _, s := range segs {
		pkg.FileInfo.Segments = append(pkg.FileInfo.Segments, epub.SegmentRef{ID: s.ID, SHA256: s.SHA256})
	}

	job := NewJob("job1", "g1", pkg)
	require.NoError(t, p.Run(context.Background(), job))

	assert.Equal(t,
		[]string{common.FileInfoName, "seg-1", "seg-2", "seg-3"},
		n.postedNames())
}

func TestRun_ManifestRecordRoundTrips(t *testing.T) {
	recs, sets := setupRepos(t)
	n := newFakeNode()
	p := newTestPipeline(t, n, recs, sets, compressx.Zstd)
	ctx := context.Background()

	pkg := testPackage(t)
	require.NoError(t, p.Run(ctx, NewJob("job1", "g1", pkg)))

	stored, err := recs.ListByName(ctx, "g1", common.FileInfoName)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	fi, err := DecodeFileInfo(stored[0].Content)
	require.NoError(t, err)
	assert.Equal(t, pkg.FileInfo, *fi)
}

func TestRun_ConfirmTimeoutRevertsToSelected(t *testing.T) {
	recs, sets := setupRepos(t)
	n := newFakeNode()
	n.neverConfirm["seg-2"] = true
	p := newTestPipeline(t, n, recs, sets, compressx.None)
	ctx := context.Background()

	job := NewJob("job1", "g1", testPackage(t))
	err := p.Run(ctx, job)
	require.ErrorIs(t, err, common.ErrConfirmTimeout)
	assert.Equal(t, StateSelected, job.State)

	// Items confirmed before the failure keep their done marker.
	assert.Equal(t, ItemDone, job.Items[0].Status)
	assert.Equal(t, ItemDone, job.Items[1].Status)
	assert.NotEqual(t, ItemDone, job.Items[2].Status)
}

func TestRun_ResumesSkippingDoneItems(t *testing.T) {
	recs, sets := setupRepos(t)
	n := newFakeNode()
	n.neverConfirm["seg-2"] = true
	p := newTestPipeline(t, n, recs, sets, compressx.None)
	ctx := context.Background()

	pkg := testPackage(t)
	err := p.Run(ctx, NewJob("job1", "g1", pkg))
	require.ErrorIs(t, err, common.ErrConfirmTimeout)

	// The node recovers; a fresh job under the same id resumes from the
	// persisted progress instead of starting over.
	n.mu.Lock()
	delete(n.neverConfirm, "seg-2")
	n.mu.Unlock()

	job := NewJob("job1", "g1", pkg)
	require.NoError(t, p.Run(ctx, job))
	assert.Equal(t, StateDone, job.State)

	// fileinfo and seg-1 were posted once, seg-2 twice (one failed attempt).
	assert.Equal(t,
		[]string{common.FileInfoName, "seg-1", "seg-2", "seg-2"},
		n.postedNames())
}

func TestRun_RejectsNonSelectedJob(t *testing.T) {
	recs, sets := setupRepos(t)
	p := newTestPipeline(t, newFakeNode(), recs, sets, compressx.None)

	job := NewJob("job1", "g1", testPackage(t))
	job.State = StateDone
	require.Error(t, p.Run(context.Background(), job))
}

func TestRun_NotifiesObservers(t *testing.T) {
	recs, sets := setupRepos(t)
	p := newTestPipeline(t, newFakeNode(), recs, sets, compressx.None)

	var states []JobState
	p.AddObserver(func(job *Job) { states = append(states, job.State) })

	require.NoError(t, p.Run(context.Background(), NewJob("job1", "g1", testPackage(t))))
	require.NotEmpty(t, states)
	assert.Equal(t, StateUploading, states[0])
	assert.Equal(t, StateDone, states[len(states)-1])
}

func TestCheckDuplicate(t *testing.T) {
	recs, sets := setupRepos(t)
	n := newFakeNode()
	p := newTestPipeline(t, n, recs, sets, compressx.Gzip)
	ctx := context.Background()

	pkg := testPackage(t)
	require.NoError(t, p.Run(ctx, NewJob("job1", "g1", pkg)))

	dup, err := p.CheckDuplicate(ctx, "g1", pkg.FileInfo.SHA256)
	require.NoError(t, err)
	assert.True(t, dup)

	dup, err = p.CheckDuplicate(ctx, "g1", chunker.Digest([]byte("different book")))
	require.NoError(t, err)
	assert.False(t, dup)

	// Other groups are not consulted.
	dup, err = p.CheckDuplicate(ctx, "g2", pkg.FileInfo.SHA256)
	require.NoError(t, err)
	assert.False(t, dup)
}
