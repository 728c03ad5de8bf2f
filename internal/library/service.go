// Package library is the orchestration layer behind the CLI: it tracks open
// groups, runs their sync pollers, publishes verified books, and serves
// assembled books back out of the record store.
package library

import (
	"context"
	"encoding/json"
	"fmt"

	"bookfeed/internal/blobcache"
	"bookfeed/internal/common"
	"bookfeed/internal/config"
	"bookfeed/internal/epub"
	"bookfeed/internal/export"
	"bookfeed/internal/logging"
	"bookfeed/internal/node"
	"bookfeed/internal/publish"
	"bookfeed/internal/resolver"
	"bookfeed/internal/storage"
	"bookfeed/internal/syncer"
)

// openGroupsKey stores the JSON list of groups whose pollers restart on
// boot.
const openGroupsKey = "open_groups"

type Service struct {
	cfg   *config.Config
	node  node.Client
	repos *storage.Repositories
	log   logging.Logger

	registry *syncer.Registry
	pipeline *publish.Pipeline
	resolver *resolver.Resolver
	exporter *export.Exporter
	verifier *epub.Verifier
	cache    *blobcache.Cache
}

// New wires the service. exporter may be nil; ExportBook then fails with a
// clear error.
func New(cfg *config.Config, n node.Client, repos *storage.Repositories, exporter *export.Exporter, log logging.Logger) (*Service, error) {
	if log == nil {
		log = logging.NewNoop()
	}

	pipeline, err := publish.New(publish.Config{
		Node:            n,
		Records:         repos.Records,
		Settings:        repos.Settings,
		Logger:          log,
		Compression:     cfg.Compression,
		ConfirmInterval: cfg.ConfirmInterval,
		ConfirmAttempts: cfg.ConfirmAttempts,
	})
	if err != nil {
		return nil, err
	}

	verifier := epub.NewVerifier()
	if cfg.ChunkSize > 0 {
		verifier.ChunkSize = cfg.ChunkSize
	}

	s := &Service{
		cfg:      cfg,
		node:     n,
		repos:    repos,
		log:      log.With("component", "library"),
		pipeline: pipeline,
		resolver: resolver.New(repos.Records, log),
		exporter: exporter,
		verifier: verifier,
		cache:    blobcache.New(),
	}
	s.registry = syncer.NewRegistry(func(groupID string) *syncer.Engine {
		return syncer.New(syncer.Config{
			GroupID:   groupID,
			Node:      n,
			Records:   repos.Records,
			Settings:  repos.Settings,
			Logger:    log,
			Interval:  cfg.PollInterval,
			BatchSize: cfg.PollBatchSize,
		})
	})
	return s, nil
}

// Resume restarts the poller of every group that was open when the process
// last exited.
func (s *Service) Resume(ctx context.Context) error {
	groups, err := s.openGroups(ctx)
	if err != nil {
		return err
	}
	for _, g := range groups {
		s.registry.Start(ctx, g)
	}
	if len(groups) > 0 {
		s.log.Info(ctx, "resumed group pollers", "count", len(groups))
	}
	return nil
}

// OpenGroup starts syncing a group and remembers it across restarts.
// Opening an already open group is a no-op.
func (s *Service) OpenGroup(ctx context.Context, groupID string) error {
	groups, err := s.openGroups(ctx)
	if err != nil {
		return err
	}
	for _, g := range groups {
		if g == groupID {
			s.registry.Start(ctx, groupID)
			return nil
		}
	}

	if err := s.saveOpenGroups(ctx, append(groups, groupID)); err != nil {
		return err
	}
	s.registry.Start(ctx, groupID)
	s.log.Info(ctx, "group opened", "group", groupID)
	return nil
}

// CloseGroup stops the group's poller but keeps its local data.
func (s *Service) CloseGroup(ctx context.Context, groupID string) error {
	s.registry.Stop(groupID)

	groups, err := s.openGroups(ctx)
	if err != nil {
		return err
	}
	kept := groups[:0]
	for _, g := range groups {
		if g != groupID {
			kept = append(kept, g)
		}
	}
	return s.saveOpenGroups(ctx, kept)
}

// LeaveGroup stops the poller and erases everything the group left behind:
// content records, the sync cursor, and publish progress.
func (s *Service) LeaveGroup(ctx context.Context, groupID string) error {
	if err := s.CloseGroup(ctx, groupID); err != nil {
		return err
	}
	if err := s.repos.Records.DeleteByGroup(ctx, groupID); err != nil {
		return err
	}
	if err := s.repos.Settings.DeleteByPrefix(ctx, groupID+"_"); err != nil {
		return err
	}
	s.log.Info(ctx, "group left", "group", groupID)
	return nil
}

// OpenGroups returns the groups currently marked open, in open order.
func (s *Service) OpenGroups(ctx context.Context) ([]string, error) {
	return s.openGroups(ctx)
}

// Engine exposes the running poller for a group so callers can subscribe to
// change batches. Nil when the group is not open.
func (s *Service) Engine(groupID string) *syncer.Engine {
	return s.registry.Get(groupID)
}

// Publish verifies raw EPUB bytes and uploads them to the group. The job id
// derives from the whole-file digest, so re-publishing after a failure
// resumes where the previous attempt stopped. Unless force is set, a book
// already present in the group is rejected with ErrDuplicateBook.
func (s *Service) Publish(ctx context.Context, groupID, fileName string, raw []byte, force bool) (*publish.Job, error) {
	pkg, err := s.verifier.Parse(fileName, raw)
	if err != nil {
		return nil, err
	}

	if !force {
		dup, err := s.pipeline.CheckDuplicate(ctx, groupID, pkg.FileInfo.SHA256)
		if err != nil {
			return nil, err
		}
		if dup {
			return nil, fmt.Errorf("%s: %w", pkg.FileInfo.Title, common.ErrDuplicateBook)
		}
	}

	job := publish.NewJob(pkg.FileInfo.SHA256, groupID, pkg)
	if err := s.pipeline.Run(ctx, job); err != nil {
		return job, err
	}
	return job, nil
}

// OnPublishProgress registers an observer for publish progress updates.
func (s *Service) OnPublishProgress(fn publish.Observer) {
	s.pipeline.AddObserver(fn)
}

// Books lists every book known to the group with its completion status.
func (s *Service) Books(ctx context.Context, groupID string) ([]resolver.Book, error) {
	return s.resolver.List(ctx, groupID)
}

// ReadBook returns a handle to the assembled, verified book bytes. Handles
// share one in-memory copy per book; release them when done.
func (s *Service) ReadBook(ctx context.Context, groupID, objectID string) (*blobcache.Handle, error) {
	return s.cache.Acquire(groupID+"/"+objectID, func() ([]byte, error) {
		buf, _, err := s.resolver.Assemble(ctx, groupID, objectID)
		return buf, err
	})
}

// ExportBook assembles a book and uploads it to object storage, returning
// the storage key.
func (s *Service) ExportBook(ctx context.Context, groupID, objectID string) (string, error) {
	if s.exporter == nil {
		return "", fmt.Errorf("object storage is not configured")
	}
	buf, fi, err := s.resolver.Assemble(ctx, groupID, objectID)
	if err != nil {
		return "", err
	}
	return s.exporter.ExportBook(ctx, groupID, fi, buf)
}

// Shutdown stops every poller and waits for them to exit.
func (s *Service) Shutdown() error {
	return s.registry.StopAll()
}

func (s *Service) openGroups(ctx context.Context) ([]string, error) {
	data, err := s.repos.Settings.Get(ctx, openGroupsKey)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	var groups []string
	if err := json.Unmarshal(data, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (s *Service) saveOpenGroups(ctx context.Context, groups []string) error {
	data, err := json.Marshal(groups)
	if err != nil {
		return err
	}
	return s.repos.Settings.Set(ctx, openGroupsKey, data)
}
