// Package cli is the interactive shell over the library service: open and
// leave groups, publish books, list and extract them.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"bookfeed/internal/config"
	"bookfeed/internal/export"
	"bookfeed/internal/library"
	"bookfeed/internal/logging"
	"bookfeed/internal/node"
	"bookfeed/internal/publish"
	"bookfeed/internal/storage"
)

type App struct {
	config  *config.Config
	service *library.Service
	repos   *storage.Repositories
	reader  *bufio.Reader
	out     io.Writer
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	repos, err := storage.InitDatabase(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	// The node token should not be passed on the command line in shared
	// environments; offer a no-echo prompt when it is absent.
	if cfg.NodeJWT == "" && term.IsTerminal(int(os.Stdin.Fd())) {
		token, err := GetSecret("Node API token (empty for none)", os.Stdout)
		if err == nil {
			cfg.NodeJWT = token
		}
	}

	var exporter *export.Exporter
	if cfg.S3Bucket != "" {
		exporter, err = export.New(export.Options{
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			Bucket:       cfg.S3Bucket,
		}, log)
		if err != nil {
			_ = repos.Close()
			return nil, err
		}
	}

	service, err := library.New(cfg, node.NewHTTPClient(cfg.NodeAPIURL, cfg.NodeJWT), repos, exporter, log)
	if err != nil {
		_ = repos.Close()
		return nil, err
	}

	service.OnPublishProgress(func(job *publish.Job) {
		if job.State == publish.StateUploading {
			printlnFn(fmt.Sprintf("  uploading %d/%d", doneItems(job), len(job.Items)))
		}
	})

	return &App{
		config:  cfg,
		service: service,
		repos:   repos,
		reader:  bufio.NewReader(os.Stdin),
		out:     os.Stdout,
	}, nil
}

func (a *App) Run(ctx context.Context) {
	defer func() {
		_ = a.service.Shutdown()
		_ = a.repos.Close()
	}()

	if err := a.service.Resume(ctx); err != nil {
		printlnFn("Failed to resume group pollers:", err)
	}

	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, scanner)
}
