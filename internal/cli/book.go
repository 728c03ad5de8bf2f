package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"bookfeed/internal/common"
	"bookfeed/internal/publish"
	"bookfeed/internal/resolver"
)

func (a *App) Publish(ctx context.Context, args []string) error {
	if len(args) != 2 {
		printlnFn("Usage: publish <group> <file.epub>")
		return nil
	}
	groupID, path := args[0], args[1]

	raw, err := os.ReadFile(path)
	if err != nil {
		printlnFn("Failed to read file:", err)
		return err
	}

	job, err := a.service.Publish(ctx, groupID, path, raw, false)
	if errors.Is(err, common.ErrDuplicateBook) {
		if !Confirm(a.reader, "This book is already in the group. Publish anyway?", a.out) {
			printlnFn("Cancelled")
			return nil
		}
		job, err = a.service.Publish(ctx, groupID, path, raw, true)
	}
	if err != nil {
		printlnFn("Publish failed:", err)
		if job != nil {
			printlnFn(fmt.Sprintf("Progress kept: %d of %d items confirmed; run publish again to resume",
				doneItems(job), len(job.Items)))
		}
		return err
	}

	printlnFn(fmt.Sprintf("Published %q (%d items)", job.Package.FileInfo.Title, len(job.Items)))
	return nil
}

func doneItems(job *publish.Job) int {
	n := 0
	for _, it := range job.Items {
		if it.Status == publish.ItemDone {
			n++
		}
	}
	return n
}

func (a *App) Books(ctx context.Context, args []string) error {
	if len(args) != 1 {
		printlnFn("Usage: books <group>")
		return nil
	}
	books, err := a.service.Books(ctx, args[0])
	if err != nil {
		printlnFn("Failed to list books:", err)
		return err
	}
	if len(books) == 0 {
		printlnFn("No books in group", args[0])
		return nil
	}
	for _, b := range books {
		printlnFn(fmt.Sprintf("  %s  %s  %s", b.ObjectID, b.FileInfo.Title, describe(b)))
	}
	return nil
}

func describe(b resolver.Book) string {
	switch b.Status {
	case resolver.StatusPending:
		return fmt.Sprintf("syncing %d/%d segments", b.SegmentsHave, b.SegmentsWant)
	case resolver.StatusCorrupt:
		return "corrupt"
	default:
		return "ready"
	}
}

func (a *App) Read(ctx context.Context, args []string) error {
	if len(args) != 3 {
		printlnFn("Usage: read <group> <book> <out-file>")
		return nil
	}
	groupID, objectID, outPath := args[0], args[1], args[2]

	h, err := a.service.ReadBook(ctx, groupID, objectID)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrIncomplete):
			printlnFn("Book is still syncing:", err)
		case errors.Is(err, common.ErrCorrupted):
			printlnFn("Book failed verification:", err)
		default:
			printlnFn("Failed to read book:", err)
		}
		return err
	}
	defer h.Release()

	if err := os.WriteFile(outPath, h.Bytes(), 0o600); err != nil {
		printlnFn("Failed to write file:", err)
		return err
	}
	printlnFn(fmt.Sprintf("Wrote %d bytes to %s", len(h.Bytes()), outPath))
	return nil
}

func (a *App) Export(ctx context.Context, args []string) error {
	if len(args) != 2 {
		printlnFn("Usage: export <group> <book>")
		return nil
	}
	key, err := a.service.ExportBook(ctx, args[0], args[1])
	if err != nil {
		printlnFn("Export failed:", err)
		return err
	}
	printlnFn("Exported to", key)
	return nil
}
