package handoff

import (
	"context"
	"fmt"

	"github.com/asdfghjkxd/NFTScraper/pkg/batch"
)

// ServeFiles is the dispatcher side of the file protocol: read the batch
// file, dispatch every URL, write the results file. A returned error means
// no results file was written.
func ServeFiles(ctx context.Context, files Files, d PageDispatcher) error {
	b, err := files.ReadBatch()
	if err != nil {
		return err
	}
	return ServeBatch(ctx, files, d, b)
}

// ServeBatch dispatches b and writes the results file.
func ServeBatch(ctx context.Context, files Files, d PageDispatcher, b batch.Batch) error {
	pages := d.DispatchPages(ctx, b)
	if len(pages) != len(b) {
		return fmt.Errorf("dispatcher returned %d pages for %d urls", len(pages), len(b))
	}
	return files.WriteResults(pages)
}
