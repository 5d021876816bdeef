package handoff

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/asdfghjkxd/NFTScraper/pkg/batch"
)

// Default file names, relative to Files.Dir.
const (
	DefaultBatchName   = "url_dumps.msgp"
	DefaultResultsName = "data_dumps.json"
)

// Files locates the two fixed-path files of the file protocol.
type Files struct {
	Dir         string
	BatchName   string
	ResultsName string
}

// DefaultFiles returns the default file names inside dir.
func DefaultFiles(dir string) Files {
	return Files{
		Dir:         dir,
		BatchName:   DefaultBatchName,
		ResultsName: DefaultResultsName,
	}
}

// BatchPath returns the batch file path.
func (f Files) BatchPath() string {
	return filepath.Join(f.Dir, f.BatchName)
}

// ResultsPath returns the results file path.
func (f Files) ResultsPath() string {
	return filepath.Join(f.Dir, f.ResultsName)
}

// WriteBatch atomically writes the batch file, creating Dir if needed.
func (f Files) WriteBatch(b batch.Batch) error {
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return fmt.Errorf("create handoff dir: %w", err)
	}
	if err := writeAtomic(f.BatchPath(), EncodeBatch(b)); err != nil {
		return fmt.Errorf("write batch: %w", err)
	}
	return nil
}

// ReadBatch reads and decodes the batch file.
func (f Files) ReadBatch() (batch.Batch, error) {
	data, err := os.ReadFile(f.BatchPath())
	if err != nil {
		return nil, fmt.Errorf("read batch: %w", err)
	}
	return DecodeBatch(data)
}

// WriteResults atomically writes the results file, so a poller never
// observes a partially written array.
func (f Files) WriteResults(pages []batch.Page) error {
	data, err := EncodeResults(pages)
	if err != nil {
		return err
	}
	if err := writeAtomic(f.ResultsPath(), data); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}

// ResultsExist reports whether the results file is present.
func (f Files) ResultsExist() (bool, error) {
	_, err := os.Stat(f.ResultsPath())
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// ReadResults reads the results file and checks it holds want entries.
// Every failure is an ErrHandoffCorruption.
func (f Files) ReadResults(want int) ([]batch.Page, error) {
	path := f.ResultsPath()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, corruption(StateResultsWritten, path, "results file unreadable", err)
	}

	pages, err := DecodeResults(data, want)
	if err != nil {
		return nil, corruption(StateResultsWritten, path, "results file invalid", err)
	}
	return pages, nil
}

// RemoveBatch deletes the batch file if present.
func (f Files) RemoveBatch() error {
	return removeIfExists(f.BatchPath())
}

// RemoveResults deletes the results file if present.
func (f Files) RemoveResults() error {
	return removeIfExists(f.ResultsPath())
}

// Cleanup deletes both files. Missing files are not an error.
func (f Files) Cleanup() error {
	return errors.Join(f.RemoveBatch(), f.RemoveResults())
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// writeAtomic writes data to a temp file next to path, then renames it.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
