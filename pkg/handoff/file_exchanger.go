package handoff

import (
	"context"
	"fmt"
	"time"

	"github.com/asdfghjkxd/NFTScraper/pkg/batch"
	"github.com/asdfghjkxd/NFTScraper/pkg/logging"
	"github.com/rs/zerolog"
)

// FileExchanger is the originator side of the file protocol: write the
// batch file, start the dispatcher process, poll for the results file,
// read it once and delete both files.
type FileExchanger struct {
	files    Files
	launcher Launcher
	poll     PollConfig
	logger   zerolog.Logger
}

// NewFileExchanger creates a file-protocol exchanger.
func NewFileExchanger(files Files, launcher Launcher, poll PollConfig) (*FileExchanger, error) {
	if files.Dir == "" || files.BatchName == "" || files.ResultsName == "" {
		return nil, fmt.Errorf("handoff files must name a directory, batch file and results file")
	}
	if launcher == nil {
		return nil, fmt.Errorf("launcher is required")
	}

	return &FileExchanger{
		files:    files,
		launcher: launcher,
		poll:     poll.withDefaults(),
		logger:   logging.NewLogger("handoff").With().Str("transport", "file").Logger(),
	}, nil
}

// SetLogger replaces the exchanger logger.
func (x *FileExchanger) SetLogger(logger zerolog.Logger) {
	x.logger = logger
}

// Exchange runs one batch through the dispatcher process.
func (x *FileExchanger) Exchange(ctx context.Context, b batch.Batch) ([]batch.Page, error) {
	start := time.Now()
	state := StateNoFile

	// A results file left by an earlier crashed run must never be consumed.
	if err := x.files.RemoveResults(); err != nil {
		return nil, fmt.Errorf("remove stale results: %w", err)
	}

	if err := x.files.WriteBatch(b); err != nil {
		return nil, err
	}
	state = x.transition(state, StateBatchWritten)

	if err := x.launcher.Launch(ctx, x.files); err != nil {
		x.files.RemoveBatch()
		handoffExchangesTotal.WithLabelValues("file", "launch").Inc()
		return nil, &Error{Kind: KindLaunch, State: state, Message: "could not start dispatcher", Err: err}
	}
	state = x.transition(state, StateLaunched)

	found, err := x.poll.poll(ctx, "file", x.files.ResultsExist)
	if err != nil {
		x.files.RemoveBatch()
		return nil, fmt.Errorf("poll results: %w", err)
	}
	if !found {
		x.files.RemoveBatch()
		handoffExchangesTotal.WithLabelValues("file", "timeout").Inc()
		x.logger.Error().
			Int("max_polls", x.poll.MaxPolls).
			Dur("interval", x.poll.Interval).
			Str("path", x.files.ResultsPath()).
			Msg("Timed out waiting for results file")
		return nil, &Error{
			Kind:    KindBatchTimeout,
			State:   state,
			Path:    x.files.ResultsPath(),
			Message: fmt.Sprintf("no results after %d polls", x.poll.MaxPolls),
		}
	}
	state = x.transition(state, StateResultsWritten)

	pages, err := x.files.ReadResults(len(b))
	if err != nil {
		// The corrupt results file stays in place for inspection.
		x.files.RemoveBatch()
		handoffExchangesTotal.WithLabelValues("file", "corruption").Inc()
		x.logger.Error().Err(err).Msg("Results file corrupt")
		return nil, err
	}

	if err := x.files.Cleanup(); err != nil {
		x.logger.Warn().Err(err).Msg("Failed to remove handoff files")
	}
	state = x.transition(state, StateConsumed)
	x.transition(state, StateNoFile)

	elapsed := time.Since(start)
	handoffExchangesTotal.WithLabelValues("file", "ok").Inc()
	handoffDuration.WithLabelValues("file").Observe(elapsed.Seconds())
	x.logger.Info().
		Int("urls", len(b)).
		Int("null_pages", batch.CountNull(pages)).
		Dur("duration", elapsed).
		Msg("Handoff complete")

	return pages, nil
}

func (x *FileExchanger) transition(from, to State) State {
	x.logger.Debug().
		Stringer("from", from).
		Stringer("to", to).
		Msg("Handoff state change")
	return to
}
