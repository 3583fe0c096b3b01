package cmd

import (
	"fmt"

	"github.com/reelflow/reelflow/internal/executor"
	"github.com/reelflow/reelflow/internal/runner"
	"github.com/reelflow/reelflow/internal/services/compose"
	"github.com/reelflow/reelflow/internal/services/imagegen"
	"github.com/reelflow/reelflow/internal/services/speech"
	"github.com/reelflow/reelflow/internal/services/videogen"
	"github.com/reelflow/reelflow/internal/store"
)

const defaultDBPath = "reelflow.db"

// openStore opens the SQLite store at the given path.
func openStore(path string) (store.Store, error) {
	if path == "" {
		path = defaultDBPath
	}
	st, err := store.OpenSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", path, err)
	}
	return st, nil
}

// buildExecutor wires the backend clients, stage runners, and store
// into an executor. Backend API keys come from the environment.
func buildExecutor(st store.Store, formats []runner.ExportFormat, concurrency int) (*executor.Executor, error) {
	imageSvc, err := imagegen.New()
	if err != nil {
		return nil, err
	}
	videoSvc, err := videogen.New()
	if err != nil {
		return nil, err
	}
	speechSvc, err := speech.New()
	if err != nil {
		return nil, err
	}

	runners := []runner.StageRunner{
		runner.NewKeyframeRunner(imageSvc),
		runner.NewClipRunner(videoSvc),
		runner.NewAudioRunner(speechSvc),
		runner.NewCompositionRunner(compose.New(), formats),
	}
	return executor.New(st, runners, executor.Options{
		Concurrency: concurrency,
		Sink:        executor.LogSink,
	})
}
