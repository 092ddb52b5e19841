package reputation

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

// loadShippedSnapshot builds a snapshot from the data directory in the repo.
func loadShippedSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	ds, err := DirSource{Dir: filepath.Join("..", "data")}.Load(context.Background())
	if err != nil {
		t.Fatalf("load data dir: %v", err)
	}
	snap, err := NewSnapshot(ds)
	if err != nil {
		t.Fatalf("build snapshot: %v", err)
	}
	return snap
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
