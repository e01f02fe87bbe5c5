package main

import (
	"bytes"
	"context"
	"log"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixgo-ml/mixgo/internal/config"
	"github.com/mixgo-ml/mixgo/internal/runner"
)

func TestExampleConfigsBuild(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("..", "..", "configs", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			cfg, err := config.Load(path)
			require.NoError(t, err)
			r, closer, err := runner.Build(context.Background(), cfg, t.TempDir(), log.New(&bytes.Buffer{}, "", 0))
			require.NoError(t, err)
			defer closer.Close()
			assert.Positive(t, r.MaxIters())
		})
	}
}

func TestPrintConfig_Usage(t *testing.T) {
	assert.Error(t, printConfig(nil))
	assert.Error(t, printConfig([]string{filepath.Join(t.TempDir(), "missing.yaml")}))
}
