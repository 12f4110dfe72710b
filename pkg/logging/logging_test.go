package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ontoforge/ontoforge/pkg/config"
)

func TestNew_JSONFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	log, closer, err := New(config.Logging{Level: "debug", Format: "json", File: path})
	require.NoError(t, err)

	log.Info("converted", "entities", 4)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &record))
	require.Equal(t, "converted", record["msg"])
	require.Equal(t, float64(4), record["entities"])
}

func TestNew_RotatingSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	log, closer, err := New(config.Logging{
		File:     path,
		Rotation: config.Rotation{Enabled: true, MaxMB: 1, BackupCount: 2},
	})
	require.NoError(t, err)
	log.Warn("definition near size limit")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "definition near size limit")
}

func TestNew_LevelFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	log, closer, err := New(config.Logging{Level: "error", File: path})
	require.NoError(t, err)
	log.Info("suppressed")
	log.Error("kept")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(data), "suppressed")
	require.Contains(t, string(data), "kept")
}

func TestNew_BadLevel(t *testing.T) {
	_, _, err := New(config.Logging{Level: "shout"})
	require.Error(t, err)
}
