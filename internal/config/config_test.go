package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hfarhat1982/gestion-tournee/internal/logging"
	"github.com/hfarhat1982/gestion-tournee/internal/orders"
)

func env(vars map[string]string) func(string) string {
	return func(key string) string {
		return vars[key]
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(env(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 5, cfg.SlotCapacity)
	assert.Equal(t, orders.PolicyProceed, cfg.SlotPolicy)
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := Load(env(map[string]string{
		EnvDBPath:          "/tmp/palette.db",
		EnvAddr:            "127.0.0.1:9090",
		EnvLogLevel:        "DEBUG",
		EnvLogFormat:       "Text",
		EnvSlotCapacity:    "8",
		EnvSlotPolicy:      "reject",
		EnvAdminToken:      " root-token ",
		EnvShutdownTimeout: "3s",
	}))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/palette.db", cfg.DBPath)
	assert.Equal(t, "127.0.0.1:9090", cfg.Addr)
	assert.Equal(t, logging.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 8, cfg.SlotCapacity)
	assert.Equal(t, orders.PolicyReject, cfg.SlotPolicy)
	assert.Equal(t, "root-token", cfg.AdminToken)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"capacity not a number": {EnvSlotCapacity: "five"},
		"negative capacity":     {EnvSlotCapacity: "-1"},
		"unknown policy":        {EnvSlotPolicy: "retry"},
		"bad format":            {EnvLogFormat: "xml"},
		"bad addr":              {EnvAddr: "localhost"},
		"port out of range":     {EnvAddr: ":70000"},
		"bad timeout":           {EnvShutdownTimeout: "soon"},
	}
	for name, vars := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(env(vars))
			assert.Error(t, err)
		})
	}
}

func TestResolveDBPath(t *testing.T) {
	path, err := ResolveDBPath(":memory:")
	require.NoError(t, err)
	assert.Equal(t, ":memory:", path)

	dir := t.TempDir()
	target := filepath.Join(dir, "nested", "palette.db")
	path, err = ResolveDBPath(target)
	require.NoError(t, err)
	assert.Equal(t, target, path)
	info, err := os.Stat(filepath.Dir(target))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	t.Setenv("HOME", dir)
	path, err = ResolveDBPath("~/data/palette.db")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "data", "palette.db"), path)
}
