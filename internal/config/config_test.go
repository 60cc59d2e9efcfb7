package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Load default config when no config file is present", func(t *testing.T) {
		os.Setenv("DATABASE_DRIVER", "memory")
		defer os.Unsetenv("DATABASE_DRIVER")

		cfg, err := LoadConfig(t.TempDir())
		assert.NoError(t, err)
		assert.NotNil(t, cfg)

		assert.Equal(t, "memory", cfg.Database.Driver)
		assert.Equal(t, "catalog", cfg.Database.Name)

		assert.Equal(t, ".", cfg.Import.Dir)
		assert.Equal(t, "", cfg.Import.Schedule)
		assert.Equal(t, 30*time.Minute, cfg.Import.ScheduleTimeout)
		assert.Equal(t, "b", cfg.Import.ItemTypePrefixes["book"])
		assert.Equal(t, "p", cfg.Import.ItemTypePrefixes["periodical"])

		assert.Equal(t, "info", cfg.Logger.Level)
		assert.Equal(t, "json", cfg.Logger.Encoding)

		assert.False(t, cfg.Metrics.Enabled)
		assert.Equal(t, 9090, cfg.Metrics.Port)
		assert.Equal(t, "/metrics", cfg.Metrics.Path)
	})

	t.Run("Config file overrides defaults", func(t *testing.T) {
		dir := t.TempDir()
		content := []byte("database:\n  driver: mongodb\nimport:\n  dir: /data/export\n  itemTypePrefixes:\n    book: bk\n")
		assert.NoError(t, os.WriteFile(dir+"/config.yml", content, 0644))

		cfg, err := LoadConfig(dir)
		assert.NoError(t, err)
		assert.Equal(t, "mongodb", cfg.Database.Driver)
		assert.Equal(t, "/data/export", cfg.Import.Dir)
		assert.Equal(t, "bk", cfg.Import.ItemTypePrefixes["book"])
	})
}
