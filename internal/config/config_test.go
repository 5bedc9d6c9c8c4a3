package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadJSONWithComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		// listen somewhere else
		"server": {"port": 9090},
		"media": [{"name": "CF32", "size": 33554432}], /* trailing */
	}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "unset fields keep defaults")
	require.Len(t, cfg.FAT32Media(), 1)
	assert.Equal(t, int64(33554432), cfg.FAT32Media()[0].Size)
}

func TestSaveAndLoad(t *testing.T) {
	for _, name := range []string{"config.json", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "sub", name)
			cfg := Default()
			cfg.Extract.Root = "/tmp/out"
			cfg.Logging.Level = "debug"
			cfg.Media = []MediaConfig{{Name: "ZIP750", Size: 750 << 20}}
			cfg.AddRecent(Recent{Format: "pc_raw", FileSystem: "fat", Path: "/disks/a.img"})
			require.NoError(t, cfg.Save(path))

			loaded, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestAddRecent(t *testing.T) {
	cfg := Default()
	for i := 0; i < 12; i++ {
		cfg.AddRecent(Recent{Format: "pc_raw", FileSystem: "fat", Path: fmt.Sprintf("/disk%d.img", i)})
	}
	require.Len(t, cfg.RecentFiles, MaxRecentFiles)
	assert.Equal(t, "pc_raw,fat,/disk11.img", cfg.RecentFiles[0])
	assert.Equal(t, "pc_raw,fat,/disk2.img", cfg.RecentFiles[MaxRecentFiles-1])

	// reopening moves the entry to the front without duplicating it
	cfg.AddRecent(Recent{Format: "imd", FileSystem: "fat", Path: "/disk5.img"})
	require.Len(t, cfg.RecentFiles, MaxRecentFiles)
	assert.Equal(t, "imd,fat,/disk5.img", cfg.RecentFiles[0])
	count := 0
	for _, r := range cfg.Recents() {
		if r.Path == "/disk5.img" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestParseRecent(t *testing.T) {
	r, err := ParseRecent("imd,fat,/a,b.imd")
	require.NoError(t, err)
	assert.Equal(t, Recent{Format: "imd", FileSystem: "fat", Path: "/a,b.imd"}, r)

	_, err = ParseRecent("imd,fat")
	assert.ErrorIs(t, err, ErrBadRecent)
	_, err = ParseRecent(",fat,/x")
	assert.ErrorIs(t, err, ErrBadRecent)
}
