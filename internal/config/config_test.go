package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskflow/internal/task"
)

func TestLoadOrCreateWritesDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := "/home/ada/.config/taskflow/config.toml"

	cfg, err := LoadOrCreate(fs, path)
	require.NoError(t, err)

	exists, err := afero.Exists(fs, path)
	require.NoError(t, err)
	assert.True(t, exists)

	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "/home/ada/.config/taskflow/taskflow.db", cfg.DBPath)
	assert.Equal(t, "/home/ada/.config/taskflow/taskflow.log", cfg.LogFile)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "q", cfg.Keys.Quit)
	assert.Equal(t, cfg.DBPath, cfg.StoreDSN())

	f, err := cfg.Filters()
	require.NoError(t, err)
	assert.True(t, f.IsDefault())
}

func TestLoadOrCreateReadsFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := "/etc/taskflow/config.toml"
	require.NoError(t, afero.WriteFile(fs, path, []byte(`
db_path = "/var/lib/taskflow/tasks.db"
user_id = "ada"
log_level = "DEBUG"

[default_filter]
status = "todo"
priority = "High"

[keys]
quit = "x"
`), 0o644))

	cfg, err := LoadOrCreate(fs, path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/taskflow/tasks.db", cfg.DBPath)
	assert.Equal(t, "ada", cfg.UserID)
	assert.Equal(t, "x", cfg.Keys.Quit)
	assert.Equal(t, "a", cfg.Keys.Add, "missing keys fall back to defaults")
	assert.Equal(t, "L", cfg.Keys.Logout)

	f, err := cfg.Filters()
	require.NoError(t, err)
	assert.Equal(t, task.Filters{Status: task.StatusTodo, Priority: task.PriorityHigh}, f)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := "/etc/taskflow/config.toml"
	require.NoError(t, afero.WriteFile(fs, path, []byte(`user_id = "ada"`), 0o644))

	t.Setenv("TASKFLOW_USER_ID", "grace")
	t.Setenv("TASKFLOW_DB_DRIVER", "postgres")
	t.Setenv("TASKFLOW_DB_DSN", "postgres://localhost/taskflow")

	cfg, err := LoadOrCreate(fs, path)
	require.NoError(t, err)
	assert.Equal(t, "grace", cfg.UserID)
	assert.Equal(t, "postgres://localhost/taskflow", cfg.StoreDSN())
}

func TestValidateRejectsBadValues(t *testing.T) {
	fs := afero.NewMemMapFs()

	require.NoError(t, afero.WriteFile(fs, "/a.toml", []byte(`db_driver = "oracle"`), 0o644))
	_, err := LoadOrCreate(fs, "/a.toml")
	assert.Error(t, err)

	require.NoError(t, afero.WriteFile(fs, "/b.toml", []byte(`db_driver = "mysql"`), 0o644))
	_, err = LoadOrCreate(fs, "/b.toml")
	assert.ErrorContains(t, err, "db_dsn")

	require.NoError(t, afero.WriteFile(fs, "/c.toml", []byte("[default_filter]\nstatus = \"later\""), 0o644))
	_, err = LoadOrCreate(fs, "/c.toml")
	assert.Error(t, err)

	require.NoError(t, afero.WriteFile(fs, "/d.toml", []byte(`log_level = "chatty"`), 0o644))
	_, err = LoadOrCreate(fs, "/d.toml")
	assert.Error(t, err)

	require.NoError(t, afero.WriteFile(fs, "/e.toml", []byte(`db_path = [`), 0o644))
	_, err = LoadOrCreate(fs, "/e.toml")
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := defaultConfig()
	cfg.UserName = "Ada"
	require.NoError(t, Save(fs, "/x/config.toml", cfg))

	got, err := LoadOrCreate(fs, "/x/config.toml")
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.UserName)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("TASKFLOW_TEST_DOTENV=loaded\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("TASKFLOW_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), envFile))
	assert.Equal(t, "loaded", os.Getenv("TASKFLOW_TEST_DOTENV"))
}

func TestResolveConfigPathFromEnv(t *testing.T) {
	t.Setenv(EnvConfigPath, "/tmp/custom.toml")
	assert.Equal(t, "/tmp/custom.toml", ResolveConfigPath())
}
