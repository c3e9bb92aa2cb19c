package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"

	"taskflow/internal/task"
)

const (
	DefaultConfigFileName = "config.toml"
	DefaultDBName         = "taskflow.db"
	DefaultLogFileName    = "taskflow.log"

	// EnvConfigPath overrides the config file location.
	EnvConfigPath = "TASKFLOW_CONFIG"
)

type Keymap struct {
	Quit           string `toml:"quit"`
	Add            string `toml:"add"`
	Up             string `toml:"up"`
	Down           string `toml:"down"`
	Toggle         string `toml:"toggle"`
	Delete         string `toml:"delete"`
	Confirm        string `toml:"confirm"`
	Cancel         string `toml:"cancel"`
	Edit           string `toml:"edit"`
	StatusTodo     string `toml:"status_todo"`
	StatusProgress string `toml:"status_in_progress"`
	StatusDone     string `toml:"status_done"`
	FilterStatus   string `toml:"filter_status"`
	FilterPriority string `toml:"filter_priority"`
	Search         string `toml:"search"`
	ClearFilters   string `toml:"clear_filters"`
	Theme          string `toml:"theme"`
	Rename         string `toml:"rename"`
	Retry          string `toml:"retry"`
	Logout         string `toml:"logout"`
}

type Filter struct {
	Status   string `toml:"status" env:"TASKFLOW_DEFAULT_STATUS"`
	Priority string `toml:"priority" env:"TASKFLOW_DEFAULT_PRIORITY"`
}

type Config struct {
	DBDriver      string `toml:"db_driver" env:"TASKFLOW_DB_DRIVER"`
	DBPath        string `toml:"db_path" env:"TASKFLOW_DB_PATH"`
	DBDSN         string `toml:"db_dsn" env:"TASKFLOW_DB_DSN"`
	UserID        string `toml:"user_id" env:"TASKFLOW_USER_ID"`
	UserName      string `toml:"user_name" env:"TASKFLOW_USER_NAME"`
	LogLevel      string `toml:"log_level" env:"TASKFLOW_LOG_LEVEL"`
	LogFile       string `toml:"log_file" env:"TASKFLOW_LOG_FILE"`
	DefaultFilter Filter `toml:"default_filter"`
	Keys          Keymap `toml:"keys"`
}

// ResolveConfigPath returns $TASKFLOW_CONFIG, or config.toml under the
// user config directory.
func ResolveConfigPath() string {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return DefaultConfigFileName
	}
	return filepath.Join(dir, "taskflow", DefaultConfigFileName)
}

// LoadDotEnv loads the given .env files into the process environment.
// Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// LoadOrCreate reads the config at path, writing the defaults there first
// when the file does not exist. TASKFLOW_* environment variables override
// file values.
func LoadOrCreate(fsys afero.Fs, path string) (Config, error) {
	cfg := defaultConfig()
	exists, err := afero.Exists(fsys, path)
	if err != nil {
		return cfg, err
	}
	if !exists {
		if err := write(fsys, path, cfg); err != nil {
			return cfg, err
		}
	} else {
		data, err := afero.ReadFile(fsys, path)
		if err != nil {
			return cfg, err
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("read env: %w", err)
	}
	cfg.fillDefaults(path)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes cfg to path.
func Save(fsys afero.Fs, path string, cfg Config) error {
	return write(fsys, path, cfg)
}

func write(fsys afero.Fs, path string, cfg Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(fsys, path, data, 0o644)
}

// fillDefaults resolves relative file paths against the config directory.
func (c *Config) fillDefaults(path string) {
	dir := filepath.Dir(path)
	if c.DBPath == "" {
		c.DBPath = DefaultDBName
	}
	if !filepath.IsAbs(c.DBPath) && !strings.HasPrefix(c.DBPath, "file:") {
		c.DBPath = filepath.Join(dir, c.DBPath)
	}
	if c.LogFile != "" && !filepath.IsAbs(c.LogFile) {
		c.LogFile = filepath.Join(dir, c.LogFile)
	}
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	c.Keys = c.Keys.withDefaults()
}

func (c Config) Validate() error {
	switch strings.ToLower(c.DBDriver) {
	case "", "sqlite", "sqlite3":
	case "postgres", "postgresql", "pgx", "mysql":
		if c.DBDSN == "" {
			return fmt.Errorf("db_dsn is required for db_driver %q", c.DBDriver)
		}
	default:
		return fmt.Errorf("unsupported db_driver %q", c.DBDriver)
	}
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	if _, err := c.Filters(); err != nil {
		return fmt.Errorf("default_filter: %w", err)
	}
	return nil
}

// StoreDSN is the data source for the configured driver: the file path for
// SQLite, db_dsn otherwise.
func (c Config) StoreDSN() string {
	switch strings.ToLower(c.DBDriver) {
	case "", "sqlite", "sqlite3":
		return c.DBPath
	default:
		return c.DBDSN
	}
}

// Filters returns the initial list filters.
func (c Config) Filters() (task.Filters, error) {
	f := task.Filters{
		Status:   task.Status(strings.ToLower(strings.TrimSpace(c.DefaultFilter.Status))),
		Priority: task.Priority(strings.ToLower(strings.TrimSpace(c.DefaultFilter.Priority))),
	}
	if err := f.Validate(); err != nil {
		return task.DefaultFilters(), err
	}
	return f.Normalize(), nil
}

// DefaultKeymap returns the key bindings written to a new config file.
func DefaultKeymap() Keymap {
	return defaultConfig().Keys
}

func (k Keymap) withDefaults() Keymap {
	d := DefaultKeymap()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&k.Quit, d.Quit)
	fill(&k.Add, d.Add)
	fill(&k.Up, d.Up)
	fill(&k.Down, d.Down)
	fill(&k.Toggle, d.Toggle)
	fill(&k.Delete, d.Delete)
	fill(&k.Confirm, d.Confirm)
	fill(&k.Cancel, d.Cancel)
	fill(&k.Edit, d.Edit)
	fill(&k.StatusTodo, d.StatusTodo)
	fill(&k.StatusProgress, d.StatusProgress)
	fill(&k.StatusDone, d.StatusDone)
	fill(&k.FilterStatus, d.FilterStatus)
	fill(&k.FilterPriority, d.FilterPriority)
	fill(&k.Search, d.Search)
	fill(&k.ClearFilters, d.ClearFilters)
	fill(&k.Theme, d.Theme)
	fill(&k.Rename, d.Rename)
	fill(&k.Retry, d.Retry)
	fill(&k.Logout, d.Logout)
	return k
}

func defaultConfig() Config {
	return Config{
		DBDriver: "sqlite",
		DBPath:   DefaultDBName,
		LogLevel: "INFO",
		LogFile:  DefaultLogFileName,
		DefaultFilter: Filter{
			Status:   string(task.StatusAll),
			Priority: string(task.PriorityAll),
		},
		Keys: Keymap{
			Quit:           "q",
			Add:            "a",
			Up:             "k",
			Down:           "j",
			Toggle:         " ",
			Delete:         "d",
			Confirm:        "enter",
			Cancel:         "esc",
			Edit:           "e",
			StatusTodo:     "1",
			StatusProgress: "2",
			StatusDone:     "3",
			FilterStatus:   "s",
			FilterPriority: "p",
			Search:         "/",
			ClearFilters:   "c",
			Theme:          "t",
			Rename:         "n",
			Retry:          "r",
			Logout:         "L",
		},
	}
}
