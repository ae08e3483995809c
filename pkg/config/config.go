package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
	"lab47.dev/fomod/pkg/fomod"
)

type Config struct {
	path      string
	configDir string

	// Actual Config
	DataDir    string `yaml:"data-dir"`
	ModsDir    string `yaml:"mods-dir"`
	StagingDir string `yaml:"staging-dir"`

	GameData      []string `yaml:"game-data"`
	PluginsFile   string   `yaml:"plugins-file"`
	IniFiles      []string `yaml:"ini-files"`
	ProfileDir    string   `yaml:"profile-dir"`
	DocumentsDir  string   `yaml:"documents-dir"`
	LocalSettings bool     `yaml:"local-settings"`

	AppVersion      string `yaml:"app-version"`
	GameVersion     string `yaml:"game-version"`
	ExtenderVersion string `yaml:"script-extender-version"`

	// ScriptPackages overrides the standard packages scripts may import.
	ScriptPackages []string `yaml:"script-packages"`
}

const (
	DefaultConfigPath = "~/.config/fomod/config.yaml"
	DefaultDataDir    = "~/.local/share/fomod"
	DefaultAppVersion = "2.4.4"
)

var DefaultIniFiles = []string{"Fallout.ini", "FalloutPrefs.ini"}

func LoadConfig() (*Config, error) {
	if loc := os.Getenv("FOMOD_CONFIG"); loc != "" {
		return loadFile(loc)
	}

	path, err := homedir.Expand(DefaultConfigPath)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); err == nil {
		return loadFile(path)
	}

	cfg := &Config{
		path:      path,
		configDir: filepath.Dir(path),
	}

	if err := cfg.fillDefaults(); err != nil {
		return nil, err
	}

	return updateFromEnv(cfg)
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config

	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}

	cfg.path = path
	cfg.configDir = filepath.Dir(path)

	if err := cfg.fillDefaults(); err != nil {
		return nil, err
	}

	return updateFromEnv(&cfg)
}

func expandAll(paths ...*string) error {
	for _, p := range paths {
		if *p == "" {
			continue
		}

		x, err := homedir.Expand(*p)
		if err != nil {
			return err
		}

		*p = x
	}

	return nil
}

func (c *Config) fillDefaults() error {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}

	if err := expandAll(&c.DataDir, &c.ModsDir, &c.StagingDir, &c.PluginsFile, &c.ProfileDir, &c.DocumentsDir); err != nil {
		return err
	}

	for i := range c.GameData {
		if err := expandAll(&c.GameData[i]); err != nil {
			return err
		}
	}

	if c.ModsDir == "" {
		c.ModsDir = filepath.Join(c.DataDir, "mods")
	}

	if c.StagingDir == "" {
		c.StagingDir = filepath.Join(c.DataDir, "staging")
	}

	if c.ProfileDir == "" {
		c.ProfileDir = filepath.Join(c.DataDir, "profile")
	}

	if c.DocumentsDir == "" {
		c.DocumentsDir = c.ProfileDir
	}

	if c.PluginsFile == "" {
		c.PluginsFile = filepath.Join(c.ProfileDir, "plugins.txt")
	}

	if len(c.IniFiles) == 0 {
		c.IniFiles = DefaultIniFiles
	}

	if c.AppVersion == "" {
		c.AppVersion = DefaultAppVersion
	}

	return nil
}

func updateFromEnv(cfg *Config) (*Config, error) {
	if path := os.Getenv("FOMOD_DATA_DIR"); path != "" {
		fi, err := os.Stat(path)
		if err != nil {
			return nil, err
		}

		if !fi.IsDir() {
			return nil, fmt.Errorf("path is not a directory: %s", path)
		}

		cfg.DataDir = path
	}

	if path := os.Getenv("FOMOD_MODS_DIR"); path != "" {
		cfg.ModsDir = path
	}

	if path := os.Getenv("FOMOD_GAME_DATA"); path != "" {
		cfg.GameData = strings.Split(path, string(os.PathListSeparator))
	}

	if path := os.Getenv("FOMOD_PROFILE_DIR"); path != "" {
		cfg.ProfileDir = path
	}

	if path := os.Getenv("FOMOD_DOCUMENTS_DIR"); path != "" {
		cfg.DocumentsDir = path
	}

	if ver := os.Getenv("FOMOD_GAME_VERSION"); ver != "" {
		cfg.GameVersion = ver
	}

	return ensureDirs(cfg)
}

func ensureDirs(cfg *Config) (*Config, error) {
	dirs := []string{
		cfg.DataDir,
		cfg.ModsDir,
		cfg.StagingDir,
	}

	for _, dir := range dirs {
		fi, err := os.Stat(dir)
		if err != nil {
			if os.IsNotExist(err) {
				err = os.MkdirAll(dir, 0755)
				if err != nil {
					return nil, err
				}
			}
		} else if !fi.IsDir() {
			return nil, fmt.Errorf("path is not a directory: %s", dir)
		}
	}

	return cfg, nil
}

// Path is the file the configuration was read from, or would be.
func (c *Config) Path() string {
	return c.path
}

// LockPath serializes installations across processes.
func (c *Config) LockPath() string {
	return filepath.Join(c.DataDir, "install.lock")
}

func (c *Config) Versions() (app, game fomod.Version, extender *fomod.Version) {
	app = fomod.ParseVersion(c.AppVersion)
	game = fomod.ParseVersion(c.GameVersion)

	if c.ExtenderVersion != "" {
		v := fomod.ParseVersion(c.ExtenderVersion)
		extender = &v
	}

	return app, game, extender
}

// Save writes the configuration back in YAML.
func (c *Config) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(c.configDir, 0755); err != nil {
		return err
	}

	return os.WriteFile(c.path, data, 0644)
}
