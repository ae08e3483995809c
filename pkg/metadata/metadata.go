// Package metadata reads and writes the meta.ini record kept next to an
// installed mod.
package metadata

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
)

func init() {
	ini.PrettyFormat = false
}

const (
	FileName = "meta.ini"
	section  = "General"
)

// ModInfo describes where an installed mod came from. ID is -1 when the
// mod has no known repository id.
type ModInfo struct {
	Name             string
	ID               int
	Version          string
	Author           string
	URL              string
	InstallationFile string
	Settings         string
	Installed        time.Time
}

func Write(dir string, mi *ModInfo) error {
	cfg := ini.Empty()

	sec, err := cfg.NewSection(section)
	if err != nil {
		return err
	}

	set := func(k, v string) {
		sec.Key(k).SetValue(v)
	}

	set("modName", mi.Name)
	set("modid", strconv.Itoa(mi.ID))
	set("version", mi.Version)
	set("author", mi.Author)
	set("url", mi.URL)

	if mi.URL != "" {
		set("hasCustomURL", "true")
	} else {
		set("hasCustomURL", "false")
	}

	set("installationFile", mi.InstallationFile)
	set("installedSettings", mi.Settings)

	if !mi.Installed.IsZero() {
		set("installDate", mi.Installed.UTC().Format(time.RFC3339))
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return errors.Wrapf(cfg.SaveTo(filepath.Join(dir, FileName)), "writing %s", FileName)
}

func Read(dir string) (*ModInfo, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{Insensitive: true}, filepath.Join(dir, FileName))
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", FileName)
	}

	sec := cfg.Section(section)

	mi := &ModInfo{
		Name:             sec.Key("modName").String(),
		ID:               sec.Key("modid").MustInt(-1),
		Version:          sec.Key("version").String(),
		Author:           sec.Key("author").String(),
		URL:              sec.Key("url").String(),
		InstallationFile: sec.Key("installationFile").String(),
		Settings:         sec.Key("installedSettings").String(),
	}

	if ts := sec.Key("installDate").String(); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			mi.Installed = t
		}
	}

	return mi, nil
}
