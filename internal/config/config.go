// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kkyr/fig"
)

const (
	configEnv = "WAYBARLOCSHARE"
	configDir = "waybar-locshare"

	DefaultTextTpl          = "📍 {{floatFormat .Latitude 4}}, {{floatFormat .Longitude 4}}"
	DefaultTooltipTpl       = "{{loc \"Latitude\"}}: {{.Latitude}}, {{loc \"Longitude\"}}: {{.Longitude}}\n" +
		"{{loc \"Accuracy\"}}: {{floatFormat .Accuracy 0}} m\n" +
		"{{loc \"Last update\"}}: {{localizedTime .UpdateTime}}\n" +
		"{{loc \"Accuracy mode\"}}: {{loc .ModeLabel}}" +
		"{{if .HasPlace}}\n{{loc \"Nearby\"}}: {{.Place.Summary}}{{end}}" +
		"{{if .HasPopup}}\n\n{{.Popup.Name}}\n{{.Popup.Address}}{{end}}\n{{.MapURL}}"
	DefaultMapLoadingTpl    = "🗺️ {{loc \"Loading map...\"}}"
	DefaultMapErrorTpl      = "🗺️ {{loc \"Map failed to load\"}}: {{.Error}}"
	DefaultAcquiringTpl     = "📡 {{loc \"Acquiring position...\"}}"
	DefaultPositionErrorTpl = "⚠️ {{loc \"Error\"}}: {{.Error}}"
	DefaultNoDataTpl        = "❓ {{loc \"Position could not be determined\"}}"
)

// Mode holds the acquisition options used for one accuracy mode.
type Mode struct {
	Timeout    time.Duration `fig:"timeout"`
	MaximumAge time.Duration `fig:"maximum_age"`
}

// Config represents the application's configuration structure.
type Config struct {
	Locale      string     `fig:"locale"`
	LogLevel    slog.Level `fig:"loglevel" default:"0"`
	SecretsFile string     `fig:"secrets_file"`

	Intervals struct {
		Output  time.Duration `fig:"output" default:"30s"`
		Refresh time.Duration `fig:"refresh" default:"60s"`
	} `fig:"intervals"`

	Accuracy struct {
		High Mode `fig:"high"`
		Low  Mode `fig:"low"`
	} `fig:"accuracy"`

	Maps struct {
		// Allowed values: google, overpass, nominatim. The nominatim default is a reverse
		// geocoder, google and overpass search the nearest point of interest.
		Provider string `fig:"provider" default:"nominatim"`
		APIKey   string `fig:"apikey"`
		Zoom     int    `fig:"zoom" default:"15"`
		// Search radius in meters, only used by providers that can't rank by distance natively
		Radius int `fig:"radius" default:"500"`
	} `fig:"maps"`

	GeoLocation struct {
		File                   string `fig:"file"`
		GPSDHost               string `fig:"gpsd_host" default:"localhost"`
		GPSDPort               string `fig:"gpsd_port" default:"2947"`
		DisableGPSD            bool   `fig:"disable_gpsd"`
		DisableGeoIP           bool   `fig:"disable_geoip"`
		DisableGeolocationFile bool   `fig:"disable_geolocation_file"`
		DisableICHNAEA         bool   `fig:"disable_ichnaea"`
	} `fig:"geolocation"`

	Templates struct {
		Text          string `fig:"text"`
		Tooltip       string `fig:"tooltip"`
		MapLoading    string `fig:"map_loading"`
		MapError      string `fig:"map_error"`
		Acquiring     string `fig:"acquiring"`
		PositionError string `fig:"position_error"`
		NoData        string `fig:"no_data"`
	} `fig:"templates"`

	Metrics struct {
		Listen string `fig:"listen"`
	} `fig:"metrics"`
}

// NewFromFile loads the configuration from the given file, merged with the environment.
func NewFromFile(path, file string) (*Config, error) {
	conf := new(Config)
	_, err := os.Stat(filepath.Join(path, file))
	if err != nil {
		return conf, fmt.Errorf("failed to read Config: %w", err)
	}
	if err = loadSecrets(os.Getenv(configEnv + "_SECRETS_FILE")); err != nil {
		return conf, err
	}
	if err = fig.Load(conf, fig.Dirs(path), fig.File(file), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}
	if err = conf.applySecretsFile(); err != nil {
		return conf, err
	}

	return conf, conf.Validate()
}

// Load reads the configuration from file. If file is empty, the first config file found in
// ~/.config/waybar-locshare is used, and without one only defaults and the environment apply.
func Load(file string) (*Config, error) {
	if file == "" {
		file = defaultFile()
	}
	if file == "" {
		return New()
	}
	return NewFromFile(filepath.Dir(file), filepath.Base(file))
}

func defaultFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	for _, ext := range []string{"toml", "yaml", "yml", "json"} {
		path := filepath.Join(home, ".config", configDir, "config."+ext)
		if _, err = os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// New loads the configuration from defaults and the environment only.
func New() (*Config, error) {
	conf := new(Config)
	if err := loadSecrets(os.Getenv(configEnv + "_SECRETS_FILE")); err != nil {
		return conf, err
	}
	if err := fig.Load(conf, fig.AllowNoFile(), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}
	if err := conf.applySecretsFile(); err != nil {
		return conf, err
	}

	return conf, conf.Validate()
}

// Validate checks the configuration for invalid values and fills in defaults that can't be
// expressed as struct tags.
func (c *Config) Validate() error {
	if c.Locale == "" {
		c.Locale = getLocale()
	}
	if c.Intervals.Output <= 0 {
		return fmt.Errorf("invalid output interval: %s", c.Intervals.Output)
	}
	if c.Intervals.Refresh <= 0 {
		return fmt.Errorf("invalid refresh interval: %s", c.Intervals.Refresh)
	}

	// Duration defaults are filled here since a zero maximum age is a valid setting
	if c.Accuracy.High.Timeout == 0 {
		c.Accuracy.High.Timeout = 10 * time.Second
	}
	if c.Accuracy.Low.Timeout == 0 {
		c.Accuracy.Low.Timeout = 15 * time.Second
	}
	if c.Accuracy.Low.MaximumAge == 0 {
		c.Accuracy.Low.MaximumAge = 60 * time.Second
	}
	if c.Accuracy.High.Timeout < 0 || c.Accuracy.Low.Timeout < 0 {
		return fmt.Errorf("invalid accuracy timeout: high=%s, low=%s", c.Accuracy.High.Timeout,
			c.Accuracy.Low.Timeout)
	}
	if c.Accuracy.High.MaximumAge < 0 || c.Accuracy.Low.MaximumAge < 0 {
		return fmt.Errorf("invalid accuracy maximum age: high=%s, low=%s", c.Accuracy.High.MaximumAge,
			c.Accuracy.Low.MaximumAge)
	}

	c.Maps.Provider = strings.ToLower(c.Maps.Provider)
	switch c.Maps.Provider {
	case "google", "overpass", "nominatim":
	default:
		return fmt.Errorf("invalid maps provider: %s", c.Maps.Provider)
	}
	if c.Maps.Zoom < 1 || c.Maps.Zoom > 21 {
		return fmt.Errorf("invalid map zoom level: %d", c.Maps.Zoom)
	}
	if c.Maps.Radius < 1 || c.Maps.Radius > 50000 {
		return fmt.Errorf("invalid search radius: %d", c.Maps.Radius)
	}

	if c.Templates.Text == "" {
		c.Templates.Text = DefaultTextTpl
	}
	if c.Templates.Tooltip == "" {
		c.Templates.Tooltip = DefaultTooltipTpl
	}
	if c.Templates.MapLoading == "" {
		c.Templates.MapLoading = DefaultMapLoadingTpl
	}
	if c.Templates.MapError == "" {
		c.Templates.MapError = DefaultMapErrorTpl
	}
	if c.Templates.Acquiring == "" {
		c.Templates.Acquiring = DefaultAcquiringTpl
	}
	if c.Templates.PositionError == "" {
		c.Templates.PositionError = DefaultPositionErrorTpl
	}
	if c.Templates.NoData == "" {
		c.Templates.NoData = DefaultNoDataTpl
	}
	if c.GeoLocation.File == "" {
		home, _ := os.UserHomeDir()
		c.GeoLocation.File = filepath.Join(home, ".config", configDir, "geolocation")
	}

	return nil
}

// RequiresAPIKey reports whether the configured maps provider needs an API key.
func (c *Config) RequiresAPIKey() bool {
	return c.Maps.Provider == "google"
}

// applySecretsFile loads the secrets file named in the config itself. Since the environment has
// already been read at this point, the API key is picked up explicitly.
func (c *Config) applySecretsFile() error {
	if c.SecretsFile == "" {
		return nil
	}
	if err := loadSecrets(c.SecretsFile); err != nil {
		return err
	}
	if c.Maps.APIKey == "" {
		c.Maps.APIKey = os.Getenv(configEnv + "_MAPS_APIKEY")
	}
	return nil
}

// loadSecrets reads KEY=VALUE pairs from a dotenv file into the process environment. Variables
// that are already set are left untouched. A missing default file is not an error.
func loadSecrets(file string) error {
	explicit := file != ""
	if !explicit {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		file = filepath.Join(home, ".config", configDir, ".env")
	}
	if _, err := os.Stat(file); err != nil {
		if explicit {
			return fmt.Errorf("failed to read secrets file: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(file); err != nil {
		return fmt.Errorf("failed to load secrets file: %w", err)
	}
	return nil
}

func getLocale() string {
	locale := os.Getenv("LC_MESSAGES")
	if idx := strings.Index(locale, "."); idx != -1 {
		lang := locale[:idx]
		return strings.ReplaceAll(lang, "_", "-")
	}
	return locale
}
