// Package config loads squire settings from a YAML file with SQUIRE_ environment overrides.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no --config flag or SQUIRE_CONFIG is given
const DefaultPath = "/etc/squired/squired.yaml"

// EnvPrefix prefixes every environment override
const EnvPrefix = "SQUIRE_"

// ErrInvalid is wrapped by every validation failure
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Catalog   CatalogConfig   `yaml:"catalog" envPrefix:"CATALOG_"`
	Locations LocationsConfig `yaml:"locations" envPrefix:"LOCATIONS_"`
	Output    OutputConfig    `yaml:"output" envPrefix:"OUTPUT_"`
	Daemon    DaemonConfig    `yaml:"daemon" envPrefix:"DAEMON_"`
	Publish   PublishConfig   `yaml:"publish" envPrefix:"PUBLISH_"`
	Mail      MailConfig      `yaml:"mail" envPrefix:"MAIL_"`
	Stats     StatsConfig     `yaml:"stats" envPrefix:"STATS_"`
	Ledger    LedgerConfig    `yaml:"ledger" envPrefix:"LEDGER_"`
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
}

// CatalogConfig locates the WebPAC server and tunes availability lookups
type CatalogConfig struct {
	Host              string        `yaml:"host" env:"HOST"`
	Port              int           `yaml:"port" env:"PORT"`
	Timeout           time.Duration `yaml:"timeout" env:"TIMEOUT"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`

	// Enrichment only counts items whose location contains LocationFilter.
	LocationFilter         string `yaml:"location_filter" env:"LOCATION_FILTER"`
	FilterByRecordLocation bool   `yaml:"filter_by_record_location" env:"FILTER_BY_RECORD_LOCATION"`
	FavorLiveData          bool   `yaml:"favor_live_data" env:"FAVOR_LIVE_DATA"`
}

// LocationsConfig names the branches and sub-locations that open a record header
type LocationsConfig struct {
	Branches         []string `yaml:"branches" env:"BRANCHES" envSeparator:","`
	Sublocations     []string `yaml:"sublocations" env:"SUBLOCATIONS" envSeparator:","`
	Suffixes         []string `yaml:"suffixes" env:"SUFFIXES" envSeparator:","`
	BranchesFile     string   `yaml:"branches_file" env:"BRANCHES_FILE"`
	SublocationsFile string   `yaml:"sublocations_file" env:"SUBLOCATIONS_FILE"`
}

type OutputConfig struct {
	Dir                   string `yaml:"dir" env:"DIR"`
	IncludeLocation       bool   `yaml:"include_location" env:"INCLUDE_LOCATION"`
	IncludePublishing     bool   `yaml:"include_publishing" env:"INCLUDE_PUBLISHING"`
	IncludePickupLocation bool   `yaml:"include_pickup_location" env:"INCLUDE_PICKUP_LOCATION"`
	WriteBOM              bool   `yaml:"write_bom" env:"WRITE_BOM"`
	// Go time layout appended to output names and correlation keys
	TimestampFormat string `yaml:"timestamp_format" env:"TIMESTAMP_FORMAT"`
	TimestampActive bool   `yaml:"timestamp_active" env:"TIMESTAMP_ACTIVE"`
}

type DaemonConfig struct {
	DropDir         string        `yaml:"drop_dir" env:"DROP_DIR"`
	ArchiveDir      string        `yaml:"archive_dir" env:"ARCHIVE_DIR"`
	PidFile         string        `yaml:"pid_file" env:"PID_FILE"`
	TitleExt        string        `yaml:"title_ext" env:"TITLE_EXT"`
	ItemExt         string        `yaml:"item_ext" env:"ITEM_EXT"`
	IgnoreDotfiles  bool          `yaml:"ignore_dotfiles" env:"IGNORE_DOTFILES"`
	ItemListTimeout time.Duration `yaml:"item_list_timeout" env:"ITEM_LIST_TIMEOUT"`
	StaleAfter      time.Duration `yaml:"stale_after" env:"STALE_AFTER"`
	PollInterval    time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	// ParseCommand runs title parses; empty means this executable
	ParseCommand string `yaml:"parse_command" env:"PARSE_COMMAND"`
}

type PublishConfig struct {
	XSLTProc        string `yaml:"xsltproc" env:"XSLTPROC"`
	TitleStylesheet string `yaml:"title_stylesheet" env:"TITLE_STYLESHEET"`
	ItemStylesheet  string `yaml:"item_stylesheet" env:"ITEM_STYLESHEET"`
	ListsDir        string `yaml:"lists_dir" env:"LISTS_DIR"`
	ListsURL        string `yaml:"lists_url" env:"LISTS_URL"`
}

type MailConfig struct {
	Enabled        bool   `yaml:"enabled" env:"ENABLED"`
	Host           string `yaml:"host" env:"HOST"`
	Port           int    `yaml:"port" env:"PORT"`
	From           string `yaml:"from" env:"FROM"`
	RecipientsFile string `yaml:"recipients_file" env:"RECIPIENTS_FILE"`
	HelpDeskEmail  string `yaml:"help_desk_email" env:"HELP_DESK_EMAIL"`
	HelpDeskPhone  string `yaml:"help_desk_phone" env:"HELP_DESK_PHONE"`
}

type StatsConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Addr    string `yaml:"addr" env:"ADDR"`
	DB      int    `yaml:"db" env:"DB"`
	Key     string `yaml:"key" env:"KEY"`
}

type LedgerConfig struct {
	Path string `yaml:"path" env:"PATH"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
	File   string `yaml:"file" env:"FILE"`
}

// Default returns the settings used when a key is absent from both file and environment
func Default() *Config {
	return &Config{
		Catalog: CatalogConfig{
			Host:                   "catalog.yourlibrary.org",
			Port:                   80,
			Timeout:                10 * time.Second,
			RequestsPerSecond:      5,
			FilterByRecordLocation: true,
		},
		Locations: LocationsConfig{
			Suffixes:         []string{"New"},
			BranchesFile:     "/etc/squired/locations.cfg",
			SublocationsFile: "/etc/squired/sublocations.cfg",
		},
		Output: OutputConfig{
			Dir:             "/var/lib/squired/output",
			WriteBOM:        true,
			TimestampFormat: "2006-01-02",
			TimestampActive: true,
		},
		Daemon: DaemonConfig{
			DropDir:         "/iiidb/circ/autonotices",
			ArchiveDir:      "/var/lib/squired/archive",
			PidFile:         "/var/run/squired/squired.pid",
			TitleExt:        ".paginglist",
			ItemExt:         ".itemlist",
			IgnoreDotfiles:  true,
			ItemListTimeout: 15 * time.Minute,
			StaleAfter:      24 * time.Hour,
			PollInterval:    time.Second,
		},
		Publish: PublishConfig{
			XSLTProc:        "/usr/bin/xsltproc",
			TitleStylesheet: "/etc/squired/squiret2xhtml.xsl",
			ItemStylesheet:  "/etc/squired/squirei2xhtml.xsl",
			ListsDir:        "/var/www/html",
			ListsURL:        "http://catalog.yourlibrary.org:8000",
		},
		Mail: MailConfig{
			Host:           "localhost",
			Port:           25,
			From:           "squired@catalog.yourlibrary.org",
			RecipientsFile: "/etc/squired/locationemails.cfg",
		},
		Stats: StatsConfig{
			Addr: "localhost:6379",
			Key:  "squire:paging_counts",
		},
		Ledger: LedgerConfig{
			Path: "/var/lib/squired/ledger.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// A missing file is not an error when path is the default location.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && path == DefaultPath:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings every command depends on
func (c *Config) Validate() error {
	var problems []string

	if c.Catalog.Host == "" {
		problems = append(problems, "catalog.host is required")
	}
	if c.Catalog.Port <= 0 || c.Catalog.Port > 65535 {
		problems = append(problems, fmt.Sprintf("catalog.port %d out of range", c.Catalog.Port))
	}
	if c.Output.TimestampFormat == "" {
		problems = append(problems, "output.timestamp_format is required")
	}
	if c.Daemon.TitleExt == "" || c.Daemon.ItemExt == "" {
		problems = append(problems, "daemon.title_ext and daemon.item_ext are required")
	}
	if c.Daemon.TitleExt == c.Daemon.ItemExt {
		problems = append(problems, "daemon.title_ext and daemon.item_ext must differ")
	}
	if c.Daemon.ItemListTimeout <= 0 {
		problems = append(problems, "daemon.item_list_timeout must be positive")
	}
	if c.Daemon.StaleAfter <= 0 {
		problems = append(problems, "daemon.stale_after must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// Names returns the configured branches and sub-locations, inline entries first,
// followed by the contents of the name files that exist.
func (l LocationsConfig) Names() (branches, sublocations []string, err error) {
	branches, err = mergeNames(l.Branches, l.BranchesFile)
	if err != nil {
		return nil, nil, err
	}
	sublocations, err = mergeNames(l.Sublocations, l.SublocationsFile)
	if err != nil {
		return nil, nil, err
	}
	return branches, sublocations, nil
}

func mergeNames(inline []string, path string) ([]string, error) {
	names := append([]string(nil), inline...)
	if path == "" {
		return names, nil
	}

	fromFile, err := ReadNames(path)
	if errors.Is(err, os.ErrNotExist) {
		return names, nil
	}
	if err != nil {
		return nil, err
	}
	return append(names, fromFile...), nil
}

// ReadNames reads one name per line, skipping blanks and # comments
func ReadNames(path string) ([]string, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open names file: %w", err)
	}
	defer file.Close()

	var names []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read names file %s: %w", path, err)
	}
	return names, nil
}
