package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/Veraticus/radsort/internal/archive"
	"github.com/Veraticus/radsort/internal/common"
	"github.com/Veraticus/radsort/internal/engine"
	"github.com/Veraticus/radsort/internal/resolver"
	"github.com/spf13/viper"
)

// Configuration keys.
const (
	KeySourceDir      = "sort.source_dir"
	KeyDestinationDir = "sort.destination_dir"
	KeyMode           = "sort.mode"
	KeyDateRangeDays  = "sort.date_range_days"
	KeyLookaheadDays  = "sort.lookahead_days"
	KeyFuzzyDistance  = "sort.fuzzy_distance"
	KeySkippedReport  = "sort.skipped_report"
	KeySortSummary    = "sort.summary_file"

	KeyBaseDir        = "archive.base_dir"
	KeyZippedDir      = "archive.zipped_dir"
	KeyWorkers        = "archive.workers"
	KeyDelete         = "archive.delete"
	KeyRequireMarker  = "archive.require_marker"
	KeyMarkerExt      = "archive.marker_ext"
	KeyKeywords       = "archive.keywords"
	KeyMarkerReport   = "archive.marker_report"
	KeyArchiveSummary = "archive.summary_file"

	KeyLogLevel  = "logging.level"
	KeyLogFormat = "logging.format"
	KeyLogFile   = "logging.file"
)

// SortConfig configures the sort phase.
type SortConfig struct {
	SourceDir      string
	DestinationDir string
	Mode           engine.Mode
	SkippedReport  string // Grouped skipped-reports artifact
	SummaryFile    string // Optional YAML summary
	DateRangeDays  int
	LookaheadDays  int
	FuzzyDistance  int
}

// ArchiveConfig configures the archive phase.
type ArchiveConfig struct {
	BaseDir       string
	ZippedDir     string
	MarkerExt     string
	MarkerReport  string // Folders skipped for a missing marker
	SummaryFile   string // Optional YAML summary
	Keywords      []string
	Workers       int
	Delete        bool
	RequireMarker bool
}

// LoggingConfig configures the console and run-log handlers.
type LoggingConfig struct {
	Level  string
	Format string
	File   string
}

// Config is the fully resolved run configuration. The core packages never
// read flags, files or the environment themselves.
type Config struct {
	Logging LoggingConfig
	Sort    SortConfig
	Archive ArchiveConfig
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyMode, string(engine.ModeBasic))
	v.SetDefault(KeyDateRangeDays, resolver.DefaultDateRangeDays)
	v.SetDefault(KeyLookaheadDays, resolver.DefaultLookaheadDays)
	v.SetDefault(KeyFuzzyDistance, resolver.DefaultFuzzyDistance)
	v.SetDefault(KeySkippedReport, "skipped_reports.txt")

	v.SetDefault(KeyWorkers, runtime.NumCPU())
	v.SetDefault(KeyDelete, false)
	v.SetDefault(KeyMarkerExt, archive.DefaultOptions().MarkerExt)
	v.SetDefault(KeyMarkerReport, "missing_marker_folders.txt")

	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")
	v.SetDefault(KeyLogFile, "radsort.log")
}

// Load resolves the configuration from v. Paths are expanded; validation is
// left to the phase that needs each section.
func Load(v *viper.Viper) *Config {
	cfg := &Config{
		Sort: SortConfig{
			SourceDir:      ExpandPath(v.GetString(KeySourceDir)),
			DestinationDir: ExpandPath(v.GetString(KeyDestinationDir)),
			Mode:           engine.Mode(strings.ToLower(v.GetString(KeyMode))),
			DateRangeDays:  v.GetInt(KeyDateRangeDays),
			LookaheadDays:  v.GetInt(KeyLookaheadDays),
			FuzzyDistance:  v.GetInt(KeyFuzzyDistance),
			SkippedReport:  ExpandPath(v.GetString(KeySkippedReport)),
			SummaryFile:    ExpandPath(v.GetString(KeySortSummary)),
		},
		Archive: ArchiveConfig{
			BaseDir:      ExpandPath(v.GetString(KeyBaseDir)),
			ZippedDir:    ExpandPath(v.GetString(KeyZippedDir)),
			Workers:      v.GetInt(KeyWorkers),
			Delete:       v.GetBool(KeyDelete),
			MarkerExt:    normalizeExt(v.GetString(KeyMarkerExt)),
			Keywords:     v.GetStringSlice(KeyKeywords),
			MarkerReport: ExpandPath(v.GetString(KeyMarkerReport)),
			SummaryFile:  ExpandPath(v.GetString(KeyArchiveSummary)),
		},
		Logging: LoggingConfig{
			Level:  v.GetString(KeyLogLevel),
			Format: v.GetString(KeyLogFormat),
			File:   ExpandPath(v.GetString(KeyLogFile)),
		},
	}

	// The marker check defaults on for destructive runs.
	cfg.Archive.RequireMarker = cfg.Archive.Delete
	if v.IsSet(KeyRequireMarker) {
		cfg.Archive.RequireMarker = v.GetBool(KeyRequireMarker)
	}

	return cfg
}

// ValidateSort checks the sort section.
func (c *Config) ValidateSort() error {
	s := c.Sort
	if s.SourceDir == "" {
		return fmt.Errorf("%w: source directory (%s)", common.ErrMissingConfig, KeySourceDir)
	}
	if s.DestinationDir == "" {
		return fmt.Errorf("%w: destination directory (%s)", common.ErrMissingConfig, KeyDestinationDir)
	}
	if filepath.Clean(s.SourceDir) == filepath.Clean(s.DestinationDir) {
		return fmt.Errorf("%w: source and destination are the same directory", common.ErrInvalidConfig)
	}
	if s.Mode != engine.ModeBasic && s.Mode != engine.ModeAdvanced {
		return fmt.Errorf("%w: mode must be %q or %q, got %q",
			common.ErrInvalidConfig, engine.ModeBasic, engine.ModeAdvanced, s.Mode)
	}
	if s.DateRangeDays < 0 || s.LookaheadDays < 0 || s.FuzzyDistance < 0 {
		return fmt.Errorf("%w: date range, lookahead and fuzzy distance must not be negative", common.ErrInvalidConfig)
	}
	return nil
}

// ValidateArchive checks the archive section.
func (c *Config) ValidateArchive() error {
	a := c.Archive
	if a.BaseDir == "" {
		return fmt.Errorf("%w: base directory (%s)", common.ErrMissingConfig, KeyBaseDir)
	}
	if a.ZippedDir == "" {
		return fmt.Errorf("%w: zipped directory (%s)", common.ErrMissingConfig, KeyZippedDir)
	}
	if filepath.Clean(a.BaseDir) == filepath.Clean(a.ZippedDir) {
		return fmt.Errorf("%w: base and zipped directories are the same", common.ErrInvalidConfig)
	}
	if a.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative", common.ErrInvalidConfig)
	}
	if a.RequireMarker && a.MarkerExt == "" {
		return fmt.Errorf("%w: marker extension is empty", common.ErrInvalidConfig)
	}
	return nil
}

// ValidateLogging checks the logging section.
func (c *Config) ValidateLogging() error {
	if _, err := common.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "console", "json":
		return nil
	default:
		return fmt.Errorf("%w: invalid log format %q", common.ErrInvalidConfig, c.Logging.Format)
	}
}

// EngineConfig converts the sort section for the sort engine.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		SourceDir:      c.Sort.SourceDir,
		DestinationDir: c.Sort.DestinationDir,
		Mode:           c.Sort.Mode,
		DateRangeDays:  c.Sort.DateRangeDays,
		LookaheadDays:  c.Sort.LookaheadDays,
		FuzzyDistance:  c.Sort.FuzzyDistance,
	}
}

// ArchiveOptions converts the archive section for the archival engine.
func (c *Config) ArchiveOptions() archive.Options {
	return archive.Options{
		BaseDir:       c.Archive.BaseDir,
		ZippedDir:     c.Archive.ZippedDir,
		Workers:       c.Archive.Workers,
		Delete:        c.Archive.Delete,
		RequireMarker: c.Archive.RequireMarker,
		MarkerExt:     c.Archive.MarkerExt,
		Keywords:      c.Archive.Keywords,
	}
}

func normalizeExt(ext string) string {
	ext = strings.TrimSpace(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
