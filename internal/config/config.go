package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	Port            string
	LogLevel        slog.Level
	TempDir         string
	Extractor       string
	YtdlpInstall    bool
	MergeFormat     string
	JobTTL          time.Duration
	SweepInterval   time.Duration
	ShutdownTimeout time.Duration
}

const (
	ExtractorYtdlp   = "ytdlp"
	ExtractorYoutube = "youtube"
	ExtractorDirect  = "direct"
)

// fileConfig mirrors Config for the optional TOML file. Durations are kept as
// strings ("90s", "1h") so the file reads the same as the environment.
type fileConfig struct {
	Port            string `toml:"port"`
	LogLevel        string `toml:"log_level"`
	TempDir         string `toml:"temp_dir"`
	Extractor       string `toml:"extractor"`
	YtdlpInstall    *bool  `toml:"ytdlp_install"`
	MergeFormat     string `toml:"merge_format"`
	JobTTL          string `toml:"job_ttl"`
	SweepInterval   string `toml:"sweep_interval"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
}

func Default() Config {
	return Config{
		Port:            "8000",
		LogLevel:        slog.LevelInfo,
		TempDir:         os.TempDir(),
		Extractor:       ExtractorYtdlp,
		MergeFormat:     "mp4",
		JobTTL:          time.Hour,
		SweepInterval:   5 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
	}
}

// LoadConfig builds the configuration from defaults, a .env file in the
// working directory, the TOML file named by CONFIG_FILE and finally the
// process environment. Later sources win.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		var fc fileConfig
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
		if err := cfg.apply(fc.values()); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
	}

	if err := cfg.apply(envValues()); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (fc fileConfig) values() map[string]string {
	v := map[string]string{
		"PORT":             fc.Port,
		"LOG_LEVEL":        fc.LogLevel,
		"TEMP_DIR":         fc.TempDir,
		"EXTRACTOR":        fc.Extractor,
		"MERGE_FORMAT":     fc.MergeFormat,
		"JOB_TTL":          fc.JobTTL,
		"SWEEP_INTERVAL":   fc.SweepInterval,
		"SHUTDOWN_TIMEOUT": fc.ShutdownTimeout,
	}
	if fc.YtdlpInstall != nil {
		v["YTDLP_INSTALL"] = strconv.FormatBool(*fc.YtdlpInstall)
	}
	return v
}

var keys = []string{
	"PORT", "LOG_LEVEL", "TEMP_DIR", "EXTRACTOR", "YTDLP_INSTALL",
	"MERGE_FORMAT", "JOB_TTL", "SWEEP_INTERVAL", "SHUTDOWN_TIMEOUT",
}

func envValues() map[string]string {
	v := make(map[string]string, len(keys))
	for _, k := range keys {
		v[k] = os.Getenv(k)
	}
	return v
}

// apply overwrites fields for every non-empty value.
func (c *Config) apply(v map[string]string) error {
	var err error
	if s := v["PORT"]; s != "" {
		c.Port = s
	}
	if s := v["LOG_LEVEL"]; s != "" {
		c.LogLevel = parseLevel(s)
	}
	if s := v["TEMP_DIR"]; s != "" {
		c.TempDir = s
	}
	if s := v["EXTRACTOR"]; s != "" {
		c.Extractor = strings.ToLower(s)
	}
	if s := v["YTDLP_INSTALL"]; s != "" {
		if c.YtdlpInstall, err = strconv.ParseBool(s); err != nil {
			return fmt.Errorf("YTDLP_INSTALL: %w", err)
		}
	}
	if s := v["MERGE_FORMAT"]; s != "" {
		c.MergeFormat = s
	}
	if s := v["JOB_TTL"]; s != "" {
		if c.JobTTL, err = parseDuration(s); err != nil {
			return fmt.Errorf("JOB_TTL: %w", err)
		}
	}
	if s := v["SWEEP_INTERVAL"]; s != "" {
		if c.SweepInterval, err = parseDuration(s); err != nil {
			return fmt.Errorf("SWEEP_INTERVAL: %w", err)
		}
	}
	if s := v["SHUTDOWN_TIMEOUT"]; s != "" {
		if c.ShutdownTimeout, err = parseDuration(s); err != nil {
			return fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err)
		}
	}
	return nil
}

func (c Config) validate() error {
	switch c.Extractor {
	case ExtractorYtdlp, ExtractorYoutube, ExtractorDirect:
	default:
		return fmt.Errorf("unknown EXTRACTOR %q (want ytdlp, youtube or direct)", c.Extractor)
	}
	if c.JobTTL < 0 {
		return errors.New("JOB_TTL must not be negative")
	}
	return nil
}

// parseDuration accepts Go durations and bare seconds ("0" disables).
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

func parseLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
