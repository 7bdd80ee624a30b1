package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Dispatch modes
const (
	ModeSequential = "sequential"
	ModeConcurrent = "concurrent"
)

// Output formats
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// DefaultMaxData is the body size ceiling used when none is configured.
const DefaultMaxData = 1000

// ErrInvalidMaxData indicates a malformed or too small max-data value.
var ErrInvalidMaxData = errors.New("invalid max-data")

// Config application configuration structure
type Config struct {
	Request   RequestConfig   `yaml:"request" mapstructure:"request"`
	Report    ReportConfig    `yaml:"report" mapstructure:"report"`
	Dispatch  DispatchConfig  `yaml:"dispatch" mapstructure:"dispatch"`
	Transport TransportConfig `yaml:"transport" mapstructure:"transport"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Storage   StorageConfig   `yaml:"storage" mapstructure:"storage"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// RequestConfig describes the request template. Headers, Data and List accept "@file" references.
type RequestConfig struct {
	Method  string `yaml:"method" mapstructure:"method"`
	Tweak   string `yaml:"tweak" mapstructure:"tweak"`
	Headers string `yaml:"headers" mapstructure:"headers"`
	Data    string `yaml:"data" mapstructure:"data"`
	List    string `yaml:"list" mapstructure:"list"`
}

// ReportConfig differential report configuration
type ReportConfig struct {
	IgnoreHeaders string `yaml:"ignore_headers" mapstructure:"ignore_headers"`
	// MaxData is "<number>B" or "<number>KB"; bodies of at least this size are not previewed.
	MaxData      string `yaml:"max_data" mapstructure:"max_data"`
	MaxDataBytes int    `yaml:"-" mapstructure:"-"`
	Quiet        bool   `yaml:"quiet" mapstructure:"quiet"`
}

// DispatchConfig scheduling configuration
type DispatchConfig struct {
	Mode string `yaml:"mode" mapstructure:"mode"`
	// MaxConcurrent caps in-flight requests in concurrent mode; 0 means unbounded.
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// TransportConfig HTTP client configuration
type TransportConfig struct {
	Timeout               int  `yaml:"timeout" mapstructure:"timeout"`
	Insecure              bool `yaml:"insecure" mapstructure:"insecure"`
	DecodeBody            bool `yaml:"decode_body" mapstructure:"decode_body"`
	MaxIdleConns          int  `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost   int  `yaml:"max_idle_conns_per_host" mapstructure:"max_idle_conns_per_host"`
	MaxConnsPerHost       int  `yaml:"max_conns_per_host" mapstructure:"max_conns_per_host"`
	IdleConnTimeout       int  `yaml:"idle_conn_timeout" mapstructure:"idle_conn_timeout"`
	TLSHandshakeTimeout   int  `yaml:"tls_handshake_timeout" mapstructure:"tls_handshake_timeout"`
	ExpectContinueTimeout int  `yaml:"expect_continue_timeout" mapstructure:"expect_continue_timeout"`
}

// OutputConfig controls the output sink receiving every response
type OutputConfig struct {
	Path   string `yaml:"path" mapstructure:"path"`
	Format string `yaml:"format" mapstructure:"format"`
}

// StorageConfig result store; disabled when Path is empty
type StorageConfig struct {
	Driver     string `yaml:"driver" mapstructure:"driver"`
	Path       string `yaml:"path" mapstructure:"path"`
	MaxRecords int    `yaml:"max_records" mapstructure:"max_records"`
}

// LogConfig log configuration
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	// Format is "console" or "json" for the stderr log stream.
	Format      string        `yaml:"format" mapstructure:"format"`
	FileLogging FileLogConfig `yaml:"file_logging" mapstructure:"file_logging"`
}

// FileLogConfig file log configuration
type FileLogConfig struct {
	Enable     bool   `yaml:"enable" mapstructure:"enable"`
	Path       string `yaml:"path" mapstructure:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `yaml:"compress" mapstructure:"compress"`
}

// LoadConfig load configuration
// If v is nil, a new viper instance will be created
func LoadConfig(configPath string, v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}

	setDefaults(v)

	v.SetEnvPrefix("RETWEAK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("retweak")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.retweak")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return &config, nil
}

// setDefaults set default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("request.method", "")
	v.SetDefault("request.tweak", "")
	v.SetDefault("request.headers", "")
	v.SetDefault("request.data", "")
	v.SetDefault("request.list", "")

	v.SetDefault("report.ignore_headers", "")
	v.SetDefault("report.max_data", "1000B")
	v.SetDefault("report.quiet", false)

	v.SetDefault("dispatch.mode", ModeSequential)
	v.SetDefault("dispatch.max_concurrent", 0)

	v.SetDefault("transport.timeout", 0)
	v.SetDefault("transport.insecure", false)
	v.SetDefault("transport.decode_body", true)
	v.SetDefault("transport.max_idle_conns", 200)
	v.SetDefault("transport.max_idle_conns_per_host", 50)
	v.SetDefault("transport.max_conns_per_host", 0)
	v.SetDefault("transport.idle_conn_timeout", 90)
	v.SetDefault("transport.tls_handshake_timeout", 10)
	v.SetDefault("transport.expect_continue_timeout", 1)

	v.SetDefault("output.path", "")
	v.SetDefault("output.format", FormatText)

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", "")
	v.SetDefault("storage.max_records", 0)

	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file_logging.enable", false)
	v.SetDefault("log.file_logging.path", "./retweak.log")
	v.SetDefault("log.file_logging.max_size_mb", 10)
	v.SetDefault("log.file_logging.max_backups", 5)
	v.SetDefault("log.file_logging.max_age_days", 30)
	v.SetDefault("log.file_logging.compress", true)
}

// Validate normalizes and checks the configuration
func (c *Config) Validate() error {
	maxData, err := ParseMaxData(c.Report.MaxData)
	if err != nil {
		return err
	}
	c.Report.MaxDataBytes = maxData

	c.Dispatch.Mode = strings.ToLower(strings.TrimSpace(c.Dispatch.Mode))
	switch c.Dispatch.Mode {
	case "":
		c.Dispatch.Mode = ModeSequential
	case ModeSequential, ModeConcurrent:
	default:
		return fmt.Errorf("dispatch mode must be '%s' or '%s'", ModeSequential, ModeConcurrent)
	}
	if c.Dispatch.MaxConcurrent < 0 {
		return fmt.Errorf("dispatch max concurrent cannot be negative")
	}

	if c.Transport.Timeout < 0 {
		return fmt.Errorf("transport timeout cannot be negative")
	}

	c.Output.Format = strings.ToLower(strings.TrimSpace(c.Output.Format))
	switch c.Output.Format {
	case "":
		c.Output.Format = FormatText
	case FormatText, FormatJSON, FormatCSV:
	default:
		return fmt.Errorf("output format must be text, json or csv")
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "sqlite", "sqlite3":
		c.Storage.Driver = "sqlite"
	default:
		return fmt.Errorf("storage driver must be sqlite")
	}
	if c.Storage.MaxRecords < 0 {
		return fmt.Errorf("storage max_records cannot be negative")
	}

	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true, "disabled": true,
	}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	switch c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format)); c.Log.Format {
	case "":
		c.Log.Format = "console"
	case "console", "json":
	default:
		return fmt.Errorf("log format must be console or json")
	}

	if c.Log.FileLogging.Enable {
		if c.Log.FileLogging.Path == "" {
			return fmt.Errorf("log file path cannot be empty when file logging is enabled")
		}
		if c.Log.FileLogging.MaxSizeMB < 1 {
			return fmt.Errorf("log file max size must be at least 1MB")
		}
		if c.Log.FileLogging.MaxBackups < 0 {
			return fmt.Errorf("log file max backups cannot be negative")
		}
		if c.Log.FileLogging.MaxAgeDays < 0 {
			return fmt.Errorf("log file max age cannot be negative")
		}
	}

	return nil
}

var maxDataPattern = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?)(K?B)$`)

// ParseMaxData converts "<number>B" or "<number>KB" (1KB = 1000B) into a byte count,
// rounded down. An empty value yields DefaultMaxData.
func ParseMaxData(value string) (int, error) {
	normalized := strings.ToUpper(strings.Join(strings.Fields(value), ""))
	if normalized == "" {
		return DefaultMaxData, nil
	}

	match := maxDataPattern.FindStringSubmatch(normalized)
	if match == nil {
		return 0, fmt.Errorf("%w: expected a positive number followed by B/KB, got %q", ErrInvalidMaxData, value)
	}
	num, err := strconv.ParseFloat(match[1], 64)
	if err != nil || num == 0 {
		return 0, fmt.Errorf("%w: expected a positive number followed by B/KB, got %q", ErrInvalidMaxData, value)
	}
	if match[2] == "KB" {
		num *= 1000
	}

	bytes := math.Floor(num)
	if bytes < 1 {
		return 0, fmt.Errorf("%w: must be >= 1B, got %q", ErrInvalidMaxData, value)
	}
	if bytes > math.MaxInt32 {
		return 0, fmt.Errorf("%w: too large, got %q", ErrInvalidMaxData, value)
	}
	return int(bytes), nil
}

// Dump writes the configuration as YAML
func (c *Config) Dump(w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(c); err != nil {
		return err
	}
	return encoder.Close()
}
