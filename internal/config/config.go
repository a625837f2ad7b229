package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "earlyturn.cfg.json"

// NoticeConfig holds early notice synthesis settings
type NoticeConfig struct {
	LookbackDistance int    `json:"lookbackDistance" mapstructure:"lookbackDistance" validate:"gte=0"`
	MarkerFilter     string `json:"markerFilter" mapstructure:"markerFilter"`
}

// OutputConfig holds output file settings
type OutputConfig struct {
	Suffix string `json:"suffix" mapstructure:"suffix" validate:"excludesall=/\\"`
	Indent string `json:"indent" mapstructure:"indent"`
}

// HistoryConfig holds run history settings
type HistoryConfig struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
	Type       string `json:"type" mapstructure:"type" validate:"oneof=sqlite postgres"`
	SQLitePath string `json:"sqlitePath" mapstructure:"sqlitePath" validate:"required"`
}

// DBConfig holds Postgres connection settings used by the postgres history type
type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// InfluxConfig holds InfluxDB settings for run metrics
type InfluxConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	URL     string `json:"url" mapstructure:"url" validate:"required,url"`
	Token   string `json:"token" mapstructure:"token"`
	Org     string `json:"org" mapstructure:"org" validate:"required"`
	Bucket  string `json:"bucket" mapstructure:"bucket" validate:"required"`
	Retries int    `json:"retries" mapstructure:"retries" validate:"gte=0"`

	// BackupPath receives gzipped line protocol when a write fails. Empty disables it.
	BackupPath string `json:"backupPath" mapstructure:"backupPath"`
}

// SetDefaults registers default values. Load calls it; it is exported so the
// CLI can run with defaults when no config file exists.
func SetDefaults() {
	viper.SetDefault("lookbackDistance", 2)
	viper.SetDefault("markerFilter", "")

	viper.SetDefault("output.suffix", "New")
	viper.SetDefault("output.indent", "  ")

	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("history.enabled", false)
	viper.SetDefault("history.type", "sqlite")
	viper.SetDefault("history.sqlitePath", "./earlyturn.db")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "earlyturn")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.url", "http://localhost:8086")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "earlyturn")
	viper.SetDefault("influx.bucket", "earlyturn")
	viper.SetDefault("influx.retries", 3)
	viper.SetDefault("influx.backupPath", "")

	viper.SetEnvPrefix("EARLYTURN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// Set overrides key for the rest of the process, taking precedence over the
// file and the environment. Command line flags go through here.
func Set(key string, value interface{}) {
	viper.Set(key, value)
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetNoticeConfig returns the synthesis settings.
func GetNoticeConfig() NoticeConfig {
	return NoticeConfig{
		LookbackDistance: viper.GetInt("lookbackDistance"),
		MarkerFilter:     viper.GetString("markerFilter"),
	}
}

// GetOutputConfig returns the output settings.
func GetOutputConfig() OutputConfig {
	return OutputConfig{
		Suffix: viper.GetString("output.suffix"),
		Indent: viper.GetString("output.indent"),
	}
}

// GetHistoryConfig returns the run history settings.
func GetHistoryConfig() HistoryConfig {
	return HistoryConfig{
		Enabled:    viper.GetBool("history.enabled"),
		Type:       viper.GetString("history.type"),
		SQLitePath: viper.GetString("history.sqlitePath"),
	}
}

// GetDBConfig returns the Postgres connection settings.
func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetInfluxConfig returns the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled: viper.GetBool("influx.enabled"),
		URL:     viper.GetString("influx.url"),
		Token:   viper.GetString("influx.token"),
		Org:     viper.GetString("influx.org"),
		Bucket:  viper.GetString("influx.bucket"),
		Retries: viper.GetInt("influx.retries"),

		BackupPath: viper.GetString("influx.backupPath"),
	}
}

// Validate checks the effective settings. History and influx settings are
// only checked when enabled.
func Validate() error {
	v := validator.New()

	var errs []error
	if err := v.Struct(GetNoticeConfig()); err != nil {
		errs = append(errs, fmt.Errorf("notice: %w", err))
	}
	if err := v.Struct(GetOutputConfig()); err != nil {
		errs = append(errs, fmt.Errorf("output: %w", err))
	}
	if h := GetHistoryConfig(); h.Enabled {
		if err := v.Struct(h); err != nil {
			errs = append(errs, fmt.Errorf("history: %w", err))
		}
	}
	if i := GetInfluxConfig(); i.Enabled {
		if err := v.Struct(i); err != nil {
			errs = append(errs, fmt.Errorf("influx: %w", err))
		}
	}
	return errors.Join(errs...)
}
