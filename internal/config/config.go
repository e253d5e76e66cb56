// internal/config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	App     AppConfig
	Report  ReportConfig
	Mail    MailConfig
	Storage StorageConfig
	Drive   DriveConfig
	Cache   CacheConfig
}

type ServerConfig struct {
	Port           string `validate:"required,numeric"`
	Mode           string `validate:"oneof=debug release test"`
	ReadTimeout    int    `validate:"gte=0"`
	WriteTimeout   int    `validate:"gte=0"`
	AllowedOrigins []string
}

type AppConfig struct {
	WorkDir   string `validate:"required"`
	OutputDir string `validate:"required"`
	LogLevel  string
	LogFormat string `validate:"omitempty,oneof=console json"`
}

// ReportConfig parameterizes the single report pipeline.
type ReportConfig struct {
	BusinessUnit    string   `validate:"required"`
	PODExclusions   []string
	CriticalDays    int      `validate:"gte=0"`
	IncludeMaster   bool
	MailBodyColumns []string
	DateLayout      string   `validate:"required"`
	Locale          string   `validate:"required"`
	Signature       string
	MappingSheet    string   `validate:"required"`
	RecipientSheet  string   `validate:"required"`
	SnapshotSheet   string   `validate:"required"`
}

// MailConfig carries the SMTP credentials handed to the sender at construction.
type MailConfig struct {
	Host           string `validate:"required"`
	Port           int    `validate:"gt=0,lte=65535"`
	Username       string
	Password       string
	From           string `validate:"omitempty,email"`
	Admin          string `validate:"omitempty,email"`
	TimeoutSeconds int    `validate:"gte=0"`
}

type StorageConfig struct {
	Enabled       bool
	Endpoint      string `validate:"required_if=Enabled true"`
	AccessKey     string `validate:"required_if=Enabled true"`
	SecretKey     string `validate:"required_if=Enabled true"`
	Bucket        string `validate:"required_if=Enabled true"`
	Region        string
	UseSSL        bool
	ArchivePrefix string
}

type DriveConfig struct {
	CredentialsJSON string
}

type CacheConfig struct {
	Enabled           bool
	RedisURL          string
	RedisHost         string
	RedisPort         string
	RedisPassword     string
	RedisDB           int `validate:"gte=0"`
	SummaryTTLSeconds int `validate:"gte=0"`
}

var (
	once     sync.Once
	instance *Config
)

// DefaultPODExclusions lists the regional sales channels that never receive
// POD follow-up.
var DefaultPODExclusions = []string{"ECOM & MT", "ESPT", "VET PHARMA", "EXPORT", "AQUA"}

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		instance = fromViper(viper.GetViper())

		ensureDir(instance.App.WorkDir)
		ensureDir(instance.App.OutputDir)
	})

	return instance
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_MODE", "release")
	v.SetDefault("SERVER_READ_TIMEOUT", 60)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 600)
	v.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})
	v.SetDefault("APP_WORK_DIR", os.TempDir())
	v.SetDefault("APP_OUTPUT_DIR", "./data/reports")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("REPORT_BUSINESS_UNIT", "DROOLS PET FOOD")
	v.SetDefault("REPORT_POD_EXCLUDE", strings.Join(DefaultPODExclusions, ","))
	v.SetDefault("REPORT_CRITICAL_DAYS", 5)
	v.SetDefault("REPORT_INCLUDE_MASTER", true)
	v.SetDefault("REPORT_MAIL_BODY_COLUMNS", "")
	v.SetDefault("REPORT_DATE_LAYOUT", "02-01-2006")
	v.SetDefault("REPORT_LOCALE", "en-IN")
	v.SetDefault("REPORT_SIGNATURE", "Drools Automation System")
	v.SetDefault("REPORT_MAPPING_SHEET", "Depot_Zone")
	v.SetDefault("REPORT_RECIPIENT_SHEET", "Email_IDs")
	v.SetDefault("REPORT_SNAPSHOT_SHEET", "Dispatch")
	v.SetDefault("MAIL_HOST", "smtp.office365.com")
	v.SetDefault("MAIL_PORT", 587)
	v.SetDefault("MAIL_TIMEOUT_SECONDS", 30)
	v.SetDefault("STORAGE_ENABLED", false)
	v.SetDefault("STORAGE_REGION", "us-east-1")
	v.SetDefault("STORAGE_USE_SSL", true)
	v.SetDefault("STORAGE_ARCHIVE_PREFIX", "reports")
	v.SetDefault("CACHE_ENABLED", false)
	v.SetDefault("REDIS_HOST", "127.0.0.1")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_SUMMARY_TTL_SECONDS", 300)
}

// fromViper builds a Config from environment-backed viper settings.
func fromViper(v *viper.Viper) *Config {
	setDefaults(v)
	v.AutomaticEnv()

	from := v.GetString("MAIL_FROM")
	if from == "" {
		from = v.GetString("MAIL_USERNAME")
	}
	admin := v.GetString("MAIL_ADMIN")
	if admin == "" {
		admin = from
	}

	return &Config{
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			Mode:           v.GetString("SERVER_MODE"),
			ReadTimeout:    v.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout:   v.GetInt("SERVER_WRITE_TIMEOUT"),
			AllowedOrigins: v.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
		},
		App: AppConfig{
			WorkDir:   v.GetString("APP_WORK_DIR"),
			OutputDir: v.GetString("APP_OUTPUT_DIR"),
			LogLevel:  v.GetString("LOG_LEVEL"),
			LogFormat: v.GetString("LOG_FORMAT"),
		},
		Report: ReportConfig{
			BusinessUnit:    v.GetString("REPORT_BUSINESS_UNIT"),
			PODExclusions:   SplitList(v.GetString("REPORT_POD_EXCLUDE"), ","),
			CriticalDays:    v.GetInt("REPORT_CRITICAL_DAYS"),
			IncludeMaster:   v.GetBool("REPORT_INCLUDE_MASTER"),
			MailBodyColumns: SplitList(v.GetString("REPORT_MAIL_BODY_COLUMNS"), ","),
			DateLayout:      v.GetString("REPORT_DATE_LAYOUT"),
			Locale:          v.GetString("REPORT_LOCALE"),
			Signature:       v.GetString("REPORT_SIGNATURE"),
			MappingSheet:    v.GetString("REPORT_MAPPING_SHEET"),
			RecipientSheet:  v.GetString("REPORT_RECIPIENT_SHEET"),
			SnapshotSheet:   v.GetString("REPORT_SNAPSHOT_SHEET"),
		},
		Mail: MailConfig{
			Host:           v.GetString("MAIL_HOST"),
			Port:           v.GetInt("MAIL_PORT"),
			Username:       v.GetString("MAIL_USERNAME"),
			Password:       v.GetString("MAIL_PASSWORD"),
			From:           from,
			Admin:          admin,
			TimeoutSeconds: v.GetInt("MAIL_TIMEOUT_SECONDS"),
		},
		Storage: StorageConfig{
			Enabled:       v.GetBool("STORAGE_ENABLED"),
			Endpoint:      v.GetString("STORAGE_ENDPOINT"),
			AccessKey:     v.GetString("STORAGE_ACCESS_KEY"),
			SecretKey:     v.GetString("STORAGE_SECRET_KEY"),
			Bucket:        v.GetString("STORAGE_BUCKET"),
			Region:        v.GetString("STORAGE_REGION"),
			UseSSL:        v.GetBool("STORAGE_USE_SSL"),
			ArchivePrefix: v.GetString("STORAGE_ARCHIVE_PREFIX"),
		},
		Drive: DriveConfig{
			CredentialsJSON: v.GetString("GOOGLE_DRIVE_CREDENTIALS_JSON"),
		},
		Cache: CacheConfig{
			Enabled:           v.GetBool("CACHE_ENABLED"),
			RedisURL:          v.GetString("REDIS_URL"),
			RedisHost:         v.GetString("REDIS_HOST"),
			RedisPort:         v.GetString("REDIS_PORT"),
			RedisPassword:     v.GetString("REDIS_PASSWORD"),
			RedisDB:           v.GetInt("REDIS_DB"),
			SummaryTTLSeconds: v.GetInt("CACHE_SUMMARY_TTL_SECONDS"),
		},
	}
}

// Validate checks struct-level constraints of the loaded configuration.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// RequireMail reports whether everything needed to actually send mail is set.
func (c *Config) RequireMail() error {
	var missing []string
	if c.Mail.Username == "" {
		missing = append(missing, "MAIL_USERNAME")
	}
	if c.Mail.Password == "" {
		missing = append(missing, "MAIL_PASSWORD")
	}
	if c.Mail.From == "" {
		missing = append(missing, "MAIL_FROM")
	}
	if len(missing) > 0 {
		return fmt.Errorf("mail transport not configured: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// SplitList splits a delimited setting, trimming entries and dropping empties.
func SplitList(raw, sep string) []string {
	var out []string
	for _, part := range strings.Split(raw, sep) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func ensureDir(dir string) {
	if dir == "" {
		return
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}
}
