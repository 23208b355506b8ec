package config

import (
	"errors"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env             string          `mapstructure:"env"`
	LogLevel        string          `mapstructure:"log_level"`
	LogType         string          `mapstructure:"log_type"`
	ServiceName     string          `mapstructure:"service_name"`
	Version         string          `mapstructure:"version"`
	Paths           *PathsConfig    `mapstructure:"paths"`
	SettingsFiles   *SettingsConfig `mapstructure:"settings"`
	SiteFiles       *SiteConfig     `mapstructure:"site"`
	WorkerSettings  *WorkerConfig   `mapstructure:"worker"`
	FetcherSettings *FetcherConfig  `mapstructure:"fetcher"`
	S3Settings      *S3Config       `mapstructure:"s3"`
	KafkaSettings   *KafkaConfig    `mapstructure:"kafka"`
}

type PathsConfig struct {
	SitesDir    string `mapstructure:"sites_dir"`
	SettingsDir string `mapstructure:"settings_dir"`
	OutputDir   string `mapstructure:"output_dir"`
	LogsDir     string `mapstructure:"logs_dir"`
}

type SettingsConfig struct {
	AllowedResponsesFile string `mapstructure:"allowed_responses_file"`
	HeadersFile          string `mapstructure:"headers_file"`
}

type SiteConfig struct {
	PagesFile   string `mapstructure:"pages_file"`
	HandlerFile string `mapstructure:"handler_file"`
}

type WorkerConfig struct {
	MaxWorkers             int    `mapstructure:"max_workers"`
	OSFamily               string `mapstructure:"os_family"`
	AbortSiteOnPageFailure bool   `mapstructure:"abort_site_on_page_failure"`
	FailPageOnWriteError   bool   `mapstructure:"fail_page_on_write_error"`
}

type FetcherConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"` // zero keeps the client default
	MaxBodySize    int           `mapstructure:"max_body_size"`   // zero means no limit
}

type S3Config struct {
	Enabled         bool   `mapstructure:"enabled"`
	AwsAccessKey    string `mapstructure:"aws_access_key"`
	AwsSecretKey    string `mapstructure:"aws_secret_key"`
	AwsBaseEndpoint string `mapstructure:"aws_base_endpoint"`
	Region          string `mapstructure:"region"`
	BucketName      string `mapstructure:"bucket_name"`
	KeyPrefix       string `mapstructure:"key_prefix"`
}

type KafkaConfig struct {
	Enabled  bool            `mapstructure:"enabled"`
	Producer *ProducerConfig `mapstructure:"producer"`
}

type ProducerConfig struct {
	Addr           string        `mapstructure:"addr"`
	WriteTopicName string        `mapstructure:"write_topic_name"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BatchSize      int           `mapstructure:"batch_size"`
	BatchTimeout   time.Duration `mapstructure:"batch_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequiredAsks   int           `mapstructure:"required_acks"`
	Async          bool          `mapstructure:"async"`
}

// MustLoad reads config.yaml from the working directory. The process exits if the file can't be used.
func MustLoad() *Config {
	cfg, err := Load(path.Join(".", "config.yaml"))
	if err != nil {
		slog.Error("can't initialize config file.", slog.String("err", err.Error()))
		os.Exit(1)
	}

	return cfg
}

// Load reads the configuration file at filePath. Values can be overridden by environment variables,
// e.g. PATHS_SITES_DIR or WORKER_MAX_WORKERS.
func Load(filePath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(filePath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "local")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_type", "text")
	v.SetDefault("service_name", "scraper")
	v.SetDefault("version", "dev")

	v.SetDefault("paths.sites_dir", "sites")
	v.SetDefault("paths.settings_dir", "settings")
	v.SetDefault("paths.output_dir", "output")
	v.SetDefault("paths.logs_dir", "logs")

	v.SetDefault("settings.allowed_responses_file", "allowed-http-responses.xlsx")
	v.SetDefault("settings.headers_file", "headers.xlsx")

	v.SetDefault("site.pages_file", "pages.xlsx")
	v.SetDefault("site.handler_file", "processor.yaml")

	v.SetDefault("worker.max_workers", 1)
	v.SetDefault("worker.os_family", "")
	v.SetDefault("worker.abort_site_on_page_failure", true)
	v.SetDefault("worker.fail_page_on_write_error", false)

	v.SetDefault("fetcher.request_timeout", 0)
	v.SetDefault("fetcher.max_body_size", 0)

	v.SetDefault("s3.enabled", false)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.producer.max_attempts", 3)
	v.SetDefault("kafka.producer.batch_size", 100)
	v.SetDefault("kafka.producer.batch_timeout", time.Second)
	v.SetDefault("kafka.producer.read_timeout", 10*time.Second)
	v.SetDefault("kafka.producer.write_timeout", 10*time.Second)
	v.SetDefault("kafka.producer.required_acks", 1)
}

func (c *Config) validate() error {
	if c.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if c.Paths.SitesDir == "" || c.Paths.SettingsDir == "" || c.Paths.OutputDir == "" || c.Paths.LogsDir == "" {
		return errors.New("paths.sites_dir, paths.settings_dir, paths.output_dir and paths.logs_dir are required")
	}
	if c.SiteFiles.PagesFile == "" || c.SiteFiles.HandlerFile == "" {
		return errors.New("site.pages_file and site.handler_file are required")
	}
	if c.WorkerSettings.MaxWorkers < 1 {
		return errors.New("worker.max_workers must be >= 1")
	}
	if c.S3Settings.Enabled && c.S3Settings.BucketName == "" {
		return errors.New("s3.bucket_name is required when s3 is enabled")
	}
	if c.KafkaSettings.Enabled && (c.KafkaSettings.Producer == nil || c.KafkaSettings.Producer.Addr == "" ||
		c.KafkaSettings.Producer.WriteTopicName == "") {
		return errors.New("kafka.producer.addr and kafka.producer.write_topic_name are required when kafka is enabled")
	}

	return nil
}
