// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is built once at startup and passed by pointer.
// The mapstructure tags double as environment variable names.
type Config struct {
	// Azure File share shared with the job.
	StorageAccount string `mapstructure:"AZURE_STORAGE_ACCOUNT" validate:"required"`
	StorageKey     string `mapstructure:"AZURE_STORAGE_KEY" validate:"required"`
	ShareName      string `mapstructure:"AZURE_SHARE_NAME" validate:"required"`
	MountPath      string `mapstructure:"MOUNT_PATH"`

	// Container job.
	RegistryServer     string        `mapstructure:"DOCKER_REGISTRY"`
	RegistryUsername   string        `mapstructure:"DOCKER_USERNAME" validate:"required"`
	RegistryPassword   string        `mapstructure:"DOCKER_PASS" validate:"required"`
	ResourceGroup      string        `mapstructure:"ACI_RESOURCE_GROUP" validate:"required"`
	JobImage           string        `mapstructure:"JOB_IMAGE" validate:"required"`
	JobCPU             float64       `mapstructure:"JOB_CPU" validate:"gt=0"`
	JobMemoryGB        float64       `mapstructure:"JOB_MEMORY_GB" validate:"gt=0"`
	JobCommand         string        `mapstructure:"JOB_COMMAND" validate:"required"`
	JobMountPath       string        `mapstructure:"JOB_MOUNT_PATH" validate:"required"`
	OutputDir          string        `mapstructure:"OUTPUT_DIR" validate:"required"`
	PollInterval       time.Duration `mapstructure:"POLL_INTERVAL" validate:"gt=0"`
	JobTimeout         time.Duration `mapstructure:"JOB_TIMEOUT" validate:"gtfield=PollInterval"`
	MaxQueryErrors     int           `mapstructure:"MAX_QUERY_ERRORS" validate:"gte=0"`
	TerminateOnTimeout bool          `mapstructure:"TERMINATE_ON_TIMEOUT"`
	InputValidation    bool          `mapstructure:"INPUT_VALIDATION"`

	// Results and source stores.
	ResultsBackend   string `mapstructure:"RESULTS_BACKEND" validate:"oneof=azblob s3 memory"`
	ConnectionString string `mapstructure:"AzureWebJobsStorage" validate:"required_if=ResultsBackend azblob"`
	ResultsContainer string `mapstructure:"RESULTS_CONTAINER" validate:"required"`
	SourceContainer  string `mapstructure:"SOURCE_CONTAINER"`
	S3Bucket         string `mapstructure:"AWS_S3_BUCKET" validate:"required_if=ResultsBackend s3"`
	S3Region         string `mapstructure:"AWS_S3_REGION"`
	S3AccessKeyID    string `mapstructure:"AWS_ACCESS_KEY_ID"`
	S3SecretKey      string `mapstructure:"AWS_SECRET_ACCESS_KEY"`
	S3Endpoint       string `mapstructure:"AWS_S3_ENDPOINT"`
	S3UsePathStyle   bool   `mapstructure:"AWS_S3_USE_PATH_STYLE"`

	// Triggers.
	Trigger         string        `mapstructure:"TRIGGER" validate:"oneof=nats fs http"`
	NATSURL         string        `mapstructure:"NATS_URL"`
	TriggerSubject  string        `mapstructure:"TRIGGER_SUBJECT"`
	DispatchQueue   string        `mapstructure:"DISPATCH_QUEUE"`
	ResultSubject   string        `mapstructure:"RESULT_SUBJECT"`
	InboxDir        string        `mapstructure:"INBOX_DIR" validate:"required_if=Trigger fs"`
	InboxDebounce   time.Duration `mapstructure:"INBOX_DEBOUNCE"`
	InboxScan       bool          `mapstructure:"INBOX_INITIAL_SCAN"`
	HTTPAddr        string        `mapstructure:"HTTP_ADDR"`
	HTTPMaxBodySize int64         `mapstructure:"HTTP_MAX_BODY_BYTES" validate:"gt=0"`

	// Job lock.
	LockBackend   string        `mapstructure:"LOCK_BACKEND" validate:"oneof=none local etcd"`
	EtcdEndpoints []string      `mapstructure:"ETCD_ENDPOINTS" validate:"required_if=LockBackend etcd"`
	EtcdTimeout   time.Duration `mapstructure:"ETCD_TIMEOUT"`

	TracingEnabled bool `mapstructure:"TRACING_ENABLED"`
}

var defaults = map[string]any{
	"JOB_IMAGE":             "opendronemap/odm",
	"JOB_CPU":               4,
	"JOB_MEMORY_GB":         8,
	"JOB_COMMAND":           "odm --project-path /datasets",
	"JOB_MOUNT_PATH":        "/datasets/code",
	"OUTPUT_DIR":            "odm_orthophoto",
	"POLL_INTERVAL":         "10s",
	"JOB_TIMEOUT":           "30m",
	"MAX_QUERY_ERRORS":      6,
	"TERMINATE_ON_TIMEOUT":  false,
	"INPUT_VALIDATION":      true,
	"RESULTS_BACKEND":       "azblob",
	"RESULTS_CONTAINER":     "odm-results",
	"SOURCE_CONTAINER":      "raw-images",
	"AWS_S3_REGION":         "us-east-1",
	"TRIGGER":               "nats",
	"NATS_URL":              "nats://127.0.0.1:4222",
	"TRIGGER_SUBJECT":       "blobs.raw-images.created",
	"DISPATCH_QUEUE":        "odm-dispatchers",
	"RESULT_SUBJECT":        "odm.jobs.done",
	"INBOX_DEBOUNCE":        "2s",
	"INBOX_INITIAL_SCAN":    true,
	"HTTP_ADDR":             ":8080",
	"HTTP_MAX_BODY_BYTES":   256 << 20,
	"LOCK_BACKEND":          "none",
	"ETCD_TIMEOUT":          "5s",
	"TRACING_ENABLED":       false,
	"MOUNT_PATH":            "",
	"DOCKER_REGISTRY":       "",
	"AzureWebJobsStorage":   "",
	"AWS_S3_BUCKET":         "",
	"AWS_ACCESS_KEY_ID":     "",
	"AWS_SECRET_ACCESS_KEY": "",
	"AWS_S3_ENDPOINT":       "",
	"AWS_S3_USE_PATH_STYLE": false,
	"INBOX_DIR":             "",
	"ETCD_ENDPOINTS":        "",
	"AZURE_STORAGE_ACCOUNT": "",
	"AZURE_STORAGE_KEY":     "",
	"AZURE_SHARE_NAME":      "",
	"DOCKER_USERNAME":       "",
	"DOCKER_PASS":           "",
	"ACI_RESOURCE_GROUP":    "",
}

// Load reads defaults, an optional config.yaml and the environment, then
// validates the result. Missing required settings are an error.
func Load() (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")
	for k := range defaults {
		// Keys are env names verbatim; AzureWebJobsStorage is mixed case.
		_ = v.BindEnv(k, k)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.EtcdEndpoints = splitList(cfg.EtcdEndpoints)
	if cfg.MountPath == "" && cfg.ShareName != "" {
		cfg.MountPath = "/mnt/" + cfg.ShareName
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cfg and reports every missing or invalid setting by its
// environment name.
func Validate(cfg *Config) error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("mapstructure")
	})

	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, ", "))
}

// splitList accepts both YAML lists and comma-separated env values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
