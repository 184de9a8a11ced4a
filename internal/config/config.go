package config

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultAPIURL     = "http://127.0.0.1:7420"
	DefaultDBFileName = ".credvault.db"
	DefaultLogLevel   = "info"
	DefaultDBDriver   = "sqlite"
	DefaultBlobRoot   = ".credvault-blobs"

	BlobBackendLocal = "local"
	BlobBackendS3    = "s3"

	NotifyDriverLog  = "log"
	NotifyDriverAMQP = "amqp"
	NotifyDriverNone = "none"

	DefaultBlobMaxUploadBytes  int64 = 2 * 1024 * 1024
	DefaultBlobMultipartMemory int64 = 8 * 1024 * 1024
	DefaultBlobGCBatchSize           = 500
	DefaultBlobGCMinAge              = time.Hour

	DefaultS3Prefix = "credvault"

	DefaultNotifyExchange   = "credvault"
	DefaultNotifyRoutingKey = "credential.decided"

	configFileName  = ".credvault.toml"
	configDirEnvKey = "CREDVAULT_CONFIG_DIR"
)

// DefaultAllowedMediaTypes are accepted for upload when nothing else is configured.
var DefaultAllowedMediaTypes = []string{"application/pdf", "image/jpeg", "image/png"}

// DatabaseConfig selects the metadata store.
type DatabaseConfig struct {
	Driver string `toml:"driver"`
	Path   string `toml:"path"`
	DSN    string `toml:"dsn"`
}

// S3Config configures the S3-compatible blob backend.
type S3Config struct {
	Bucket          string `toml:"bucket"`
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	UsePathStyle    bool   `toml:"use_path_style"`
	CreateBucket    bool   `toml:"create_bucket"`
	Prefix          string `toml:"prefix"`
}

// BlobConfig defines runtime configuration for blob handling.
type BlobConfig struct {
	Backend            string   `toml:"backend"`
	Root               string   `toml:"root"`
	MaxUploadBytes     int64    `toml:"max_upload_bytes"`
	MultipartMaxMemory int64    `toml:"multipart_max_memory"`
	AllowedMediaTypes  []string `toml:"allowed_media_types"`
	GCBatchSize        int      `toml:"gc_batch_size"`
	GCMinAge           string   `toml:"gc_min_age"`
	S3                 S3Config `toml:"s3"`
}

// NotifyConfig selects where decision events are sent.
type NotifyConfig struct {
	Driver     string `toml:"driver"`
	AMQPURL    string `toml:"amqp_url"`
	Exchange   string `toml:"exchange"`
	RoutingKey string `toml:"routing_key"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// Config defines runtime configuration for credvault.
type Config struct {
	APIURL   string         `toml:"api_url"`
	LogLevel string         `toml:"log_level"`
	Database DatabaseConfig `toml:"database"`
	Blobs    BlobConfig     `toml:"blobs"`
	Notify   NotifyConfig   `toml:"notify"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:   DefaultAPIURL,
		LogLevel: DefaultLogLevel,
		Database: DatabaseConfig{Driver: DefaultDBDriver},
		Blobs: BlobConfig{
			Backend:            BlobBackendLocal,
			MaxUploadBytes:     DefaultBlobMaxUploadBytes,
			MultipartMaxMemory: DefaultBlobMultipartMemory,
			AllowedMediaTypes:  append([]string(nil), DefaultAllowedMediaTypes...),
			GCBatchSize:        DefaultBlobGCBatchSize,
			GCMinAge:           DefaultBlobGCMinAge.String(),
			S3:                 S3Config{Prefix: DefaultS3Prefix},
		},
		Notify: NotifyConfig{
			Driver:     NotifyDriverLog,
			Exchange:   DefaultNotifyExchange,
			RoutingKey: DefaultNotifyRoutingKey,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// GCMinAgeDuration parses gc_min_age, falling back to the default.
func (c BlobConfig) GCMinAgeDuration() time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(c.GCMinAge))
	if err != nil || d < 0 {
		return DefaultBlobGCMinAge
	}
	return d
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

var allowedKeys = []string{
	"api_url",
	"log_level",
	"database.driver",
	"database.path",
	"database.dsn",
	"blobs.backend",
	"blobs.root",
	"blobs.max_upload_bytes",
	"blobs.multipart_max_memory",
	"blobs.allowed_media_types",
	"blobs.gc_batch_size",
	"blobs.gc_min_age",
	"blobs.s3.bucket",
	"blobs.s3.region",
	"blobs.s3.endpoint",
	"blobs.s3.access_key_id",
	"blobs.s3.secret_access_key",
	"blobs.s3.use_path_style",
	"blobs.s3.create_bucket",
	"blobs.s3.prefix",
	"notify.driver",
	"notify.amqp_url",
	"notify.exchange",
	"notify.routing_key",
	"metrics.enabled",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "api_url":
		return c.APIURL, nil
	case "log_level":
		return c.LogLevel, nil
	case "database.driver":
		return c.Database.Driver, nil
	case "database.path":
		return c.Database.Path, nil
	case "database.dsn":
		return c.Database.DSN, nil
	case "blobs.backend":
		return c.Blobs.Backend, nil
	case "blobs.root":
		return c.Blobs.Root, nil
	case "blobs.max_upload_bytes":
		return strconv.FormatInt(c.Blobs.MaxUploadBytes, 10), nil
	case "blobs.multipart_max_memory":
		return strconv.FormatInt(c.Blobs.MultipartMaxMemory, 10), nil
	case "blobs.allowed_media_types":
		return strings.Join(c.Blobs.AllowedMediaTypes, ","), nil
	case "blobs.gc_batch_size":
		return strconv.Itoa(c.Blobs.GCBatchSize), nil
	case "blobs.gc_min_age":
		return c.Blobs.GCMinAge, nil
	case "blobs.s3.bucket":
		return c.Blobs.S3.Bucket, nil
	case "blobs.s3.region":
		return c.Blobs.S3.Region, nil
	case "blobs.s3.endpoint":
		return c.Blobs.S3.Endpoint, nil
	case "blobs.s3.access_key_id":
		return c.Blobs.S3.AccessKeyID, nil
	case "blobs.s3.secret_access_key":
		if c.Blobs.S3.SecretAccessKey == "" {
			return "", nil
		}
		return "********", nil
	case "blobs.s3.use_path_style":
		return strconv.FormatBool(c.Blobs.S3.UsePathStyle), nil
	case "blobs.s3.create_bucket":
		return strconv.FormatBool(c.Blobs.S3.CreateBucket), nil
	case "blobs.s3.prefix":
		return c.Blobs.S3.Prefix, nil
	case "notify.driver":
		return c.Notify.Driver, nil
	case "notify.amqp_url":
		return c.Notify.AMQPURL, nil
	case "notify.exchange":
		return c.Notify.Exchange, nil
	case "notify.routing_key":
		return c.Notify.RoutingKey, nil
	case "metrics.enabled":
		return strconv.FormatBool(c.Metrics.Enabled), nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the config file.
func GlobalPath() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(configDirEnvKey)); dir != "" {
		return filepath.Join(dir, configFileName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads the config file and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	path, err := GlobalPath()
	if err == nil {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(&cfg)

	if cfg.Database.Path == "" {
		if cwd, err := os.Getwd(); err == nil {
			cfg.Database.Path = filepath.Join(cwd, DefaultDBFileName)
		}
	}
	if cfg.Blobs.Root == "" {
		cfg.Blobs.Root = filepath.Join(filepath.Dir(cfg.Database.Path), DefaultBlobRoot)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			*dst = value
		}
	}
	setString("CREDVAULT_API_URL", &cfg.APIURL)
	setString("CREDVAULT_DB", &cfg.Database.Path)
	setString("CREDVAULT_DB_DRIVER", &cfg.Database.Driver)
	setString("CREDVAULT_DB_DSN", &cfg.Database.DSN)
	setString("CREDVAULT_BLOB_BACKEND", &cfg.Blobs.Backend)
	setString("CREDVAULT_BLOB_ROOT", &cfg.Blobs.Root)
	setString("CREDVAULT_S3_BUCKET", &cfg.Blobs.S3.Bucket)
	setString("CREDVAULT_S3_ENDPOINT", &cfg.Blobs.S3.Endpoint)
	setString("CREDVAULT_S3_REGION", &cfg.Blobs.S3.Region)
	setString("CREDVAULT_S3_ACCESS_KEY_ID", &cfg.Blobs.S3.AccessKeyID)
	setString("CREDVAULT_S3_SECRET_ACCESS_KEY", &cfg.Blobs.S3.SecretAccessKey)
	setString("CREDVAULT_S3_PREFIX", &cfg.Blobs.S3.Prefix)
	setString("CREDVAULT_NOTIFY_DRIVER", &cfg.Notify.Driver)
	setString("CREDVAULT_AMQP_URL", &cfg.Notify.AMQPURL)

	if raw := strings.TrimSpace(os.Getenv("CREDVAULT_ALLOWED_MEDIA_TYPES")); raw != "" {
		cfg.Blobs.AllowedMediaTypes = splitCSV(raw)
	}
	if raw := strings.TrimSpace(os.Getenv("CREDVAULT_MAX_UPLOAD_BYTES")); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil && parsed > 0 {
			cfg.Blobs.MaxUploadBytes = parsed
		}
	}
}

// Validate rejects unknown drivers and incomplete backend settings.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if strings.TrimSpace(c.Database.DSN) == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown database.driver %q (expected sqlite or postgres)", c.Database.Driver)
	}
	switch c.Blobs.Backend {
	case BlobBackendLocal:
	case BlobBackendS3:
		if strings.TrimSpace(c.Blobs.S3.Bucket) == "" {
			return fmt.Errorf("blobs.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown blobs.backend %q (expected local or s3)", c.Blobs.Backend)
	}
	switch c.Notify.Driver {
	case NotifyDriverLog, NotifyDriverNone:
	case NotifyDriverAMQP:
		if strings.TrimSpace(c.Notify.AMQPURL) == "" {
			return fmt.Errorf("notify.amqp_url is required for the amqp driver")
		}
	default:
		return fmt.Errorf("unknown notify.driver %q (expected log, amqp or none)", c.Notify.Driver)
	}
	return nil
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "blobs.max_upload_bytes", "blobs.multipart_max_memory":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "blobs.gc_batch_size":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "blobs.gc_min_age":
		if _, err := time.ParseDuration(value); err != nil {
			return nil, fmt.Errorf("%s must be a duration such as 1h or 30m", key)
		}
		return value, nil
	case "blobs.s3.use_path_style", "blobs.s3.create_bucket", "metrics.enabled":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", key)
		}
		return parsed, nil
	case "blobs.allowed_media_types":
		return splitCSV(value), nil
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func splitCSV(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func (c *Config) normalize() {
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	c.Blobs.Backend = strings.ToLower(strings.TrimSpace(c.Blobs.Backend))
	c.Notify.Driver = strings.ToLower(strings.TrimSpace(c.Notify.Driver))
	if c.Blobs.MaxUploadBytes <= 0 {
		c.Blobs.MaxUploadBytes = DefaultBlobMaxUploadBytes
	}
	if c.Blobs.MultipartMaxMemory <= 0 {
		c.Blobs.MultipartMaxMemory = DefaultBlobMultipartMemory
	}
	if c.Blobs.GCBatchSize <= 0 {
		c.Blobs.GCBatchSize = DefaultBlobGCBatchSize
	}
	c.Blobs.AllowedMediaTypes = normalizeConfiguredMediaTypes(c.Blobs.AllowedMediaTypes)
	c.Blobs.S3.Prefix = strings.Trim(strings.TrimSpace(c.Blobs.S3.Prefix), "/")
	if c.Notify.Exchange == "" {
		c.Notify.Exchange = DefaultNotifyExchange
	}
	if c.Notify.RoutingKey == "" {
		c.Notify.RoutingKey = DefaultNotifyRoutingKey
	}
}

func normalizeConfiguredMediaTypes(rawValues []string) []string {
	if len(rawValues) == 0 {
		return nil
	}
	out := make([]string, 0, len(rawValues))
	seen := map[string]struct{}{}
	for _, raw := range rawValues {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parsed, _, err := mime.ParseMediaType(raw)
		if err != nil {
			continue
		}
		normalized := strings.ToLower(strings.TrimSpace(parsed))
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}
