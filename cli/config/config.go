package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/dbviz/runtime"
)

// Backends.
const (
	ArchiveFS    = "fs"
	ArchiveMinio = "minio"

	RegistryLode     = "lode"
	RegistrySQLite   = "sqlite"
	RegistryPostgres = "postgres"
	RegistryMemory   = "memory"

	StorageFS = "fs"
	StorageS3 = "s3"

	PolicyStrict   = "strict"
	PolicyBuffered = "buffered"
	PolicyNoop     = "noop"

	AdapterWebhook = "webhook"
	AdapterRedis   = "redis"
)

// Config represents a dbviz.yaml file. Every value has a default; CLI
// flags override file values.
type Config struct {
	Search       EndpointConfig `yaml:"search"`
	Coordination EndpointConfig `yaml:"coordination"`
	Viewer       ViewerConfig   `yaml:"viewer"`
	// Formats is a comma-separated extension allow-list.
	Formats string `yaml:"formats"`
	// IgnoreNonMatching is a pointer so an explicit false survives
	// defaulting.
	IgnoreNonMatching *bool `yaml:"ignore_non_matching"`
	// AcceptLicenses must be true before the export module runs.
	AcceptLicenses bool `yaml:"accept_licenses"`

	Converter ConverterConfig `yaml:"converter"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Registry  RegistryConfig  `yaml:"registry"`
	Storage   StorageConfig   `yaml:"storage"`
	Policy    PolicyConfig    `yaml:"policy"`
	Adapter   AdapterConfig   `yaml:"adapter"`
}

// EndpointConfig is a host and port.
type EndpointConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
}

// ViewerConfig holds the endpoints recorded on derived artifacts.
type ViewerConfig struct {
	Open   EndpointConfig `yaml:"open"`
	Delete EndpointConfig `yaml:"delete"`
}

// DefaultConverter is the converter executable looked up on PATH when
// converter.path is unset.
const DefaultConverter = "dbviz-converter"

// ConverterConfig locates the converter executable.
type ConverterConfig struct {
	Path    string   `yaml:"path"`
	Args    []string `yaml:"args,omitempty"`
	WorkDir string   `yaml:"work_dir"`
}

// ArchiveConfig selects the archive backend.
type ArchiveConfig struct {
	Backend string `yaml:"backend"`
	// Path is the archive root for the fs backend.
	Path  string      `yaml:"path"`
	Minio MinioConfig `yaml:"minio"`
	// CacheSize bounds the container lookup cache. 0 disables it.
	CacheSize *int `yaml:"cache_size"`
}

// MinioConfig configures the object-storage archive.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// RegistryConfig selects the derived-artifact registry.
type RegistryConfig struct {
	Backend string `yaml:"backend"`
	// Path is the sqlite file, or the lode root when the lode registry
	// uses the fs storage backend.
	Path string `yaml:"path"`
	DSN  string `yaml:"dsn"`
}

// StorageConfig configures the lode dataset that receives report trees
// and metrics.
type StorageConfig struct {
	Dataset     string `yaml:"dataset"`
	Source      string `yaml:"source"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// PolicyConfig selects the report persistence policy.
type PolicyConfig struct {
	Type           string `yaml:"type"`
	MaxBufferNodes int    `yaml:"max_buffer_nodes"`
}

// AdapterConfig configures the job completion notifier. An empty Type
// disables notifications.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML strings like "10s".
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// ApplyDefaults fills every unset value.
func (c *Config) ApplyDefaults() {
	def := runtime.DefaultConfig()
	fill := func(e *EndpointConfig, d runtime.Endpoint) {
		if e.Host == "" {
			e.Host = d.Host
		}
		if e.Port == "" {
			e.Port = d.Port
		}
	}
	fill(&c.Search, def.Search)
	fill(&c.Coordination, def.Coordination)
	fill(&c.Viewer.Open, def.ViewerOpen)
	fill(&c.Viewer.Delete, def.ViewerDelete)

	if c.Formats == "" {
		c.Formats = runtime.DefaultFormats
	}
	if c.Converter.Path == "" {
		c.Converter.Path = DefaultConverter
	}
	if c.IgnoreNonMatching == nil {
		v := def.IgnoreNonMatching
		c.IgnoreNonMatching = &v
	}
	if c.Archive.Backend == "" {
		c.Archive.Backend = ArchiveFS
	}
	if c.Registry.Backend == "" {
		c.Registry.Backend = RegistryLode
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageFS
	}
	if c.Storage.Dataset == "" {
		c.Storage.Dataset = "dbviz"
	}
	if c.Storage.Source == "" {
		c.Storage.Source = c.Archive.Backend
	}
	if c.Policy.Type == "" {
		c.Policy.Type = PolicyStrict
	}
}

// Validate rejects unknown backends and missing required values. It
// expects ApplyDefaults to have run.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.Runtime(); err != nil {
		errs = append(errs, err)
	}

	switch c.Archive.Backend {
	case ArchiveFS:
		if c.Archive.Path == "" {
			errs = append(errs, errors.New("archive.path is required for the fs backend"))
		}
	case ArchiveMinio:
		if c.Archive.Minio.Endpoint == "" || c.Archive.Minio.Bucket == "" {
			errs = append(errs, errors.New("archive.minio.endpoint and archive.minio.bucket are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown archive backend %q", c.Archive.Backend))
	}
	if c.Archive.CacheSize != nil && *c.Archive.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("archive.cache_size must be >= 0, got %d", *c.Archive.CacheSize))
	}

	if err := c.ValidateStorage(); err != nil {
		errs = append(errs, err)
	}

	switch c.Policy.Type {
	case PolicyStrict, PolicyNoop:
	case PolicyBuffered:
		if c.Policy.MaxBufferNodes < 0 {
			errs = append(errs, fmt.Errorf("policy.max_buffer_nodes must be >= 0, got %d", c.Policy.MaxBufferNodes))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown policy type %q", c.Policy.Type))
	}

	switch c.Adapter.Type {
	case "":
	case AdapterWebhook, AdapterRedis:
		if c.Adapter.URL == "" {
			errs = append(errs, fmt.Errorf("adapter.url is required for the %s adapter", c.Adapter.Type))
		}
		if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
			errs = append(errs, fmt.Errorf("adapter.retries must be >= 0, got %d", *c.Adapter.Retries))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown adapter type %q", c.Adapter.Type))
	}

	return errors.Join(errs...)
}

// ValidateStorage checks the registry and report storage settings alone,
// for commands that only read what earlier jobs wrote.
func (c *Config) ValidateStorage() error {
	var errs []error
	switch c.Registry.Backend {
	case RegistryLode, RegistryMemory:
	case RegistrySQLite:
		if c.Registry.Path == "" {
			errs = append(errs, errors.New("registry.path is required for the sqlite backend"))
		}
	case RegistryPostgres:
		if c.Registry.DSN == "" {
			errs = append(errs, errors.New("registry.dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown registry backend %q", c.Registry.Backend))
	}

	switch c.Storage.Backend {
	case StorageFS, StorageS3:
		if c.Storage.Path == "" {
			errs = append(errs, fmt.Errorf("storage.path is required for the %s backend", c.Storage.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}

	return errors.Join(errs...)
}

// Runtime returns the job configuration read by the dispatcher.
func (c *Config) Runtime() (runtime.Config, error) {
	ignore := true
	if c.IgnoreNonMatching != nil {
		ignore = *c.IgnoreNonMatching
	}
	rc := runtime.Config{
		Search:            runtime.Endpoint(c.Search),
		Coordination:      runtime.Endpoint(c.Coordination),
		ViewerOpen:        runtime.Endpoint(c.Viewer.Open),
		ViewerDelete:      runtime.Endpoint(c.Viewer.Delete),
		Formats:           runtime.ParseFormats(c.Formats),
		IgnoreNonMatching: ignore,
	}
	return rc, rc.Validate()
}
