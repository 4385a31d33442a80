package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	lodelib "github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/dbviz/adapter"
	"github.com/pithecene-io/dbviz/adapter/redis"
	"github.com/pithecene-io/dbviz/adapter/webhook"
	"github.com/pithecene-io/dbviz/archive"
	"github.com/pithecene-io/dbviz/cli/config"
	"github.com/pithecene-io/dbviz/lode"
	"github.com/pithecene-io/dbviz/log"
	"github.com/pithecene-io/dbviz/policy"
	"github.com/pithecene-io/dbviz/registry"
)

// loadConfig reads --config when set, applies flag overrides and
// defaults, and validates the result for a job run. Validation errors
// exit with exitInvalidInput.
func loadConfig(c *cli.Context) (*config.Config, error) {
	return loadWith(c, (*config.Config).Validate)
}

// loadStorageConfig is loadConfig for commands that only read the
// registry or report storage.
func loadStorageConfig(c *cli.Context) (*config.Config, error) {
	return loadWith(c, (*config.Config).ValidateStorage)
}

func loadWith(c *cli.Context, validate func(*config.Config) error) (*config.Config, error) {
	cfg := &config.Config{}
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, cli.Exit(err.Error(), exitInvalidInput)
		}
		cfg = loaded
	}
	applyFlagOverrides(c, cfg)
	cfg.ApplyDefaults()
	if err := validate(cfg); err != nil {
		return nil, cli.Exit(fmt.Sprintf("invalid configuration: %v", err), exitInvalidInput)
	}
	return cfg, nil
}

// applyFlagOverrides copies every explicitly set flag over the file value.
// Flags not defined on the running command are ignored.
func applyFlagOverrides(c *cli.Context, cfg *config.Config) {
	str := func(name string, dst *string) {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	str("formats", &cfg.Formats)
	str("converter", &cfg.Converter.Path)
	str("archive-backend", &cfg.Archive.Backend)
	str("archive-path", &cfg.Archive.Path)
	str("storage-backend", &cfg.Storage.Backend)
	str("storage-path", &cfg.Storage.Path)
	str("storage-region", &cfg.Storage.Region)
	str("dataset", &cfg.Storage.Dataset)
	str("registry-backend", &cfg.Registry.Backend)
	str("registry-path", &cfg.Registry.Path)
	str("registry-dsn", &cfg.Registry.DSN)
	str("policy", &cfg.Policy.Type)
	if c.IsSet("ignore-non-matching") {
		v := c.Bool("ignore-non-matching")
		cfg.IgnoreNonMatching = &v
	}
	if c.IsSet("accept-licenses") {
		cfg.AcceptLicenses = c.Bool("accept-licenses")
	}
	if c.IsSet("max-buffer-nodes") {
		cfg.Policy.MaxBufferNodes = c.Int("max-buffer-nodes")
	}
}

// buildArchive opens the configured archive, wrapped in the container
// lookup cache unless its size is 0.
func buildArchive(cfg *config.Config, tempDir string) (archive.Model, archive.Archive, error) {
	var arch archive.Archive
	var err error
	switch cfg.Archive.Backend {
	case config.ArchiveFS:
		arch, err = archive.NewFSArchive(cfg.Archive.Path)
	case config.ArchiveMinio:
		m := cfg.Archive.Minio
		arch, err = archive.NewMinioArchive(archive.MinioConfig{
			Endpoint:  m.Endpoint,
			Region:    m.Region,
			AccessKey: m.AccessKey,
			SecretKey: m.SecretKey,
			Bucket:    m.Bucket,
			Prefix:    m.Prefix,
			UseSSL:    m.UseSSL,
			TempDir:   tempDir,
		})
	default:
		err = fmt.Errorf("unknown archive backend %q", cfg.Archive.Backend)
	}
	if err != nil {
		return nil, nil, err
	}

	size := archive.DefaultCacheSize
	if cfg.Archive.CacheSize != nil {
		size = *cfg.Archive.CacheSize
	}
	if size == 0 {
		return arch, arch, nil
	}
	cached, err := archive.NewCachedModel(arch, size)
	if err != nil {
		_ = arch.Close()
		return nil, nil, err
	}
	return cached, arch, nil
}

// storeFactory returns the lode store factory for the report storage
// settings.
func storeFactory(ctx context.Context, cfg *config.Config) (lodelib.StoreFactory, error) {
	switch cfg.Storage.Backend {
	case config.StorageFS:
		if err := os.MkdirAll(cfg.Storage.Path, 0o755); err != nil {
			return nil, lode.WrapInitError(err, cfg.Storage.Path)
		}
		return lodelib.NewFSFactory(cfg.Storage.Path), nil
	case config.StorageS3:
		return lode.NewS3Factory(ctx, s3Config(cfg))
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func s3Config(cfg *config.Config) lode.S3Config {
	bucket, prefix := lode.ParseS3Path(cfg.Storage.Path)
	return lode.S3Config{
		Bucket:       bucket,
		Prefix:       prefix,
		Region:       cfg.Storage.Region,
		Endpoint:     cfg.Storage.Endpoint,
		UsePathStyle: cfg.Storage.S3PathStyle,
	}
}

// buildRegistry opens the derived-artifact registry. The lode registry
// shares the report storage unless registry.path names its own fs root.
func buildRegistry(ctx context.Context, cfg *config.Config) (registry.Store, error) {
	switch cfg.Registry.Backend {
	case config.RegistryMemory:
		return registry.NewMemoryStore(), nil
	case config.RegistrySQLite:
		if dir := filepath.Dir(cfg.Registry.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		return registry.NewSQLiteStore(cfg.Registry.Path)
	case config.RegistryPostgres:
		return registry.NewPostgresStore(cfg.Registry.DSN)
	case config.RegistryLode:
		if cfg.Registry.Path != "" {
			if err := os.MkdirAll(cfg.Registry.Path, 0o755); err != nil {
				return nil, lode.WrapInitError(err, cfg.Registry.Path)
			}
			return lode.NewArtifactStore(lodelib.NewFSFactory(cfg.Registry.Path)), nil
		}
		factory, err := storeFactory(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return lode.NewArtifactStore(factory), nil
	default:
		return nil, fmt.Errorf("unknown registry backend %q", cfg.Registry.Backend)
	}
}

// buildReportClient opens the lode client that receives report trees and
// the final metrics record.
func buildReportClient(ctx context.Context, cfg *config.Config, lc lode.Config) (lode.Client, error) {
	factory, err := storeFactory(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return lode.NewLodeClientWithFactory(lc, factory)
}

// buildPolicy wraps sink in the configured persistence policy.
func buildPolicy(cfg *config.Config, sink policy.Sink, logger *log.Logger) (policy.Policy, error) {
	switch cfg.Policy.Type {
	case config.PolicyStrict:
		return policy.NewStrictPolicy(sink), nil
	case config.PolicyBuffered:
		bc := policy.DefaultBufferedConfig()
		if cfg.Policy.MaxBufferNodes > 0 {
			bc.MaxBufferNodes = cfg.Policy.MaxBufferNodes
		}
		bc.Logger = logger
		return policy.NewBufferedPolicy(sink, bc)
	case config.PolicyNoop:
		return policy.NewNoopPolicy(), nil
	default:
		return nil, fmt.Errorf("unknown policy type %q", cfg.Policy.Type)
	}
}

// buildAdapter returns nil when notifications are disabled.
func buildAdapter(cfg *config.Config) (adapter.Adapter, error) {
	ac := cfg.Adapter
	retries := webhook.DefaultRetries
	if ac.Retries != nil {
		retries = *ac.Retries
	}
	switch ac.Type {
	case "":
		return nil, nil
	case config.AdapterWebhook:
		return webhook.New(webhook.Config{
			URL:     ac.URL,
			Headers: ac.Headers,
			Timeout: ac.Timeout.Duration,
			Retries: retries,
		})
	case config.AdapterRedis:
		return redis.New(redis.Config{
			URL:     ac.URL,
			Channel: ac.Channel,
			Timeout: ac.Timeout.Duration,
			Retries: retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter type %q", ac.Type)
	}
}

// publishTimeout bounds the completion notification after the job.
const publishTimeout = 30 * time.Second

// publish sends the completion event. Failures are logged and never change
// the job's exit code.
func publish(ctx context.Context, a adapter.Adapter, event *adapter.JobCompletedEvent, logger *log.Logger) {
	if a == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := a.Publish(ctx, event); err != nil {
		logger.Warn("completion event not published", map[string]any{"error": err.Error()})
		return
	}
	logger.Info("completion event published", map[string]any{"event_type": event.EventType})
}

var errNoItems = errors.New("at least one --id is required")
