package connectors

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Connector mirrors finished uploads to an external target.
type Connector interface {
	Name() string
	// Open starts a session used for every file of one upload.
	Open(ctx context.Context) (Session, error)
}

type Session interface {
	// Store writes body under key, a slash-separated path relative to the
	// upload root.
	Store(ctx context.Context, key string, body io.ReadSeeker, size int64) error
	Close() error
}

// Settings holds the per-target options of every connector kind. Secrets
// are best supplied through UPLINK_CONNECTOR_SETTINGS_* variables.
type Settings struct {
	S3    S3Settings    `yaml:"s3" mapstructure:"s3"`
	Azure AzureSettings `yaml:"azure" mapstructure:"azure"`
	SFTP  SFTPSettings  `yaml:"sftp" mapstructure:"sftp"`
	FTPS  FTPSSettings  `yaml:"ftps" mapstructure:"ftps"`
}

func DefaultSettings() Settings {
	return Settings{
		SFTP: SFTPSettings{Port: 22},
		FTPS: FTPSSettings{Port: 21},
	}
}

// Load instantiates the named connectors. A connector that fails to
// initialise is logged and skipped.
func Load(ctx context.Context, names []string, settings Settings, logger zerolog.Logger) []Connector {
	var instances []Connector
	for _, name := range names {
		name = strings.TrimSpace(strings.ToLower(name))
		if name == "" {
			continue
		}
		var (
			conn Connector
			err  error
		)
		switch name {
		case "s3":
			conn, err = NewS3Connector(ctx, settings.S3)
		case "azure":
			conn, err = NewAzureBlobConnector(settings.Azure)
		case "sftp":
			conn, err = NewSFTPConnector(settings.SFTP)
		case "ftps":
			conn, err = NewFTPSConnector(settings.FTPS)
		default:
			err = fmt.Errorf("unknown connector %q", name)
		}
		if err != nil {
			logger.Error().Err(err).Str("connector", name).Msg("failed to init connector")
			continue
		}
		logger.Info().Str("connector", conn.Name()).Msg("initialized connector")
		instances = append(instances, conn)
	}
	return instances
}

// Mirror copies every file under root named by keys to each connector. In
// strict mode the first failure is returned; otherwise failures are only
// logged.
func Mirror(ctx context.Context, conns []Connector, root string, keys []string, strict bool, logger zerolog.Logger) error {
	for _, conn := range conns {
		logger := logger.With().Str("connector", conn.Name()).Logger()
		session, err := conn.Open(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("connector unavailable")
			if strict {
				return fmt.Errorf("connector %s: %w", conn.Name(), err)
			}
			continue
		}
		stored, err := mirrorKeys(ctx, session, root, keys, strict, logger)
		if cerr := session.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("failed to close connector session")
		}
		if err != nil {
			return fmt.Errorf("connector %s: %w", conn.Name(), err)
		}
		logger.Info().Int("files", stored).Int("total", len(keys)).Msg("upload mirrored")
	}
	return nil
}

func mirrorKeys(ctx context.Context, session Session, root string, keys []string, strict bool, logger zerolog.Logger) (int, error) {
	stored := 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return stored, err
		}
		if err := mirrorOne(ctx, session, root, key); err != nil {
			logger.Error().Err(err).Str("key", key).Msg("connector failed to store file")
			if strict {
				return stored, fmt.Errorf("%s: %w", key, err)
			}
			continue
		}
		stored++
	}
	return stored, nil
}

func mirrorOne(ctx context.Context, session Session, root, key string) error {
	f, err := os.Open(filepath.Join(root, filepath.FromSlash(key)))
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	return session.Store(ctx, key, f, info.Size())
}

// remoteKey joins key under prefix. An empty prefix leaves key as is.
func remoteKey(prefix, key string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return key
	}
	return path.Join(prefix, key)
}
