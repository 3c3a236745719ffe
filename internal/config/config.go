package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/trackshift/platform/uplink/internal/connectors"
	yaml "gopkg.in/yaml.v3"
)

const (
	EnvPrefix = "UPLINK"

	DefaultRPCBind     = ":2333"
	DefaultRPCAddress  = "127.0.0.1:2333"
	DefaultUploadRoot  = "Custom Assets"
	DefaultAuthTimeout = 60 * time.Second
	DefaultMaxMemory   = 32 << 20
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "console"
)

// required for the mapstructure tag
type RPCConfig struct {
	Bind    string `yaml:"bind" mapstructure:"bind"`
	Address string `yaml:"address" mapstructure:"address"`
}

type UploadConfig struct {
	Root          string        `yaml:"root" mapstructure:"root"`
	BindHost      string        `yaml:"bind_host" mapstructure:"bind_host"`
	AdvertiseHost string        `yaml:"advertise_host" mapstructure:"advertise_host"`
	AuthTimeout   time.Duration `yaml:"auth_timeout" mapstructure:"auth_timeout"`
	MaxMemory     int64         `yaml:"max_memory" mapstructure:"max_memory"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

type ClientConfig struct {
	CleanBeforeUpload bool `yaml:"clean_before_upload" mapstructure:"clean_before_upload"`
	// Root is the host storage root as seen from the client. Cleaning is
	// skipped when empty.
	Root string `yaml:"root" mapstructure:"root"`
}

type Config struct {
	RPC               RPCConfig           `yaml:"rpc" mapstructure:"rpc"`
	Upload            UploadConfig        `yaml:"upload" mapstructure:"upload"`
	Connectors        []string            `yaml:"connectors" mapstructure:"connectors"`
	ConnectorStrict   bool                `yaml:"connector_strict" mapstructure:"connector_strict"`
	ConnectorSettings connectors.Settings `yaml:"connector_settings" mapstructure:"connector_settings"`
	PostgresDSN       string              `yaml:"postgres_dsn" mapstructure:"postgres_dsn"`
	Log               LogConfig           `yaml:"log" mapstructure:"log"`
	Client            ClientConfig        `yaml:"client" mapstructure:"client"`
}

func DefaultConfig() *Config {
	return &Config{
		RPC: RPCConfig{
			Bind:    DefaultRPCBind,
			Address: DefaultRPCAddress,
		},
		Upload: UploadConfig{
			Root:        DefaultUploadRoot,
			AuthTimeout: DefaultAuthTimeout,
			MaxMemory:   DefaultMaxMemory,
		},
		Connectors:        []string{},
		ConnectorSettings: connectors.DefaultSettings(),
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Client: ClientConfig{CleanBeforeUpload: true},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("rpc.bind", d.RPC.Bind)
	v.SetDefault("rpc.address", d.RPC.Address)
	v.SetDefault("upload.root", d.Upload.Root)
	v.SetDefault("upload.bind_host", d.Upload.BindHost)
	v.SetDefault("upload.advertise_host", d.Upload.AdvertiseHost)
	v.SetDefault("upload.auth_timeout", d.Upload.AuthTimeout)
	v.SetDefault("upload.max_memory", d.Upload.MaxMemory)
	v.SetDefault("connectors", d.Connectors)
	v.SetDefault("connector_strict", d.ConnectorStrict)
	setConnectorDefaults(v, d.ConnectorSettings)
	v.SetDefault("postgres_dsn", d.PostgresDSN)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("client.clean_before_upload", d.Client.CleanBeforeUpload)
	v.SetDefault("client.root", d.Client.Root)
}

// setConnectorDefaults registers every connector key so that
// UPLINK_CONNECTOR_SETTINGS_* variables reach them.
func setConnectorDefaults(v *viper.Viper, c connectors.Settings) {
	const p = "connector_settings."
	v.SetDefault(p+"s3.bucket", c.S3.Bucket)
	v.SetDefault(p+"s3.prefix", c.S3.Prefix)
	v.SetDefault(p+"s3.region", c.S3.Region)
	v.SetDefault(p+"s3.endpoint", c.S3.Endpoint)
	v.SetDefault(p+"azure.account", c.Azure.Account)
	v.SetDefault(p+"azure.key", c.Azure.Key)
	v.SetDefault(p+"azure.container", c.Azure.Container)
	v.SetDefault(p+"azure.prefix", c.Azure.Prefix)
	v.SetDefault(p+"azure.service_url", c.Azure.ServiceURL)
	v.SetDefault(p+"sftp.host", c.SFTP.Host)
	v.SetDefault(p+"sftp.port", c.SFTP.Port)
	v.SetDefault(p+"sftp.user", c.SFTP.User)
	v.SetDefault(p+"sftp.password", c.SFTP.Password)
	v.SetDefault(p+"sftp.key_path", c.SFTP.KeyPath)
	v.SetDefault(p+"sftp.known_hosts", c.SFTP.KnownHosts)
	v.SetDefault(p+"sftp.base_dir", c.SFTP.BaseDir)
	v.SetDefault(p+"ftps.host", c.FTPS.Host)
	v.SetDefault(p+"ftps.port", c.FTPS.Port)
	v.SetDefault(p+"ftps.user", c.FTPS.User)
	v.SetDefault(p+"ftps.password", c.FTPS.Password)
	v.SetDefault(p+"ftps.base_dir", c.FTPS.BaseDir)
	v.SetDefault(p+"ftps.skip_verify", c.FTPS.SkipVerify)
}

// Load reads the YAML file at path, if any, and applies UPLINK_* environment
// overrides (UPLINK_UPLOAD_ROOT for upload.root and so on).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.RPC.Bind = SanitizeListenAddr(cfg.RPC.Bind)
	cfg.RPC.Address = SanitizeListenAddr(cfg.RPC.Address)
	return &cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.RPC.Bind == "" {
		return errors.New("rpc.bind must not be empty")
	}
	if c.Upload.Root == "" {
		return errors.New("upload.root must not be empty")
	}
	if c.Upload.AuthTimeout <= 0 {
		return fmt.Errorf("upload.auth_timeout must be positive, got %s", c.Upload.AuthTimeout)
	}
	if c.Upload.MaxMemory <= 0 {
		return fmt.Errorf("upload.max_memory must be positive, got %d", c.Upload.MaxMemory)
	}
	return nil
}

func (c Config) Export() ([]byte, error) {
	sb := strings.Builder{}
	sb.WriteString("######################\n")
	sb.WriteString("### uplink Config ###\n")
	sb.WriteString("######################\n\n")

	d, err := yaml.Marshal(&c)
	if err != nil {
		return nil, err
	}
	sb.Write(d)
	sb.WriteString("\n######################\n")
	return []byte(sb.String()), nil
}

// WriteDefault writes the default config to path unless a file already
// exists there.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	data, err := DefaultConfig().Export()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// SanitizeListenAddr trims whitespace/comments so malformed env values (e.g. ":2333 :: note") do not break net.Listen.
func SanitizeListenAddr(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return trimmed
	}
	fields := strings.Fields(trimmed)
	if len(fields) > 0 {
		trimmed = fields[0]
	}
	return strings.Trim(trimmed, "\"'")
}
