package connectors

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/secsy/goftp"
)

type FTPSSettings struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	BaseDir  string `yaml:"base_dir" mapstructure:"base_dir"`
	// SkipVerify accepts self-signed certificates, common on LAN NAS boxes.
	SkipVerify bool `yaml:"skip_verify" mapstructure:"skip_verify"`
}

type ftpsConnector struct {
	config  goftp.Config
	addr    string
	baseDir string
}

func NewFTPSConnector(cfg FTPSSettings) (Connector, error) {
	if cfg.Host == "" || cfg.User == "" || cfg.Password == "" {
		return nil, errors.New("ftps connector requires host, user and password")
	}
	port := cfg.Port
	if port == 0 {
		port = 21
	}
	return &ftpsConnector{
		config: goftp.Config{
			User:               cfg.User,
			Password:           cfg.Password,
			TLSConfig:          &tls.Config{ServerName: cfg.Host, InsecureSkipVerify: cfg.SkipVerify},
			TLSMode:            goftp.TLSExplicit,
			Timeout:            30 * time.Second,
			ConnectionsPerHost: 1,
		},
		addr:    net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		baseDir: cfg.BaseDir,
	}, nil
}

func (f *ftpsConnector) Name() string { return "ftps" }

func (f *ftpsConnector) Open(context.Context) (Session, error) {
	client, err := goftp.DialConfig(f.config, f.addr)
	if err != nil {
		return nil, fmt.Errorf("ftps dial: %w", err)
	}
	return &ftpsSession{client: client, baseDir: f.baseDir, made: map[string]bool{}}, nil
}

type ftpsSession struct {
	client  *goftp.Client
	baseDir string
	// made caches directories created during this session.
	made map[string]bool
}

func (f *ftpsSession) Store(_ context.Context, key string, body io.ReadSeeker, _ int64) error {
	target := remoteKey(f.baseDir, key)
	if err := f.ensureDir(path.Dir(target)); err != nil {
		return err
	}
	if err := f.client.Store(target, body); err != nil {
		return fmt.Errorf("ftps store %s: %w", target, err)
	}
	return nil
}

func (f *ftpsSession) ensureDir(dir string) error {
	if dir == "" || dir == "." || dir == "/" {
		return nil
	}
	current := ""
	for _, segment := range strings.Split(dir, "/") {
		if segment == "" {
			continue
		}
		current = path.Join(current, segment)
		if f.made[current] {
			continue
		}
		if _, err := f.client.Mkdir(current); err != nil && !strings.Contains(strings.ToLower(err.Error()), "exists") {
			return fmt.Errorf("ftps mkdir %s: %w", current, err)
		}
		f.made[current] = true
	}
	return nil
}

func (f *ftpsSession) Close() error {
	return f.client.Close()
}
