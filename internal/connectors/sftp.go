package connectors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

type SFTPSettings struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	// KnownHosts enables host key checking. Without it any host key is
	// accepted.
	KnownHosts string `yaml:"known_hosts" mapstructure:"known_hosts"`
	BaseDir    string `yaml:"base_dir" mapstructure:"base_dir"`
}

type sftpConnector struct {
	addr    string
	baseDir string
	ssh     *ssh.ClientConfig
}

func NewSFTPConnector(cfg SFTPSettings) (Connector, error) {
	if cfg.Host == "" || cfg.User == "" {
		return nil, errors.New("sftp connector requires host and user")
	}
	port := cfg.Port
	if port == 0 {
		port = 22
	}
	auths, err := sshAuth(cfg)
	if err != nil {
		return nil, err
	}
	hostKey := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHosts != "" {
		if hostKey, err = knownhosts.New(cfg.KnownHosts); err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}
	}
	return &sftpConnector{
		addr:    net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		baseDir: cfg.BaseDir,
		ssh: &ssh.ClientConfig{
			User:            cfg.User,
			Auth:            auths,
			HostKeyCallback: hostKey,
			Timeout:         10 * time.Second,
		},
	}, nil
}

func sshAuth(cfg SFTPSettings) ([]ssh.AuthMethod, error) {
	var auths []ssh.AuthMethod
	if cfg.KeyPath != "" {
		key, err := os.ReadFile(cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("read key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse key: %w", err)
		}
		auths = append(auths, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auths = append(auths, ssh.Password(cfg.Password))
	}
	if len(auths) == 0 {
		return nil, errors.New("sftp connector requires password or key")
	}
	return auths, nil
}

func (s *sftpConnector) Name() string { return "sftp" }

// Open dials once per upload; every file of the upload shares the session.
func (s *sftpConnector) Open(context.Context) (Session, error) {
	conn, err := ssh.Dial("tcp", s.addr, s.ssh)
	if err != nil {
		return nil, fmt.Errorf("ssh dial: %w", err)
	}
	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("sftp session: %w", err)
	}
	return &sftpSession{conn: conn, client: client, baseDir: s.baseDir}, nil
}

type sftpSession struct {
	conn    *ssh.Client
	client  *sftp.Client
	baseDir string
}

func (s *sftpSession) Store(_ context.Context, key string, body io.ReadSeeker, _ int64) error {
	remote := s.remotePath(key)
	if err := s.client.MkdirAll(path.Dir(remote)); err != nil {
		return fmt.Errorf("sftp mkdir: %w", err)
	}
	f, err := s.client.OpenFile(remote, os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("sftp open %s: %w", remote, err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return fmt.Errorf("sftp write %s: %w", remote, err)
	}
	return f.Close()
}

func (s *sftpSession) remotePath(key string) string {
	if path.IsAbs(s.baseDir) {
		return "/" + remoteKey(s.baseDir, key)
	}
	return remoteKey(s.baseDir, key)
}

func (s *sftpSession) Close() error {
	cerr := s.client.Close()
	if err := s.conn.Close(); err != nil && cerr == nil {
		cerr = err
	}
	return cerr
}
