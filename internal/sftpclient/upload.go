// Package sftpclient publishes exported feed files to the static host.
package sftpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"webinar-directory/internal/config"
)

type Config struct {
	Host      string
	Port      int
	User      string
	Pass      string
	RemoteDir string
	// KnownHostsPath verifies the server key. Without it the key is only
	// skipped when InsecureIgnoreHostKey is set.
	KnownHostsPath        string
	InsecureIgnoreHostKey bool
	Timeout               time.Duration
}

// FromConfig maps the sftp config section.
func FromConfig(c config.SFTPConfig) Config {
	return Config{
		Host:                  c.Host,
		Port:                  c.Port,
		User:                  c.User,
		Pass:                  c.Pass,
		RemoteDir:             c.RemoteDir,
		KnownHostsPath:        c.KnownHostsPath,
		InsecureIgnoreHostKey: c.InsecureIgnoreHostKey,
	}
}

var ErrNoHostKeyPolicy = errors.New("sftp: set known_hosts_path or insecure_ignore_host_key")

func hostKeyCallback(cfg Config) (ssh.HostKeyCallback, error) {
	switch {
	case cfg.KnownHostsPath != "":
		cb, err := knownhosts.New(cfg.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("sftp: known_hosts: %w", err)
		}
		return cb, nil
	case cfg.InsecureIgnoreHostKey:
		return ssh.InsecureIgnoreHostKey(), nil
	default:
		return nil, ErrNoHostKeyPolicy
	}
}

// UploadFile copies localPath to RemoteDir/remoteFileName. The file is
// written under a temporary name and renamed into place so readers of the
// static host never see a partial feed. It returns the remote path.
func UploadFile(ctx context.Context, cfg Config, localPath string, remoteFileName string) (string, error) {
	if cfg.Host == "" || cfg.User == "" || cfg.Pass == "" {
		return "", fmt.Errorf("sftp: missing env SFTP_HOST / SFTP_USER / SFTP_PASS")
	}
	if cfg.Port <= 0 {
		cfg.Port = 22
	}
	if cfg.RemoteDir == "" {
		cfg.RemoteDir = "/"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	cb, err := hostKeyCallback(cfg)
	if err != nil {
		return "", err
	}

	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("sftp: open local file: %w", err)
	}
	defer src.Close()

	sshCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.Password(cfg.Pass)},
		HostKeyCallback: cb,
		Timeout:         cfg.Timeout,
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	type dialRes struct {
		client *ssh.Client
		err    error
	}
	ch := make(chan dialRes, 1)
	go func() {
		c, err := ssh.Dial("tcp", addr, sshCfg)
		ch <- dialRes{client: c, err: err}
	}()

	var sshClient *ssh.Client
	select {
	case <-ctx.Done():
		// a late successful dial must not leak its connection
		go func() {
			if r := <-ch; r.client != nil {
				r.client.Close()
			}
		}()
		return "", fmt.Errorf("sftp: dial canceled: %w", ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return "", fmt.Errorf("sftp: dial error: %w", r.err)
		}
		sshClient = r.client
	}
	defer sshClient.Close()

	sftpCli, err := sftp.NewClient(sshClient)
	if err != nil {
		return "", fmt.Errorf("sftp: new client: %w", err)
	}
	defer sftpCli.Close()

	if err := sftpCli.MkdirAll(cfg.RemoteDir); err != nil {
		return "", fmt.Errorf("sftp: mkdir %s: %w", cfg.RemoteDir, err)
	}

	remotePath := path.Join(cfg.RemoteDir, remoteFileName)
	tmpPath := remotePath + ".uploading"
	if err := copyTo(sftpCli, tmpPath, src); err != nil {
		_ = sftpCli.Remove(tmpPath)
		return "", err
	}
	if err := sftpCli.PosixRename(tmpPath, remotePath); err != nil {
		// servers without the posix-rename extension refuse to overwrite
		_ = sftpCli.Remove(remotePath)
		if err := sftpCli.Rename(tmpPath, remotePath); err != nil {
			return "", fmt.Errorf("sftp: rename into place: %w", err)
		}
	}
	return remotePath, nil
}

func copyTo(cli *sftp.Client, remotePath string, src io.Reader) error {
	dst, err := cli.Create(remotePath)
	if err != nil {
		return fmt.Errorf("sftp: create remote file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("sftp: upload copy: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("sftp: close remote file: %w", err)
	}
	return nil
}
