package remote

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const testSSHUser = "deploy"

// sshTestServer 进程内 SSH 服务端，sftp 子系统直接操作本机文件系统
type sshTestServer struct {
	addr    string
	hostKey ssh.PublicKey
}

func newSigner(t *testing.T) ssh.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)
	return signer
}

func passwordServerConfig(password string) *ssh.ServerConfig {
	return &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == testSSHUser && string(pass) == password {
				return nil, nil
			}
			return nil, errors.New("password rejected")
		},
	}
}

func keyboardInteractiveServerConfig(password string) *ssh.ServerConfig {
	return &ssh.ServerConfig{
		KeyboardInteractiveCallback: func(c ssh.ConnMetadata, challenge ssh.KeyboardInteractiveChallenge) (*ssh.Permissions, error) {
			answers, err := challenge(c.User(), "", []string{"Password: "}, []bool{false})
			if err != nil {
				return nil, err
			}
			if len(answers) == 1 && answers[0] == password {
				return nil, nil
			}
			return nil, errors.New("password rejected")
		},
	}
}

func startSSHServer(t *testing.T, config *ssh.ServerConfig) *sshTestServer {
	t.Helper()

	signer := newSigner(t)
	config.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveSFTPOverSSH(conn, config)
		}
	}()

	return &sshTestServer{addr: ln.Addr().String(), hostKey: signer.PublicKey()}
}

func serveSFTPOverSSH(conn net.Conn, config *ssh.ServerConfig) {
	sconn, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		conn.Close()
		return
	}
	defer sconn.Close()
	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			return
		}
		go func() {
			for req := range requests {
				ok := req.Type == "subsystem" && len(req.Payload) > 4 && string(req.Payload[4:]) == "sftp"
				req.Reply(ok, nil)
				if !ok {
					continue
				}
				go func() {
					defer channel.Close()
					server, err := sftp.NewServer(channel)
					if err != nil {
						return
					}
					server.Serve()
				}()
			}
		}()
	}
}

func (s *sshTestServer) dialOptions(t *testing.T, password string) DialOptions {
	t.Helper()
	host, portStr, err := net.SplitHostPort(s.addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return DialOptions{
		Host:     host,
		Port:     port,
		Username: testSSHUser,
		Password: password,
		Timeout:  5 * time.Second,
	}
}

func writeKnownHosts(t *testing.T, addr string, key ssh.PublicKey) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "known_hosts")
	line := knownhosts.Line([]string{addr}, key)
	require.NoError(t, os.WriteFile(path, []byte(line+"\n"), 0600))
	return path
}

func TestSFTPDial_PasswordLoginAndUpload(t *testing.T) {
	server := startSSHServer(t, passwordServerConfig("s3cret"))
	root := t.TempDir()

	session, err := NewSFTPDialFunc(server.dialOptions(t, "s3cret"))(context.Background())
	require.NoError(t, err)
	defer session.Close()

	dir := filepath.ToSlash(filepath.Join(root, "public"))
	require.NoError(t, session.MakeDir(dir))
	assert.True(t, IsDirExists(session.MakeDir(dir)))
	require.NoError(t, session.Store(dir+"/index.html", strings.NewReader("<h1>hi</h1>")))

	data, err := os.ReadFile(filepath.Join(root, "public", "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "<h1>hi</h1>", string(data))
}

func TestSFTPDial_KeyboardInteractive(t *testing.T) {
	server := startSSHServer(t, keyboardInteractiveServerConfig("s3cret"))

	session, err := NewSFTPDialFunc(server.dialOptions(t, "s3cret"))(context.Background())
	require.NoError(t, err)
	assert.NoError(t, session.Close())
}

func TestSFTPDial_WrongPassword(t *testing.T) {
	server := startSSHServer(t, passwordServerConfig("s3cret"))

	_, err := NewSFTPDialFunc(server.dialOptions(t, "wrong"))(context.Background())
	assert.Error(t, err)
}

func TestSFTPDial_KnownHostsMatch(t *testing.T) {
	server := startSSHServer(t, passwordServerConfig("s3cret"))

	opts := server.dialOptions(t, "s3cret")
	opts.KnownHostsPath = writeKnownHosts(t, server.addr, server.hostKey)

	session, err := NewSFTPDialFunc(opts)(context.Background())
	require.NoError(t, err)
	assert.NoError(t, session.Close())
}

func TestSFTPDial_HostKeyMismatch(t *testing.T) {
	server := startSSHServer(t, passwordServerConfig("s3cret"))

	opts := server.dialOptions(t, "s3cret")
	opts.KnownHostsPath = writeKnownHosts(t, server.addr, newSigner(t).PublicKey())

	_, err := NewSFTPDialFunc(opts)(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key mismatch")
}

func TestSFTPDial_ContextCanceled(t *testing.T) {
	server := startSSHServer(t, passwordServerConfig("s3cret"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSFTPDialFunc(server.dialOptions(t, "s3cret"))(ctx)
	assert.Error(t, err)
}
