// Package ssh provides the process-execution transport provisioning
// steps use against remote nodes: key-authenticated command execution
// and SFTP file upload. The engine itself never imports this package;
// step logic does.
package ssh

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"
)

// Config describes one remote node connection.
type Config struct {
	// Host is the node's address (hostname or IP).
	Host string

	// Port is the SSH port; 22 when zero.
	Port int

	// User is the login user.
	User string

	// PrivateKeyPath points at the PEM-encoded private key used for
	// authentication.
	PrivateKeyPath string

	// ConnectTimeout bounds connection establishment; 30s when zero.
	ConnectTimeout time.Duration

	// HostKeyCallback verifies the node's host key. Defaults to
	// accepting any key: freshly flashed nodes have freshly generated
	// host keys, and the operator is on the same LAN segment.
	HostKeyCallback ssh.HostKeyCallback
}

// Address returns the host:port dial address.
func (c *Config) Address() string {
	port := c.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", port))
}

// Validate checks the config for required fields.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("ssh: host is required")
	}
	if c.User == "" {
		return fmt.Errorf("ssh: user is required")
	}
	if c.PrivateKeyPath == "" {
		return fmt.Errorf("ssh: private key path is required")
	}
	return nil
}

// Client is a single connection to one remote node.
type Client struct {
	config *Config
	client *ssh.Client
}

// Connect dials the node and authenticates with the configured key.
func Connect(ctx context.Context, config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	keyData, err := os.ReadFile(config.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("ssh: read private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("ssh: parse private key: %w", err)
	}

	timeout := config.ConnectTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	hostKeyCallback := config.HostKeyCallback
	if hostKeyCallback == nil {
		hostKeyCallback = ssh.InsecureIgnoreHostKey() // #nosec G106
	}

	clientConfig := &ssh.ClientConfig{
		User:            config.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", config.Address())
	if err != nil {
		return nil, fmt.Errorf("ssh: dial %s: %w", config.Address(), err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, config.Address(), clientConfig)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh: handshake with %s: %w", config.Address(), err)
	}

	return &Client{
		config: config,
		client: ssh.NewClient(sshConn, chans, reqs),
	}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}
