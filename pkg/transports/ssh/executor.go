package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/pkg/sftp"
	cryptossh "golang.org/x/crypto/ssh"
)

// Result holds the outcome of one remote command.
type Result struct {
	// Command is the command line that was executed.
	Command string

	// ExitCode is the command's exit status.
	ExitCode int

	// Stdout is the captured standard output.
	Stdout string

	// Stderr is the captured standard error.
	Stderr string
}

// Run executes a command on the node and captures its output. A
// non-zero exit status is returned as an error alongside the result,
// so callers can inspect stderr.
func (c *Client) Run(ctx context.Context, command string) (*Result, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("ssh: open session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	var runErr error
	select {
	case runErr = <-done:
	case <-ctx.Done():
		// Best effort: tear the session down so the goroutine unblocks.
		session.Close()
		<-done
		return nil, ctx.Err()
	}

	result := &Result{
		Command: command,
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
	}
	if runErr != nil {
		var exitErr *cryptossh.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
		}
		return result, fmt.Errorf("ssh: %q failed: %w", command, runErr)
	}
	return result, nil
}

// Upload copies a local file to remotePath on the node over SFTP,
// creating parent directories as needed.
func (c *Client) Upload(ctx context.Context, localPath, remotePath string) error {
	client, err := sftp.NewClient(c.client)
	if err != nil {
		return fmt.Errorf("sftp: open client: %w", err)
	}
	defer client.Close()

	local, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("sftp: open local file: %w", err)
	}
	defer local.Close()

	if dir := path.Dir(remotePath); dir != "." && dir != "/" {
		if err := client.MkdirAll(dir); err != nil {
			return fmt.Errorf("sftp: create remote dir %s: %w", dir, err)
		}
	}

	remote, err := client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("sftp: create remote file %s: %w", remotePath, err)
	}
	defer remote.Close()

	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := io.Copy(remote, local); err != nil {
		return fmt.Errorf("sftp: copy to %s: %w", remotePath, err)
	}
	return nil
}
