package speech

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
)

// CommandRecognizer runs an external speech-to-text program for every
// Start and reads its stdout with a LineRecognizer. The program is killed
// on Stop.
type CommandRecognizer struct {
	command string

	mu   sync.Mutex
	cmd  *exec.Cmd
	line *LineRecognizer
}

// NewCommandRecognizer returns a recognizer running command through sh -c.
func NewCommandRecognizer(command string) *CommandRecognizer {
	return &CommandRecognizer{command: command}
}

func (c *CommandRecognizer) Start(ctx context.Context, onResult func(Result), onErr func(error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd != nil {
		return errors.New("speech command already running")
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", c.command)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("speech command stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start speech command: %w", err)
	}

	line := NewLineRecognizer(out)
	// The program may exit on its own; reap it so the next Start can run.
	done := func(err error) {
		c.mu.Lock()
		owned := c.cmd == cmd
		if owned {
			c.cmd, c.line = nil, nil
		}
		c.mu.Unlock()
		if owned {
			_ = cmd.Wait()
		}
		onErr(err)
	}
	if err := line.Start(ctx, onResult, done); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return err
	}

	c.cmd, c.line = cmd, line
	return nil
}

// Stop kills the running program and reaps it.
func (c *CommandRecognizer) Stop() error {
	c.mu.Lock()
	cmd, line := c.cmd, c.line
	c.cmd, c.line = nil, nil
	c.mu.Unlock()

	if cmd == nil {
		return nil
	}
	_ = line.Stop()
	_ = cmd.Process.Kill()
	// Exit status after a kill carries no information.
	_ = cmd.Wait()
	return nil
}
