package viewsync

import (
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// Speaker reads page text aloud. Cancel stops whatever is being spoken and is
// a no-op when nothing is.
type Speaker interface {
	Speak(text string) error
	Cancel()
}

// CommandNarrator speaks by running an external text-to-speech program with
// the text as its final argument, for example "espeak" or "say".
type CommandNarrator struct {
	name   string
	args   []string
	logger Logger

	mu      sync.Mutex
	current *exec.Cmd
}

func NewCommandNarrator(command string, logger Logger) (*CommandNarrator, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("speech command is empty")
	}
	if _, err := exec.LookPath(fields[0]); err != nil {
		return nil, fmt.Errorf("speech command %q: %w", fields[0], err)
	}
	return &CommandNarrator{name: fields[0], args: fields[1:], logger: logger}, nil
}

func (n *CommandNarrator) Speak(text string) error {
	n.Cancel()
	args := append(append([]string(nil), n.args...), text)
	cmd := exec.Command(n.name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	n.mu.Lock()
	n.current = cmd
	n.mu.Unlock()
	go func() {
		err := cmd.Wait()
		n.mu.Lock()
		if n.current == cmd {
			n.current = nil
		}
		n.mu.Unlock()
		if err != nil && n.logger != nil && cmd.ProcessState != nil && !cmd.ProcessState.Success() && cmd.ProcessState.ExitCode() != -1 {
			n.logger.Printf("speech command exited: %v", err)
		}
	}()
	return nil
}

func (n *CommandNarrator) Cancel() {
	n.mu.Lock()
	cmd := n.current
	n.current = nil
	n.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

func (n *CommandNarrator) Speaking() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current != nil
}

// WriterNarrator prints what would be spoken. It is the default when no
// speech command is configured.
type WriterNarrator struct {
	mu       sync.Mutex
	out      io.Writer
	speaking bool
}

func NewWriterNarrator(out io.Writer) *WriterNarrator {
	return &WriterNarrator{out: out}
}

func (n *WriterNarrator) Speak(text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.speaking = true
	_, err := fmt.Fprintf(n.out, "[reading] %s\n", text)
	return err
}

func (n *WriterNarrator) Cancel() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.speaking {
		return
	}
	n.speaking = false
	fmt.Fprintln(n.out, "[reading stopped]")
}

func (n *WriterNarrator) Speaking() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.speaking
}
