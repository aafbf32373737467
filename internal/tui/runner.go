package tui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/xupit3r/tunebox/internal/logging"
)

// Fallback replies shown in the chat view
const (
	ModelPathNotFound = "Error: Model path not found."
	CouldNotGenerate  = "Error: Could not generate response."
)

// Job is a running fine-tuning subprocess. Lines carries its merged
// stdout and stderr; Done yields the exit error once Lines is closed.
type Job struct {
	Lines <-chan string
	Done  <-chan error
}

// Runner launches tunebox subcommands as child processes
type Runner interface {
	StartFineTune(ctx context.Context, model, data string) (*Job, error)
	Chat(ctx context.Context, message, modelPath string) string
}

// ExecRunner runs the tunebox binary
type ExecRunner struct {
	Executable string
	ExtraArgs  []string // e.g. --config
}

// NewExecRunner uses executable, or the running binary when empty
func NewExecRunner(executable string, extraArgs ...string) (*ExecRunner, error) {
	if executable == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locating tunebox executable: %w", err)
		}
		executable = self
	}
	return &ExecRunner{Executable: executable, ExtraArgs: extraArgs}, nil
}

func (r *ExecRunner) command(ctx context.Context, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, r.Executable, append(args, r.ExtraArgs...)...)
}

// StartFineTune launches `tunebox finetune --model <model> --data <data>`
func (r *ExecRunner) StartFineTune(ctx context.Context, model, data string) (*Job, error) {
	cmd := r.command(ctx, "finetune", "--model", model, "--data", data)

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		return nil, err
	}
	logging.Infof("Started fine-tuning process %d", cmd.Process.Pid)

	lines := make(chan string, 64)
	done := make(chan error, 1)

	go func() {
		err := cmd.Wait()
		pw.Close()
		done <- err
	}()

	go pumpLines(pr, lines)

	return &Job{Lines: lines, Done: done}, nil
}

// maxLineSize bounds a single line of child output
const maxLineSize = 1024 * 1024

// pumpLines sends each line of r to lines and closes it at EOF. After a
// scan error the rest of r is discarded so the writer never blocks.
func pumpLines(r io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
	if err := scanner.Err(); err != nil {
		logging.Warnf("Fine-tuning output unreadable, discarding the rest: %v", err)
		io.Copy(io.Discard, r)
	}
}

// Chat runs `tunebox chat` and returns its combined output
func (r *ExecRunner) Chat(ctx context.Context, message, modelPath string) string {
	if modelPath == "" {
		return ModelPathNotFound
	}

	cmd := r.command(ctx, "chat", "--message", message, "--modelPath", modelPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		logging.Warnf("Chat process failed: %v", err)
		if len(out) == 0 {
			return CouldNotGenerate
		}
	}
	return strings.TrimRight(string(out), "\n")
}
