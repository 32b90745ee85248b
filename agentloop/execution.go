package agentloop

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// ExecResult holds the result of a command execution.
type ExecResult struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	TimedOut bool          `json:"timed_out"`
	Duration time.Duration `json:"duration"`
}

// Output returns trimmed stdout, or trimmed stderr when stdout is empty.
func (r ExecResult) Output() string {
	if out := strings.TrimSpace(r.Stdout); out != "" {
		return out
	}
	return strings.TrimSpace(r.Stderr)
}

// ExecutionEnvironment abstracts where tool operations run.
type ExecutionEnvironment interface {
	ReadFile(path string) (string, error)
	WriteFile(path string, content string) error
	FileExists(path string) bool

	// ExecCommand runs command through the platform shell. A zero timeout
	// means no limit beyond ctx.
	ExecCommand(ctx context.Context, command string, timeout time.Duration) (*ExecResult, error)

	WorkingDirectory() string
	Platform() string
	OSVersion() string
}

// LocalExecutionEnvironment runs tools on the local machine.
type LocalExecutionEnvironment struct {
	workingDir string
	platform   string
	osVersion  string
}

// NewLocalExecutionEnvironment creates a local execution environment rooted
// at workingDir (the process working directory when empty).
func NewLocalExecutionEnvironment(workingDir string) *LocalExecutionEnvironment {
	if workingDir == "" {
		workingDir, _ = os.Getwd()
	}
	if abs, err := filepath.Abs(workingDir); err == nil {
		workingDir = abs
	}
	return &LocalExecutionEnvironment{
		workingDir: workingDir,
		platform:   runtime.GOOS,
		osVersion:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// Initialize creates the working directory if needed.
func (e *LocalExecutionEnvironment) Initialize() error {
	return os.MkdirAll(e.workingDir, 0755)
}

func (e *LocalExecutionEnvironment) WorkingDirectory() string {
	return e.workingDir
}

func (e *LocalExecutionEnvironment) Platform() string {
	return e.platform
}

func (e *LocalExecutionEnvironment) OSVersion() string {
	return e.osVersion
}

func (e *LocalExecutionEnvironment) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(e.workingDir, path)
}

func (e *LocalExecutionEnvironment) ReadFile(path string) (string, error) {
	data, err := os.ReadFile(e.resolvePath(path))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func (e *LocalExecutionEnvironment) WriteFile(path string, content string) error {
	resolved := e.resolvePath(path)
	if err := os.MkdirAll(filepath.Dir(resolved), 0755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (e *LocalExecutionEnvironment) FileExists(path string) bool {
	_, err := os.Stat(e.resolvePath(path))
	return err == nil
}

func (e *LocalExecutionEnvironment) ExecCommand(ctx context.Context, command string, timeout time.Duration) (*ExecResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shell, shellArg := "/bin/sh", "-c"
	if runtime.GOOS == "windows" {
		shell, shellArg = "cmd.exe", "/C"
	}

	cmd := exec.CommandContext(ctx, shell, shellArg, command)
	cmd.Dir = e.workingDir
	// Background children can hold the pipes open after the shell exits.
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	result := &ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			result.TimedOut = true
			result.ExitCode = -1
		case ctx.Err() != nil:
			return result, ctx.Err()
		case errors.As(err, &exitErr):
			result.ExitCode = exitErr.ExitCode()
		case errors.Is(err, exec.ErrWaitDelay):
			// The command finished; only stray descendants kept the pipes.
		default:
			return nil, fmt.Errorf("exec %q: %w", command, err)
		}
	}

	return result, nil
}

// SystemName maps a GOOS value to the names the model is told about.
func SystemName(goos string) string {
	switch goos {
	case "darwin":
		return "MacOS"
	case "linux":
		return "Linux"
	case "windows":
		return "Windows"
	default:
		return "Unknown"
	}
}
