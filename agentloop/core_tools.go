package agentloop

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"time"
)

// Tool names exposed to the model.
const (
	ToolRunCommand    = "run_command"
	ToolReadFile      = "read_file"
	ToolWriteFile     = "write_file"
	ToolFixErrors     = "fix_errors"
	ToolGetSystemInfo = "get_system_info"
)

// FileNotFound is the read_file result for a missing file.
const FileNotFound = "❌ File not found"

// CoreTools returns the five built-in tools. commandTimeout bounds each
// run_command call; zero means no limit.
func CoreTools(commandTimeout time.Duration) []RegisteredTool {
	return []RegisteredTool{
		runCommandTool(commandTimeout),
		readFileTool(),
		writeFileTool(),
		fixErrorsTool(DefaultErrorFixRules),
		systemInfoTool(),
	}
}

// NewCoreToolRegistry builds a registry holding CoreTools.
func NewCoreToolRegistry(commandTimeout time.Duration) (*ToolRegistry, error) {
	return NewToolRegistry(CoreTools(commandTimeout)...)
}

// CommandInput documents run_command's single argument.
type CommandInput struct {
	Command string `json:"command" jsonschema_description:"Shell command line to execute; may chain commands with && or ;."`
}

func runCommandTool(timeout time.Duration) RegisteredTool {
	return RegisteredTool{
		Definition: ToolDefinition{
			Name:        ToolRunCommand,
			Description: "Executes one or more shell commands and returns the output.",
			Parameters:  GenerateSchema[CommandInput](),
		},
		Params: []Param{{Name: "command", Description: "Shell command line to execute.", Required: true}},
		Input:  InputPositional,
		Executor: func(ctx context.Context, args map[string]string, env ExecutionEnvironment) (string, error) {
			result, err := env.ExecCommand(ctx, args["command"], timeout)
			if err != nil {
				return "", err
			}
			if result.TimedOut {
				return fmt.Sprintf("❌ Error: command timed out after %s\n%s", timeout, result.Output()), nil
			}
			out := "✅ Command executed:\n" + result.Output()
			if result.ExitCode != 0 {
				out += fmt.Sprintf("\n(exit code %d)", result.ExitCode)
			}
			return out, nil
		},
	}
}

// ReadFileInput documents read_file's single argument.
type ReadFileInput struct {
	FilePath string `json:"file_path" jsonschema_description:"Path of the file to read, relative to the working directory."`
}

func readFileTool() RegisteredTool {
	return RegisteredTool{
		Definition: ToolDefinition{
			Name:        ToolReadFile,
			Description: "Reads and returns the content of a specified file.",
			Parameters:  GenerateSchema[ReadFileInput](),
		},
		Params: []Param{{Name: "file_path", Description: "Path of the file to read.", Required: true}},
		Input:  InputPositional,
		Executor: func(ctx context.Context, args map[string]string, env ExecutionEnvironment) (string, error) {
			path := args["file_path"]
			if !env.FileExists(path) {
				return FileNotFound, nil
			}
			content, err := env.ReadFile(path)
			if errors.Is(err, fs.ErrNotExist) {
				return FileNotFound, nil
			}
			if err != nil {
				return "", err
			}
			return content, nil
		},
	}
}

// WriteFileInput is the named input of write_file.
type WriteFileInput struct {
	Path    string `json:"path" jsonschema_description:"The path to the file that will be written or overwritten."`
	Content string `json:"content" jsonschema_description:"The text content to be written into the file."`
}

func writeFileTool() RegisteredTool {
	return RegisteredTool{
		Definition: ToolDefinition{
			Name:        ToolWriteFile,
			Description: "Writes or overwrites content into a specified file path. Parent directories are created as needed.",
			Parameters:  GenerateSchema[WriteFileInput](),
		},
		Params: []Param{
			{Name: "path", Description: "The path to the file that will be written or overwritten.", Required: true},
			{Name: "content", Description: "The text content to be written into the file.", Required: true},
		},
		Input: InputNamed,
		Executor: func(ctx context.Context, args map[string]string, env ExecutionEnvironment) (string, error) {
			path := args["path"]
			if path == "" {
				return "", errors.New("write_file: path is empty")
			}
			if err := env.WriteFile(path, args["content"]); err != nil {
				return "", err
			}
			return fmt.Sprintf("%s created and code written successfully.", path), nil
		},
	}
}

// ErrorLogInput documents fix_errors' single argument.
type ErrorLogInput struct {
	ErrorLog string `json:"error_log" jsonschema_description:"Error output or stack trace to analyze."`
}

func fixErrorsTool(rules []ErrorFixRule) RegisteredTool {
	return RegisteredTool{
		Definition: ToolDefinition{
			Name:        ToolFixErrors,
			Description: "Analyzes error logs or stack traces and suggests possible fixes.",
			Parameters:  GenerateSchema[ErrorLogInput](),
		},
		Params: []Param{{Name: "error_log", Description: "Error output or stack trace.", Required: true}},
		Input:  InputPositional,
		Executor: func(ctx context.Context, args map[string]string, env ExecutionEnvironment) (string, error) {
			return SuggestFixes(args["error_log"], rules), nil
		},
	}
}

func systemInfoTool() RegisteredTool {
	return RegisteredTool{
		Definition: ToolDefinition{
			Name:        ToolGetSystemInfo,
			Description: "Returns the operating system type (Windows, MacOS, Linux, or Unknown).",
		},
		Input: InputNone,
		Executor: func(ctx context.Context, args map[string]string, env ExecutionEnvironment) (string, error) {
			goos := runtime.GOOS
			if env != nil && env.Platform() != "" {
				goos = env.Platform()
			}
			return SystemName(goos), nil
		},
	}
}
