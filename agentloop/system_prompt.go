package agentloop

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const maxProjectDocBytes = 32 * 1024 // 32KB

// ProjectDocFile is the project instruction file appended to the prompt.
const ProjectDocFile = "AGENTS.md"

// BuildEnvironmentContext generates the structured environment context block.
func BuildEnvironmentContext(env ExecutionEnvironment, model string) string {
	workingDir := env.WorkingDirectory()
	gitBranch := ""
	isGitRepo := gitRoot(workingDir) != ""
	if isGitRepo {
		gitBranch = getGitBranch(workingDir)
	}

	var sb strings.Builder
	sb.WriteString("<environment>\n")
	fmt.Fprintf(&sb, "Working directory: %s\n", workingDir)
	fmt.Fprintf(&sb, "Is git repository: %v\n", isGitRepo)
	if gitBranch != "" {
		fmt.Fprintf(&sb, "Git branch: %s\n", gitBranch)
	}
	fmt.Fprintf(&sb, "Operating system: %s\n", SystemName(env.Platform()))
	fmt.Fprintf(&sb, "OS version: %s\n", env.OSVersion())
	fmt.Fprintf(&sb, "Today's date: %s\n", time.Now().Format("2006-01-02"))
	if model != "" {
		fmt.Fprintf(&sb, "Model: %s\n", model)
	}
	sb.WriteString("</environment>")
	return sb.String()
}

// DiscoverProjectDocs loads AGENTS.md files from the git root (or working
// directory) down to the working directory, capped at 32KB in total.
func DiscoverProjectDocs(workingDir string) string {
	root := gitRoot(workingDir)
	if root == "" {
		root = workingDir
	}

	var docs []string
	totalBytes := 0

	for _, dir := range collectPathHierarchy(root, workingDir) {
		path := filepath.Join(dir, ProjectDocFile)
		content, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		remaining := maxProjectDocBytes - totalBytes
		if remaining <= 0 {
			docs = append(docs, "[Project instructions truncated at 32KB]")
			break
		}

		text := string(content)
		if len(text) > remaining {
			text = text[:remaining] + "\n[Project instructions truncated at 32KB]"
		}

		docs = append(docs, fmt.Sprintf("# %s (from %s)\n\n%s", ProjectDocFile, dir, text))
		totalBytes += len(text)
	}

	return strings.Join(docs, "\n\n---\n\n")
}

// collectPathHierarchy returns directories from root to target, inclusive.
func collectPathHierarchy(root, target string) []string {
	root = filepath.Clean(root)
	target = filepath.Clean(target)

	dirs := []string{root}
	if root == target {
		return dirs
	}

	rel, err := filepath.Rel(root, target)
	if err != nil || strings.HasPrefix(rel, "..") {
		return dirs
	}

	current := root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if part == "." {
			continue
		}
		current = filepath.Join(current, part)
		dirs = append(dirs, current)
	}
	return dirs
}

func gitRoot(dir string) string {
	return runGit(dir, "rev-parse", "--show-toplevel")
}

func getGitBranch(dir string) string {
	return runGit(dir, "rev-parse", "--abbrev-ref", "HEAD")
}

func runGit(dir string, args ...string) string {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
