package device

import (
	_ "embed"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed capture_tools.toml
var captureToolsTOML []byte

// ToolDefinition describes how to invoke a capture tool.
type ToolDefinition struct {
	Description string   `toml:"description"`
	Platforms   []string `toml:"platforms"`
	Priority    int      `toml:"priority"`
	Args        []string `toml:"args,omitempty"`
	ArgsDarwin  []string `toml:"args_darwin,omitempty"`
	ArgsLinux   []string `toml:"args_linux,omitempty"`
	ArgsWindows []string `toml:"args_windows,omitempty"`
}

type toolsFile struct {
	Tools map[string]ToolDefinition `toml:"tools"`
}

// ToolRegistry holds the known capture tools.
type ToolRegistry struct {
	tools    map[string]ToolDefinition
	lookPath func(string) (string, error)
}

// NewToolRegistry loads the built-in tool table.
func NewToolRegistry() (*ToolRegistry, error) {
	var f toolsFile
	if err := toml.Unmarshal(captureToolsTOML, &f); err != nil {
		return nil, fmt.Errorf("parsing capture_tools.toml: %w", err)
	}
	if f.Tools == nil {
		f.Tools = make(map[string]ToolDefinition)
	}
	return &ToolRegistry{tools: f.Tools, lookPath: exec.LookPath}, nil
}

// LoadOverrides merges tool definitions from a user file. A missing file is
// not an error.
func (r *ToolRegistry) LoadOverrides(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var f toolsFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	for name, def := range f.Tools {
		r.tools[name] = def
	}
	return nil
}

func (r *ToolRegistry) Tool(name string) (ToolDefinition, bool) {
	def, ok := r.tools[name]
	return def, ok
}

// Candidates lists the tools declared for goos, highest priority first.
func (r *ToolRegistry) Candidates(goos string) []string {
	var names []string
	for name, def := range r.tools {
		for _, p := range def.Platforms {
			if p == goos {
				names = append(names, name)
				break
			}
		}
	}
	sort.Slice(names, func(i, j int) bool {
		pi, pj := r.tools[names[i]].Priority, r.tools[names[j]].Priority
		if pi != pj {
			return pi > pj
		}
		return names[i] < names[j]
	})
	return names
}

// FindAvailable returns the first candidate for goos that is installed.
// preferred, when set and installed, wins.
func (r *ToolRegistry) FindAvailable(goos, preferred string) (string, bool) {
	if preferred != "" {
		if _, err := r.lookPath(preferred); err == nil {
			return preferred, true
		}
	}
	for _, name := range r.Candidates(goos) {
		if _, err := r.lookPath(name); err == nil {
			return name, true
		}
	}
	return "", false
}

// Args builds the argument list for name on goos. Tools without a table entry
// are rejected; define them in the overrides file to use them.
func (r *ToolRegistry) Args(name, goos, output string, quality int) ([]string, error) {
	def, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("unknown capture tool %q: add it to the capture tools file", name)
	}

	args := def.Args
	switch goos {
	case "darwin":
		if len(def.ArgsDarwin) > 0 {
			args = def.ArgsDarwin
		}
	case "linux":
		if len(def.ArgsLinux) > 0 {
			args = def.ArgsLinux
		}
	case "windows":
		if len(def.ArgsWindows) > 0 {
			args = def.ArgsWindows
		}
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("%s has no arguments for %s", name, goos)
	}

	replacer := strings.NewReplacer(
		"{output}", output,
		"{quality}", strconv.Itoa(quality),
		"{qscale}", strconv.Itoa(qscale(quality)),
	)
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = replacer.Replace(a)
	}
	return out, nil
}

// qscale maps a 0-100 JPEG quality onto ffmpeg's -q:v scale, where 2 is the
// best and 31 the worst.
func qscale(quality int) int {
	quality = max(0, min(100, quality))
	return 31 - quality*29/100
}
