package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Format is an output module format for the library bundle.
type Format string

const (
	FormatES   Format = "es"
	FormatIIFE Format = "iife"
	FormatCJS  Format = "cjs"
)

var (
	ErrInvalidConfig     = errors.New("invalid bundle config")
	ErrUnsupportedFormat = errors.New("unsupported bundle format")
)

// Config describes how the browser library bundle is produced.
type Config struct {
	// Entry point the bundler starts dependency traversal from (e.g., "src/main.ts")
	Entry string `yaml:"entry"`
	// Output directory for built files
	OutDir string `yaml:"outDir"`
	// Logical library name, used as the global for iife builds
	Name string `yaml:"name"`
	// Output file base name, extended per format
	FileName string `yaml:"fileName"`
	// Requested module output formats
	Formats []Format `yaml:"formats"`
	// Whether to minify output
	Minify bool `yaml:"minify"`
	// Whether to enable source maps
	SourceMap bool `yaml:"sourceMap"`
	// Copy PublicDir into OutDir after building
	CopyPublicDir bool   `yaml:"copyPublicDir"`
	PublicDir     string `yaml:"publicDir"`
	// Remove previous output before building
	EmptyOutDir bool `yaml:"emptyOutDir"`
	// Path to the combined esbuild metafile
	MetafilePath string `yaml:"metafile"`
}

// DefaultConfig returns the configuration the timer UI ships with
func DefaultConfig() Config {
	return Config{
		Entry:         "src/main.ts",
		OutDir:        filepath.Join("public", "dist"),
		Name:          "htmx-go-timer-vite",
		FileName:      "bundle",
		Formats:       []Format{FormatES},
		Minify:        true,
		SourceMap:     true,
		CopyPublicDir: false,
		PublicDir:     "public",
		EmptyOutDir:   true,
		MetafilePath:  filepath.Join("public", "dist", "meta.json"),
	}
}

// LoadConfig reads a YAML bundle config, starting from DefaultConfig so the
// file only needs to name the fields it changes.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read bundle config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse bundle config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the config before it is handed to the bundler. Paths are
// not checked for existence, the bundler reports those.
func (c Config) Validate() error {
	if c.Entry == "" {
		return fmt.Errorf("%w: entry is required", ErrInvalidConfig)
	}
	if c.OutDir == "" {
		return fmt.Errorf("%w: outDir is required", ErrInvalidConfig)
	}
	if c.FileName == "" {
		return fmt.Errorf("%w: fileName is required", ErrInvalidConfig)
	}
	if strings.ContainsAny(c.FileName, `/\`) {
		return fmt.Errorf("%w: fileName %q must not contain a path separator", ErrInvalidConfig, c.FileName)
	}
	if len(c.Formats) == 0 {
		return fmt.Errorf("%w: at least one format is required", ErrInvalidConfig)
	}

	seen := make(map[Format]bool, len(c.Formats))
	for _, f := range c.Formats {
		switch f {
		case FormatES, FormatCJS:
		case FormatIIFE:
			if c.GlobalName() == "" {
				return fmt.Errorf("%w: name is required for iife builds", ErrInvalidConfig)
			}
		default:
			return fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
		}
		if seen[f] {
			return fmt.Errorf("%w: duplicate format %q", ErrInvalidConfig, f)
		}
		seen[f] = true
	}

	if c.EmptyOutDir && within(c.Entry, c.OutDir) {
		return fmt.Errorf("%w: entry %q is inside outDir %q which is emptied before each build", ErrInvalidConfig, c.Entry, c.OutDir)
	}

	if c.CopyPublicDir {
		if c.PublicDir == "" {
			return fmt.Errorf("%w: publicDir is required when copyPublicDir is set", ErrInvalidConfig)
		}
		if within(c.OutDir, c.PublicDir) {
			return fmt.Errorf("%w: outDir %q is inside publicDir %q, copying would recurse", ErrInvalidConfig, c.OutDir, c.PublicDir)
		}
	}

	return nil
}

// OutputName returns the file name the given format is written to.
func (c Config) OutputName(f Format) string {
	switch f {
	case FormatIIFE:
		return c.FileName + ".iife.js"
	case FormatCJS:
		return c.FileName + ".cjs"
	default:
		return c.FileName + ".js"
	}
}

// PageFormat returns the format pages load with its <script type>: es as a
// module, else iife as a classic script. cjs cannot be loaded by a browser.
func (c Config) PageFormat() (Format, string, error) {
	switch {
	case slices.Contains(c.Formats, FormatES):
		return FormatES, "module", nil
	case slices.Contains(c.Formats, FormatIIFE):
		return FormatIIFE, "text/javascript", nil
	default:
		return "", "", ErrNoPageFormat
	}
}

// GlobalName converts Name into a JS identifier, camel casing across
// separators ("htmx-go-timer-vite" becomes "htmxGoTimerVite").
func (c Config) GlobalName() string {
	var sb strings.Builder
	upper := false
	for _, r := range c.Name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '$' {
			upper = sb.Len() > 0
			continue
		}
		if sb.Len() == 0 && unicode.IsDigit(r) {
			sb.WriteRune('_')
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// within reports whether path is dir or nested below it.
func within(path, dir string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
