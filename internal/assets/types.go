package assets

import (
	"errors"
	"html/template"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const defaultStaticPrefix = "/static/"

var (
	ErrNotBuilt            = errors.New("assets not built yet, call Build() first")
	ErrEntryNotFound       = errors.New("entrypoint not found in metadata")
	ErrTemplateMissing     = errors.New("template not loaded, use NewWithTemplateDir")
	ErrFormatNotConfigured = errors.New("format not in bundle config")
	ErrNoPageFormat        = errors.New("bundle config has no es or iife format to serve pages with")
)

// BuildError carries every message esbuild reported for a failed build.
type BuildError struct {
	Format   Format
	Messages []string
}

func (e *BuildError) Error() string {
	return "esbuild " + string(e.Format) + " build failed: " + strings.Join(e.Messages, "; ")
}

type BuildMetadata struct {
	Outputs map[string]OutputInfo `json:"outputs"`
}

type OutputInfo struct {
	EntryPoint string       `json:"entryPoint"`
	Imports    []ImportInfo `json:"imports"`
	Bytes      int64        `json:"bytes"`
}

type ImportInfo struct {
	Path     string `json:"path"`
	External bool   `json:"external"`
}

// OutputFile is a file written by a build.
type OutputFile struct {
	Format Format
	Path   string
	Size   int
}

// Result summarises a successful Build.
type Result struct {
	Files    []OutputFile
	Duration time.Duration
}

// Pipeline manages the bundle build and script lookup for pages
type Pipeline struct {
	config       Config
	staticPrefix string
	workDir      string
	metadata     map[Format]*BuildMetadata
	tmpl         *template.Template
	mu           sync.RWMutex
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStaticPrefix sets the URL prefix OutDir is served under.
func WithStaticPrefix(prefix string) Option {
	return func(p *Pipeline) {
		if !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		p.staticPrefix = prefix
	}
}

// New creates a new asset pipeline with the given configuration
func New(config Config, opts ...Option) (*Pipeline, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		config:       config,
		staticPrefix: defaultStaticPrefix,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// NewWithTemplateDir creates a new asset pipeline and loads all templates from a directory
func NewWithTemplateDir(config Config, templateDir string, opts ...Option) (*Pipeline, error) {
	p, err := New(config, opts...)
	if err != nil {
		return nil, err
	}

	tmpl, err := template.ParseGlob(filepath.Join(templateDir, "*.html"))
	if err != nil {
		return nil, err
	}
	p.tmpl = tmpl
	return p, nil
}

// Config returns the bundle configuration the pipeline was created with.
func (p *Pipeline) Config() Config {
	return p.config
}
