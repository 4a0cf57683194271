package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"slices"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wolfeidau/htmx-go-timer/internal/telemetry"
)

var esbuildFormats = map[Format]api.Format{
	FormatES:   api.FormatESModule,
	FormatIIFE: api.FormatIIFE,
	FormatCJS:  api.FormatCommonJS,
}

// Build runs esbuild once per configured format and loads the metadata
func (p *Pipeline) Build(ctx context.Context) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	started := time.Now()
	result, err := p.build(ctx)

	status := "ok"
	if err != nil {
		status = "error"
	}
	telemetry.GetMetrics().AssetBuildDuration.Record(ctx,
		float64(time.Since(started).Milliseconds()),
		metric.WithAttributes(attribute.String("status", status)),
	)

	if err != nil {
		return nil, err
	}
	result.Duration = time.Since(started)
	return result, nil
}

func (p *Pipeline) build(ctx context.Context) (*Result, error) {
	workDir, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	if p.config.EmptyOutDir {
		// the previous outputs are gone, scripts must not point at them
		p.metadata = nil
		if err := os.RemoveAll(p.config.OutDir); err != nil {
			return nil, fmt.Errorf("failed to empty output dir: %w", err)
		}
	}
	if err := os.MkdirAll(p.config.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	if p.config.CopyPublicDir {
		if err := copyDir(p.config.PublicDir, p.config.OutDir); err != nil {
			return nil, fmt.Errorf("failed to copy public dir: %w", err)
		}
	}

	log.Info().Str("entrypoint", p.config.Entry).Str("outdir", p.config.OutDir).Msg("Building assets")

	result := &Result{}
	metadata := make(map[Format]*BuildMetadata, len(p.config.Formats))
	metafiles := make(map[Format]json.RawMessage, len(p.config.Formats))

	for _, format := range p.config.Formats {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		built := api.Build(p.buildOptions(workDir, format))

		if len(built.Errors) > 0 {
			buildErr := &BuildError{Format: format}
			for _, msg := range built.Errors {
				log.Error().Str("format", string(format)).Str("error", msg.Text).Msg("Build error")
				buildErr.Messages = append(buildErr.Messages, formatMessage(msg))
			}
			return nil, buildErr
		}

		for _, msg := range built.Warnings {
			log.Warn().Str("format", string(format)).Str("warning", msg.Text).Msg("Build warning")
		}

		for _, file := range built.OutputFiles {
			log.Info().Str("file", file.Path).Msg("Built file")
			result.Files = append(result.Files, OutputFile{Format: format, Path: file.Path, Size: len(file.Contents)})
		}

		var md BuildMetadata
		if err := json.Unmarshal([]byte(built.Metafile), &md); err != nil {
			return nil, err
		}
		metadata[format] = &md
		metafiles[format] = json.RawMessage(built.Metafile)
	}

	if p.config.MetafilePath != "" {
		data, err := json.Marshal(metafiles)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(p.config.MetafilePath), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(p.config.MetafilePath, data, 0600); err != nil {
			return nil, err
		}
	}

	p.workDir = workDir
	p.metadata = metadata
	return result, nil
}

func (p *Pipeline) buildOptions(workDir string, format Format) api.BuildOptions {
	opts := api.BuildOptions{
		EntryPoints:       []string{p.config.Entry},
		AbsWorkingDir:     workDir,
		Bundle:            true,
		Write:             true,
		Outfile:           filepath.Join(p.config.OutDir, p.config.OutputName(format)),
		Format:            esbuildFormats[format],
		Platform:          api.PlatformBrowser,
		Target:            api.ES2020,
		MinifyWhitespace:  p.config.Minify,
		MinifyIdentifiers: p.config.Minify,
		MinifySyntax:      p.config.Minify,
		TreeShaking:       api.TreeShakingTrue,
		Sourcemap:         cond(p.config.SourceMap, api.SourceMapLinked, api.SourceMapNone),
		Metafile:          true,
		LogLevel:          api.LogLevelSilent,
	}
	if format == FormatIIFE {
		opts.GlobalName = p.config.GlobalName()
	}
	return opts
}

// Scripts returns the ordered list of script URLs needed for the entry built
// in the given format, the entry's own output first.
func (p *Pipeline) Scripts(format Format) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !slices.Contains(p.config.Formats, format) {
		return nil, fmt.Errorf("%w: %q", ErrFormatNotConfigured, format)
	}

	md, ok := p.metadata[format]
	if !ok {
		return nil, ErrNotBuilt
	}

	entry := p.abs(p.config.Entry)

	scripts := []string{}
	visited := make(map[string]bool)

	// Find the output file for this entrypoint
	for outputPath, info := range md.Outputs {
		if info.EntryPoint == "" || p.abs(info.EntryPoint) != entry {
			continue
		}
		url, err := p.url(outputPath)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, url)
		visited[outputPath] = true
		if err := p.addDependencies(md, info, &scripts, visited); err != nil {
			return nil, err
		}
		return scripts, nil
	}

	return nil, ErrEntryNotFound
}

func (p *Pipeline) addDependencies(md *BuildMetadata, output OutputInfo, scripts *[]string, visited map[string]bool) error {
	for _, imp := range output.Imports {
		if imp.External || visited[imp.Path] {
			continue
		}
		visited[imp.Path] = true

		chunkInfo, exists := md.Outputs[imp.Path]
		if !exists {
			continue
		}
		url, err := p.url(imp.Path)
		if err != nil {
			return err
		}
		*scripts = append(*scripts, url)
		if err := p.addDependencies(md, chunkInfo, scripts, visited); err != nil {
			return err
		}
	}
	return nil
}

// url maps a metafile output path onto the static prefix.
func (p *Pipeline) url(outputPath string) (string, error) {
	rel, err := filepath.Rel(p.abs(p.config.OutDir), p.abs(outputPath))
	if err != nil {
		return "", err
	}
	return path.Join(p.staticPrefix, filepath.ToSlash(rel)), nil
}

func (p *Pipeline) abs(name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(p.workDir, name)
}

// Handler returns an http.HandlerFunc that renders the given template with
// the bundle scripts of the config's page format and their ScriptType.
func (p *Pipeline) Handler(templateName, title string, dataFn func(r *http.Request) (any, error)) (http.HandlerFunc, error) {
	if p.tmpl == nil {
		return nil, ErrTemplateMissing
	}
	format, scriptType, err := p.config.PageFormat()
	if err != nil {
		return nil, err
	}
	if p.tmpl.Lookup(templateName) == nil {
		return nil, fmt.Errorf("template %q not found", templateName)
	}

	if dataFn == nil {
		dataFn = func(*http.Request) (any, error) {
			return nil, nil
		}
	}

	return func(w http.ResponseWriter, r *http.Request) {
		scripts, err := p.Scripts(format)
		if err != nil {
			log.Error().Err(err).Msg("Failed to load scripts")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		pageContext, err := dataFn(r)
		if err != nil {
			log.Error().Err(err).Msg("Failed to load page context")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		data := map[string]any{
			"Title":      title,
			"Scripts":    scripts,
			"ScriptType": scriptType,
			"Context":    pageContext,
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := p.tmpl.ExecuteTemplate(w, templateName, data); err != nil {
			log.Error().Err(err).Msg("Failed to render template")
		}
	}, nil
}

func formatMessage(msg api.Message) string {
	if msg.Location == nil {
		return msg.Text
	}
	return fmt.Sprintf("%s:%d:%d: %s", msg.Location.File, msg.Location.Line, msg.Location.Column, msg.Text)
}

// copyDir copies the regular files below src into dst, overwriting existing files.
func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, name)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(name, target)
	})
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, out.Close())
	}()

	_, err = io.Copy(out, in)
	return err
}

func cond[T any](condition bool, trueVal, falseVal T) T {
	if condition {
		return trueVal
	}
	return falseVal
}
