package assets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(name), 0o755))
	require.NoError(t, os.WriteFile(name, []byte(content), 0o600))
}

func testConfig(t *testing.T) (Config, string) {
	t.Helper()
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "src", "main.ts"), `import { label } from "./label";
document.title = label("timer");
`)
	writeFile(t, filepath.Join(dir, "src", "label.ts"), `export function label(s: string): string { return "[" + s + "]"; }
`)

	cfg := DefaultConfig()
	cfg.Entry = filepath.Join(dir, "src", "main.ts")
	cfg.OutDir = filepath.Join(dir, "dist")
	cfg.MetafilePath = filepath.Join(dir, "dist", "meta.json")
	cfg.PublicDir = filepath.Join(dir, "public")
	return cfg, dir
}

func TestBuild(t *testing.T) {
	cfg, _ := testConfig(t)
	cfg.Formats = []Format{FormatES, FormatIIFE, FormatCJS}

	p, err := New(cfg)
	require.NoError(t, err)

	result, err := p.Build(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, result.Files)

	for _, name := range []string{"bundle.js", "bundle.iife.js", "bundle.cjs"} {
		_, err := os.Stat(filepath.Join(cfg.OutDir, name))
		require.NoError(t, err, name)
	}

	iife, err := os.ReadFile(filepath.Join(cfg.OutDir, "bundle.iife.js"))
	require.NoError(t, err)
	require.Contains(t, string(iife), "htmxGoTimerVite")

	data, err := os.ReadFile(cfg.MetafilePath)
	require.NoError(t, err)
	var metafiles map[Format]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &metafiles))
	require.Len(t, metafiles, 3)
}

func TestBuild_emptiesOutDir(t *testing.T) {
	cfg, _ := testConfig(t)
	stale := filepath.Join(cfg.OutDir, "stale.js")
	writeFile(t, stale, "old")

	p, err := New(cfg)
	require.NoError(t, err)
	_, err = p.Build(context.Background())
	require.NoError(t, err)

	_, err = os.Stat(stale)
	require.ErrorIs(t, err, os.ErrNotExist)

	cfg.EmptyOutDir = false
	writeFile(t, stale, "old")
	p, err = New(cfg)
	require.NoError(t, err)
	_, err = p.Build(context.Background())
	require.NoError(t, err)

	_, err = os.Stat(stale)
	require.NoError(t, err)
}

func TestBuild_copyPublicDir(t *testing.T) {
	cfg, _ := testConfig(t)
	cfg.CopyPublicDir = true
	writeFile(t, filepath.Join(cfg.PublicDir, "favicon.ico"), "icon")
	writeFile(t, filepath.Join(cfg.PublicDir, "img", "logo.svg"), "<svg/>")

	p, err := New(cfg)
	require.NoError(t, err)
	_, err = p.Build(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(cfg.OutDir, "img", "logo.svg"))
	require.NoError(t, err)
	require.Equal(t, "<svg/>", string(data))
}

func TestBuild_syntaxError(t *testing.T) {
	cfg, dir := testConfig(t)
	writeFile(t, filepath.Join(dir, "src", "main.ts"), "const = ;\n")

	p, err := New(cfg)
	require.NoError(t, err)

	_, err = p.Build(context.Background())
	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	require.Equal(t, FormatES, buildErr.Format)
	require.NotEmpty(t, buildErr.Messages)

	_, err = p.Scripts(FormatES)
	require.ErrorIs(t, err, ErrNotBuilt)
}

func TestBuild_failedRebuild(t *testing.T) {
	cfg, dir := testConfig(t)

	p, err := New(cfg)
	require.NoError(t, err)
	_, err = p.Build(context.Background())
	require.NoError(t, err)

	writeFile(t, filepath.Join(dir, "src", "main.ts"), "const = ;\n")
	_, err = p.Build(context.Background())
	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)

	// the emptied output is not advertised any more
	_, err = os.Stat(filepath.Join(cfg.OutDir, "bundle.js"))
	require.ErrorIs(t, err, os.ErrNotExist)
	_, err = p.Scripts(FormatES)
	require.ErrorIs(t, err, ErrNotBuilt)

	writeFile(t, filepath.Join(dir, "src", "main.ts"), `console.log("fixed");`)
	_, err = p.Build(context.Background())
	require.NoError(t, err)
	scripts, err := p.Scripts(FormatES)
	require.NoError(t, err)
	require.Equal(t, []string{"/static/bundle.js"}, scripts)
}

func TestBuild_failedRebuildKeepsOutput(t *testing.T) {
	cfg, dir := testConfig(t)
	cfg.EmptyOutDir = false

	p, err := New(cfg)
	require.NoError(t, err)
	_, err = p.Build(context.Background())
	require.NoError(t, err)

	writeFile(t, filepath.Join(dir, "src", "main.ts"), "const = ;\n")
	_, err = p.Build(context.Background())
	require.Error(t, err)

	scripts, err := p.Scripts(FormatES)
	require.NoError(t, err)
	require.Equal(t, []string{"/static/bundle.js"}, scripts)
	_, err = os.Stat(filepath.Join(cfg.OutDir, "bundle.js"))
	require.NoError(t, err)
}

func TestBuild_cancelled(t *testing.T) {
	cfg, _ := testConfig(t)
	p, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Build(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestScripts(t *testing.T) {
	cfg, _ := testConfig(t)

	p, err := New(cfg, WithStaticPrefix("/assets"))
	require.NoError(t, err)

	_, err = p.Scripts(FormatES)
	require.ErrorIs(t, err, ErrNotBuilt)

	_, err = p.Build(context.Background())
	require.NoError(t, err)

	scripts, err := p.Scripts(FormatES)
	require.NoError(t, err)
	require.Equal(t, []string{"/assets/bundle.js"}, scripts)

	_, err = p.Scripts(FormatCJS)
	require.ErrorIs(t, err, ErrFormatNotConfigured)
}

func TestHandler(t *testing.T) {
	cfg, dir := testConfig(t)
	views := filepath.Join(dir, "views")
	writeFile(t, filepath.Join(views, "index.html"),
		`{{ define "index.html" }}{{ .Title }}|{{ range .Scripts }}{{ . }}{{ end }}|{{ .Context }}{{ end }}`)

	p, err := New(cfg)
	require.NoError(t, err)
	_, err = p.Handler("index.html", "Timer", nil)
	require.ErrorIs(t, err, ErrTemplateMissing)

	p, err = NewWithTemplateDir(cfg, views)
	require.NoError(t, err)

	_, err = p.Handler("missing.html", "Timer", nil)
	require.Error(t, err)

	h, err := p.Handler("index.html", "Timer", func(*http.Request) (any, error) {
		return "ctx", nil
	})
	require.NoError(t, err)

	t.Run("before build", func(t *testing.T) {
		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusInternalServerError, w.Code)
	})

	_, err = p.Build(context.Background())
	require.NoError(t, err)

	t.Run("after build", func(t *testing.T) {
		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
		require.Equal(t, "Timer|/static/bundle.js|ctx", w.Body.String())
	})
}

func TestHandler_pageFormat(t *testing.T) {
	cfg, dir := testConfig(t)
	views := filepath.Join(dir, "views")
	writeFile(t, filepath.Join(views, "index.html"),
		`{{ define "index.html" }}{{ range .Scripts }}<script type="{{ $.ScriptType }}" src="{{ . }}"></script>{{ end }}{{ end }}`)

	t.Run("iife only", func(t *testing.T) {
		cfg := cfg
		cfg.Formats = []Format{FormatIIFE}

		p, err := NewWithTemplateDir(cfg, views)
		require.NoError(t, err)
		_, err = p.Build(context.Background())
		require.NoError(t, err)

		h, err := p.Handler("index.html", "Timer", nil)
		require.NoError(t, err)

		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, `<script type="text/javascript" src="/static/bundle.iife.js"></script>`, w.Body.String())
	})

	t.Run("es preferred", func(t *testing.T) {
		cfg := cfg
		cfg.Formats = []Format{FormatIIFE, FormatES}

		p, err := NewWithTemplateDir(cfg, views)
		require.NoError(t, err)
		_, err = p.Build(context.Background())
		require.NoError(t, err)

		h, err := p.Handler("index.html", "Timer", nil)
		require.NoError(t, err)

		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, `<script type="module" src="/static/bundle.js"></script>`, w.Body.String())
	})

	t.Run("cjs only", func(t *testing.T) {
		cfg := cfg
		cfg.Formats = []Format{FormatCJS}

		p, err := NewWithTemplateDir(cfg, views)
		require.NoError(t, err)

		_, err = p.Handler("index.html", "Timer", nil)
		require.ErrorIs(t, err, ErrNoPageFormat)
	})
}

func TestNew_invalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Formats = []Format{"umd"}

	_, err := New(cfg)
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}
