package assets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/user/opla/internal/types"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadPlainFile(t *testing.T) {
	path := writeFile(t, "notes.txt", "buy milk")

	ex, err := NewLoader(0).Load(context.Background(), types.Asset{Type: types.AssetFile, File: path})
	if err != nil {
		t.Fatal(err)
	}
	if ex.Name != "notes.txt" || ex.Text != "buy milk" {
		t.Errorf("unexpected excerpt %+v", ex)
	}
}

func TestLoadHTMLFileAsMarkdown(t *testing.T) {
	path := writeFile(t, "page.html", `<html><body><h1>Hello World</h1><p>This is a test.</p></body></html>`)

	ex, err := NewLoader(0).Load(context.Background(), types.Asset{Type: types.AssetFile, File: path})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ex.Text, "# Hello World") {
		t.Errorf("expected markdown heading, got %q", ex.Text)
	}
	if strings.Contains(ex.Text, "<p>") {
		t.Errorf("expected html to be converted, got %q", ex.Text)
	}
}

func TestLoadTruncates(t *testing.T) {
	path := writeFile(t, "long.txt", strings.Repeat("x", 200))

	ex, err := NewLoader(100).Load(context.Background(), types.Asset{Type: types.AssetFile, File: path})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(ex.Text, "[Content truncated]") {
		t.Error("expected truncation marker")
	}
	if len(ex.Text) != 100+len(truncatedMarker) {
		t.Errorf("unexpected length %d", len(ex.Text))
	}
}

func TestLoadLink(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><p>linked page</p></body></html>`))
	}))
	defer server.Close()

	ex, err := NewLoader(0).Load(context.Background(), types.Asset{Type: types.AssetLink, URL: server.URL})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ex.Text, "linked page") {
		t.Errorf("expected page text, got %q", ex.Text)
	}
}

func TestLoadAllSkipsFailures(t *testing.T) {
	good := writeFile(t, "good.txt", "content")
	list := []types.Asset{
		{ID: "a1", Type: types.AssetFile, File: filepath.Join(t.TempDir(), "missing.txt")},
		{ID: "a2", Type: types.AssetFile, File: good},
		{ID: "a3", Type: types.AssetLink},
	}

	got := NewLoader(0).LoadAll(context.Background(), list)
	if len(got) != 1 || got[0].Text != "content" {
		t.Errorf("expected only the readable asset, got %+v", got)
	}
}
