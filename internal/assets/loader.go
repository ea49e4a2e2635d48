// Package assets turns files and links attached to a conversation into
// text excerpts for the model context.
package assets

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	ctxengine "github.com/user/opla/internal/context"
	"github.com/user/opla/internal/types"
)

const DefaultMaxChars = 50000

const truncatedMarker = "\n\n[Content truncated]"

// Loader reads asset content.
type Loader struct {
	client   *http.Client
	maxChars int
}

// NewLoader creates a loader that truncates each excerpt to maxChars
// characters. Zero means DefaultMaxChars.
func NewLoader(maxChars int) *Loader {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Loader{
		client:   &http.Client{Timeout: 30 * time.Second},
		maxChars: maxChars,
	}
}

// Load returns the text of a single asset. HTML is converted to markdown.
func (l *Loader) Load(ctx context.Context, a types.Asset) (ctxengine.Excerpt, error) {
	switch a.Type {
	case types.AssetFile:
		return l.loadFile(a.File)
	case types.AssetLink:
		return l.loadURL(ctx, a.URL)
	default:
		return ctxengine.Excerpt{}, fmt.Errorf("load asset %s: unsupported type %q", a.ID, a.Type)
	}
}

// LoadAll loads every asset, logging and skipping the ones that fail.
func (l *Loader) LoadAll(ctx context.Context, list []types.Asset) []ctxengine.Excerpt {
	var out []ctxengine.Excerpt
	for _, a := range list {
		ex, err := l.Load(ctx, a)
		if err != nil {
			slog.Warn("skipping asset", "asset_id", a.ID, "error", err)
			continue
		}
		if strings.TrimSpace(ex.Text) == "" {
			continue
		}
		out = append(out, ex)
	}
	return out
}

func (l *Loader) loadFile(path string) (ctxengine.Excerpt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ctxengine.Excerpt{}, fmt.Errorf("read asset: %w", err)
	}

	text := string(data)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		md, err := htmltomarkdown.ConvertString(text)
		if err != nil {
			return ctxengine.Excerpt{}, fmt.Errorf("convert to markdown: %w", err)
		}
		text = md
	}
	return ctxengine.Excerpt{Name: filepath.Base(path), Text: l.truncate(text)}, nil
}

func (l *Loader) loadURL(ctx context.Context, url string) (ctxengine.Excerpt, error) {
	if url == "" {
		return ctxengine.Excerpt{}, fmt.Errorf("url is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ctxengine.Excerpt{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Opla/1.0")

	resp, err := l.client.Do(req)
	if err != nil {
		return ctxengine.Excerpt{}, fmt.Errorf("fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ctxengine.Excerpt{}, fmt.Errorf("HTTP error: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ctxengine.Excerpt{}, fmt.Errorf("read body: %w", err)
	}

	text := string(body)
	if strings.Contains(resp.Header.Get("Content-Type"), "html") {
		md, err := htmltomarkdown.ConvertString(text)
		if err != nil {
			return ctxengine.Excerpt{}, fmt.Errorf("convert to markdown: %w", err)
		}
		text = md
	}
	return ctxengine.Excerpt{Name: url, Text: l.truncate(text)}, nil
}

func (l *Loader) truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= l.maxChars {
		return s
	}
	return string(runes[:l.maxChars]) + truncatedMarker
}
