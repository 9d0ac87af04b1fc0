package locations

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"tools.zach/dev/exilecord/internal/atomicfile"
)

// DefaultURL is the published location table.
const DefaultURL = "https://raw.githubusercontent.com/ezbooz/Path-Of-Exile-2-RPC/refs/heads/main/locations.json"

// maxResponseBytes caps the downloaded document size.
const maxResponseBytes = 10 << 20

// httpClient is a lazily-initialized retryablehttp client shared by all
// fetches.
var (
	httpClient     *retryablehttp.Client
	httpClientOnce sync.Once
)

func getHTTPClient() *retryablehttp.Client {
	httpClientOnce.Do(func() {
		httpClient = retryablehttp.NewClient()
		httpClient.RetryMax = 2
		httpClient.RetryWaitMin = 500 * time.Millisecond
		httpClient.RetryWaitMax = 2 * time.Second
		httpClient.HTTPClient.Timeout = 10 * time.Second
		httpClient.Logger = nil // retry noise goes through slog below instead
	})
	return httpClient
}

// ///////////////////////////////////////////////
// Source
// ///////////////////////////////////////////////

// Source describes where the table comes from.
type Source struct {
	// URL is the remote document, used only when the cache file is absent.
	URL string
	// CachePath is the local copy. It is written with the raw downloaded body
	// so entry order survives the round trip.
	CachePath string
}

// ///////////////////////////////////////////////
// Public API
// ///////////////////////////////////////////////

// Load returns the location table: the cache file when present, otherwise the
// remote document, which is then cached. Any failure degrades to an empty
// table; area tokens then display as their normalized raw form.
func Load(ctx context.Context, src Source) *Table {
	if t, err := readCache(src.CachePath); err == nil {
		slog.Info("loaded locations from local cache", "path", src.CachePath, "areas", t.Len())
		return t
	} else if !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("ignoring unreadable locations cache", "path", src.CachePath, "error", err)
	}

	if src.URL == "" {
		slog.Warn("no locations URL configured, area names will not be resolved")
		return NewTable()
	}

	body, err := fetchRemote(ctx, src.URL)
	if err != nil {
		slog.Error("failed to fetch locations", "url", src.URL, "error", err)
		return NewTable()
	}
	t, err := Parse(body)
	if err != nil {
		slog.Error("failed to parse downloaded locations", "url", src.URL, "error", err)
		return NewTable()
	}

	if src.CachePath != "" {
		if err := atomicfile.Write(src.CachePath, body, 0o644); err != nil {
			slog.Warn("failed to write locations cache", "path", src.CachePath, "error", err)
		}
	}
	slog.Info("downloaded and cached locations", "areas", t.Len())
	return t
}

// ///////////////////////////////////////////////
// Internal helpers
// ///////////////////////////////////////////////

// readCache parses the cache file. A missing file reports fs.ErrNotExist.
func readCache(path string) (*Table, error) {
	if path == "" {
		return nil, fs.ErrNotExist
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading locations cache: %w", err)
	}
	return Parse(b)
}

// fetchRemote downloads the document at url.
func fetchRemote(ctx context.Context, url string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	resp, err := getHTTPClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}
	if int64(len(body)) > maxResponseBytes {
		return nil, fmt.Errorf("response from %s exceeds %d bytes", url, maxResponseBytes)
	}
	return body, nil
}
