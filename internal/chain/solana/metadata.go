package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxMetadataBytes = 1 << 20

// MetadataFetcher reads the off-chain JSON a launch uri points to.
type MetadataFetcher struct {
	client *http.Client
}

func NewMetadataFetcher(timeout time.Duration) *MetadataFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MetadataFetcher{client: &http.Client{Timeout: timeout}}
}

// ImageURL returns the image field of the metadata document at uri.
func (f *MetadataFetcher) ImageURL(ctx context.Context, uri string) (string, error) {
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		return "", fmt.Errorf("unsupported metadata uri %q", uri)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return "", err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch metadata: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch metadata: status %d", resp.StatusCode)
	}

	var doc struct {
		Image string `json:"image"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxMetadataBytes)).Decode(&doc); err != nil {
		return "", fmt.Errorf("decode metadata: %w", err)
	}
	return doc.Image, nil
}
