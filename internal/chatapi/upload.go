// ABOUTME: File input handling for sandbox uploads
// ABOUTME: Supports in-memory payloads and resource locators fetched over HTTP

package chatapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// FileInput describes a file to upload. Exactly one payload source must be
// set: Reader for in-memory binary-capable handles, or URI for a platform
// resource locator that requires a network fetch to materialize bytes.
type FileInput struct {
	Name        string
	Size        int64
	ContentType string
	Reader      io.Reader
	URI         string
}

// bytes materializes the file payload from whichever source is set.
func (f *FileInput) bytes(ctx context.Context, client *http.Client) ([]byte, error) {
	if f.Reader != nil {
		data, err := io.ReadAll(f.Reader)
		if err != nil {
			return nil, fmt.Errorf("reading file payload: %w", err)
		}
		return data, nil
	}

	if f.URI != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URI, nil)
		if err != nil {
			return nil, fmt.Errorf("building fetch request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetching file payload: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetching file payload: unexpected status %d", resp.StatusCode)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading fetched payload: %w", err)
		}
		return data, nil
	}

	return nil, ErrUnsupportedFileInput
}
