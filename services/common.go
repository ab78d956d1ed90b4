package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxRemoteFileSize caps product image downloads.
const maxRemoteFileSize = 20 << 20

var remoteFileClient = &http.Client{Timeout: 30 * time.Second}

func ReadFileFromUrl(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %v", err)
	}

	// Set headers to prevent caching
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	resp, err := remoteFileClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get response: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to fetch file, status code: %d", resp.StatusCode)
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %v", err)
	}
	if len(content) > maxRemoteFileSize {
		return nil, fmt.Errorf("file at %s is larger than %d bytes", url, maxRemoteFileSize)
	}
	return content, nil
}
