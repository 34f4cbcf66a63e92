package masterlist

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"

	"github.com/jonathan/gdelt-extract/internal/fetch"
)

// ExpectedContentType is the media type the master file list must be served as.
const ExpectedContentType = "text/plain"

// Fetch downloads the master file list at url into destination, replacing any
// existing file. The server is asked for metadata first; both responses must
// declare a plain-text body. It returns the number of bytes written.
func Fetch(ctx context.Context, client *fetch.Client, url, destination string) (int64, error) {
	head, err := client.Head(ctx, url)
	if err != nil {
		return 0, err
	}
	if err := checkContentType(url, head.ContentType); err != nil {
		return 0, err
	}

	resp, err := client.Stream(ctx, url)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkContentType(url, resp.Header.Get("Content-Type")); err != nil {
		return 0, err
	}

	f, err := os.Create(destination)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", destination, err)
	}

	n, err := io.Copy(f, resp.Body)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(destination)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, &fetch.Error{URL: url, Method: "GET", Message: "failed to read response body", Cause: err}
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", destination, err)
	}

	return n, nil
}

func checkContentType(url, contentType string) error {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != ExpectedContentType {
		return &ContentTypeError{URL: url, Got: contentType, Want: ExpectedContentType}
	}
	return nil
}
