package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/asdfghjkxd/NFTScraper/pkg/batch"
)

// ErrBodyTooLarge is returned when a body exceeds Config.MaxBodyBytes.
var ErrBodyTooLarge = errors.New("response body exceeds size limit")

// fetch performs one GET and returns the body if it is a JSON document.
// The HTTP status is reported but does not decide success: an error status
// with a JSON body is still a page.
func (d *Dispatcher) fetch(ctx context.Context, client *http.Client, rawURL string) (batch.Page, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, &FetchError{URL: rawURL, Class: FailureNetwork, Err: fmt.Errorf("create request: %w", err)}
	}

	req.Header.Set("User-Agent", d.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	if d.config.APIKey != "" {
		req.Header.Set(d.config.APIKeyHeader, d.config.APIKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, &FetchError{URL: rawURL, Class: classifyError(ctx, err), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, d.config.MaxBodyBytes+1))
	if err != nil {
		return nil, resp.StatusCode, &FetchError{
			URL:        rawURL,
			Class:      classifyError(ctx, err),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("read body: %w", err),
		}
	}
	if int64(len(body)) > d.config.MaxBodyBytes {
		return nil, resp.StatusCode, &FetchError{
			URL:        rawURL,
			Class:      FailureDecode,
			StatusCode: resp.StatusCode,
			Err:        ErrBodyTooLarge,
		}
	}

	if !json.Valid(body) {
		return nil, resp.StatusCode, &FetchError{
			URL:        rawURL,
			Class:      FailureDecode,
			StatusCode: resp.StatusCode,
			Err:        ErrInvalidJSON,
		}
	}

	return batch.Page(body), resp.StatusCode, nil
}

// classifyError separates deadline expiry from other transport errors.
func classifyError(ctx context.Context, err error) FailureClass {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return FailureTimeout
	}
	return FailureNetwork
}
