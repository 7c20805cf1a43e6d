package fetcher

import (
	"fmt"
)

const maxLoggedBody = 512

// TransportError reports a request that still failed after every retry.
type TransportError struct {
	URL        string
	Attempts   int
	StatusCode int
	Body       []byte
	// Err is the last request-level error, if the final attempt produced no response.
	Err error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
	}
	return fmt.Sprintf("fetch %s failed after %d attempts: %d - %s",
		e.URL, e.Attempts, e.StatusCode, truncate(e.Body, maxLoggedBody))
}

// Unwrap exposes the last request error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

func truncate(body []byte, limit int) []byte {
	if len(body) <= limit {
		return body
	}
	return body[:limit]
}
