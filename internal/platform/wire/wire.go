// Package wire holds JSON and HTTP helpers shared by the exchange adapters.
package wire

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/buyalert/internal/domain"
)

// Int64 decodes a JSON number or a numeric string.
type Int64 int64

// UnmarshalJSON implements json.Unmarshaler.
func (i *Int64) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		*i = 0
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*i = Int64(n)
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("wire: integer %q: %w", s, err)
	}
	*i = Int64(f)
	return nil
}

// Millis is an epoch timestamp in milliseconds. Values that look like
// seconds are promoted; RFC 3339 strings are accepted too.
type Millis int64

// UnmarshalJSON implements json.Unmarshaler.
func (m *Millis) UnmarshalJSON(b []byte) error {
	var i Int64
	if err := i.UnmarshalJSON(b); err == nil {
		*m = Millis(i)
		return nil
	}
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("wire: timestamp %q: %w", s, err)
	}
	*m = Millis(t.UnixMilli())
	return nil
}

// Time converts to time.Time. A zero timestamp becomes the current time.
func (m Millis) Time() time.Time {
	v := int64(m)
	switch {
	case v <= 0:
		return time.Now()
	case v < 1e11:
		return time.Unix(v, 0)
	default:
		return time.UnixMilli(v)
	}
}

// Symbol rewrites a "BASE/QUOTE" pair with another separator.
func Symbol(pair, sep string) string {
	return strings.ReplaceAll(strings.ToUpper(pair), "/", sep)
}

// StatusError is returned by GetJSON for non-2xx responses.
type StatusError struct {
	URL  string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("wire: GET %s: unexpected status %d: %s", e.URL, e.Code, e.Body)
}

// Unwrap maps 429 onto domain.ErrRateLimited.
func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusTooManyRequests {
		return domain.ErrRateLimited
	}
	return nil
}

// IsStatus reports whether err is a StatusError with one of codes.
func IsStatus(err error, codes ...int) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	for _, c := range codes {
		if se.Code == c {
			return true
		}
	}
	return false
}

// GetJSON performs a GET and decodes a 2xx JSON body into v.
func GetJSON(ctx context.Context, client *http.Client, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("wire: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("wire: GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{URL: url, Code: resp.StatusCode, Body: string(body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("wire: decode %s: %w", url, err)
	}
	return nil
}

// Frame marshals a subscription or control frame.
func Frame(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal frame: %w", err)
	}
	return b, nil
}
