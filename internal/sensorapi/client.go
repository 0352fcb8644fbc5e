package sensorapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// ErrNotFound is returned by the single-bin lookups when the backend has no
// record for the id.
var ErrNotFound = errors.New("not found")

// StatusError reports a non-2xx response from the backend.
type StatusError struct {
	Path string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Path, e.Code)
}

// Client talks to the sensor backend's REST API. Every call can fail; callers
// decide whether a failure is fatal.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (c *Client) GetBins(ctx context.Context) ([]Bin, error) {
	var bins []Bin
	if err := c.getJSON(ctx, "/bins", &bins); err != nil {
		return nil, err
	}
	return bins, nil
}

func (c *Client) GetWeather(ctx context.Context) ([]Weather, error) {
	var weather []Weather
	if err := c.getJSON(ctx, "/weather", &weather); err != nil {
		return nil, err
	}
	return weather, nil
}

func (c *Client) GetPedestrian(ctx context.Context) ([]Pedestrian, error) {
	var pedestrian []Pedestrian
	if err := c.getJSON(ctx, "/pedestrian", &pedestrian); err != nil {
		return nil, err
	}
	return pedestrian, nil
}

func (c *Client) GetBinStatus(ctx context.Context, id string) (*Bin, error) {
	var bin Bin
	if err := c.getJSON(ctx, "/bins/"+url.PathEscape(id)+"/status", &bin); err != nil {
		return nil, err
	}
	return &bin, nil
}

func (c *Client) GetBinDetails(ctx context.Context, id string) (*DetailedBin, error) {
	var bin DetailedBin
	if err := c.getJSON(ctx, "/bins/"+url.PathEscape(id)+"/details", &bin); err != nil {
		return nil, err
	}
	return &bin, nil
}

// GetData streams the JSON values served at path to fn, in order. The body
// may be a single array (each element is delivered) or a sequence of
// concatenated / newline-delimited values. It stops at the first error from
// the transport, the decoder or fn.
func (c *Client) GetData(ctx context.Context, path string, fn func(json.RawMessage) error) error {
	resp, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	defer c.closeBody(path, resp.Body)

	dec := json.NewDecoder(resp.Body)
	for {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decode %s: %w", path, err)
		}

		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			var items []json.RawMessage
			if err := json.Unmarshal(trimmed, &items); err != nil {
				return fmt.Errorf("decode %s: %w", path, err)
			}
			for _, item := range items {
				if err := fn(item); err != nil {
					return err
				}
			}
			continue
		}
		if err := fn(trimmed); err != nil {
			return err
		}
	}
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	defer c.closeBody(path, resp.Body)

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	c.logger.Debug("backend request",
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.closeBody(path, resp.Body)
		return nil, fmt.Errorf("get %s: %w", path, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		c.closeBody(path, resp.Body)
		return nil, &StatusError{Path: path, Code: resp.StatusCode}
	}
	return resp, nil
}

func (c *Client) closeBody(path string, body io.ReadCloser) {
	if err := body.Close(); err != nil {
		c.logger.Warn("close response body", "path", path, "error", err)
	}
}
