package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hyperjump/shashin/internal/models"
)

// apiClient talks to a running shashin server.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{baseURL: strings.TrimRight(baseURL, "/"), http: http.DefaultClient}
}

func (c *apiClient) do(ctx context.Context, method, path string, body interface{}, want int, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *apiClient) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	var response models.SearchResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/search", query, http.StatusOK, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

func (c *apiClient) Stats(ctx context.Context) (models.Stats, error) {
	var stats models.Stats
	err := c.do(ctx, http.MethodGet, "/api/v1/stats", nil, http.StatusOK, &stats)
	return stats, err
}

func (c *apiClient) DeleteItem(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/items/"+url.PathEscape(id), nil, http.StatusOK, nil)
}

// StreamIndex starts a run on the server and calls report for every progress line.
// It returns the last snapshot received.
func (c *apiClient) StreamIndex(ctx context.Context, report func(models.IndexingProgress)) (models.IndexingProgress, error) {
	var last models.IndexingProgress
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/index/stream", nil)
	if err != nil {
		return last, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return last, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return last, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		var p models.IndexingProgress
		if err := json.Unmarshal(sc.Bytes(), &p); err != nil {
			return last, fmt.Errorf("decode progress: %w", err)
		}
		last = p
		if report != nil {
			report(p)
		}
	}
	if err := sc.Err(); err != nil {
		return last, err
	}
	return last, nil
}
