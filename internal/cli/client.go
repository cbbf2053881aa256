package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

// Client talks to a running kotae server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(b))
		if json.Unmarshal(b, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(data), "application/json", out)
}

// Ask posts a question to /api/chat.
func (c *Client) Ask(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	var out models.ChatResponse
	if err := c.postJSON(ctx, "/api/chat", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Reset clears the server-side history of clientID.
func (c *Client) Reset(ctx context.Context, clientID string) error {
	return c.do(ctx, http.MethodPost, "/api/reset?client_id="+url.QueryEscape(clientID), nil, "", nil)
}

// Search runs GET /api/search.
func (c *Client) Search(ctx context.Context, query string, k int, mode models.SearchMode) (*models.SearchResponse, error) {
	q := url.Values{"q": {query}}
	if k > 0 {
		q.Set("k", strconv.Itoa(k))
	}
	if mode != "" {
		q.Set("mode", string(mode))
	}
	var out models.SearchResponse
	if err := c.do(ctx, http.MethodGet, "/api/search?"+q.Encode(), nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Files lists uploaded documents.
func (c *Client) Files(ctx context.Context) ([]models.FileInfo, error) {
	var out []models.FileInfo
	if err := c.do(ctx, http.MethodGet, "/files", nil, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Upload sends local files to /upload and returns the accepted ones.
func (c *Client) Upload(ctx context.Context, paths []string) ([]models.FileInfo, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range paths {
		if err := addFile(mw, p); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	var out []models.FileInfo
	if err := c.do(ctx, http.MethodPost, "/upload", &buf, mw.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func addFile(mw *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	part, err := mw.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

// Delete removes an uploaded document.
func (c *Client) Delete(ctx context.Context, filename string) error {
	return c.do(ctx, http.MethodDelete, "/files/"+url.PathEscape(filename), nil, "", nil)
}

// Train starts a training run and returns its id.
func (c *Client) Train(ctx context.Context) (string, error) {
	var out struct {
		RunID string `json:"run_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/train", nil, "", &out); err != nil {
		return "", err
	}
	return out.RunID, nil
}

// TrainStatus returns the current training state.
func (c *Client) TrainStatus(ctx context.Context) (*models.TrainingState, error) {
	var out models.TrainingState
	if err := c.do(ctx, http.MethodGet, "/train/status", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Info returns GET /info.
func (c *Client) Info(ctx context.Context) (*models.ServiceInfo, error) {
	var out models.ServiceInfo
	if err := c.do(ctx, http.MethodGet, "/info", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}
