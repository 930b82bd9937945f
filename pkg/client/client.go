package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dennisdiepolder/monti/callreport/internal/types"
)

// APIError is a non-success response from the server
type APIError struct {
	StatusCode int
	Message    string
	Outcome    string // pipeline outcome for rejected uploads
}

func (e *APIError) Error() string {
	if e.Outcome != "" {
		return fmt.Sprintf("status %d (%s): %s", e.StatusCode, e.Outcome, e.Message)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

// Client talks to the callreport server API
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new client. token may be empty when the server runs
// with SKIP_AUTH.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

// Upload sends one spreadsheet for ingestion
func (c *Client) Upload(ctx context.Context, filename string, content io.Reader, period string) (*types.UploadResult, error) {
	// Stream the multipart body instead of buffering the whole file
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUpload(mw, filename, content, period))
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/api/uploads", pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var result types.UploadResult
	if err := c.do(req, http.StatusCreated, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func writeUpload(mw *multipart.Writer, filename string, content io.Reader, period string) error {
	if period != "" {
		if err := mw.WriteField("period", period); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, content); err != nil {
		return err
	}
	return mw.Close()
}

// SummaryResponse mirrors the server's re-aggregated period summary
type SummaryResponse struct {
	Period  string             `json:"period"`
	Rows    int                `json:"rows"`
	Summary types.Summary      `json:"summary"`
	Alerts  []types.QueueAlert `json:"alerts"`
}

// Summary retrieves the stored summary for period, or for all data when
// period is empty
func (c *Client) Summary(ctx context.Context, period string) (*SummaryResponse, error) {
	path := "/api/summary"
	if period != "" {
		path += "?period=" + url.QueryEscape(period)
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var summary SummaryResponse
	if err := c.do(req, http.StatusOK, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	return c.do(req, http.StatusOK, nil)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, wantStatus int, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		var payload struct {
			Error   string `json:"error"`
			Outcome string `json:"outcome"`
		}
		if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
			apiErr.Outcome = payload.Outcome
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
