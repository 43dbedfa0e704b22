// Package backend talks to the remote systems-thinking analysis service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.uber.org/zap"

	"systemsmap-client/internal/models"
)

const (
	pathStartConversation = "/start_conversation"
	pathAnalyze           = "/analyze"
	pathUploadDocuments   = "/upload-documents"
	pathUploadDocument    = "/upload-document"
	pathSystemsMap        = "/systems-map"

	maxImageBytes = 32 << 20
	maxErrorBody  = 4 << 10
)

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s returned %d: %s", e.Endpoint, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s returned %d %s", e.Endpoint, e.StatusCode, http.StatusText(e.StatusCode))
}

// ErrMalformedResponse marks a 2xx response the client could not use.
var ErrMalformedResponse = errors.New("malformed response")

type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient returns a client for baseURL. A zero timeout means requests are
// bounded only by their context.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// SystemsMapURL is where the legacy endpoint serves the last generated map.
func (c *Client) SystemsMapURL() string {
	return c.baseURL + pathSystemsMap
}

// StartConversation creates a conversation and returns its id.
func (c *Client) StartConversation(ctx context.Context) (string, error) {
	var resp models.StartConversationResponse
	if err := c.postJSON(ctx, pathStartConversation, nil, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.ConversationID) == "" {
		return "", fmt.Errorf("%s: %w: missing conversation_id", pathStartConversation, ErrMalformedResponse)
	}
	return resp.ConversationID, nil
}

// Analyze submits a query bound to a conversation.
func (c *Client) Analyze(ctx context.Context, req models.AnalyzeRequest) (*models.AnalyzeResponse, error) {
	var resp models.AnalyzeResponse
	if err := c.postJSON(ctx, pathAnalyze, req, &resp); err != nil {
		return nil, err
	}
	if resp.Conversation == nil {
		return nil, fmt.Errorf("%s: %w: missing conversation", pathAnalyze, ErrMalformedResponse)
	}
	for i, m := range resp.Conversation {
		if !models.ValidRole(m.Role) {
			return nil, fmt.Errorf("%s: %w: message %d has role %q", pathAnalyze, ErrMalformedResponse, i, m.Role)
		}
	}
	return &resp, nil
}

// UploadDocuments sends every file in one multipart request under "files".
func (c *Client) UploadDocuments(ctx context.Context, files []models.UploadFile) (*models.UploadResponse, error) {
	return c.upload(ctx, pathUploadDocuments, "files", files)
}

// UploadDocument uses the single-file endpoint and the "file" field.
func (c *Client) UploadDocument(ctx context.Context, file models.UploadFile) (*models.UploadResponse, error) {
	return c.upload(ctx, pathUploadDocument, "file", []models.UploadFile{file})
}

// CreateSystemsMap posts to the legacy endpoint and returns the artifact to
// present. An image body is the map drawn from req and comes back as a data
// URL. Any other success body falls back to SystemsMapURL.
func (c *Client) CreateSystemsMap(ctx context.Context, req models.SystemsMapRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s request: %w", pathSystemsMap, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+pathSystemsMap, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.do(httpReq, pathSystemsMap)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read %s response: %w", pathSystemsMap, err)
	}
	if mediaType := http.DetectContentType(data); len(data) > 0 && strings.HasPrefix(mediaType, "image/") {
		return models.DataURL(mediaType, data), nil
	}
	return c.SystemsMapURL(), nil
}

// FetchImage downloads the bytes behind a remote artifact URL.
func (c *Client) FetchImage(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid image URL %q: %w", url, err)
	}

	resp, err := c.do(req, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image from %s: %w", url, err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("image at %s exceeds %d bytes", url, maxImageBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image at %s is empty", url)
	}
	return data, nil
}

func (c *Client) upload(ctx context.Context, path, field string, files []models.UploadFile) (*models.UploadResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, field, escapeQuotes(f.Name)))
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("failed to build upload for %s: %w", f.Name, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, fmt.Errorf("failed to build upload for %s: %w", f.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.do(req, path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out models.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrMalformedResponse, err)
	}
	return &out, nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.do(req, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: %w: %v", path, ErrMalformedResponse, err)
	}
	return nil
}

// do sends req and converts transport failures and non-2xx answers into
// errors. The caller owns the body of a successful response.
func (c *Client) do(req *http.Request, endpoint string) (*http.Response, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("backend request failed",
			zap.String("endpoint", endpoint),
			zap.Error(err))
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}

	c.logger.Debug("backend request",
		zap.String("method", req.Method),
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, &StatusError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Detail:     readDetail(resp.Body),
		}
	}
	return resp, nil
}

// readDetail pulls FastAPI's {"detail": ...} out of an error body, falling
// back to the trimmed text.
func readDetail(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var body struct {
		Detail interface{} `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Detail != nil {
		if s, ok := body.Detail.(string); ok {
			return s
		}
		b, _ := json.Marshal(body.Detail)
		return string(b)
	}
	return strings.TrimSpace(string(raw))
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
