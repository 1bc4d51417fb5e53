// Package client submits images to a prediction endpoint.
package client

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
)

const (
	// PredictPath is where the prediction endpoint is mounted.
	PredictPath = "/api/predict/"
	// FieldName is the multipart part holding the image.
	FieldName = "file"

	// MessagePredictionFailed is shown when the endpoint reports failure without a reason.
	MessagePredictionFailed = "Prediction failed"
	// MessageGeneric is shown when no reason can be extracted from a failed exchange.
	MessageGeneric = "An error occurred"

	maxResponseBytes = 1 << 20
)

// Result is a successful prediction.
type Result struct {
	Success    bool    `json:"success"`
	Prediction string  `json:"prediction"`
	Confidence float64 `json:"confidence"`
}

type response struct {
	Result
	Error string `json:"error"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds each prediction request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.httpClient
		hc.Timeout = d
		c.httpClient = &hc
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New returns a client for the endpoint rooted at baseURL (e.g. http://localhost:8080).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Predict uploads one image under the "file" field and decodes the verdict.
// Every failure is returned as *Error carrying a display message.
func (c *Client) Predict(ctx context.Context, name string, r io.Reader) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, transportError(0, "", fmt.Errorf("read image: %w", err))
	}

	body, contentType, err := encodeMultipart(name, data)
	if err != nil {
		return nil, transportError(0, "", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+PredictPath, body)
	if err != nil {
		return nil, transportError(0, "", fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("prediction request failed", zap.String("file", name), zap.Error(err))
		return nil, transportError(0, "", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, transportError(resp.StatusCode, "", fmt.Errorf("read response: %w", err))
	}

	var decoded response
	decodeErr := json.Unmarshal(raw, &decoded)

	c.logger.Debug("prediction response",
		zap.String("file", name),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var reason string
		if decodeErr == nil {
			reason = decoded.Error
		}
		return nil, transportError(resp.StatusCode, reason, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	if decodeErr != nil {
		return nil, transportError(resp.StatusCode, "", fmt.Errorf("decode response: %w", decodeErr))
	}

	if !decoded.Success {
		msg := decoded.Error
		if msg == "" {
			msg = MessagePredictionFailed
		}
		return nil, &Error{Kind: KindApplication, Status: resp.StatusCode, Message: msg}
	}

	result := decoded.Result
	return &result, nil
}

func encodeMultipart(name string, data []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FieldName, name))
	header.Set("Content-Type", http.DetectContentType(data))

	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create form part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("write form part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func transportError(status int, reason string, cause error) *Error {
	if reason == "" {
		reason = MessageGeneric
	}
	return &Error{Kind: KindTransport, Status: status, Message: reason, Cause: cause}
}

// Message returns the text to display for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var perr *Error
	if errors.As(err, &perr) && perr.Message != "" {
		return perr.Message
	}
	return MessageGeneric
}
