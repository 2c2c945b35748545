package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"nodue/internal/attendance"
)

var (
	// ErrDisabled is returned when the client runs in skip mode.
	ErrDisabled = errors.New("timetable recognition is disabled")
	// ErrEmptyExtraction is returned when the service found no slots.
	ErrEmptyExtraction = errors.New("no timetable slots recognized in image")
)

// maxImageBytes bounds the upload forwarded to the recognition service.
const maxImageBytes = 10 << 20

// Client calls the timetable recognition service.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client with configurable timeout.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Extract uploads a timetable image and returns the recognized slots. The
// service is a black box: whatever it returns still goes through slot validation
// on import.
func (c *Client) Extract(ctx context.Context, image io.Reader, filename string) ([]attendance.SlotInput, error) {
	if c.Skip {
		return nil, ErrDisabled
	}
	if filename == "" {
		filename = "timetable.jpg"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return nil, err
	}
	n, err := io.Copy(part, io.LimitReader(image, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if n == 0 {
		return nil, errors.New("image is empty")
	}
	if n > maxImageBytes {
		return nil, fmt.Errorf("image larger than %d bytes", maxImageBytes)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/extract", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("recognition service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("recognition service error %s: %s", resp.Status, string(bodyBytes))
	}

	var out struct {
		Slots []attendance.SlotInput `json:"slots"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.Slots) == 0 {
		return nil, ErrEmptyExtraction
	}
	return out.Slots, nil
}

// Health checks if the recognition service is available.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("recognition service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("recognition service unhealthy: %s", resp.Status)
	}
	return nil
}
