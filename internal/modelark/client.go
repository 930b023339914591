package modelark

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Sentinel errors for generation API failures.
var (
	ErrUnavailable  = errors.New("generation api unreachable")
	ErrTimeout      = errors.New("generation api timeout")
	ErrTaskNotFound = errors.New("generation task not found")
	ErrAPIError     = errors.New("generation api error")
)

// taskNotFoundCode is the error code the API returns for unknown task IDs.
const taskNotFoundCode = "40004"

// Client is the interface for the remote video generation API.
type Client interface {
	CreateTask(ctx context.Context, req CreateTaskRequest) (*GenerationTask, error)
	GetTask(ctx context.Context, taskID string) (*GenerationTask, error)
	ListTasks(ctx context.Context, page, pageSize int) (*TaskPage, error)
	DeleteTask(ctx context.Context, taskID string) error
	Ping(ctx context.Context) error
}

// CreateTaskRequest defines parameters for a new generation task.
type CreateTaskRequest struct {
	Model  string
	Prompt string
	Images []ImageInput
}

// ImageInput references an input image for image-to-video generation.
// Role is one of first_frame, last_frame or reference_image.
type ImageInput struct {
	URL  string
	Role string
}

// GenerationTask is a task record as reported by the remote API.
type GenerationTask struct {
	ID        string       `json:"id"`
	Model     string       `json:"model"`
	Status    string       `json:"status"`
	Progress  *float64     `json:"progress,omitempty"`
	Content   *TaskContent `json:"content,omitempty"`
	Error     *TaskError   `json:"error,omitempty"`
	Usage     *TaskUsage   `json:"usage,omitempty"`
	CreatedAt int64        `json:"created_at"`
	UpdatedAt int64        `json:"updated_at"`
}

// TaskContent holds the artifact URLs of a succeeded task.
type TaskContent struct {
	VideoURL     string `json:"video_url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// TaskError describes why a task failed.
type TaskError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TaskUsage reports token consumption of a finished task.
type TaskUsage struct {
	CompletionTokens int64 `json:"completion_tokens"`
}

// TaskPage is one page of remote task records.
type TaskPage struct {
	Tasks []GenerationTask
	Total int
}

// HTTPClient implements Client using the ModelArk HTTP API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient creates a new generation API client.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) CreateTask(ctx context.Context, req CreateTaskRequest) (*GenerationTask, error) {
	content := []taskContentItem{{Type: "text", Text: req.Prompt}}
	for _, img := range req.Images {
		if img.URL == "" {
			continue
		}
		content = append(content, taskContentItem{
			Type:     "image_url",
			ImageURL: &imageURLRef{URL: img.URL},
			Role:     img.Role,
		})
	}

	body, err := json.Marshal(createTaskPayload{Model: req.Model, Content: content})
	if err != nil {
		return nil, fmt.Errorf("encoding create request: %w", err)
	}

	u := fmt.Sprintf("%s/contents/generations/tasks", c.baseURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}

	var task GenerationTask
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return nil, fmt.Errorf("decoding task response: %w", err)
	}

	return &task, nil
}

func (c *HTTPClient) GetTask(ctx context.Context, taskID string) (*GenerationTask, error) {
	u := fmt.Sprintf("%s/contents/generations/tasks/%s", c.baseURL, url.PathEscape(taskID))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}

	var task GenerationTask
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return nil, fmt.Errorf("decoding task response: %w", err)
	}

	return &task, nil
}

func (c *HTTPClient) ListTasks(ctx context.Context, page, pageSize int) (*TaskPage, error) {
	params := url.Values{
		"page_num":  {strconv.Itoa(page)},
		"page_size": {strconv.Itoa(pageSize)},
	}

	u := fmt.Sprintf("%s/contents/generations/tasks?%s", c.baseURL, params.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}

	var listResp taskListResponse
	if err := json.NewDecoder(resp.Body).Decode(&listResp); err != nil {
		return nil, fmt.Errorf("decoding task list response: %w", err)
	}

	return &TaskPage{Tasks: listResp.Items, Total: listResp.Total}, nil
}

func (c *HTTPClient) DeleteTask(ctx context.Context, taskID string) error {
	u := fmt.Sprintf("%s/contents/generations/tasks/%s", c.baseURL, url.PathEscape(taskID))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return decodeAPIError(resp)
	}

	return nil
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	if _, err := c.ListTasks(ctx, 1, 1); err != nil {
		return err
	}
	return nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// decodeAPIError converts a non-OK response into a classified error.
// Unknown task IDs surface either as HTTP 404 or as an error payload
// carrying the not-found code.
func decodeAPIError(resp *http.Response) error {
	var body apiErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != nil {
		if resp.StatusCode == http.StatusNotFound || body.Error.Code == taskNotFoundCode {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, body.Error.Message)
		}
		return fmt.Errorf("%w: %s (code %s, status %d)", ErrAPIError, body.Error.Message, body.Error.Code, resp.StatusCode)
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrTaskNotFound
	}

	return fmt.Errorf("%w: status %d", ErrAPIError, resp.StatusCode)
}

// --- request/response payloads ---

type createTaskPayload struct {
	Model   string            `json:"model"`
	Content []taskContentItem `json:"content"`
}

type taskContentItem struct {
	Type     string       `json:"type"`
	Text     string       `json:"text,omitempty"`
	ImageURL *imageURLRef `json:"image_url,omitempty"`
	Role     string       `json:"role,omitempty"`
}

type imageURLRef struct {
	URL string `json:"url"`
}

type taskListResponse struct {
	Items []GenerationTask `json:"items"`
	Total int              `json:"total"`
}

type apiErrorResponse struct {
	Error *TaskError `json:"error"`
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
