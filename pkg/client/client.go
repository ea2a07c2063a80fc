package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/terra-clan/course-engine/internal/models"
)

// Client is a Go SDK for the course-engine API
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new course-engine client. token is the user's bearer
// token and may be empty for anonymous access.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is an error response from the server
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s - %s", e.StatusCode, e.Code, e.Message)
}

// IsAuthRequired reports whether the caller must sign in
func IsAuthRequired(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == "auth_required"
}

// QuizResult is the state of a lesson quiz after an action
type QuizResult struct {
	State           string  `json:"state"`
	SelectedIndex   *int    `json:"selected_index,omitempty"`
	Correct         *bool   `json:"correct,omitempty"`
	PendingSync     bool    `json:"pending_sync"`
	Attempts        int     `json:"attempts"`
	ModuleProgress  float64 `json:"module_progress"`
	CourseProgress  float64 `json:"course_progress"`
	CourseCompleted bool    `json:"course_completed"`
}

// Progress is the caller's record set for one course
type Progress struct {
	Lessons []models.ProgressRecord      `json:"lessons"`
	Course  *models.CourseProgressRecord `json:"course"`
}

// Certificate is a downloaded certificate document
type Certificate struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ListCourses returns every course projected with the caller's progress
func (c *Client) ListCourses(ctx context.Context) ([]models.CourseView, error) {
	var result struct {
		Courses []models.CourseView `json:"courses"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/courses", nil, &result); err != nil {
		return nil, err
	}
	return result.Courses, nil
}

// GetCourse returns one projected course
func (c *Client) GetCourse(ctx context.Context, courseID string) (*models.CourseView, error) {
	var view models.CourseView
	if err := c.call(ctx, http.MethodGet, "/api/v1/courses/"+url.PathEscape(courseID), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// StartCourse records that the caller opened a course
func (c *Client) StartCourse(ctx context.Context, courseID string) (*models.CourseProgressRecord, error) {
	var rec models.CourseProgressRecord
	if err := c.call(ctx, http.MethodPost, "/api/v1/courses/"+url.PathEscape(courseID)+"/start", nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetProgress returns the caller's progress records for a course
func (c *Client) GetProgress(ctx context.Context, courseID string) (*Progress, error) {
	var p Progress
	if err := c.call(ctx, http.MethodGet, "/api/v1/courses/"+url.PathEscape(courseID)+"/progress", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SubmitQuiz answers a lesson quiz. A result with PendingSync set was
// accepted but not yet stored.
func (c *Client) SubmitQuiz(ctx context.Context, key models.LessonKey, selectedIndex int) (*QuizResult, error) {
	body := map[string]int{"selected_index": selectedIndex}
	var result QuizResult
	if err := c.call(ctx, http.MethodPost, quizPath(key, "submit"), body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RetryQuiz resets an incorrectly answered quiz
func (c *Client) RetryQuiz(ctx context.Context, key models.LessonKey) (*QuizResult, error) {
	var result QuizResult
	if err := c.call(ctx, http.MethodPost, quizPath(key, "retry"), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DownloadCertificate fetches the certificate; format is "pdf" or "png"
func (c *Client) DownloadCertificate(ctx context.Context, courseID, format string) (*Certificate, error) {
	path := "/api/v1/courses/" + url.PathEscape(courseID) + "/certificate?format=" + url.QueryEscape(format)
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, decodeError(resp.StatusCode, data)
	}

	filename := ""
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if i := strings.Index(cd, "filename="); i >= 0 {
			filename = strings.Trim(cd[i+len("filename="):], `"`)
		}
	}

	return &Certificate{
		Filename:    filename,
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// RedeemAccessCode turns an access code into a learning path
func (c *Client) RedeemAccessCode(ctx context.Context, code string) (*models.LearningPath, error) {
	var path models.LearningPath
	if err := c.call(ctx, http.MethodPost, "/api/v1/access-codes/redeem", map[string]string{"code": code}, &path); err != nil {
		return nil, err
	}
	return &path, nil
}

// Health checks the API health
func (c *Client) Health(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/health", nil, nil)
}

func quizPath(key models.LessonKey, action string) string {
	return fmt.Sprintf("/api/v1/courses/%s/modules/%s/lessons/%s/quiz/%s",
		url.PathEscape(key.CourseID), url.PathEscape(key.ModuleID), url.PathEscape(key.LessonID), action)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// call sends body as JSON and decodes the envelope data into out
func (c *Client) call(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	resp, err := c.doRequest(ctx, method, path, reader)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, data)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to unmarshal response data: %w", err)
	}
	return nil
}

func decodeError(status int, data []byte) error {
	apiErr := &APIError{StatusCode: status, Code: "http_error", Message: string(data)}
	var env envelope
	if err := json.Unmarshal(data, &env); err == nil && env.Error != nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
	}
	return apiErr
}

func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}
