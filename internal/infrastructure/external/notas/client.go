// Package notas implements the client for the Gestão de Notas student service.
// This package handles all communication with the remote REST API: listing,
// creating and deleting students and managing their subjects and grades.
package notas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/gestao-notas/notas-hub/internal/domain/shared"
	"github.com/gestao-notas/notas-hub/internal/domain/student"
	"github.com/gestao-notas/notas-hub/pkg/circuitbreaker"
	"github.com/gestao-notas/notas-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

const (
	// RequestIDHeader carries the per-call request ID.
	RequestIDHeader = "X-Request-ID"

	// maxErrorBody bounds how much of a failed response is kept.
	maxErrorBody = 4 << 10
)

// ClientConfig contains configuration for the student service client.
type ClientConfig struct {
	// BaseURL is the service origin, e.g. https://gestao-de-notas-api.onrender.com
	BaseURL string

	// ResourcePath is the students collection, e.g. /api/alunos
	ResourcePath string

	// Timeout bounds each request. Zero means no timeout.
	Timeout time.Duration

	// MaxAttempts applies to ListStudents only. 1 disables retries.
	MaxAttempts int

	// RetryBaseDelay and RetryMaxDelay shape the list backoff.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// CircuitBreakerThreshold opens the breaker after that many consecutive
	// connectivity failures. Zero disables the breaker.
	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration

	// RateLimit caps requests per second with RateBurst tokens.
	// Zero disables the limiter.
	RateLimit float64
	RateBurst int

	// HTTPClient overrides the transport (tests).
	HTTPClient *http.Client

	// Logger for structured logging
	Logger *slog.Logger
}

// DefaultClientConfig returns the terminal front-end defaults: no timeout,
// no retries, no breaker.
func DefaultClientConfig(baseURL, resourcePath string) ClientConfig {
	return ClientConfig{
		BaseURL:        baseURL,
		ResourcePath:   resourcePath,
		MaxAttempts:    1,
		RetryBaseDelay: 500 * time.Millisecond,
		RetryMaxDelay:  10 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the student service API client.
type Client struct {
	config     ClientConfig
	resource   string
	httpClient *http.Client
	logger     *slog.Logger
	sanitizer  *bluemonday.Policy
	validate   *validator.Validate
	retrier    *retry.Retrier
	breaker    *circuitbreaker.Breaker
	limiter    *RateLimiter
	mapper     *Mapper

	newRequestID func() string
}

// NewClient creates a new student service client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	c := &Client{
		config:       config,
		resource:     strings.TrimRight(config.BaseURL, "/") + "/" + strings.Trim(config.ResourcePath, "/"),
		httpClient:   httpClient,
		logger:       config.Logger,
		sanitizer:    bluemonday.StrictPolicy(),
		validate:     newValidator(),
		mapper:       NewMapper(),
		newRequestID: uuid.NewString,
	}

	c.retrier = retry.NotasAPI(config.MaxAttempts, config.RetryBaseDelay, config.RetryMaxDelay,
		func(attempt int, err error, wait time.Duration) {
			c.logger.Warn("student service not ready, retrying", "attempt", attempt, "wait", wait.String(), "error", err)
		})

	if config.RateLimit > 0 {
		c.limiter = NewRateLimiter(config.RateLimit, config.RateBurst)
	}

	if config.CircuitBreakerThreshold > 0 {
		c.breaker = circuitbreaker.New(circuitbreaker.Settings{
			Name:     "notas-api",
			Trips:    config.CircuitBreakerThreshold,
			CoolDown: config.CircuitBreakerTimeout,
			IsOutage: countsAsOutage,
			OnTransition: func(name string, from, to circuitbreaker.State) {
				c.logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			},
		})
	}

	return c
}

func newValidator() *validator.Validate {
	v := validator.New()
	// Use JSON tag names for errors instead of Go struct names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// ListStudents fetches every student. This is the only call that is retried,
// and only when MaxAttempts > 1.
func (c *Client) ListStudents(ctx context.Context) ([]student.Student, error) {
	const op = "ListStudents"

	dtos, err := retry.DoValue(ctx, c.retrier, func(ctx context.Context) ([]StudentDTO, error) {
		var out []StudentDTO
		if err := c.do(ctx, op, http.MethodGet, c.resource, nil, &out); err != nil {
			if isTransient(err) {
				return nil, retry.Retryable(err)
			}
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		// The retrier returns a bare context error when cancelled between attempts.
		var domainErr *shared.DomainError
		if !errors.As(err, &domainErr) {
			err = classifyTransportError(ctx, op, err)
		}
		return nil, err
	}

	return c.mapper.StudentsToDomain(dtos), nil
}

// CreateStudent trims and sanitizes name and creates a student with no
// subjects. An empty result is rejected before any request is sent.
func (c *Client) CreateStudent(ctx context.Context, name string) (student.Student, error) {
	const op = "CreateStudent"

	clean, err := student.NormalizeName(c.SanitizeName(name))
	if err != nil {
		return student.Student{}, err
	}

	body := CreateStudentRequest{Name: clean, Subjects: []SubjectDTO{}}
	return c.mutate(ctx, op, http.MethodPost, c.resource, body)
}

// AddSubject adds a subject to a student and returns the updated student.
func (c *Client) AddSubject(ctx context.Context, studentID, subjectName string) (student.Student, error) {
	const op = "AddSubject"

	if err := student.ValidateID(studentID); err != nil {
		return student.Student{}, err
	}
	subject, err := student.NormalizeSubjectName(subjectName)
	if err != nil {
		return student.Student{}, err
	}

	path := c.studentPath(studentID) + "/disciplinas"
	return c.mutate(ctx, op, http.MethodPost, path, AddSubjectRequest{Name: subject})
}

// AddGrade appends a grade to a subject.
func (c *Client) AddGrade(ctx context.Context, studentID, subjectName string, value float64) (student.Student, error) {
	const op = "AddGrade"

	path, err := c.subjectGradesPath(studentID, subjectName)
	if err != nil {
		return student.Student{}, err
	}
	grade, err := student.NewGrade(value)
	if err != nil {
		return student.Student{}, err
	}

	return c.mutate(ctx, op, http.MethodPost, path, AddGradeRequest{Grade: grade.Float64()})
}

// EditGrade replaces the grade at index within a subject.
func (c *Client) EditGrade(ctx context.Context, studentID, subjectName string, index int, value float64) (student.Student, error) {
	const op = "EditGrade"

	path, err := c.subjectGradesPath(studentID, subjectName)
	if err != nil {
		return student.Student{}, err
	}
	if index < 0 {
		return student.Student{}, shared.ErrNegativeGradeIndex
	}
	grade, err := student.NewGrade(value)
	if err != nil {
		return student.Student{}, err
	}

	path += "/" + strconv.Itoa(index)
	return c.mutate(ctx, op, http.MethodPut, path, EditGradeRequest{Grade: grade.Float64()})
}

// AddLegacyGrade appends a grade to the flat list kept on the student
// itself (PUT {resource}/{id}/notas).
func (c *Client) AddLegacyGrade(ctx context.Context, studentID string, value float64) (student.Student, error) {
	const op = "AddLegacyGrade"

	if err := student.ValidateID(studentID); err != nil {
		return student.Student{}, err
	}
	grade, err := student.NewGrade(value)
	if err != nil {
		return student.Student{}, err
	}

	path := c.studentPath(studentID) + "/notas"
	return c.mutate(ctx, op, http.MethodPut, path, AddGradeRequest{Grade: grade.Float64()})
}

// DeleteStudent removes a student on the service.
func (c *Client) DeleteStudent(ctx context.Context, studentID string) error {
	const op = "DeleteStudent"

	if err := student.ValidateID(studentID); err != nil {
		return err
	}
	return c.do(ctx, op, http.MethodDelete, c.studentPath(studentID), nil, nil)
}

// HealthCheck verifies the service answers the list endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.do(ctx, "HealthCheck", http.MethodGet, c.resource, nil, nil)
}

// SanitizeName strips markup from a user supplied name. Tags are removed,
// script and style content is dropped and the remaining text keeps the
// escaping of <, > and & a DOM serializer would produce.
func (c *Client) SanitizeName(name string) string {
	clean := c.sanitizer.Sanitize(strings.TrimSpace(name))
	return quoteUnescaper.Replace(strings.TrimSpace(clean))
}

var quoteUnescaper = strings.NewReplacer("&#39;", "'", "&#34;", `"`)

// ══════════════════════════════════════════════════════════════════════════════
// PATHS
// ══════════════════════════════════════════════════════════════════════════════

func (c *Client) studentPath(studentID string) string {
	return c.resource + "/" + url.PathEscape(studentID)
}

func (c *Client) subjectGradesPath(studentID, subjectName string) (string, error) {
	if err := student.ValidateID(studentID); err != nil {
		return "", err
	}
	if strings.TrimSpace(subjectName) == "" {
		return "", shared.ErrEmptySubjectName
	}
	return c.studentPath(studentID) + "/disciplinas/" + url.PathEscape(subjectName) + "/notas", nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP INTERNALS
// ══════════════════════════════════════════════════════════════════════════════

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

// Error implements error.
func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Detail extracts the server message from the body, falling back to
// the raw body.
func (e *StatusError) Detail() string {
	var body errorBodyDTO
	if err := json.Unmarshal([]byte(e.Body), &body); err == nil {
		if msg := body.text(); msg != "" {
			return msg
		}
	}
	return strings.TrimSpace(e.Body)
}

// StatusDetail returns the server detail carried by err, if any.
func StatusDetail(err error) (string, bool) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if d := statusErr.Detail(); d != "" {
			return d, true
		}
	}
	return "", false
}

// mutate sends a request whose response is the full updated student.
func (c *Client) mutate(ctx context.Context, op, method, path string, body any) (student.Student, error) {
	if err := c.validate.Struct(body); err != nil {
		return student.Student{}, shared.WrapError("notas", op, shared.ErrValidation, "invalid request body", err)
	}

	var dto StudentDTO
	if err := c.do(ctx, op, method, path, body, &dto); err != nil {
		return student.Student{}, err
	}
	return c.mapper.StudentToDomain(dto), nil
}

// do performs one request through the breaker when one is configured.
func (c *Client) do(ctx context.Context, op, method, path string, body, result any) error {
	if c.breaker == nil {
		return c.doSingleRequest(ctx, op, method, path, body, result)
	}

	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		return c.doSingleRequest(ctx, op, method, path, body, result)
	})
	if errors.Is(err, circuitbreaker.ErrOpen) || errors.Is(err, circuitbreaker.ErrTrialInFlight) {
		return shared.WrapError("notas", op, shared.ErrServiceUnavailable, "student service is unavailable", err)
	}
	return err
}

// doSingleRequest performs a single HTTP request.
func (c *Client) doSingleRequest(ctx context.Context, op, method, fullURL string, body, result any) error {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return shared.WrapError("notas", op, shared.ErrInvalidInput, "marshal body", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return shared.WrapError("notas", op, shared.ErrConnectivity, "create request", err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return classifyTransportError(ctx, op, err)
		}
	}

	requestID := c.newRequestID()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("notas api request failed",
			"op", op, "method", method, "url", fullURL, "request_id", requestID, "error", err)
		return classifyTransportError(ctx, op, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("notas api request",
		"op", op, "method", method, "url", fullURL, "status", resp.StatusCode,
		"request_id", requestID, "duration", time.Since(started))

	if resp.StatusCode == http.StatusTooManyRequests && c.limiter != nil {
		c.limiter.RecordRateLimitHit(retryAfter(resp.Header.Get("Retry-After")))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{
			Method:     method,
			Path:       req.URL.EscapedPath(),
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
		}
		return shared.WrapError("notas", op, shared.ErrConnectivity, "unexpected status", statusErr)
	}

	if result == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyTransportError(ctx, op, err)
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return shared.WrapError("notas", op, shared.ErrInvalidFormat, "decode response", err)
	}
	return nil
}

// retryAfter reads the delay-seconds form of Retry-After.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func classifyTransportError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return shared.WrapError("notas", op, shared.ErrTimeout, "request timed out", ctxErr)
		}
		return shared.WrapError("notas", op, shared.ErrConnectivity, "request cancelled", ctxErr)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return shared.WrapError("notas", op, shared.ErrTimeout, "request timed out", err)
	}
	return shared.WrapError("notas", op, shared.ErrConnectivity, "request failed", err)
}

// isTransient reports whether a list attempt is worth retrying.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, shared.ErrServiceUnavailable) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests
	}
	return shared.IsConnectivity(err) && !errors.Is(err, shared.ErrInvalidFormat)
}

// countsAsOutage decides what trips the breaker: transport failures and 5xx.
func countsAsOutage(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500
	}
	return shared.IsConnectivity(err)
}
