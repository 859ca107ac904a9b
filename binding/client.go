// Package binding talks to an OrientDB server over its REST interface.
package binding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/sixpeteunder/orientdb-odm/models"
	"github.com/sixpeteunder/orientdb-odm/protocol"
)

// ClientConfig holds the connection settings of a Client.
type ClientConfig struct {
	Scheme   string        `validate:"omitempty,oneof=http https"`
	Host     string        `validate:"required,hostname|ip"`
	Port     int           `validate:"gte=1,lte=65535"`
	Database string        `validate:"required"`
	User     string        `validate:"required"`
	Password string
	Timeout  time.Duration `validate:"gte=0"`
	Retries  int           `validate:"gte=0,lte=10"`
	Backoff  time.Duration `validate:"gte=0"`
}

// Response is a completed HTTP exchange.
type Response struct {
	Status    int
	Body      []byte
	RequestID string
}

// Client issues authenticated requests to one database.
type Client struct {
	cfg     ClientConfig
	baseURL string
	logger  *slog.Logger
}

func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if cfg.Scheme == "" {
		cfg.Scheme = "http"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 200 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:     cfg,
		baseURL: fmt.Sprintf("%s://%s:%d", cfg.Scheme, cfg.Host, cfg.Port),
		logger:  logger,
	}
}

// Database returns the configured database name.
func (c *Client) Database() string {
	return c.cfg.Database
}

// Connect checks credentials against the database.
func (c *Client) Connect(ctx context.Context) error {
	resp, err := c.Do(ctx, fiber.MethodGet, "/connect/"+url.PathEscape(c.cfg.Database), nil)
	if err != nil {
		return err
	}
	if resp.Status == fiber.StatusNotFound {
		return fmt.Errorf("%w: database %s not found", protocol.ErrTransport, c.cfg.Database)
	}
	return nil
}

// GetDocument loads one record. A 404 is returned as a response, not an error.
func (c *Client) GetDocument(ctx context.Context, rid models.RID, fetchPlan string) (*Response, error) {
	path := "/document/" + url.PathEscape(c.cfg.Database) + "/" + rid.Bare()
	if fetchPlan != "" {
		path += "/" + url.PathEscape(fetchPlan)
	}
	return c.Do(ctx, fiber.MethodGet, path, nil)
}

func (c *Client) PostDocument(ctx context.Context, body []byte) (*Response, error) {
	return c.Do(ctx, fiber.MethodPost, "/document/"+url.PathEscape(c.cfg.Database), body)
}

func (c *Client) PutDocument(ctx context.Context, rid models.RID, body []byte) (*Response, error) {
	return c.Do(ctx, fiber.MethodPut, "/document/"+url.PathEscape(c.cfg.Database)+"/"+rid.Bare(), body)
}

func (c *Client) DeleteDocument(ctx context.Context, rid models.RID) (*Response, error) {
	return c.Do(ctx, fiber.MethodDelete, "/document/"+url.PathEscape(c.cfg.Database)+"/"+rid.Bare(), nil)
}

// Command runs SQL text.
func (c *Client) Command(ctx context.Context, sql string) (*Response, error) {
	return c.Do(ctx, fiber.MethodPost, "/command/"+url.PathEscape(c.cfg.Database)+"/sql", []byte(sql))
}

// Do sends a request, retrying transport failures with linear backoff.
func (c *Client) Do(ctx context.Context, method, path string, body []byte) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if attempt > 0 {
			wait := backoffFor(c.cfg.Backoff, attempt)
			c.logger.Warn("retrying request", "method", method, "path", path, "attempt", attempt, "wait", wait, "error", lastErr)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := c.once(method, path, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) once(method, path string, body []byte) (*Response, error) {
	requestID := uuid.New().String()
	agent := fiber.AcquireAgent()
	req := agent.Request()
	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)

	agent.BasicAuth(c.cfg.User, c.cfg.Password)
	agent.Set("X-Request-ID", requestID)
	agent.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	agent.Timeout(c.cfg.Timeout)
	if body != nil {
		agent.ContentType(fiber.MIMEApplicationJSONCharsetUTF8)
		agent.Body(body)
	}

	start := time.Now()
	if err := agent.Parse(); err != nil {
		fiber.ReleaseAgent(agent)
		return nil, fmt.Errorf("%w: %v", protocol.ErrTransport, err)
	}
	code, respBody, errs := agent.Bytes()
	latency := time.Since(start)

	if len(errs) > 0 {
		err := errors.Join(errs...)
		c.logger.Error("request failed",
			"request_id", requestID,
			"method", method,
			"path", path,
			"latency", latency,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %s %s: %v", protocol.ErrTransport, method, path, err)
	}

	c.logger.Debug("request completed",
		"request_id", requestID,
		"method", method,
		"path", path,
		"status", code,
		"latency", latency,
	)

	resp := &Response{Status: code, Body: respBody, RequestID: requestID}
	if err := classify(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// StatusError is a non-success HTTP answer. It unwraps to the error class
// it belongs to.
type StatusError struct {
	Status    int
	Body      string
	RequestID string
	class     error
}

func (e *StatusError) Error() string {
	return e.class.Error() + ": HTTP " + strconv.Itoa(e.Status) + ": " + truncate(e.Body, 256)
}

func (e *StatusError) Unwrap() error {
	return e.class
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
