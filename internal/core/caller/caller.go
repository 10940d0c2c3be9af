// Package caller implements the workflow API caller over HTTP.
package caller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/go-resty/resty/v2"

	"github.com/solatis/formflow/internal/types"
	"github.com/solatis/formflow/internal/workflow"
)

// ErrStatus wraps responses with an HTTP status of 400 or above.
var ErrStatus = errors.New("unexpected HTTP status")

var validate = validator.New()

// Config holds the HTTP caller configuration with declarative tags.
type Config struct {
	BaseURL     string        `mapstructure:"base_url" validate:"omitempty,url"`
	Timeout     time.Duration `mapstructure:"timeout" default:"10s" validate:"gte=1ms"`
	MaxRetries  int           `mapstructure:"max_retries" default:"2" validate:"gte=0,lte=10"`
	RetryWaitMS int           `mapstructure:"retry_wait_ms" default:"200" validate:"gte=0,lte=10000"`
	Debug       bool          `mapstructure:"debug" default:"false"`
	// AuthToken is sent as a bearer token when the node sets no Authorization
	// header. Only accepted from the environment.
	AuthToken string `mapstructure:"-"`
}

// DefaultConfig returns a Config populated from the default tags.
func DefaultConfig() Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		panic(fmt.Sprintf("caller default tags: %v", err))
	}
	return c
}

// Validate checks c against its validate tags. Zero values are kept as set:
// MaxRetries 0 disables retries.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("field '%s' failed validation (rule: %s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("caller config validation failed: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("caller config validation failed: %w", err)
	}
	return nil
}

// HTTPCaller performs callApi and fetchOptions requests with resty.
//
// URL, header values and the body template are interpolated with the
// current form values. A body that renders to valid JSON is sent as JSON,
// anything else as plain text. JSON responses are decoded into generic
// values; other bodies are returned as strings.
type HTTPCaller struct {
	l      *slog.Logger
	client *resty.Client
	token  string
}

var _ workflow.APICaller = (*HTTPCaller)(nil)

// New creates a caller from a validated cfg. Start from DefaultConfig to
// get the tag defaults.
func New(cfg Config, l *slog.Logger) (*HTTPCaller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if l == nil {
		l = slog.Default()
	}
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(time.Duration(cfg.RetryWaitMS) * time.Millisecond).
		SetDebug(cfg.Debug)
	if cfg.BaseURL != "" {
		client.SetBaseURL(cfg.BaseURL)
	}
	return &HTTPCaller{l: l, client: client, token: cfg.AuthToken}, nil
}

// Call implements workflow.APICaller.
func (h *HTTPCaller) Call(ctx context.Context, api types.APIConfig, values types.Values) (any, error) {
	method := strings.ToUpper(strings.TrimSpace(api.Method))
	if method == "" {
		method = http.MethodGet
	}
	url := workflow.Interpolate(api.URL, values)

	req := h.client.R().SetContext(ctx)
	for k, v := range api.Headers {
		req.SetHeader(k, workflow.Interpolate(v, values))
	}
	if h.token != "" && req.Header.Get("Authorization") == "" {
		req.SetAuthToken(h.token)
	}
	if api.BodyTemplate != "" {
		rendered := workflow.Interpolate(api.BodyTemplate, values)
		if parsed, err := gabs.ParseJSON([]byte(rendered)); err == nil {
			req.SetHeader("Content-Type", "application/json")
			req.SetBody(parsed.Bytes())
		} else {
			if req.Header.Get("Content-Type") == "" {
				req.SetHeader("Content-Type", "text/plain; charset=utf-8")
			}
			req.SetBody(rendered)
		}
	}

	h.l.DebugContext(ctx, fmt.Sprintf("Calling API: %s %s", method, url))
	resp, err := req.Execute(method, url)
	if err != nil {
		return nil, fmt.Errorf("HTTP request %s %s failed: %w", method, url, err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		h.l.ErrorContext(ctx, fmt.Sprintf("API returned %s", resp.Status()), "method", method, "url", url)
		return nil, fmt.Errorf("%w: %s %s returned %d", ErrStatus, method, url, resp.StatusCode())
	}

	return decodeBody(resp.Body()), nil
}

// decodeBody returns the JSON value of body, or body as a string when it is
// not JSON. An empty body is nil.
func decodeBody(body []byte) any {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	parsed, err := gabs.ParseJSON(body)
	if err != nil {
		return string(body)
	}
	return parsed.Data()
}
