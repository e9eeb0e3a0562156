package handle

import (
	"fmt"
	"net/http"
	"time"

	resty "github.com/go-resty/resty/v2"

	"mercator-hq/callisto/pkg/telemetry/tracing"
)

const (
	DefaultTimeout      = 30 * time.Second
	DefaultRetryCount   = 3
	DefaultRetryWait    = 200 * time.Millisecond
	DefaultRetryWaitMax = 3 * time.Second
	userAgent           = "callisto"
)

// Config configures a service client.
type Config struct {
	// BaseURL is the service root, for example "https://pid.example.org/api".
	BaseURL string

	// Token is sent as a bearer token when set.
	Token string

	// Timeout bounds each request.
	Timeout time.Duration

	// RetryCount is the number of retries on transient errors. A negative
	// value disables retries.
	RetryCount int
}

// APIError is returned for unexpected service responses.
type APIError struct {
	Method string
	URL    string
	Status int
	Body   string
}

// Error returns the error message.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.Status, e.Body)
}

func newAPIError(resp *resty.Response) *APIError {
	return &APIError{
		Method: resp.Request.Method,
		URL:    resp.Request.URL,
		Status: resp.StatusCode(),
		Body:   resp.String(),
	}
}

// newRestyClient builds the HTTP client shared by the service clients.
func newRestyClient(cfg Config) *resty.Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	retries := cfg.RetryCount
	if retries == 0 {
		retries = DefaultRetryCount
	}
	if retries < 0 {
		retries = 0
	}

	c := resty.New()
	c.SetBaseURL(cfg.BaseURL)
	c.SetHeader("User-Agent", userAgent)
	c.SetHeader("Accept", "application/json")
	if cfg.Token != "" {
		c.SetAuthToken(cfg.Token)
	}
	c.SetTimeout(cfg.Timeout)
	c.SetRetryCount(retries)
	c.SetRetryWaitTime(DefaultRetryWait)
	c.SetRetryMaxWaitTime(DefaultRetryWaitMax)
	c.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		tracing.Inject(r.Context(), r.Header)
		return nil
	})
	c.AddRetryCondition(func(response *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		switch response.StatusCode() {
		case
			http.StatusRequestTimeout,
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		default:
			return false
		}
	})
	return c
}
