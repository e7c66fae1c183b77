package httpclient

import (
	"context"
	"time"

	"github.com/valyala/fasthttp"
)

// Doer is the slice of *fasthttp.Client the outbound adapters need.
type Doer interface {
	DoTimeout(req *fasthttp.Request, resp *fasthttp.Response, timeout time.Duration) error
}

// Config tunes the shared outbound client.
type Config struct {
	Name                string
	MaxConnsPerHost     int
	MaxIdleConnDuration time.Duration
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
}

// New builds the single long-lived client a process shares between its adapters.
func New(cfg Config) *fasthttp.Client {
	if cfg.MaxConnsPerHost <= 0 {
		cfg.MaxConnsPerHost = 64
	}
	if cfg.MaxIdleConnDuration <= 0 {
		cfg.MaxIdleConnDuration = 90 * time.Second
	}
	return &fasthttp.Client{
		Name:                cfg.Name,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		MaxIdleConnDuration: cfg.MaxIdleConnDuration,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
	}
}

// Timeout returns the smaller of fallback and the time left on ctx.
// A context that is already done yields context.DeadlineExceeded or context.Canceled.
func Timeout(ctx context.Context, fallback time.Duration) (time.Duration, error) {
	if fallback <= 0 {
		fallback = 30 * time.Second
	}
	if ctx == nil {
		return fallback, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < fallback {
			if left <= 0 {
				return 0, context.DeadlineExceeded
			}
			return left, nil
		}
	}
	return fallback, nil
}

// IsSuccess reports a 2xx status.
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}
