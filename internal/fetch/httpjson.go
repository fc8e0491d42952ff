package fetch

import (
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultTimeout is the client-side deadline applied to every upstream call
// unless configured otherwise.
const DefaultTimeout = 10 * time.Second

// httpJSON is a thin fasthttp wrapper shared by the REST fetchers. It applies
// the client timeout, classifies transport and status failures into the fetch
// error taxonomy, and decodes JSON bodies.
type httpJSON struct {
	client  *fasthttp.Client
	timeout time.Duration
	logger  *zap.Logger
}

func newHTTPJSON(timeout time.Duration, logger *zap.Logger) *httpJSON {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &httpJSON{
		client:  &fasthttp.Client{},
		timeout: timeout,
		logger:  logger,
	}
}

// get performs a GET against url and decodes the body into out. A nil out
// discards the body. The returned error is always a *Error.
func (h *httpJSON) get(capability, url string, out any) error {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	if err := h.client.DoTimeout(req, resp, h.timeout); err != nil {
		kind := KindNetwork
		if errors.Is(err, fasthttp.ErrTimeout) || errors.Is(err, fasthttp.ErrDialTimeout) {
			kind = KindTimeout
		}
		return newError(kind, capability, url, err)
	}

	status := resp.StatusCode()
	switch {
	case status == fasthttp.StatusOK:
	case status == fasthttp.StatusTooManyRequests:
		return newError(KindRateLimit, capability, url, fmt.Errorf("status %d", status))
	case status >= 400 && status < 500:
		// 4xx marks a bad request, not a transient upstream failure.
		return newError(KindMalformed, capability, url, fmt.Errorf("status %d: %s", status, resp.Body()))
	default:
		return newError(KindServer, capability, url, fmt.Errorf("status %d: %s", status, resp.Body()))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		h.logger.Debug("failed to decode upstream response",
			zap.String("capability", capability),
			zap.String("url", url),
			zap.Error(err))
		return newError(KindMalformed, capability, url, err)
	}
	return nil
}
