package antireload

import (
	"net/http"

	"golang.org/x/time/rate"
)

type rateLimited struct {
	next    http.RoundTripper
	limiter *rate.Limiter
}

// RateLimit returns a transport that lets at most rps requests per second
// through to next, with bursts of up to burst. Requests wait for their turn
// until their context is done. A non-positive rps returns next unchanged.
func RateLimit(next http.RoundTripper, rps float64, burst int) http.RoundTripper {
	if rps <= 0 {
		return next
	}
	if next == nil {
		next = http.DefaultTransport
	}
	if burst <= 0 {
		burst = 1
	}
	return &rateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (t *rateLimited) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.next.RoundTrip(req)
}
