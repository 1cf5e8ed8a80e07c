// Package serializer turns cached payloads back into HTTP responses.
package serializer

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"time"
)

const ContentType = "application/json"

// Synthesize builds a 200 JSON response carrying the payload, as if it had
// just been received for req. The Age header reflects how long ago the
// payload was stored.
func Synthesize(req *http.Request, payload []byte, storedAt, now time.Time) *http.Response {
	res := &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{},
		Body:          io.NopCloser(bytes.NewReader(payload)),
		ContentLength: int64(len(payload)),
		Request:       req,
	}
	res.Header.Set("Content-Type", ContentType)
	res.Header.Set("Content-Length", strconv.Itoa(len(payload)))
	res.Header.Set("Age", strconv.FormatInt(Age(storedAt, now), 10))
	return res
}

// Age returns the whole seconds between storedAt and now, never negative.
func Age(storedAt, now time.Time) int64 {
	age := int64(now.Sub(storedAt) / time.Second)
	if age < 0 {
		return 0
	}
	return age
}
