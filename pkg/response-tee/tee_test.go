package tee

import (
	"bufio"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestCaptureBodyIntact(t *testing.T) {
	response := "HTTP/1.1 200 OK\r\nServer: Test\r\n\r\nThis is the body"

	res, err := http.ReadResponse(bufio.NewReader(strings.NewReader(response)), nil)
	if err != nil {
		t.Fatal(err)
	}

	captured, err := Capture(res)
	if err != nil {
		t.Fatalf("Error: %v", err)
	}
	if string(captured) != "This is the body" {
		t.Fatalf("Captured: %s", captured)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("Error: %v", err)
	}
	if string(body) != "This is the body" {
		t.Fatalf("Body: %s", body)
	}
}

var errBroken = errors.New("connection reset")

// brokenBody yields data and then fails.
type brokenBody struct {
	data   io.Reader
	closed bool
}

func (b *brokenBody) Read(p []byte) (int, error) {
	n, err := b.data.Read(p)
	if err == io.EOF {
		return n, errBroken
	}
	return n, err
}

func (b *brokenBody) Close() error {
	b.closed = true
	return nil
}

func TestCaptureReadFailure(t *testing.T) {
	orig := &brokenBody{data: strings.NewReader(`{"partial":`)}
	res := &http.Response{StatusCode: 200, Body: orig}

	captured, err := Capture(res)
	if !errors.Is(err, errBroken) {
		t.Fatalf("Error is %v", err)
	}
	if string(captured) != `{"partial":` {
		t.Fatalf("Captured: %s", captured)
	}
	if !orig.closed {
		t.Fatal("Original body not closed")
	}

	body, err := io.ReadAll(res.Body)
	if !errors.Is(err, errBroken) {
		t.Fatalf("Replay error is %v", err)
	}
	if string(body) != `{"partial":` {
		t.Fatalf("Replayed: %s", body)
	}
}

func TestCaptureNoBody(t *testing.T) {
	res := &http.Response{StatusCode: 204, Body: http.NoBody}
	if data, err := Capture(res); data != nil || err != nil {
		t.Fatalf("Captured %v, %v", data, err)
	}
	if res.Body != http.NoBody {
		t.Fatal("Body replaced")
	}
}
