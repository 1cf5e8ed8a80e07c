// Package tee reads a response body for the cache while leaving an
// identical body in place for the caller.
package tee

import (
	"bytes"
	"io"
	"net/http"
)

// Capture reads the whole body of res and replaces it with a replay.
// If reading fails part way, the replay yields the bytes read so far and
// then the same error, and Capture returns both as well.
func Capture(res *http.Response) ([]byte, error) {
	if res.Body == nil || res.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(res.Body)
	res.Body.Close()
	res.Body = &replay{r: bytes.NewReader(data), err: err}
	return data, err
}

// replay serves captured bytes followed by the read error, if any.
type replay struct {
	r   *bytes.Reader
	err error
}

func (b *replay) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err == io.EOF && b.err != nil {
		if n > 0 {
			return n, nil
		}
		return 0, b.err
	}
	return n, err
}

func (b *replay) Close() error {
	return nil
}
