// Package cachekey derives cache identities from requests.
//
// The identity is the exact request URL string. No normalization is done:
// two URLs that differ only in query parameter order are distinct identities.
package cachekey

import (
	"fmt"
	"net/http"
	"strings"
)

var ErrorMethodNotSupported = fmt.Errorf("Method not supported")

// paginationMarkers are the query fragments that mark a request for a later
// page of a list.
var paginationMarkers = []string{"offset=", "page=", "p=", "last_id=", "lastId=", "_start="}

// Identity returns the cache identity of a GET request.
func Identity(r *http.Request) (string, error) {
	if r.Method != "" && r.Method != http.MethodGet {
		return "", ErrorMethodNotSupported
	}
	return r.URL.String(), nil
}

// IsPagination reports whether the identity looks like a request for a
// later page. It is informational only; pages are cached like any response.
func IsPagination(identity string) bool {
	for _, m := range paginationMarkers {
		if strings.Contains(identity, m) {
			return true
		}
	}
	return false
}
