package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
)

// ErrEmptyBody is returned by ParseJSON when the request has no body
var ErrEmptyBody = errors.New("empty request body")

// ParseJSON decodes JSON from the request body into the destination
func ParseJSON(r *http.Request, dest interface{}) error {
	if r.Body == nil || r.Body == http.NoBody {
		return ErrEmptyBody
	}
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// ParseOptionalJSON decodes JSON from the body when one is present. An
// empty body leaves dest untouched and is not an error.
func ParseOptionalJSON(r *http.Request, dest interface{}) error {
	if err := ParseJSON(r, dest); err != nil && !errors.Is(err, ErrEmptyBody) {
		return err
	}
	return nil
}

// PathString extracts a string path parameter
func PathString(r *http.Request, key string) string {
	return mux.Vars(r)[key]
}

// QueryString extracts a trimmed string query parameter
func QueryString(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

// QueryInt extracts an integer query parameter. Missing or non-numeric
// values yield defaultVal.
func QueryInt(r *http.Request, key string, defaultVal int) int {
	str := QueryString(r, key)
	if str == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return defaultVal
	}
	return val
}

// QueryInt64Ptr extracts an int64 query parameter. Missing or non-numeric
// values yield nil.
func QueryInt64Ptr(r *http.Request, key string) *int64 {
	str := QueryString(r, key)
	if str == "" {
		return nil
	}
	val, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return nil
	}
	return &val
}
