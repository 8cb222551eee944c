package server

import (
	"net/http"
	"strconv"
	"strings"
)

// queryInt returns the integer query parameter key, or def when it is
// missing or malformed.
func queryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(key)))
	if err != nil {
		return def
	}
	return n
}
