package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/brickapparel/storefront-backend/pkg/errors"
)

// QueryString returns the trimmed query value for key.
func QueryString(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

// ParseQueryInt reads an integer query parameter bounded by [min, max]. A
// missing parameter yields fallback.
func ParseQueryInt(r *http.Request, key string, fallback, min, max int) (int, error) {
	raw := QueryString(r, key)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	switch {
	case err != nil:
		return 0, pkgerrors.New(pkgerrors.CodeValidation, key+" must be an integer").WithDetails(map[string]any{"field": key})
	case value < min || value > max:
		return 0, pkgerrors.New(pkgerrors.CodeValidation, key+" is out of range").WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}

// ParseQueryBool reads a boolean flag such as ?unreadOnly=true.
func ParseQueryBool(r *http.Request, key string) (bool, error) {
	raw := QueryString(r, key)
	if raw == "" {
		return false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, key+" must be a boolean").WithDetails(map[string]any{"field": key})
	}
	return value, nil
}
