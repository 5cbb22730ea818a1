// Package urlbuild constructs and normalizes the target URLs of proxied
// calls. All functions operate on parsed URLs so that query strings and
// fragments are never mistaken for path content.
package urlbuild

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ericfisherdev/relaygate/internal/domain/model"
)

// Param is one query parameter in the order it appears in a URL.
type Param struct {
	Key   string
	Value string
}

// BuildURL appends suffix to the path of base and replaces the query with
// the canonical encoding of params. Any query already present on base is
// discarded, not merged; the fragment is kept.
func BuildURL(base, suffix string, params map[string]string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url %q: %w", base, err)
	}

	u.Path = joinPath(u.Path, suffix)
	u.RawPath = ""
	u.RawQuery = encode(params)
	u.ForceQuery = false

	return u.String(), nil
}

// AddURLParams merges params into the existing query of rawURL. Keys
// already present are overwritten; other keys and the fragment are kept.
func AddURLParams(rawURL string, params map[string]string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}

	query := u.Query()
	for k, v := range params {
		query.Set(k, v)
	}
	u.RawQuery = query.Encode()

	return u.String(), nil
}

// NormalizeURL enforces the trailing-slash preference on the path component
// only. With wantTrailingSlash a missing "/" is appended; without it every
// trailing "/" is removed. Query and fragment are untouched, and applying
// the function twice gives the same result as applying it once.
func NormalizeURL(rawURL string, wantTrailingSlash bool) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}

	u.Path = applySlash(u.Path, wantTrailingSlash)
	if u.RawPath != "" {
		u.RawPath = applySlash(u.RawPath, wantTrailingSlash)
	}

	return u.String(), nil
}

// ExtractURLParams returns the query parameters of rawURL in order,
// keeping duplicate keys and blank values. The fragment is ignored.
func ExtractURLParams(rawURL string) ([]Param, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}

	params := []Param{}
	for _, pair := range strings.Split(u.RawQuery, "&") {
		if pair == "" {
			continue
		}

		rawKey, rawValue, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return nil, fmt.Errorf("decode query key %q: %w", rawKey, err)
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return nil, fmt.Errorf("decode query value for %q: %w", key, err)
		}

		params = append(params, Param{Key: key, Value: value})
	}

	return params, nil
}

// EndpointURL builds the normalized target URL of an endpoint. svc may be
// nil for endpoints that belong to no service; those never get a trailing
// slash.
func EndpointURL(ep *model.Endpoint, svc *model.Service, params map[string]string) (string, error) {
	built, err := BuildURL(ep.BaseURL, ep.Suffix, params)
	if err != nil {
		return "", err
	}

	trailing := svc != nil && svc.TrailingSlash
	return NormalizeURL(built, trailing)
}

// joinPath concatenates a base path and a suffix with exactly one "/"
// between them.
func joinPath(base, suffix string) string {
	if suffix == "" {
		return base
	}

	switch {
	case strings.HasSuffix(base, "/") && strings.HasPrefix(suffix, "/"):
		return base + suffix[1:]
	case !strings.HasSuffix(base, "/") && !strings.HasPrefix(suffix, "/"):
		return base + "/" + suffix
	default:
		return base + suffix
	}
}

func applySlash(path string, want bool) string {
	if want {
		if !strings.HasSuffix(path, "/") {
			return path + "/"
		}
		return path
	}
	return strings.TrimRight(path, "/")
}

// encode renders params sorted by key, the canonical form url.Values uses.
func encode(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}

	values := make(url.Values, len(params))
	for k, v := range params {
		values.Set(k, v)
	}
	return values.Encode()
}
