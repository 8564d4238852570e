package utils

import (
	"net/url"
	"strings"
)

// IsValidURL reports whether s is an absolute http(s) URL with a host
func IsValidURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}

// JoinURL joins a base URL and path segments with single slashes.
// The base is kept as-is apart from trailing slashes, so relative bases like "/assets" work too.
func JoinURL(base string, elem ...string) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimRight(base, "/"))
	for _, e := range elem {
		e = strings.Trim(e, "/")
		if e == "" {
			continue
		}
		sb.WriteString("/")
		sb.WriteString(e)
	}
	return sb.String()
}

// EscapePath percent-encodes every segment of a slash separated path for use in a URL
func EscapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
