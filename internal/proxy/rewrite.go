package proxy

import (
	"net/url"
	"strings"
)

// StripPrefix removes prefix from the beginning of path. The result
// always starts with a slash.
func StripPrefix(path, prefix string) string {
	if prefix != "" {
		path = strings.TrimPrefix(path, prefix)
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return path
}

// StripQueryParam removes every occurrence of the parameter name from
// rawQuery. The remaining pairs keep their order and encoding.
func StripQueryParam(rawQuery, name string) string {
	if rawQuery == "" || name == "" {
		return rawQuery
	}

	pairs := strings.Split(rawQuery, "&")
	kept := pairs[:0]

	for _, pair := range pairs {
		if pair == "" {
			continue
		}

		key, _, _ := strings.Cut(pair, "=")
		if unescaped, err := url.QueryUnescape(key); err == nil {
			key = unescaped
		}

		if key == name {
			continue
		}

		kept = append(kept, pair)
	}

	return strings.Join(kept, "&")
}

// BuildTargetURL joins the origin base, the escaped path and the raw
// query into the upstream request URL.
func BuildTargetURL(origin Origin, path, rawQuery string) (*url.URL, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	target := origin.Base + path
	if rawQuery != "" {
		target += "?" + rawQuery
	}

	return url.Parse(target)
}

// rewriteRequest returns the escaped path and raw query to forward
// for the incoming request.
func (c Config) rewriteRequest(u *url.URL) (string, string) {
	path := StripPrefix(u.EscapedPath(), c.StripPrefix)
	query := StripQueryParam(u.RawQuery, c.InjectedParam)
	return path, query
}
