package utils

import (
	"bufio"
	"io"
	"net/url"
	"strings"
)

// NormalizeStoreURL prefixes https:// when the URL carries no scheme.
// Hosts that merely start with "http", such as http-store.com, get the
// prefix too.
func NormalizeStoreURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if hasScheme(raw) {
		return raw
	}
	return "https://" + raw
}

// hasScheme reports whether raw starts with "scheme://" where scheme
// follows RFC 3986: a letter, then letters, digits, '+', '-' or '.'.
func hasScheme(raw string) bool {
	i := strings.Index(raw, "://")
	if i <= 0 {
		return false
	}
	for j, r := range raw[:i] {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case j > 0 && (r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}

// CleanURLs trims every entry, drops blanks and keeps the first occurrence
// of each URL.
func CleanURLs(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// ReadURLs reads one URL per line. Blank lines and lines starting with #
// are skipped.
func ReadURLs(r io.Reader) ([]string, error) {
	var urls []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return CleanURLs(urls), nil
}

// RedactURL hides the password of a URL with credentials, such as a proxy.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}
