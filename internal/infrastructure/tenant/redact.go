package tenant

import (
	"net/url"
	"strings"
)

var secretParams = []string{"password", "secret", "token", "key", "credential"}

// Redact strips credentials from a connection descriptor.
func Redact(descriptor string) string {
	u, err := url.Parse(descriptor)
	if err != nil || u.Scheme == "" || u.Opaque != "" {
		return redactUserinfo(descriptor)
	}
	q := u.Query()
	changed := false
	for k := range q {
		lk := strings.ToLower(k)
		for _, s := range secretParams {
			if strings.Contains(lk, s) {
				q.Set(k, "xxxxx")
				changed = true
				break
			}
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.Redacted()
}

// redactUserinfo handles targets net/url refuses, such as multi-host
// mongodb:// seed lists.
func redactUserinfo(s string) string {
	i := strings.Index(s, "://")
	if i < 0 {
		if strings.Contains(s, "@") {
			return "xxxxx"
		}
		return s
	}
	rest := s[i+3:]
	end := len(rest)
	if j := strings.IndexAny(rest, "/?"); j >= 0 {
		end = j
	}
	at := strings.LastIndex(rest[:end], "@")
	if at < 0 {
		if j := strings.IndexByte(rest, '?'); j >= 0 {
			return s[:i+3+j] + "?xxxxx"
		}
		return s
	}
	out := s[:i+3] + "xxxxx@" + rest[at+1:]
	if j := strings.IndexByte(out, '?'); j >= 0 {
		out = out[:j] + "?xxxxx"
	}
	return out
}
