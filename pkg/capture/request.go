package capture

import (
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// ClientIP returns the originating client address. The first valid IPv4
// entry of X-Forwarded-For wins, then the host part of remoteAddr. Anything
// else yields "bogon".
func ClientIP(header http.Header, remoteAddr string) string {
	if xff := header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip := strings.TrimSpace(part); isIPv4(ip) {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	if isIPv4(host) {
		return host
	}
	return "bogon"
}

func isIPv4(s string) bool {
	if s == "" || strings.Contains(s, ":") {
		return false
	}
	ip := net.ParseIP(s)
	return ip != nil && ip.To4() != nil
}

// maskHeaders flattens h into single values and redacts sensitive entries.
// Authorization is governed only by the MaskAuthHeader setting.
func (c *Config) maskHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		value := strings.Join(values, ", ")
		lower := strings.ToLower(name)

		switch {
		case lower == "authorization":
			value = MaskAuthHeader(value, c.maskAuthHeader)
		case c.isSensitiveHeader(lower), c.masker.IsHidden(name):
			value = RedactionMarker
		}
		out[name] = value
	}
	return out
}

// maskQuery converts query parameters into an Object with sorted keys and
// masks hidden keys. Repeated parameters become arrays.
func (c *Config) maskQuery(q url.Values) *Object {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	obj := &Object{members: make([]Member, 0, len(keys))}
	for _, k := range keys {
		values := q[k]
		var v any
		if len(values) == 1 {
			v = values[0]
		} else {
			arr := make([]any, len(values))
			for i, s := range values {
				arr[i] = s
			}
			v = arr
		}
		obj.members = append(obj.members, Member{Key: k, Value: v})
	}

	masked, _ := c.masker.Mask(obj).(*Object)
	return masked
}
