package util

import (
	"net/url"
	"strings"
)

// GatewayURL takes a gateway "host" string (bare host, http(s) or ws(s) URL) and returns a
// websocket URL with the given query parameters merged in. Defaults to wss://, except for
// localhost, so that test servers work without TLS.
func GatewayURL(host string, query url.Values) (string, error) {
	raw := websocketURLForHost(host)
	if raw == "" {
		return "", nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, vals := range query {
		q.Del(k)
		for _, v := range vals {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

func websocketURLForHost(host string) string {
	switch {
	case host == "":
		return ""
	case strings.HasPrefix(host, "wss://"), strings.HasPrefix(host, "ws://"):
		return host
	case strings.HasPrefix(host, "https://"):
		return "wss://" + strings.TrimPrefix(host, "https://")
	case strings.HasPrefix(host, "http://"):
		return "ws://" + strings.TrimPrefix(host, "http://")
	case strings.Contains(host, "://"):
		// don't mess with unexpected schemes
		return host
	case strings.HasPrefix(host, "127.0.0."), strings.HasPrefix(host, "[::1]"):
		return "ws://" + host
	}
	hostname := strings.SplitN(host, ":", 2)[0]
	if hostname == "localhost" {
		return "ws://" + host
	}
	return "wss://" + host
}
