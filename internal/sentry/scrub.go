// Package sentry removes credentials from Sentry events before they leave the
// process. Room keys, player tokens and collaborator tokens all travel in
// query strings, cookies or headers.
package sentry

import (
	"net/url"
	"strings"

	"github.com/getsentry/sentry-go"
)

const filtered = "[Filtered]"

// sensitiveHeaders are HTTP headers that should be redacted from Sentry events.
var sensitiveHeaders = map[string]bool{
	"authorization":  true,
	"cookie":         true,
	"set-cookie":     true,
	"x-operator-key": true,
}

// sensitiveKeys are query parameters, tags and breadcrumb fields that carry
// credentials.
var sensitiveKeys = map[string]bool{
	"token":             true,
	"auth":              true,
	"key":               true,
	"rk":                true,
	"operatorkey":       true,
	"ytpm_player_token": true,
	"jwt":               true,
	"secret":            true,
	"authorization":     true,
	"cookie":            true,
}

func isSensitive(key string) bool {
	return sensitiveKeys[strings.ToLower(key)]
}

// ScrubEvent removes sensitive data from a Sentry event before it is sent.
func ScrubEvent(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	if event.Request != nil {
		for header := range event.Request.Headers {
			if sensitiveHeaders[strings.ToLower(header)] {
				event.Request.Headers[header] = filtered
			}
		}
		event.Request.QueryString = scrubQuery(event.Request.QueryString)
		event.Request.URL = scrubURL(event.Request.URL)
		if event.Request.Cookies != "" {
			event.Request.Cookies = filtered
		}
		// Request bodies are never forwarded.
		event.Request.Data = ""
	}

	for key := range event.Tags {
		if isSensitive(key) {
			event.Tags[key] = filtered
		}
	}

	for i := range event.Breadcrumbs {
		for key, v := range event.Breadcrumbs[i].Data {
			switch {
			case isSensitive(key):
				event.Breadcrumbs[i].Data[key] = filtered
			case key == "url":
				if s, ok := v.(string); ok {
					event.Breadcrumbs[i].Data[key] = scrubURL(s)
				}
			}
		}
	}

	return event
}

// ScrubTransaction applies the same scrubbing logic to transaction events.
func ScrubTransaction(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	return ScrubEvent(event, hint)
}

func scrubQuery(raw string) string {
	if raw == "" {
		return raw
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return filtered
	}
	for key := range values {
		if isSensitive(key) {
			values[key] = []string{filtered}
		}
	}
	return values.Encode()
}

func scrubURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return raw
	}
	u.RawQuery = scrubQuery(u.RawQuery)
	return u.String()
}
