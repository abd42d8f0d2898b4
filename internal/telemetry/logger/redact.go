package logger

import (
	"log/slog"
	"strings"
)

// TokenPrefix starts every plaintext session token.
const TokenPrefix = "sstk_"

// Attribute keys containing one of these words carry credentials.
var sensitiveKeyWords = []string{
	"password", "secret", "token", "credential", "auth", "bearer", "cookie",
}

const redactedValue = "***REDACTED***"

// redactSensitive is the ReplaceAttr hook of every handler built by New.
// Token values are masked wherever they appear; other values under a
// sensitive key are replaced entirely.
func redactSensitive(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		v := a.Value.String()
		switch {
		case v == "":
			return a
		case IsSensitiveValue(v):
			return slog.String(a.Key, maskEmbedded(v))
		case IsSensitiveKey(a.Key):
			return slog.String(a.Key, redactedValue)
		}
		if masked := maskEmbedded(v); masked != v {
			return slog.String(a.Key, masked)
		}

	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			if msg := err.Error(); strings.Contains(msg, TokenPrefix) {
				return slog.String(a.Key, maskEmbedded(msg))
			}
		}

	case slog.KindGroup:
		group := a.Value.Group()
		redacted := make([]slog.Attr, 0, len(group))
		for _, attr := range group {
			redacted = append(redacted, redactSensitive(attr))
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(redacted...)}
	}
	return a
}

// maskValue keeps the prefix and three characters at each end of the body.
func maskValue(value, prefix string) string {
	body := strings.TrimPrefix(value, prefix)
	if len(body) <= 6 {
		return prefix + "***"
	}
	return prefix + body[:3] + "..." + body[len(body)-3:]
}

// maskEmbedded masks each token inside s. A token ends at the first byte
// outside the base64url alphabet.
func maskEmbedded(s string) string {
	var b strings.Builder
	for {
		i := strings.Index(s, TokenPrefix)
		if i < 0 {
			if b.Len() == 0 {
				return s
			}
			b.WriteString(s)
			return b.String()
		}
		end := i + len(TokenPrefix)
		for end < len(s) && isTokenChar(s[end]) {
			end++
		}
		b.WriteString(s[:i])
		b.WriteString(maskValue(s[i:end], TokenPrefix))
		s = s[end:]
	}
}

func isTokenChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return c == '-' || c == '_'
}

// RedactString masks the tokens in value for callers that format messages
// themselves.
func RedactString(value string) string {
	return maskEmbedded(value)
}

// IsSensitiveKey reports whether an attribute key names a credential.
func IsSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	for _, word := range sensitiveKeyWords {
		if strings.Contains(key, word) {
			return true
		}
	}
	return false
}

// IsSensitiveValue reports whether value is a plaintext token.
func IsSensitiveValue(value string) bool {
	return strings.HasPrefix(value, TokenPrefix)
}
