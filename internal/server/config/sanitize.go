package config

import "strings"

// Sanitize returns a copy of cfg that is safe to log or print. Secrets keep
// two characters at each end.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	out := *cfg
	for _, secret := range []*string{
		&out.Security.TokenSecret,
		&out.Storage.Redis.Password,
	} {
		if *secret != "" {
			*secret = maskSecret(*secret)
		}
	}
	return &out
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
