package config

import "net/url"

const redacted = "<redacted>"

// Redacted returns a copy of cfg with every credential masked, for printing.
func (c *Config) Redacted() Config {
	out := *c
	out.EventSub.Secret = mask(out.EventSub.Secret)
	out.API.Secret = mask(out.API.Secret)
	out.Twitch.AccessToken = mask(out.Twitch.AccessToken)
	out.Ledger.RedisURL = maskURL(out.Ledger.RedisURL)
	return out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return redacted
}

// maskURL hides the password in a connection URL such as redis://:pw@host.
func maskURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return redacted
	}
	return u.Redacted()
}
