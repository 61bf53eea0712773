package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	redact(&out.Redis.Password)

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	redact(&out.Feed.APIKey)

	redact(&out.Gateway.TierSecret)
	redact(&out.Server.APIKey)

	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	out.Node.Sports = copyStrings(cfg.Node.Sports)
	out.Node.Books = copyStrings(cfg.Node.Books)
	out.Feed.Sports = copyStrings(cfg.Feed.Sports)
	out.Scanner.Markets = copyStrings(cfg.Scanner.Markets)
	out.Detect.Active = copyStrings(cfg.Detect.Active)
	out.Server.CORSOrigins = copyStrings(cfg.Server.CORSOrigins)
	out.Notify.Events = copyStrings(cfg.Notify.Events)

	// Copy maps so mutations to the redacted copy do not affect the original.
	if cfg.Detect.Params != nil {
		out.Detect.Params = make(map[string]any, len(cfg.Detect.Params))
		for k, v := range cfg.Detect.Params {
			out.Detect.Params[k] = v
		}
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
