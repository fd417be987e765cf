package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Telegram.BotToken)

	out.Discord.WebhookURLs = make([]string, len(cfg.Discord.WebhookURLs))
	for i, u := range cfg.Discord.WebhookURLs {
		out.Discord.WebhookURLs[i] = u
		redact(&out.Discord.WebhookURLs[i])
	}

	redact(&out.Exchanges.NonKYC.APIKey)
	redact(&out.Exchanges.NonKYC.SecretKey)
	redact(&out.Exchanges.CoinEx.APIKey)
	redact(&out.Exchanges.CoinEx.SecretKey)
	redact(&out.Exchanges.AscendEX.APIKey)
	redact(&out.Exchanges.AscendEX.SecretKey)

	redact(&out.Redis.Password)

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	if cfg.ActiveChatIDs != nil {
		out.ActiveChatIDs = make([]string, len(cfg.ActiveChatIDs))
		copy(out.ActiveChatIDs, cfg.ActiveChatIDs)
	}
	if cfg.Kafka.Brokers != nil {
		out.Kafka.Brokers = make([]string, len(cfg.Kafka.Brokers))
		copy(out.Kafka.Brokers, cfg.Kafka.Brokers)
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
