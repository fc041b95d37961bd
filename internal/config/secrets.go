package config

import (
	"maps"
	"slices"
)

// RedactedConfig returns a copy of cfg with secrets replaced by "***". Use
// it when logging or serving the active configuration.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Exchange.APISecret)
	redact(&out.Exchange.KeyPassword)
	redact(&out.Exchange.BinanceAPIKey)
	redact(&out.Exchange.BinanceSecretKey)

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.APIKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Slices and maps are copied so the redacted value cannot alias the
	// original.
	out.Trading.Pairs = slices.Clone(cfg.Trading.Pairs)
	out.Kafka.Brokers = slices.Clone(cfg.Kafka.Brokers)
	out.Kafka.Channels = slices.Clone(cfg.Kafka.Channels)
	out.Server.CORSOrigins = slices.Clone(cfg.Server.CORSOrigins)
	out.Notify.Events = slices.Clone(cfg.Notify.Events)
	out.Exits.PairTargets = maps.Clone(cfg.Exits.PairTargets)

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
