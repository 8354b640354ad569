// Package config loads the engine configuration.
//
// Values come from a YAML file, an optional .env file and LPIPE_ prefixed
// environment variables, in increasing order of precedence. Files are
// searched under cmd/<service>, config/ and the working directory unless
// given explicitly.
//
//	cfg, err := config.Load("orders", config.WithConfigFile("config.yml"))
//
// Nested keys are addressed with underscores: LPIPE_KAFKA_BROKERS sets
// kafka.brokers and LPIPE_SERVER_AUTH_SECRET sets server.auth.secret.
package config
