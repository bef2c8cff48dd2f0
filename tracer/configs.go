package tracer

// Config controls the OpenTelemetry tracer provider.
type Config struct {
	// ServiceName is recorded as the service.name resource attribute.
	ServiceName string `envconfig:"SERVICE_NAME"`

	// AppEnv sets deployment.environment, for example "staging" or "production".
	AppEnv string `envconfig:"APP_ENV" default:"development"`

	// EnableExport ships spans to an OTLP/HTTP collector. Without it spans
	// still propagate through message headers but are never exported.
	EnableExport bool `envconfig:"ENABLE_EXPORT"`

	// Endpoint overrides the collector host:port. Empty means the exporter's
	// own default, which honours OTEL_EXPORTER_OTLP_ENDPOINT.
	Endpoint string `envconfig:"ENDPOINT"`

	// Insecure disables TLS towards the collector.
	Insecure bool `envconfig:"INSECURE"`
}
