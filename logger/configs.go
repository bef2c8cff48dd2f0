package logger

// Log levels accepted by Config.Level.
const (
	Debug   = "debug"
	Info    = "info"
	Warning = "warning"
	Error   = "error"
)

// Output encodings accepted by Config.Format.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config controls the zap logger shared by every event-bus component.
type Config struct {
	// Level is the minimum level written: debug, info, warning or error.
	// Unknown values fall back to info.
	Level string `envconfig:"LEVEL" default:"info"`

	// Format selects the zap encoder. JSON is the production default;
	// console is easier to read during local runs.
	Format string `envconfig:"FORMAT" default:"json"`

	// EnableTracing adds trace_id and span_id to context-aware log calls
	// whenever the context carries a recording OpenTelemetry span.
	EnableTracing bool `envconfig:"ENABLE_TRACING" default:"true"`

	// ServiceName populates the "service" field of every entry.
	ServiceName string `envconfig:"SERVICE_NAME"`

	// CallerSkip is the number of wrapper frames between the call site and zap.
	// Zero means 1.
	CallerSkip int `envconfig:"CALLER_SKIP"`
}
