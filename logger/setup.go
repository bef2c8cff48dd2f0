package logger

import (
	"log"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerClient wraps a zap.Logger behind the Logger interface.
//
// Every event-bus component logs through it: connection retries, topic
// provisioning, handler failures and dead-letter routing. When tracing is
// enabled, the *WithContext methods add the trace_id and span_id of the
// active span, so a log line can be matched to the consumer span that
// produced it.
//
// LoggerClient implements the Logger interface and is safe for concurrent use.
type LoggerClient struct {
	// Zap is exposed for callers that need zap-specific features.
	Zap *zap.Logger

	tracingEnabled bool
}

// NewLoggerClient builds a zap logger from cfg.
//
// Parameters:
//   - cfg: level, output format, service name, caller skip and tracing options
//
// Returns:
//   - *LoggerClient: a configured logger ready for use
//
// The logger is configured with:
//   - JSON encoding, or console encoding when cfg.Format is "console"
//   - ISO8601 timestamps under the "timestamp" key
//   - capital level names such as "INFO" and "ERROR"
//   - the initial fields "service" and "pid"
//   - caller information, skipping cfg.CallerSkip wrapper frames
//   - output to stderr
//
// If zap cannot be built, NewLoggerClient calls log.Fatal.
//
// Example (direct usage):
//
//	log := logger.NewLoggerClient(logger.Config{
//	    Level:       logger.Info,
//	    ServiceName: "carbon-eventbus",
//	})
//	log.Info("event bus started", nil)
//
// Example (as the event bus logger):
//
//	cm, err := eventbus.NewConnectionManager(cfg)
//	if err != nil {
//	    return err
//	}
//	cm.WithLogger(log)
func NewLoggerClient(cfg Config) *LoggerClient {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderCfg.EncodeCaller = zapcore.ShortCallerEncoder
	encoderCfg.EncodeDuration = zapcore.MillisDurationEncoder

	encoding := FormatJSON
	if cfg.Format == FormatConsole {
		encoding = FormatConsole
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(parseLevel(cfg.Level)),
		Encoding:         encoding,
		EncoderConfig:    encoderCfg,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
		InitialFields: map[string]interface{}{
			"pid":     os.Getpid(),
			"service": cfg.ServiceName,
		},
	}

	callerSkip := cfg.CallerSkip
	if callerSkip <= 0 {
		callerSkip = 1
	}

	// One extra frame for LoggerClient.write.
	z, err := config.Build(zap.AddCaller(), zap.AddCallerSkip(callerSkip+1))
	if err != nil {
		log.Fatal(err)
	}

	return &LoggerClient{
		Zap:            z,
		tracingEnabled: cfg.EnableTracing,
	}
}

// NewFromZap wraps an existing zap logger, typically one built by zaptest or
// zaptest/observer.
//
// Example:
//
//	core, logs := observer.New(zapcore.DebugLevel)
//	log := logger.NewFromZap(zap.New(core), false)
//	log.Warn("Heartbeat failed", err)
//	// logs.FilterMessage("Heartbeat failed").Len() == 1
func NewFromZap(z *zap.Logger, enableTracing bool) *LoggerClient {
	return &LoggerClient{Zap: z, tracingEnabled: enableTracing}
}

// With returns a child logger that adds fields to every entry.
// It is used to tag entries with the emitting component.
func (l *LoggerClient) With(fields map[string]interface{}) *LoggerClient {
	return &LoggerClient{
		Zap:            l.Zap.With(l.convertToZapFields(nil, fields)...),
		tracingEnabled: l.tracingEnabled,
	}
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case Debug:
		return zap.DebugLevel
	case Warning:
		return zap.WarnLevel
	case Error:
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}
