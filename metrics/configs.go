package metrics

// Default listen addresses.
const (
	DefaultSystemMetricsAddress      = ":9090"
	DefaultApplicationMetricsAddress = ":9091"
)

// Config controls the two Prometheus endpoints.
//
// The system endpoint exposes Go runtime, process and build info collectors.
// The application endpoint exposes the event-bus series created through
// CreateCounter/CreateHistogram and the OperationObserver.
// A nil address uses the default; a pointer to "" disables the endpoint.
type Config struct {
	SystemMetricsAddress      *string `envconfig:"SYSTEM_ADDRESS"`
	ApplicationMetricsAddress *string `envconfig:"APPLICATION_ADDRESS"`

	// ServiceName becomes the constant "service" label on every series.
	ServiceName string `envconfig:"SERVICE_NAME"`

	// Namespace prefixes the operation observer series. Default "eventbus".
	Namespace string `envconfig:"NAMESPACE" default:"eventbus"`
}

// Ptr returns a pointer to s, for disabling an endpoint with Ptr("").
func Ptr(s string) *string {
	return &s
}
