package eventbus

import (
	"errors"
	"fmt"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// Standardized broker errors. TranslateError maps client and broker error
// messages onto this set so callers can match them with errors.Is.
var (
	// ErrNoBrokers is returned when the configuration lists no brokers
	ErrNoBrokers = errors.New("no brokers configured")

	// ErrConnectionFailed is returned when connection to Kafka cannot be established
	ErrConnectionFailed = errors.New("connection failed")

	// ErrConnectionLost is returned when connection to Kafka is lost
	ErrConnectionLost = errors.New("connection lost")

	// ErrBrokerNotAvailable is returned when broker is not available
	ErrBrokerNotAvailable = errors.New("broker not available")

	// ErrAuthenticationFailed is returned when authentication fails
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrAuthorizationFailed is returned when authorization fails
	ErrAuthorizationFailed = errors.New("authorization failed")

	// ErrTopicNotFound is returned when topic doesn't exist
	ErrTopicNotFound = errors.New("topic not found")

	// ErrTopicAlreadyExists is returned when topic already exists
	ErrTopicAlreadyExists = errors.New("topic already exists")

	// ErrGroupCoordinatorNotAvailable is returned when group coordinator is not available
	ErrGroupCoordinatorNotAvailable = errors.New("group coordinator not available")

	// ErrNotGroupCoordinator is returned when broker is not the group coordinator
	ErrNotGroupCoordinator = errors.New("not group coordinator")

	// ErrUnknownMemberID is returned when member ID is unknown
	ErrUnknownMemberID = errors.New("unknown member id")

	// ErrRebalanceInProgress is returned when rebalance is in progress
	ErrRebalanceInProgress = errors.New("rebalance in progress")

	// ErrMessageTooLarge is returned when message exceeds size limits
	ErrMessageTooLarge = errors.New("message too large")

	// ErrLeaderNotAvailable is returned when leader is not available
	ErrLeaderNotAvailable = errors.New("leader not available")

	// ErrNotLeaderForPartition is returned when broker is not the leader for partition
	ErrNotLeaderForPartition = errors.New("not leader for partition")

	// ErrRequestTimedOut is returned when request times out
	ErrRequestTimedOut = errors.New("request timed out")

	// ErrNetworkError is returned for network-related errors
	ErrNetworkError = errors.New("network error")

	// ErrInvalidReplicationFactor is returned when replication factor is invalid
	ErrInvalidReplicationFactor = errors.New("invalid replication factor")

	// ErrContextCanceled is returned when context is canceled
	ErrContextCanceled = errors.New("context canceled")

	// ErrTooManyConsumers is returned when the consumer handle registry is full
	ErrTooManyConsumers = errors.New("too many consumer handles")

	// ErrRuntimeClosed is returned when a consumer is requested after shutdown
	ErrRuntimeClosed = errors.New("consumer runtime closed")
)

// ParseError reports a message whose value is not a usable event.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to parse event: %s: %v", e.Reason, e.Err)
	}
	return "failed to parse event: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// HandlerError reports a handler that failed on every attempt.
type HandlerError struct {
	// Attempts is the number of handler invocations made.
	Attempts int
	Err      error

	stack string
}

func newHandlerError(err error, attempts int, panicStack string) *HandlerError {
	stack := panicStack
	if stack == "" {
		stack = stackOf(err)
	}
	return &HandlerError{Attempts: attempts, Err: err, stack: stack}
}

func (e *HandlerError) Error() string {
	return e.Err.Error()
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Stack returns the stack trace captured for the failure.
func (e *HandlerError) Stack() string { return e.stack }

// BrokerError reports a failed broker operation.
type BrokerError struct {
	Op  string
	Err error
}

func (e *BrokerError) Error() string {
	return fmt.Sprintf("kafka %s failed: %v", e.Op, e.Err)
}

func (e *BrokerError) Unwrap() error { return e.Err }

// Is matches the standardized sentinel the wrapped error translates to.
func (e *BrokerError) Is(target error) bool {
	translated := TranslateError(e.Err)
	return translated != e.Err && translated == target
}

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// stackOf returns the deepest pkg/errors stack in err's chain, or a stack
// captured here when the chain carries none.
func stackOf(err error) string {
	if err == nil {
		return ""
	}
	var (
		found stackTracer
		cur   = err
	)
	for cur != nil {
		if st, ok := cur.(stackTracer); ok {
			found = st
		}
		cur = errors.Unwrap(cur)
	}
	if found == nil {
		found = pkgerrors.WithStack(err).(stackTracer)
	}
	return strings.TrimPrefix(fmt.Sprintf("%+v", found.StackTrace()), "\n")
}

// TranslateError converts client and broker errors into the standardized
// errors above. Errors that match no pattern are returned unchanged.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}
	return translateByErrorMessage(strings.ToLower(err.Error()), err)
}

func translateByErrorMessage(errMsg string, originalErr error) error {
	switch {
	// Connection related
	case strings.Contains(errMsg, "connection refused"):
		return ErrConnectionFailed
	case strings.Contains(errMsg, "connection reset"),
		strings.Contains(errMsg, "connection closed"),
		strings.Contains(errMsg, "broken pipe"):
		return ErrConnectionLost
	case strings.Contains(errMsg, "broker not available"):
		return ErrBrokerNotAvailable

	// Authentication and authorization
	case strings.Contains(errMsg, "authentication failed"),
		strings.Contains(errMsg, "sasl authentication"):
		return ErrAuthenticationFailed
	case strings.Contains(errMsg, "authorization failed"),
		strings.Contains(errMsg, "not authorized"):
		return ErrAuthorizationFailed

	// Topics
	case strings.Contains(errMsg, "topic already exists"),
		strings.Contains(errMsg, "topic with this name already exists"):
		return ErrTopicAlreadyExists
	case strings.Contains(errMsg, "unknown topic"),
		strings.Contains(errMsg, "topic not found"),
		strings.Contains(errMsg, "does not host this topic-partition"):
		return ErrTopicNotFound
	case strings.Contains(errMsg, "replication factor"):
		return ErrInvalidReplicationFactor

	// Consumer group errors
	case strings.Contains(errMsg, "coordinator not available"),
		strings.Contains(errMsg, "coordinator is not available"):
		return ErrGroupCoordinatorNotAvailable
	case strings.Contains(errMsg, "not coordinator"):
		return ErrNotGroupCoordinator
	case strings.Contains(errMsg, "unknown member id"),
		strings.Contains(errMsg, "member id is not in the current generation"):
		return ErrUnknownMemberID
	case strings.Contains(errMsg, "rebalance in progress"),
		strings.Contains(errMsg, "group is rebalancing"):
		return ErrRebalanceInProgress

	// Messages
	case strings.Contains(errMsg, "message too large"),
		strings.Contains(errMsg, "message size too large"),
		strings.Contains(errMsg, "record too large"),
		strings.Contains(errMsg, "larger than the maximum"):
		return ErrMessageTooLarge

	// Leaders
	case strings.Contains(errMsg, "leader not available"),
		strings.Contains(errMsg, "no leader for this partition"):
		return ErrLeaderNotAvailable
	case strings.Contains(errMsg, "not leader for partition"),
		strings.Contains(errMsg, "not the leader"):
		return ErrNotLeaderForPartition

	// Context and timeouts
	case strings.Contains(errMsg, "context canceled"),
		strings.Contains(errMsg, "context cancelled"):
		return ErrContextCanceled
	case strings.Contains(errMsg, "i/o timeout"),
		strings.Contains(errMsg, "request timed out"),
		strings.Contains(errMsg, "deadline exceeded"),
		strings.Contains(errMsg, "timeout"):
		return ErrRequestTimedOut

	// Network errors
	case strings.Contains(errMsg, "network"),
		strings.Contains(errMsg, "dial"),
		strings.Contains(errMsg, "no such host"):
		return ErrNetworkError

	default:
		return originalErr
	}
}

// IsRetryableError returns true if the error is worth retrying.
func IsRetryableError(err error) bool {
	err = TranslateError(err)
	switch {
	case errors.Is(err, ErrConnectionFailed),
		errors.Is(err, ErrConnectionLost),
		errors.Is(err, ErrBrokerNotAvailable),
		errors.Is(err, ErrLeaderNotAvailable),
		errors.Is(err, ErrNotLeaderForPartition),
		errors.Is(err, ErrRequestTimedOut),
		errors.Is(err, ErrNetworkError),
		errors.Is(err, ErrGroupCoordinatorNotAvailable),
		errors.Is(err, ErrNotGroupCoordinator),
		errors.Is(err, ErrRebalanceInProgress):
		return true
	default:
		return false
	}
}

// IsPermanentError returns true if the error is permanent and should not be retried
func IsPermanentError(err error) bool {
	err = TranslateError(err)
	switch {
	case errors.Is(err, ErrNoBrokers),
		errors.Is(err, ErrAuthenticationFailed),
		errors.Is(err, ErrAuthorizationFailed),
		errors.Is(err, ErrTopicNotFound),
		errors.Is(err, ErrMessageTooLarge),
		errors.Is(err, ErrInvalidReplicationFactor),
		errors.Is(err, ErrContextCanceled):
		return true
	default:
		return false
	}
}

// IsAuthenticationError returns true if the error is authentication-related
func IsAuthenticationError(err error) bool {
	err = TranslateError(err)
	return errors.Is(err, ErrAuthenticationFailed) || errors.Is(err, ErrAuthorizationFailed)
}
