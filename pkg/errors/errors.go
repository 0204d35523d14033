package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies tester errors
type ErrorCode string

const (
	ErrCodeConnection    ErrorCode = "CONNECTION_FAILED"
	ErrCodeNotConnected  ErrorCode = "NOT_CONNECTED"
	ErrCodeNoOffer       ErrorCode = "NO_OFFER"
	ErrCodeInvalidOffer  ErrorCode = "INVALID_OFFER"
	ErrCodeNegotiation   ErrorCode = "NEGOTIATION_FAILED"
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
)

// Sentinels matched by errors.Is against any TesterError of the same code.
var (
	ErrConnection    = stderrors.New("connection failed")
	ErrNotConnected  = stderrors.New("signaling not connected")
	ErrNoOffer       = stderrors.New("offer message not found")
	ErrInvalidOffer  = stderrors.New("invalid offer message")
	ErrNegotiation   = stderrors.New("session negotiation failed")
	ErrInvalidConfig = stderrors.New("invalid configuration")
)

var sentinels = map[ErrorCode]error{
	ErrCodeConnection:    ErrConnection,
	ErrCodeNotConnected:  ErrNotConnected,
	ErrCodeNoOffer:       ErrNoOffer,
	ErrCodeInvalidOffer:  ErrInvalidOffer,
	ErrCodeNegotiation:   ErrNegotiation,
	ErrCodeInvalidConfig: ErrInvalidConfig,
}

// TesterError is an error raised while running a load test. Client is empty for
// errors that are not tied to a single simulated viewer.
type TesterError struct {
	Code    ErrorCode
	Message string
	Client  string
	Cause   error
}

// Error implements error interface
func (e *TesterError) Error() string {
	prefix := string(e.Code)
	if e.Client != "" {
		prefix = e.Client + ": " + prefix
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying error
func (e *TesterError) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel for e.Code and any TesterError with the same code.
func (e *TesterError) Is(target error) bool {
	if t, ok := target.(*TesterError); ok {
		return t.Code == e.Code
	}
	return target == sentinels[e.Code]
}

// ForClient tags the error with a client name.
func (e *TesterError) ForClient(name string) *TesterError {
	e.Client = name
	return e
}

func New(code ErrorCode, message string) *TesterError {
	return &TesterError{Code: code, Message: message}
}

func Wrap(err error, code ErrorCode, message string) *TesterError {
	return &TesterError{Code: code, Message: message, Cause: err}
}

func NewConnectionError(endpoint string, cause error) *TesterError {
	return Wrap(cause, ErrCodeConnection, fmt.Sprintf("could not reach %s", endpoint))
}

func NewNotConnectedError() *TesterError {
	return New(ErrCodeNotConnected, "signaling socket is not open")
}

func NewNoOfferError(cause error) *TesterError {
	return Wrap(cause, ErrCodeNoOffer, "no offer received")
}

func NewInvalidOfferError(reason string) *TesterError {
	return New(ErrCodeInvalidOffer, reason)
}

func NewNegotiationError(cause error, step string) *TesterError {
	return Wrap(cause, ErrCodeNegotiation, step)
}

func NewConfigError(message string) *TesterError {
	return New(ErrCodeInvalidConfig, message)
}

// GetTesterError extracts TesterError from error chain
func GetTesterError(err error) *TesterError {
	var te *TesterError
	if stderrors.As(err, &te) {
		return te
	}
	return nil
}

// CodeOf returns the code of the first TesterError in the chain, or "".
func CodeOf(err error) ErrorCode {
	if te := GetTesterError(err); te != nil {
		return te.Code
	}
	return ""
}
