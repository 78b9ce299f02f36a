package endpoint

import "github.com/fixrouter/gateway/pkg/errors"

const (
	CodeDialFailed    = "ENDPOINT_DIAL_FAILED"
	CodeSendFailed    = "ENDPOINT_SEND_FAILED"
	CodeAcceptFailed  = "ENDPOINT_ACCEPT_FAILED"
	CodeClosed        = "ENDPOINT_CLOSED"
	CodeInvalidURI    = "ENDPOINT_INVALID_URI"
)

func ErrDialFailed(addr string, err error) *errors.AppError {
	return errors.Unavailable("failed to dial endpoint: "+addr, err)
}

func ErrSendFailed(err error) *errors.AppError {
	return errors.New(CodeSendFailed, "failed to send payload to endpoint", err)
}

func ErrAcceptFailed(err error) *errors.AppError {
	return errors.New(CodeAcceptFailed, "failed to accept payload from endpoint", err)
}

func ErrClosed(err error) *errors.AppError {
	return errors.New(CodeClosed, "endpoint connection is closed", err)
}

func ErrInvalidURI(uri string, err error) *errors.AppError {
	return errors.InvalidArgument("invalid endpoint uri: "+uri, err)
}
