package broker

import "github.com/fixrouter/gateway/pkg/errors"

// Error codes for broker operations.
const (
	CodeConnectionFailed = "BROKER_CONN_FAILED"
	CodeTopicNotFound     = "BROKER_TOPIC_NOT_FOUND"
	CodePublishFailed     = "BROKER_PUBLISH_FAILED"
	CodeConsumeFailed     = "BROKER_CONSUME_FAILED"
	CodeCommitFailed      = "BROKER_COMMIT_FAILED"
	CodeClosed            = "BROKER_CLOSED"
	CodeInvalidConfig     = "BROKER_INVALID_CONFIG"
)

func ErrConnectionFailed(err error) *errors.AppError {
	return errors.New(CodeConnectionFailed, "failed to connect to broker", err)
}

func ErrTopicNotFound(topic string, err error) *errors.AppError {
	return errors.New(CodeTopicNotFound, "topic not found: "+topic, err)
}

func ErrPublishFailed(err error) *errors.AppError {
	return errors.New(CodePublishFailed, "failed to publish record", err)
}

func ErrConsumeFailed(err error) *errors.AppError {
	return errors.New(CodeConsumeFailed, "failed to poll record", err)
}

func ErrCommitFailed(err error) *errors.AppError {
	return errors.New(CodeCommitFailed, "failed to commit record", err)
}

func ErrClosed(err error) *errors.AppError {
	return errors.New(CodeClosed, "broker connection is closed", err)
}

func ErrInvalidConfig(msg string, err error) *errors.AppError {
	return errors.New(CodeInvalidConfig, "invalid broker configuration: "+msg, err)
}
