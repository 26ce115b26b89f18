package kafka

import (
	"errors"
	"fmt"
)

// ConfigurationError is returned when required configuration is missing or invalid. It is fatal to a check pass
// and is not retried.
type ConfigurationError struct {
	Message string
}

func (e ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// NewConfigurationError formats a ConfigurationError.
func NewConfigurationError(format string, args ...interface{}) error {
	return ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// ConnectivityError is returned when the cluster can't be reached to fetch the topic catalog or to enumerate
// brokers. It is fatal to a check pass.
type ConnectivityError struct {
	Message string
	Err     error
}

func (e ConnectivityError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("kafka cluster unreachable: %s", e.Message)
	}
	return fmt.Sprintf("kafka cluster unreachable: %s: %v", e.Message, e.Err)
}

func (e ConnectivityError) Unwrap() error {
	return e.Err
}

// PartialFetchError describes a failure scoped to a single consumer group or a single partition. Data of the
// affected unit is omitted while the rest of the pass continues.
type PartialFetchError struct {
	Group     string
	Topic     string
	Partition int32
	Err       error
}

func (e PartialFetchError) Error() string {
	switch {
	case e.Group == "" && e.Topic == "":
		return fmt.Sprintf("failed to list consumer groups: %v", e.Err)
	case e.Topic == "":
		return fmt.Sprintf("failed to fetch data for consumer group '%v': %v", e.Group, e.Err)
	case e.Group == "":
		return fmt.Sprintf("failed to fetch data for partition '%v/%v': %v", e.Topic, e.Partition, e.Err)
	default:
		return fmt.Sprintf("failed to fetch data for consumer group '%v' on partition '%v/%v': %v",
			e.Group, e.Topic, e.Partition, e.Err)
	}
}

func (e PartialFetchError) Unwrap() error {
	return e.Err
}

func IsConfigurationError(err error) bool {
	var target ConfigurationError
	return errors.As(err, &target)
}

func IsConnectivityError(err error) bool {
	var target ConnectivityError
	return errors.As(err, &target)
}
