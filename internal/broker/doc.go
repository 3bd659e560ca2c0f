// Package broker publishes change events to RabbitMQ.
//
// The AMQP publisher declares the configured exchange on connect and marks
// connection-level failures with services.ErrTransientBroker; the coordinator
// reacts by calling Reconnect and retrying the task. WriterPublisher prints
// events instead, for dry runs.
package broker
