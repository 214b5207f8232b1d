// Package event defines the unit of data flowing through the pipeline: an Event is exactly
// one of a Log, a Metric or a Trace. Events may carry a finalizer that reports their
// delivery status back to whoever produced them.
package event
