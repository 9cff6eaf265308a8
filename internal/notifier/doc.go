// Package notifier delivers rendered notifications to the chat.
//
// Notify only enqueues. A small worker pool drains the queue through a token
// bucket sized for Telegram group limits and makes exactly one send attempt
// per notification: a failure is logged, published on the event bus and
// written to the delivery log, never retried.
//
// # History
//
// The service keeps a small in-memory ring of recent sends for /status.
package notifier
