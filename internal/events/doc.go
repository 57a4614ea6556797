// Package events carries task lifecycle notifications from the orchestrator to
// interested handlers without coupling them to the task package.
//
// Delivery is in-process, synchronous and at-most-once: a handler that fails
// does not stop the others and nothing is retried.
package events
