// Package api handles incoming HTTP requests, request validation and response
// formatting. It translates HTTP concerns into calls on the task orchestrator
// and query service, and maps their errors onto status codes without leaking
// internal detail.
package api
