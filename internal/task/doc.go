// Package task admits analysis jobs, reserves resources for them, runs them in
// the background and tracks their lifecycle. Request handlers submit work and
// poll records; they never wait on execution.
package task
