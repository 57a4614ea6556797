// Package config loads server settings from an optional YAML file and OWL_*
// environment variables, applies defaults and validates the result with
// struct tags. Durations are stored as integer seconds, minutes or hours and
// exposed through accessor methods.
package config
