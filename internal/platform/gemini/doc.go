// Package gemini implements pipeline.Summarizer on top of Google's Gemini API.
//
// The adapter renders a prompt describing the analyzed target, sends it to the
// configured model and returns the plain text answer. Transient API failures are
// retried with exponential backoff and jitter; responses blocked by safety
// filters or carrying no text are treated as permanent failures.
package gemini
