// Package summary asks an OpenAI-compatible chat model for a structured
// business summary of crawled pages.
//
// The model is an opaque collaborator. Its free-form reply is parsed on a best
// effort basis into an Outcome that is either OK or Degraded; only transport
// failures are returned as errors.
package summary
