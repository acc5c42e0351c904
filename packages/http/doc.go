// Package http is the executor behind every dispatch.
//
// Client.Execute turns an immutable request.Model into exactly one HTTP
// exchange:
//   - raw bodies are sent as text under the mode's media type
//   - binary bodies are streamed from disk
//   - multipart bodies are assembled from string and file fields
//   - url-encoded bodies keep field order
//
// Errors are left for the failure package to classify. Execute never
// retries.
package http
