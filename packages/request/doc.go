// Package request describes a composed outbound HTTP request.
//
// A Model carries the method, target, headers and a body whose shape is
// fixed by its ContentType:
//   - Raw types (plain text, JSON, XML, HTML) and Binary carry a scalar body.
//     For Binary the scalar is a file path; bytes are read at dispatch time.
//   - Multipart and URL-encoded carry ordered key/value tuples.
//
// Models are immutable once built. A composer produces one through
// Selection.Build, and SelectionOf maps a Model back to the composer view.
package request
