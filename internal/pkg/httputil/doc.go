// Package httputil provides shared HTTP response utilities for handlers.
//
// Handlers use these helpers instead of writing raw http.ResponseWriter
// calls so every endpoint produces the same JSON envelope and error shape.
package httputil
