// Package shared holds cross-cutting utilities that belong to no single
// pipeline stage. Its testutil subpackage provides the buffered slog
// handler the packages use to assert on structured log output.
package shared
