// Package ir holds the data model shared by every other package: tasks,
// payload tables and rows, process types, object type metadata and the
// canonical encodings used for content hashes.
//
// ir imports nothing internal. Key constraints:
//   - NO float cells; numbers are int64
//   - Absent integer columns read as 0
//   - A missing payload table is distinct from an empty one
//   - JSON tags use snake_case
package ir
