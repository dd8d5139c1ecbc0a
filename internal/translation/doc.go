// Package translation maps source-environment identifiers to target
// primary keys.
//
// Environments never share numeric IDs; only GUIDs and code names are
// stable. A Helper resolves a (object type, source ID) pair through, in
// order: the in-run memo, the translation records shipped with the task
// payload, and a target lookup by GUID (or by code name when the record
// carries no GUID). A pair that cannot be resolved yields ir.Unresolved.
//
// A Helper belongs to one run or one worker and is not safe for
// concurrent use.
package translation
