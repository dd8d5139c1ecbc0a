// Package subscription holds connector registrations and decides which
// connectors want a given task.
//
// A subscription matches a task iff its task type filter passes and every
// non-empty pattern dimension matches the corresponding task attribute.
// Patterns use % as a zero-or-more character wildcard; every other
// character is literal.
//
// Site names and document dimensions (alias path, culture, class name)
// compare case-insensitively. Object types and code names are ordinal.
package subscription
