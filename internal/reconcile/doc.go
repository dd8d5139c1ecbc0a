// Package reconcile converges the attachments of a target document onto
// the attachment snapshot carried by a document task.
//
// A snapshot is the full current attachment set of the source document.
// Rows are matched to existing target rows by AttachmentGUID: matched rows
// keep their target ID and are updated in place, unmatched rows are
// inserted, and target rows that no snapshot row claimed are deleted.
// Main attachments are always written before variants so that a variant
// can resolve AttachmentVariantParentID to its parent's target ID, even
// when the parent was inserted by the same pass.
package reconcile
