package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes. The version suffix allows the
// algorithm to change without colliding with stored hashes.
const (
	DomainTask = "stagesync/task/v1"
	DomainRow  = "stagesync/row/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// TaskHash computes the content identity of a task. Two tasks with the
// same type, site, entity and payload hash equal regardless of their
// position in the log.
func TaskHash(t *Task) (string, error) {
	obj := map[string]any{
		"type":    t.Type.String(),
		"site":    t.SiteName,
		"entity":  t.EntityKey(),
		"payload": t.Payload,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("hash task %d: %w", t.Seq, err)
	}
	return hashWithDomain(DomainTask, canonical), nil
}

// RowHash computes the content identity of a row, ignoring the listed
// columns. Callers exclude key and ownership columns so that rows
// differing only in environment-local IDs hash equal.
func RowHash(r Row, ignore ...string) (string, error) {
	c := r.Clone()
	for _, col := range ignore {
		delete(c, col)
	}
	canonical, err := MarshalCanonical(c)
	if err != nil {
		return "", fmt.Errorf("hash row: %w", err)
	}
	return hashWithDomain(DomainRow, canonical), nil
}
