package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedSite creates a site and returns its ID.
func seedSite(t *testing.T, s *Store, name string) int64 {
	t.Helper()
	id, _, err := s.UpsertSite(context.Background(), Site{GUID: uuid.New(), Name: name, DisplayName: name})
	if err != nil {
		t.Fatalf("UpsertSite() failed: %v", err)
	}
	return id
}

// seedDocument creates a node with one culture version.
func seedDocument(t *testing.T, s *Store, siteID int64, aliasPath, culture string) (Node, int64) {
	t.Helper()
	ctx := context.Background()
	n := Node{GUID: uuid.New(), SiteID: siteID, AliasPath: aliasPath, ClassName: "cms.news"}
	nodeID, _, err := s.UpsertNode(ctx, n)
	if err != nil {
		t.Fatalf("UpsertNode() failed: %v", err)
	}
	n.ID = nodeID
	docID, _, err := s.UpsertDocument(ctx, Document{GUID: uuid.New(), NodeID: nodeID, Culture: culture, Name: aliasPath})
	if err != nil {
		t.Fatalf("UpsertDocument() failed: %v", err)
	}
	return n, docID
}
