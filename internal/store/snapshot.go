package store

import (
	"context"
	"fmt"

	"github.com/roach88/stagesync/internal/ir"
)

// DocumentState is a culture version with its attachments.
type DocumentState struct {
	Document
	Attachments []ir.Row `json:"attachments"`
}

// NodeState is a node with its culture versions.
type NodeState struct {
	Node
	Documents []DocumentState `json:"documents"`
}

// State is a deterministic dump of the target store.
type State struct {
	Sites        []Site        `json:"sites"`
	Nodes        []NodeState   `json:"nodes"`
	Objects      []Object      `json:"objects"`
	MediaFolders []MediaFolder `json:"media_folders"`
	MediaFiles   []MediaFile   `json:"media_files"`
	Queue        []QueueItem   `json:"queue"`
}

// Snapshot reads the whole store. Intended for tests and the status
// command; it loads everything into memory.
func (s *Store) Snapshot(ctx context.Context) (State, error) {
	var st State
	var err error

	if st.Sites, err = s.ListSites(ctx); err != nil {
		return State{}, err
	}

	nodes, err := s.listNodes(ctx)
	if err != nil {
		return State{}, err
	}
	st.Nodes = make([]NodeState, 0, len(nodes))
	for _, n := range nodes {
		docs, err := s.ListDocuments(ctx, n.ID)
		if err != nil {
			return State{}, err
		}
		ns := NodeState{Node: n, Documents: make([]DocumentState, 0, len(docs))}
		for _, d := range docs {
			atts, err := s.ListAttachments(ctx, d.ID)
			if err != nil {
				return State{}, err
			}
			ns.Documents = append(ns.Documents, DocumentState{Document: d, Attachments: atts})
		}
		st.Nodes = append(st.Nodes, ns)
	}

	if st.Objects, err = s.ListObjects(ctx); err != nil {
		return State{}, err
	}
	if st.MediaFolders, err = s.allMediaFolders(ctx); err != nil {
		return State{}, err
	}
	if st.MediaFiles, err = s.allMediaFiles(ctx); err != nil {
		return State{}, err
	}
	if st.Queue, err = s.PendingItems(ctx, ""); err != nil {
		return State{}, err
	}
	return st, nil
}

func (s *Store) listNodes(ctx context.Context) ([]Node, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+nodeColumns+` FROM nodes
		ORDER BY site_id ASC, alias_path COLLATE BINARY ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()

	nodes := []Node{}
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}
	return nodes, nil
}

func (s *Store) libraryIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT library_id FROM media_folders
		UNION
		SELECT library_id FROM media_files
		ORDER BY library_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query libraries: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan library: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate libraries: %w", err)
	}
	return ids, nil
}

func (s *Store) allMediaFolders(ctx context.Context) ([]MediaFolder, error) {
	libs, err := s.libraryIDs(ctx)
	if err != nil {
		return nil, err
	}
	out := []MediaFolder{}
	for _, lib := range libs {
		folders, err := s.listMediaFolders(ctx, lib, "")
		if err != nil {
			return nil, err
		}
		out = append(out, folders...)
	}
	return out, nil
}

func (s *Store) allMediaFiles(ctx context.Context) ([]MediaFile, error) {
	libs, err := s.libraryIDs(ctx)
	if err != nil {
		return nil, err
	}
	out := []MediaFile{}
	for _, lib := range libs {
		files, err := s.listMediaFiles(ctx, lib, "")
		if err != nil {
			return nil, err
		}
		out = append(out, files...)
	}
	return out, nil
}
