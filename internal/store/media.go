package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MediaFolder is a folder inside a media library.
type MediaFolder struct {
	ID        int64  `json:"id"`
	LibraryID int64  `json:"library_id"`
	Path      string `json:"path"`
}

// MediaFile is a file inside a media library. Path includes the folder.
type MediaFile struct {
	ID        int64     `json:"id"`
	GUID      uuid.UUID `json:"guid"`
	LibraryID int64     `json:"library_id"`
	SiteID    int64     `json:"site_id"`
	Path      string    `json:"path"`
	Name      string    `json:"name"`
}

// CleanMediaPath normalizes a library-relative path: forward slashes, no
// leading or trailing slash, no dot segments.
func CleanMediaPath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	p = path.Clean("/" + p)
	return strings.Trim(p, "/")
}

// subtreeClause matches col against root and everything below it.
func subtreeClause(col, root string) (string, []any) {
	if root == "" {
		return "1 = 1", nil
	}
	return "(" + col + " = ? OR " + col + ` LIKE ? ESCAPE '\')`, []any{root, likePrefix(root)}
}

// CreateMediaFolder creates a folder. Returns false when it already exists.
func (s *Store) CreateMediaFolder(ctx context.Context, libraryID int64, folderPath string) (bool, error) {
	folderPath = CleanMediaPath(folderPath)
	if folderPath == "" {
		return false, fmt.Errorf("create media folder: path is required")
	}
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO media_folders (library_id, path) VALUES (?, ?)
		ON CONFLICT(library_id, path) DO NOTHING
	`, libraryID, folderPath)
	if err != nil {
		return false, fmt.Errorf("create media folder: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create media folder: rows affected: %w", err)
	}
	return n > 0, nil
}

// MoveMediaFolder renames a folder, its subfolders and the paths of the
// files below it. Returns the number of files moved.
func (s *Store) MoveMediaFolder(ctx context.Context, libraryID int64, from, to string) (int64, error) {
	from, to = CleanMediaPath(from), CleanMediaPath(to)
	if from == "" || to == "" {
		return 0, fmt.Errorf("move media folder: source and target paths are required")
	}
	keep := utf8.RuneCountInString(from) + 1

	where, args := subtreeClause("path", from)
	if _, err := s.q.ExecContext(ctx, `
		UPDATE media_folders SET path = ? || substr(path, ?)
		WHERE library_id = ? AND `+where,
		append([]any{to, keep, libraryID}, args...)...); err != nil {
		return 0, fmt.Errorf("move media folder: folders: %w", err)
	}

	fileWhere, fileArgs := `path LIKE ? ESCAPE '\'`, []any{likePrefix(from)}
	res, err := s.q.ExecContext(ctx, `
		UPDATE media_files SET path = ? || substr(path, ?)
		WHERE library_id = ? AND `+fileWhere,
		append([]any{to, keep, libraryID}, fileArgs...)...)
	if err != nil {
		return 0, fmt.Errorf("move media folder: files: %w", err)
	}
	return res.RowsAffected()
}

// CopyMediaFolder copies a folder subtree and its files. Each copied file
// gets the GUID from remap, or a GUID derived from the source GUID and
// the target path so that re-applying a copy is idempotent. Returns the
// number of files copied.
func (s *Store) CopyMediaFolder(ctx context.Context, libraryID int64, from, to string, remap map[uuid.UUID]uuid.UUID) (int64, error) {
	from, to = CleanMediaPath(from), CleanMediaPath(to)
	if from == "" || to == "" {
		return 0, fmt.Errorf("copy media folder: source and target paths are required")
	}

	folders, err := s.listMediaFolders(ctx, libraryID, from)
	if err != nil {
		return 0, fmt.Errorf("copy media folder: %w", err)
	}
	for _, f := range folders {
		if _, err := s.CreateMediaFolder(ctx, libraryID, to+f.Path[len(from):]); err != nil {
			return 0, fmt.Errorf("copy media folder: %w", err)
		}
	}
	if len(folders) == 0 {
		if _, err := s.CreateMediaFolder(ctx, libraryID, to); err != nil {
			return 0, fmt.Errorf("copy media folder: %w", err)
		}
	}

	files, err := s.listMediaFiles(ctx, libraryID, from)
	if err != nil {
		return 0, fmt.Errorf("copy media folder: %w", err)
	}
	var copied int64
	for _, f := range files {
		target := to + f.Path[len(from):]
		guid, ok := remap[f.GUID]
		if !ok {
			guid = uuid.NewSHA1(f.GUID, []byte(strings.ToLower(target)))
		}
		res, err := s.q.ExecContext(ctx, `
			INSERT INTO media_files (guid, library_id, site_id, path, name) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(guid) DO NOTHING
		`, guid.String(), libraryID, f.SiteID, target, f.Name)
		if err != nil {
			return 0, fmt.Errorf("copy media folder: file %s: %w", f.GUID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("copy media folder: rows affected: %w", err)
		}
		copied += n
	}
	return copied, nil
}

// DeleteMediaFolder removes a folder subtree with its files. Returns the
// number of files removed.
func (s *Store) DeleteMediaFolder(ctx context.Context, libraryID int64, folderPath string) (int64, error) {
	folderPath = CleanMediaPath(folderPath)
	if folderPath == "" {
		return 0, fmt.Errorf("delete media folder: path is required")
	}
	where, args := subtreeClause("path", folderPath)
	if _, err := s.q.ExecContext(ctx, `
		DELETE FROM media_folders WHERE library_id = ? AND `+where,
		append([]any{libraryID}, args...)...); err != nil {
		return 0, fmt.Errorf("delete media folder: folders: %w", err)
	}
	res, err := s.q.ExecContext(ctx, `
		DELETE FROM media_files WHERE library_id = ? AND path LIKE ? ESCAPE '\'
	`, libraryID, likePrefix(folderPath))
	if err != nil {
		return 0, fmt.Errorf("delete media folder: files: %w", err)
	}
	return res.RowsAffected()
}

// UpsertMediaFile creates or updates a file matched by GUID.
func (s *Store) UpsertMediaFile(ctx context.Context, f MediaFile) (int64, bool, error) {
	if f.GUID == uuid.Nil {
		return 0, false, fmt.Errorf("upsert media file: guid is required")
	}
	f.Path = CleanMediaPath(f.Path)

	var id int64
	err := s.q.QueryRowContext(ctx, `SELECT id FROM media_files WHERE guid = ?`, f.GUID.String()).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := s.q.ExecContext(ctx, `
			INSERT INTO media_files (guid, library_id, site_id, path, name) VALUES (?, ?, ?, ?, ?)
		`, f.GUID.String(), f.LibraryID, f.SiteID, f.Path, f.Name)
		if err != nil {
			return 0, false, fmt.Errorf("upsert media file: insert: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return 0, false, fmt.Errorf("upsert media file: last insert id: %w", err)
		}
		return id, true, nil
	case err != nil:
		return 0, false, fmt.Errorf("upsert media file: select: %w", err)
	}

	_, err = s.q.ExecContext(ctx, `
		UPDATE media_files SET library_id = ?, site_id = ?, path = ?, name = ? WHERE id = ?
	`, f.LibraryID, f.SiteID, f.Path, f.Name, id)
	if err != nil {
		return 0, false, fmt.Errorf("upsert media file: update: %w", err)
	}
	return id, false, nil
}

// DeleteMediaFile removes a file by GUID.
func (s *Store) DeleteMediaFile(ctx context.Context, guid uuid.UUID) (bool, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM media_files WHERE guid = ?`, guid.String())
	if err != nil {
		return false, fmt.Errorf("delete media file: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete media file: rows affected: %w", err)
	}
	return n > 0, nil
}

// ListMediaFolders returns every folder of a library below root ("" for
// the whole library), ordered by path.
func (s *Store) ListMediaFolders(ctx context.Context, libraryID int64, root string) ([]MediaFolder, error) {
	return s.listMediaFolders(ctx, libraryID, CleanMediaPath(root))
}

func (s *Store) listMediaFolders(ctx context.Context, libraryID int64, root string) ([]MediaFolder, error) {
	where, args := subtreeClause("path", root)
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, library_id, path FROM media_folders
		WHERE library_id = ? AND `+where+`
		ORDER BY path COLLATE BINARY ASC
	`, append([]any{libraryID}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("query media folders: %w", err)
	}
	defer rows.Close()

	folders := []MediaFolder{}
	for rows.Next() {
		var f MediaFolder
		if err := rows.Scan(&f.ID, &f.LibraryID, &f.Path); err != nil {
			return nil, fmt.Errorf("scan media folder: %w", err)
		}
		folders = append(folders, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate media folders: %w", err)
	}
	return folders, nil
}

// ListMediaFiles returns every file of a library below root ("" for the
// whole library), ordered by path.
func (s *Store) ListMediaFiles(ctx context.Context, libraryID int64, root string) ([]MediaFile, error) {
	return s.listMediaFiles(ctx, libraryID, CleanMediaPath(root))
}

func (s *Store) listMediaFiles(ctx context.Context, libraryID int64, root string) ([]MediaFile, error) {
	where, args := "1 = 1", []any(nil)
	if root != "" {
		where, args = `path LIKE ? ESCAPE '\'`, []any{likePrefix(root)}
	}
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, guid, library_id, site_id, path, name FROM media_files
		WHERE library_id = ? AND `+where+`
		ORDER BY path COLLATE BINARY ASC, guid ASC
	`, append([]any{libraryID}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("query media files: %w", err)
	}
	defer rows.Close()

	files := []MediaFile{}
	for rows.Next() {
		var f MediaFile
		var guid string
		if err := rows.Scan(&f.ID, &guid, &f.LibraryID, &f.SiteID, &f.Path, &f.Name); err != nil {
			return nil, fmt.Errorf("scan media file: %w", err)
		}
		id, err := uuid.Parse(guid)
		if err != nil {
			return nil, fmt.Errorf("media file %d guid: %w", f.ID, err)
		}
		f.GUID = id
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate media files: %w", err)
	}
	return files, nil
}
