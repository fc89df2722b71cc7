package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jul-sh/clipkitty/tokenizer"
)

const itemColumns = `id, content_hash, timestamp, kind, source_app_name, source_app_id, searchable_text,
	text_value, image_bytes, thumbnail_bytes, image_description,
	link_url, link_state, link_title, link_description, link_image,
	color_rgba, color_raw, file_paths`

// IDByHash looks up an item by content hash, for cheap dedup checks before
// expensive transcodes.
func (s *Store) IDByHash(ctx context.Context, hash [16]byte) (int64, bool, error) {
	var id int64
	err := s.read.QueryRowContext(ctx, `SELECT id FROM items WHERE content_hash = ?`, hash[:]).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("hash lookup: %w", err)
	}
	return id, true, nil
}

// FetchItem hydrates one row including blobs. Returns ErrNotFound for a
// missing id.
func (s *Store) FetchItem(ctx context.Context, id int64) (*Item, error) {
	row := s.read.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// FetchByIDs hydrates the given ids, preserving input order and silently
// skipping ids that no longer exist.
func (s *Store) FetchByIDs(ctx context.Context, ids []int64) ([]Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.read.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch by ids: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]Item, len(ids))
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		byID[item.ID] = *item
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Item, 0, len(ids))
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

// Recent returns up to limit light rows in recency order, newest first,
// optionally filtered by kind.
func (s *Store) Recent(ctx context.Context, limit int, filter Kind) ([]Row, error) {
	query := `SELECT id, kind, timestamp, searchable_text FROM items`
	args := []any{}
	if filter != KindAny {
		query += ` WHERE kind = ?`
		args = append(args, int(filter))
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.read.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("recent scan: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// SubstringScan is the short-query fallback: a recency-ordered scan over at
// most scanCap rows, keeping rows whose folded text contains the folded
// query, up to limit hits. Queries of 1-2 characters bypass the trigram
// index and land here.
func (s *Store) SubstringScan(ctx context.Context, q string, limit, scanCap int, filter Kind) ([]Row, error) {
	needle := tokenizer.Fold(q)

	query := `SELECT id, kind, timestamp, searchable_text FROM items`
	args := []any{}
	if filter != KindAny {
		query += ` WHERE kind = ?`
		args = append(args, int(filter))
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT ?`
	args = append(args, scanCap)

	rows, err := s.read.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("substring scan: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var kind int
		if err := rows.Scan(&r.ID, &kind, &r.Timestamp, &r.SearchableText); err != nil {
			return nil, err
		}
		r.Kind = Kind(kind)
		if strings.Contains(tokenizer.Fold(r.SearchableText), needle) {
			out = append(out, r)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, rows.Err()
}

// FetchRows hydrates light rows for the given candidate ids, in no
// particular order.
func (s *Store) FetchRows(ctx context.Context, ids []int64, filter Kind) ([]Row, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `SELECT id, kind, timestamp, searchable_text FROM items WHERE id IN (` + placeholders + `)`
	if filter != KindAny {
		query += ` AND kind = ?`
		args = append(args, int(filter))
	}

	rows, err := s.read.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch rows: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	var out []Row
	for rows.Next() {
		var r Row
		var kind int
		if err := rows.Scan(&r.ID, &kind, &r.Timestamp, &r.SearchableText); err != nil {
			return nil, err
		}
		r.Kind = Kind(kind)
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(sc scanner) (*Item, error) {
	var (
		item                            Item
		hash                            []byte
		kind                            int
		text                            sql.NullString
		imgBytes, thumbBytes, linkImage []byte
		imgDesc                         sql.NullString
		linkURL, linkTitle, linkDesc    sql.NullString
		linkState, colorRGBA            sql.NullInt64
		colorRaw, filePaths             sql.NullString
	)
	err := sc.Scan(
		&item.ID, &hash, &item.Timestamp, &kind, &item.SourceAppName, &item.SourceAppID, &item.SearchableText,
		&text, &imgBytes, &thumbBytes, &imgDesc,
		&linkURL, &linkState, &linkTitle, &linkDesc, &linkImage,
		&colorRGBA, &colorRaw, &filePaths,
	)
	if err != nil {
		return nil, err
	}
	copy(item.ContentHash[:], hash)

	switch Kind(kind) {
	case KindText:
		item.Content = TextContent{Value: text.String}
	case KindImage:
		item.Content = ImageContent{
			Bytes:          imgBytes,
			ThumbnailBytes: thumbBytes,
			Description:    imgDesc.String,
		}
	case KindLink:
		item.Content = LinkContent{
			URL:         linkURL.String,
			State:       MetadataState(linkState.Int64),
			Title:       linkTitle.String,
			Description: linkDesc.String,
			ImageBytes:  linkImage,
		}
	case KindColor:
		item.Content = ColorContent{
			RGBA:    uint32(colorRGBA.Int64),
			RawText: colorRaw.String,
		}
	case KindFile:
		var paths []FilePath
		if filePaths.Valid && filePaths.String != "" {
			if err := json.Unmarshal([]byte(filePaths.String), &paths); err != nil {
				return nil, fmt.Errorf("decode file paths: %w", err)
			}
		}
		item.Content = FileContent{Paths: paths}
	default:
		return nil, fmt.Errorf("unknown content kind %d for id %d", kind, item.ID)
	}
	return &item, nil
}
