package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jul-sh/clipkitty/index"
)

// Insert writes a new item, or bumps the timestamp of the existing row when
// the content hash collides. Returns the id and whether the row already
// existed. A hash collision never surfaces as an error.
func (s *Store) Insert(ctx context.Context, item *Item) (int64, bool, error) {
	var id int64
	var existed bool
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRow(`SELECT id FROM items WHERE content_hash = ?`, item.ContentHash[:]).Scan(&id)
		switch {
		case err == nil:
			existed = true
			_, err := tx.Exec(`UPDATE items SET timestamp = max(timestamp, ?) WHERE id = ?`, item.Timestamp, id)
			return err
		case err != sql.ErrNoRows:
			return fmt.Errorf("dedup lookup: %w", err)
		}

		cols, err := contentColumns(item.Content)
		if err != nil {
			return err
		}
		text := item.Content.SearchableText()
		res, err := tx.Exec(`
			INSERT INTO items (
				content_hash, timestamp, kind, source_app_name, source_app_id, searchable_text,
				text_value, image_bytes, thumbnail_bytes, image_description,
				link_url, link_state, link_title, link_description, link_image,
				color_rgba, color_raw, file_paths
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ContentHash[:], item.Timestamp, int(item.Content.Kind()),
			item.SourceAppName, item.SourceAppID, text,
			cols.textValue, cols.imageBytes, cols.thumbnailBytes, cols.imageDescription,
			cols.linkURL, cols.linkState, cols.linkTitle, cols.linkDescription, cols.linkImage,
			cols.colorRGBA, cols.colorRaw, cols.filePaths,
		)
		if err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return err
		}
		return index.UpsertTx(tx, id, text)
	})
	if err != nil {
		return 0, false, err
	}
	if existed {
		item.ID = id
	} else {
		item.ID = id
		item.SearchableText = item.Content.SearchableText()
	}
	return id, existed, nil
}

// UpdateTimestamp bumps an item's last-use time (recency bump on paste).
func (s *Store) UpdateTimestamp(ctx context.Context, id int64, timestamp int64) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE items SET timestamp = ? WHERE id = ?`, timestamp, id)
		if err != nil {
			return fmt.Errorf("update timestamp: %w", err)
		}
		return requireRow(res)
	})
}

// UpdateImageDescription fills in the classifier's labels and reindexes the
// row, since the description is the image's searchable text.
func (s *Store) UpdateImageDescription(ctx context.Context, id int64, description string) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		text := ImageContent{Description: description}.SearchableText()
		res, err := tx.Exec(
			`UPDATE items SET image_description = ?, searchable_text = ? WHERE id = ? AND kind = ?`,
			description, text, id, int(KindImage),
		)
		if err != nil {
			return fmt.Errorf("update description: %w", err)
		}
		if err := requireRow(res); err != nil {
			return err
		}
		return index.UpsertTx(tx, id, text)
	})
}

// UpdateLinkMetadata records a fetch outcome. The state, title, description,
// and preview image are all overwritten with the given values, whatever the
// state. The title feeds scoring, so the index entry is refreshed in the
// same commit.
func (s *Store) UpdateLinkMetadata(ctx context.Context, id int64, state MetadataState, title, description string, imageBytes []byte) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		var url string
		err := tx.QueryRow(`SELECT link_url FROM items WHERE id = ? AND kind = ?`, id, int(KindLink)).Scan(&url)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: id %d", ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("load link: %w", err)
		}

		text := LinkContent{URL: url, Title: title}.SearchableText()
		_, err = tx.Exec(
			`UPDATE items SET link_state = ?, link_title = ?, link_description = ?, link_image = ?, searchable_text = ? WHERE id = ?`,
			int(state), title, description, imageBytes, text, id,
		)
		if err != nil {
			return fmt.Errorf("update link: %w", err)
		}
		return index.UpsertTx(tx, id, text)
	})
}

// Delete removes an item and its index entry. Deleting a missing id is a
// no-op, not an error.
func (s *Store) Delete(ctx context.Context, id int64) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM items WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete item: %w", err)
		}
		return index.DeleteTx(tx, id)
	})
}

// Clear removes every item and index entry.
func (s *Store) Clear(ctx context.Context) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM items`); err != nil {
			return fmt.Errorf("clear items: %w", err)
		}
		return index.ClearTx(tx)
	})
}

// Rebuild reindexes every live row, for startup recovery after a detected
// index inconsistency.
func (s *Store) Rebuild(ctx context.Context) error {
	return s.withWriteTx(ctx, index.RebuildTx)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type columns struct {
	textValue        sql.NullString
	imageBytes       []byte
	thumbnailBytes   []byte
	imageDescription sql.NullString
	linkURL          sql.NullString
	linkState        sql.NullInt64
	linkTitle        sql.NullString
	linkDescription  sql.NullString
	linkImage        []byte
	colorRGBA        sql.NullInt64
	colorRaw         sql.NullString
	filePaths        sql.NullString
}

func contentColumns(c Content) (columns, error) {
	var cols columns
	switch v := c.(type) {
	case TextContent:
		cols.textValue = sql.NullString{String: v.Value, Valid: true}
	case ImageContent:
		cols.imageBytes = v.Bytes
		cols.thumbnailBytes = v.ThumbnailBytes
		cols.imageDescription = sql.NullString{String: v.Description, Valid: true}
	case LinkContent:
		cols.linkURL = sql.NullString{String: v.URL, Valid: true}
		cols.linkState = sql.NullInt64{Int64: int64(v.State), Valid: true}
		cols.linkTitle = sql.NullString{String: v.Title, Valid: true}
		cols.linkDescription = sql.NullString{String: v.Description, Valid: true}
		cols.linkImage = v.ImageBytes
	case ColorContent:
		cols.colorRGBA = sql.NullInt64{Int64: int64(v.RGBA), Valid: true}
		cols.colorRaw = sql.NullString{String: v.RawText, Valid: true}
	case FileContent:
		encoded, err := json.Marshal(v.Paths)
		if err != nil {
			return cols, fmt.Errorf("encode file paths: %w", err)
		}
		cols.filePaths = sql.NullString{String: string(encoded), Valid: true}
	default:
		return cols, fmt.Errorf("unknown content variant %T", c)
	}
	return cols, nil
}
