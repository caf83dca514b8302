package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // pure-Go driver, registers as "sqlite"

	"github.com/devilkun/joplin/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const walJournalSizeLimit = 67108864 // 64 MiB

// SQLiteStore implements Store on an embedded SQLite database, opened in
// WAL mode with a single writer connection (SetMaxOpenConns(1)) — the
// engine's orchestration loop is single-threaded per run, so there is
// never genuine write concurrency to trade away.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens dbPath (use ":memory:" for tests), applies
// pragmas and migrations, and returns a ready Store.
func NewSQLiteStore(ctx context.Context, dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("opening item store", slog.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)

	if err := setPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit),
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("store: set pragma %q: %w", p, err)
		}
	}

	return nil
}

func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("store: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("store: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Debug("applied migration", slog.String("source", r.Source.Path))
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) NextUploadBatch(ctx context.Context, targetID, offset, limit int) (*UploadBatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.type_, i.parent_id, i.share_id, i.updated_time, i.created_time,
		       i.user_updated_time, i.user_created_time, i.encryption_applied, i.props,
		       COALESCE(s.sync_time, 0)
		FROM items i
		LEFT JOIN sync_items s ON s.item_id = i.id AND s.sync_target_id = ?
		WHERE COALESCE(s.sync_disabled, 0) = 0
		  AND (s.sync_time IS NULL OR i.updated_time > s.sync_time)
		ORDER BY i.id
		LIMIT ? OFFSET ?`, targetID, limit+1, offset)
	if err != nil {
		return nil, fmt.Errorf("store: query upload batch: %w", err)
	}
	defer rows.Close()

	batch := &UploadBatch{NeverSynced: make(map[string]bool)}

	for rows.Next() {
		var (
			it       model.Item
			props    string
			syncTime int64
		)

		if err := rows.Scan(&it.ID, &it.Type, &it.ParentID, &it.ShareID, &it.UpdatedTime, &it.CreatedTime,
			&it.UserUpdatedTime, &it.UserCreatedTime, &it.EncryptionApplied, &props, &syncTime); err != nil {
			return nil, fmt.Errorf("store: scan upload batch row: %w", err)
		}

		if err := json.Unmarshal([]byte(props), &it.Props); err != nil {
			return nil, fmt.Errorf("store: decode props for %s: %w", it.ID, err)
		}

		if len(batch.Items) >= limit {
			batch.HasMore = true
			break
		}

		if syncTime == 0 {
			batch.NeverSynced[it.ID] = true
		}

		batch.Items = append(batch.Items, it)
	}

	return batch, rows.Err()
}

func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*model.Item, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type_, parent_id, share_id, updated_time, created_time,
		       user_updated_time, user_created_time, encryption_applied, props
		FROM items WHERE id = ?`, id)

	var (
		it    model.Item
		props string
	)

	err := row.Scan(&it.ID, &it.Type, &it.ParentID, &it.ShareID, &it.UpdatedTime, &it.CreatedTime,
		&it.UserUpdatedTime, &it.UserCreatedTime, &it.EncryptionApplied, &props)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get item %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(props), &it.Props); err != nil {
		return nil, fmt.Errorf("store: decode props for %s: %w", id, err)
	}

	return &it, nil
}

func (s *SQLiteStore) FolderChildren(ctx context.Context, folderID string) ([]model.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type_, parent_id, share_id, updated_time, created_time,
		       user_updated_time, user_created_time, encryption_applied, props
		FROM items WHERE parent_id = ? AND type_ = ?`, folderID, model.ItemTypeNote)
	if err != nil {
		return nil, fmt.Errorf("store: query folder children %s: %w", folderID, err)
	}
	defer rows.Close()

	var out []model.Item

	for rows.Next() {
		var (
			it    model.Item
			props string
		)

		if err := rows.Scan(&it.ID, &it.Type, &it.ParentID, &it.ShareID, &it.UpdatedTime, &it.CreatedTime,
			&it.UserUpdatedTime, &it.UserCreatedTime, &it.EncryptionApplied, &props); err != nil {
			return nil, fmt.Errorf("store: scan folder child: %w", err)
		}

		if err := json.Unmarshal([]byte(props), &it.Props); err != nil {
			return nil, fmt.Errorf("store: decode props for %s: %w", it.ID, err)
		}

		out = append(out, it)
	}

	return out, rows.Err()
}

func (s *SQLiteStore) Save(ctx context.Context, item model.Item, opts SaveOptions) error {
	props, err := json.Marshal(item.Props)
	if err != nil {
		return fmt.Errorf("store: encode props for %s: %w", item.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin save tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO items (id, type_, parent_id, share_id, updated_time, created_time,
		                    user_updated_time, user_created_time, encryption_applied, props)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		  type_ = excluded.type_, parent_id = excluded.parent_id, share_id = excluded.share_id,
		  updated_time = excluded.updated_time, created_time = excluded.created_time,
		  user_updated_time = excluded.user_updated_time, user_created_time = excluded.user_created_time,
		  encryption_applied = excluded.encryption_applied, props = excluded.props`,
		item.ID, item.Type, item.ParentID, item.ShareID, item.UpdatedTime, item.CreatedTime,
		item.UserUpdatedTime, item.UserCreatedTime, item.EncryptionApplied, string(props))
	if err != nil {
		return fmt.Errorf("store: upsert item %s: %w", item.ID, err)
	}

	if opts.SyncTime > 0 {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sync_items (item_id, item_type, sync_target_id, sync_time)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(item_id, sync_target_id) DO UPDATE SET sync_time = excluded.sync_time`,
			item.ID, item.Type, opts.SyncTargetID, opts.SyncTime); err != nil {
			return fmt.Errorf("store: upsert sync_time for %s: %w", item.ID, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) Delete(ctx context.Context, id string, itemType model.ItemType, targetID int, trackDeleted bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin delete tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: delete item %s: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sync_items WHERE item_id = ? AND sync_target_id = ?`, id, targetID); err != nil {
		return fmt.Errorf("store: delete sync_item %s: %w", id, err)
	}

	if trackDeleted {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO deleted_items (item_id, item_type, sync_target_id, deleted_time)
			VALUES (?, ?, ?, strftime('%s','now')*1000)
			ON CONFLICT(item_id, sync_target_id) DO NOTHING`, id, itemType, targetID); err != nil {
			return fmt.Errorf("store: queue deletion for %s: %w", id, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) SyncItem(ctx context.Context, targetID int, itemID string) (*model.SyncItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT item_id, item_type, sync_target_id, sync_time, sync_disabled, sync_disabled_code, sync_disabled_msg
		FROM sync_items WHERE item_id = ? AND sync_target_id = ?`, itemID, targetID)

	var si model.SyncItem

	err := row.Scan(&si.ItemID, &si.ItemType, &si.SyncTargetID, &si.SyncTime,
		&si.SyncDisabled, &si.SyncDisabledCode, &si.SyncDisabledMsg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get sync_item %s: %w", itemID, err)
	}

	return &si, nil
}

func (s *SQLiteStore) SetSyncTime(ctx context.Context, targetID int, itemID string, updatedTime int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_items (item_id, item_type, sync_target_id, sync_time)
		VALUES (?, COALESCE((SELECT type_ FROM items WHERE id = ?), 0), ?, ?)
		ON CONFLICT(item_id, sync_target_id) DO UPDATE SET sync_time = excluded.sync_time`,
		itemID, itemID, targetID, updatedTime)
	if err != nil {
		return fmt.Errorf("store: set sync_time for %s: %w", itemID, err)
	}

	return nil
}

func (s *SQLiteStore) DisableSync(ctx context.Context, targetID int, itemID string, code, msg string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_items (item_id, item_type, sync_target_id, sync_disabled, sync_disabled_code, sync_disabled_msg)
		VALUES (?, COALESCE((SELECT type_ FROM items WHERE id = ?), 0), ?, 1, ?, ?)
		ON CONFLICT(item_id, sync_target_id) DO UPDATE SET
		  sync_disabled = 1, sync_disabled_code = excluded.sync_disabled_code, sync_disabled_msg = excluded.sync_disabled_msg`,
		itemID, itemID, targetID, code, msg)
	if err != nil {
		return fmt.Errorf("store: disable sync for %s: %w", itemID, err)
	}

	return nil
}

func (s *SQLiteStore) PendingDeletions(ctx context.Context, targetID int) ([]model.DeletedItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, item_type, sync_target_id FROM deleted_items WHERE sync_target_id = ?`, targetID)
	if err != nil {
		return nil, fmt.Errorf("store: query deleted_items: %w", err)
	}
	defer rows.Close()

	var out []model.DeletedItem

	for rows.Next() {
		var d model.DeletedItem
		if err := rows.Scan(&d.ItemID, &d.ItemType, &d.SyncTargetID); err != nil {
			return nil, fmt.Errorf("store: scan deleted_item: %w", err)
		}
		out = append(out, d)
	}

	return out, rows.Err()
}

func (s *SQLiteStore) ConsumeDeletion(ctx context.Context, targetID int, itemID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM deleted_items WHERE item_id = ? AND sync_target_id = ?`, itemID, targetID)
	if err != nil {
		return fmt.Errorf("store: consume deletion for %s: %w", itemID, err)
	}

	return nil
}

func (s *SQLiteStore) ResourceState(ctx context.Context, resourceID string) (*model.ResourceLocalState, error) {
	row := s.db.QueryRowContext(ctx, `SELECT resource_id, fetch_status, fetch_error FROM resource_local_state WHERE resource_id = ?`, resourceID)

	var st model.ResourceLocalState

	err := row.Scan(&st.ResourceID, &st.FetchStatus, &st.FetchError)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get resource_local_state %s: %w", resourceID, err)
	}

	return &st, nil
}

func (s *SQLiteStore) SetResourceState(ctx context.Context, state model.ResourceLocalState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO resource_local_state (resource_id, fetch_status, fetch_error)
		VALUES (?, ?, ?)
		ON CONFLICT(resource_id) DO UPDATE SET fetch_status = excluded.fetch_status, fetch_error = excluded.fetch_error`,
		state.ResourceID, state.FetchStatus, state.FetchError)
	if err != nil {
		return fmt.Errorf("store: set resource_local_state %s: %w", state.ResourceID, err)
	}

	return nil
}

func (s *SQLiteStore) MasterKeyCount(ctx context.Context) (int, error) {
	var n int

	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM master_keys`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count master_keys: %w", err)
	}

	return n, nil
}

func (s *SQLiteStore) SaveMasterKey(ctx context.Context, id, content string, createdTime int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO master_keys (id, content, created_time, active)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(id) DO UPDATE SET content = excluded.content`, id, content, createdTime)
	if err != nil {
		return fmt.Errorf("store: save master_key %s: %w", id, err)
	}

	return nil
}

func (s *SQLiteStore) DeltaContext(ctx context.Context, targetID int) (string, error) {
	var cursor string

	err := s.db.QueryRowContext(ctx, `SELECT cursor FROM delta_contexts WHERE sync_target_id = ?`, targetID).Scan(&cursor)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: get delta_context for target %d: %w", targetID, err)
	}

	return cursor, nil
}

func (s *SQLiteStore) SaveDeltaContext(ctx context.Context, targetID int, cursor string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO delta_contexts (sync_target_id, cursor) VALUES (?, ?)
		ON CONFLICT(sync_target_id) DO UPDATE SET cursor = excluded.cursor`, targetID, cursor)
	if err != nil {
		return fmt.Errorf("store: save delta_context for target %d: %w", targetID, err)
	}

	return nil
}

func (s *SQLiteStore) RecordConflict(ctx context.Context, targetID int, itemID, conflictCopyID, kind string, createdTime int64) (string, error) {
	id := uuid.NewString()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conflicts (id, item_id, conflict_copy_id, sync_target_id, kind, created_time)
		VALUES (?, ?, ?, ?, ?, ?)`, id, itemID, conflictCopyID, targetID, kind, createdTime)
	if err != nil {
		return "", fmt.Errorf("store: record conflict for %s: %w", itemID, err)
	}

	return id, nil
}

func (s *SQLiteStore) PurgeOrphanedSyncItems(ctx context.Context, targetID int) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM sync_items
		WHERE sync_target_id = ? AND item_id NOT IN (SELECT id FROM items)`, targetID)
	if err != nil {
		return 0, fmt.Errorf("store: purge orphaned sync_items: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: rows affected after purge: %w", err)
	}

	return int(n), nil
}
