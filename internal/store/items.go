package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const itemColumns = "id, job_id, position, source_ref, title, access_code, status, links_json, error_message, created_at, updated_at"

// NextPendingItem returns the lowest-position pending item of a job.
func (s *Store) NextPendingItem(ctx context.Context, jobID int64) (*TransferItem, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+itemColumns+` FROM transfer_items WHERE job_id = ? AND status = ? ORDER BY position LIMIT 1`,
		jobID, ItemPending,
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next pending item: %w", err)
	}
	return item, nil
}

// ClaimItem transitions an item pending -> processing. It reports false when
// the item was no longer pending, which means another path got there first
// or a pause reset it.
func (s *Store) ClaimItem(ctx context.Context, itemID int64) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE transfer_items SET status = ?, error_message = NULL, updated_at = ? WHERE id = ? AND status = ?`,
		ItemProcessing,
		time.Now().UTC().Format(time.RFC3339Nano),
		itemID,
		ItemPending,
	)
	if err != nil {
		return false, fmt.Errorf("claim item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// GetItem fetches an item by identifier. Returns nil when absent.
func (s *Store) GetItem(ctx context.Context, id int64) (*TransferItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM transfer_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// UpdateItem persists changes to an existing item row.
func (s *Store) UpdateItem(ctx context.Context, item *TransferItem) error {
	if item == nil {
		return errors.New("item is nil")
	}
	item.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE transfer_items
         SET status = ?, links_json = ?, error_message = ?, title = ?, access_code = ?, updated_at = ?
         WHERE id = ?`,
		item.Status,
		marshalLinks(item.Links),
		nullableString(item.ErrorMessage),
		nullableString(item.Title),
		nullableString(item.AccessCode),
		item.UpdatedAt.Format(time.RFC3339Nano),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// ItemsForJob returns all items of a job in position order.
func (s *Store) ItemsForJob(ctx context.Context, jobID int64) ([]*TransferItem, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+itemColumns+` FROM transfer_items WHERE job_id = ? ORDER BY position`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("items for job: %w", err)
	}
	defer rows.Close()

	var items []*TransferItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// JobItemCounts aggregates per-status item totals for a job.
func (s *Store) JobItemCounts(ctx context.Context, jobID int64) (ItemCounts, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT status, COUNT(1) FROM transfer_items WHERE job_id = ? GROUP BY status`,
		jobID,
	)
	if err != nil {
		return ItemCounts{}, fmt.Errorf("item counts: %w", err)
	}
	defer rows.Close()

	var counts ItemCounts
	for rows.Next() {
		var status ItemStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return ItemCounts{}, err
		}
		switch status {
		case ItemPending:
			counts.Pending = count
		case ItemProcessing:
			counts.Processing = count
		case ItemSuccess:
			counts.Success = count
		case ItemFailed:
			counts.Failed = count
		case ItemSkipped:
			counts.Skipped = count
		}
	}
	return counts, rows.Err()
}

func scanItem(scanner interface{ Scan(dest ...any) error }) (*TransferItem, error) {
	var (
		id         int64
		jobID      int64
		position   int
		sourceRef  string
		title      sql.NullString
		accessCode sql.NullString
		statusStr  string
		linksRaw   sql.NullString
		errMsg     sql.NullString
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&jobID,
		&position,
		&sourceRef,
		&title,
		&accessCode,
		&statusStr,
		&linksRaw,
		&errMsg,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item := &TransferItem{
		ID:           id,
		JobID:        jobID,
		Position:     position,
		SourceRef:    sourceRef,
		Title:        title.String,
		AccessCode:   accessCode.String,
		Status:       ItemStatus(statusStr),
		Links:        unmarshalLinks(linksRaw),
		ErrorMessage: errMsg.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	return item, nil
}
