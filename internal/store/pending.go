package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const pendingColumns = "id, source_ref, metadata_json, status, attempts, last_check, created_at"

// CreatePending parks a transfer whose remote state is not yet terminal.
func (s *Store) CreatePending(ctx context.Context, sourceRef, metadata string, status PendingStatus) (*PendingTransfer, error) {
	if sourceRef == "" {
		return nil, errors.New("source reference is required")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO pending_transfers (source_ref, metadata_json, status, attempts, created_at)
         VALUES (?, ?, ?, 0, ?)`,
		sourceRef,
		nullableString(metadata),
		status,
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert pending transfer: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetPending(ctx, id)
}

// GetPending fetches a pending transfer by identifier. Returns nil when absent.
func (s *Store) GetPending(ctx context.Context, id int64) (*PendingTransfer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pendingColumns+` FROM pending_transfers WHERE id = ?`, id)
	pending, err := scanPending(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pending transfer: %w", err)
	}
	return pending, nil
}

// ListPending returns all parked transfers ordered by creation time.
func (s *Store) ListPending(ctx context.Context) ([]*PendingTransfer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+pendingColumns+` FROM pending_transfers ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list pending transfers: %w", err)
	}
	defer rows.Close()

	var result []*PendingTransfer
	for rows.Next() {
		pending, err := scanPending(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, pending)
	}
	return result, rows.Err()
}

// TouchPending increments the attempt counter and stamps the check time.
func (s *Store) TouchPending(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE pending_transfers SET attempts = attempts + 1, last_check = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("touch pending transfer: %w", err)
	}
	return nil
}

// DeletePending removes a resolved pending transfer.
func (s *Store) DeletePending(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pending_transfers WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete pending transfer: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func scanPending(scanner interface{ Scan(dest ...any) error }) (*PendingTransfer, error) {
	var (
		id           int64
		sourceRef    string
		metadata     sql.NullString
		statusStr    string
		attempts     int
		lastCheckRaw sql.NullString
		createdRaw   sql.NullString
	)

	if err := scanner.Scan(&id, &sourceRef, &metadata, &statusStr, &attempts, &lastCheckRaw, &createdRaw); err != nil {
		return nil, err
	}

	pending := &PendingTransfer{
		ID:        id,
		SourceRef: sourceRef,
		Metadata:  metadata.String,
		Status:    PendingStatus(statusStr),
		Attempts:  attempts,
	}
	if lastCheckRaw.Valid {
		if checked, err := parseTimeString(lastCheckRaw.String); err == nil {
			pending.LastCheck = &checked
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		pending.CreatedAt = created
	}
	return pending, nil
}
