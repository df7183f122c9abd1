package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const historyColumns = "id, source_ref, links_json, created_at"

// HistoryBySourceRef returns the memoized links for a source reference, or
// nil when the reference has never been published.
func (s *Store) HistoryBySourceRef(ctx context.Context, sourceRef string) (*LinkHistoryRecord, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+historyColumns+` FROM link_history WHERE source_ref = ?`,
		sourceRef,
	)
	record, err := scanHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history lookup: %w", err)
	}
	return record, nil
}

// RecordHistory memoizes the links produced for a source reference. A repeat
// publish for the same reference replaces the stored links.
func (s *Store) RecordHistory(ctx context.Context, sourceRef string, links []string) error {
	if sourceRef == "" {
		return errors.New("source reference is required")
	}
	if len(links) == 0 {
		return errors.New("at least one link is required")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO link_history (source_ref, links_json, created_at) VALUES (?, ?, ?)
         ON CONFLICT(source_ref) DO UPDATE SET links_json = excluded.links_json`,
		sourceRef,
		marshalLinks(links),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record history: %w", err)
	}
	return nil
}

// ClearHistory removes every memoized link.
func (s *Store) ClearHistory(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM link_history`)
	if err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}
	return res.RowsAffected()
}

func scanHistory(scanner interface{ Scan(dest ...any) error }) (*LinkHistoryRecord, error) {
	var (
		id         int64
		sourceRef  string
		linksRaw   sql.NullString
		createdRaw sql.NullString
	)
	if err := scanner.Scan(&id, &sourceRef, &linksRaw, &createdRaw); err != nil {
		return nil, err
	}
	record := &LinkHistoryRecord{
		ID:        id,
		SourceRef: sourceRef,
		Links:     unmarshalLinks(linksRaw),
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		record.CreatedAt = created
	}
	return record, nil
}
