package store

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// StoreRawPayload archives an upstream rainfall response, gzipped and keyed
// by content hash. It returns the new row ID, or 0 when an identical
// response is already archived.
func (s *Store) StoreRawPayload(source, endpoint string, targetDate time.Time, payload []byte) (int64, error) {
	compressed, err := gzipBytes(payload)
	if err != nil {
		return 0, err
	}
	sum := sha256.Sum256(payload)

	var target sql.NullString
	if !targetDate.IsZero() {
		target = sql.NullString{String: formatDate(targetDate), Valid: true}
	}

	res, err := s.db.Exec(`
		INSERT INTO raw_payloads (fetched_at, source, endpoint, target_date, payload_compressed, payload_hash)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(payload_hash) DO NOTHING
	`, time.Now().UTC(), source, endpoint, target, compressed, hex.EncodeToString(sum[:]))
	if err != nil {
		return 0, fmt.Errorf("archive %s %s payload: %w", source, endpoint, err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return 0, err
	}
	return res.LastInsertId()
}

// GetRawPayload returns an archived response, decompressed.
func (s *Store) GetRawPayload(id int64) ([]byte, error) {
	var compressed []byte
	if err := s.db.QueryRow(`SELECT payload_compressed FROM raw_payloads WHERE id = ?`, id).Scan(&compressed); err != nil {
		return nil, err
	}
	return gunzipBytes(compressed)
}

// CleanupOldRawPayloads drops archived responses fetched before the
// retention window and reports how many went.
func (s *Store) CleanupOldRawPayloads(retention time.Duration) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM raw_payloads WHERE fetched_at < ?`, time.Now().UTC().Add(-retention))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func gzipBytes(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(b); err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	return buf.Bytes(), nil
}

func gunzipBytes(b []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("gunzip: %w", err)
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
