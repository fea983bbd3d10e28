package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"compatsuite/internal/logging"

	"github.com/klauspost/compress/zstd"
)

// ErrDumpNotFound is returned for unknown dump IDs.
var ErrDumpNotFound = errors.New("dump not found")

// Dump is a captured proto dump.
type Dump struct {
	ID         int64
	SessionID  int64
	Service    string
	CapturedAt time.Time
	Data       []byte
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() (*zstd.Encoder, error) {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	return enc, nil
}

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return dec, nil
}

// SaveDump stores raw dump bytes for a session, compressed with zstd.
func (s *Store) SaveDump(ctx context.Context, sessionID int64, service string, raw []byte) (int64, error) {
	enc, err := getZstdEncoder()
	if err != nil {
		return 0, err
	}
	compressed := enc.EncodeAll(raw, nil)
	zstdEncoderPool.Put(enc)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sessionExists(ctx, s.db, sessionID); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO incident_dumps (session_id, service, captured_at, raw_size, data)
		VALUES (?, ?, ?, ?, ?)
	`, sessionID, service, time.Now().UTC(), len(raw), compressed)
	if err != nil {
		return 0, fmt.Errorf("failed to save dump: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	logging.StoreDebug("saved %s dump %d: %d bytes (%d compressed)", service, id, len(raw), len(compressed))
	return id, nil
}

// LoadDump returns a stored dump with its bytes decompressed.
func (s *Store) LoadDump(ctx context.Context, id int64) (*Dump, error) {
	s.mu.RLock()
	var d Dump
	var compressed []byte
	var rawSize int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, service, captured_at, raw_size, data FROM incident_dumps WHERE id = ?
	`, id).Scan(&d.ID, &d.SessionID, &d.Service, &d.CapturedAt, &rawSize, &compressed)
	s.mu.RUnlock()
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrDumpNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load dump: %w", err)
	}

	dec, err := getZstdDecoder()
	if err != nil {
		return nil, err
	}
	defer zstdDecoderPool.Put(dec)
	d.Data, err = dec.DecodeAll(compressed, make([]byte, 0, rawSize))
	if err != nil {
		logging.StoreError("dump %d is corrupt: %v", id, err)
		return nil, fmt.Errorf("failed to decompress dump %d: %w", id, err)
	}
	return &d, nil
}
