package storage

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// PutVector stores a vector for the given model and content hash,
// replacing any previous one.
func (d *DB) PutVector(model, textHash string, vector []float32) error {
	_, err := d.db.Exec(`
		INSERT OR REPLACE INTO embeddings (model, text_hash, dim, vector, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, model, textHash, len(vector), encodeVector(vector), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("storing vector: %w", err)
	}
	return nil
}

// GetVector retrieves a stored vector. The second return reports whether
// one was found.
func (d *DB) GetVector(model, textHash string) ([]float32, bool, error) {
	var dim int
	var blob []byte
	err := d.db.QueryRow(`
		SELECT dim, vector FROM embeddings WHERE model = ? AND text_hash = ?
	`, model, textHash).Scan(&dim, &blob)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("loading vector: %w", err)
	}

	vec, err := decodeVector(blob)
	if err != nil {
		return nil, false, err
	}
	if len(vec) != dim {
		return nil, false, fmt.Errorf("vector for %s/%s has %d values, recorded dim %d", model, textHash, len(vec), dim)
	}
	return vec, true, nil
}

// DeleteVectors removes stored vectors. An empty model removes all of
// them. Returns the number of rows deleted.
func (d *DB) DeleteVectors(model string) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if model != "" {
		res, err = d.db.Exec(`DELETE FROM embeddings WHERE model = ?`, model)
	} else {
		res, err = d.db.Exec(`DELETE FROM embeddings`)
	}
	if err != nil {
		return 0, fmt.Errorf("deleting vectors: %w", err)
	}
	return res.RowsAffected()
}

// VectorStats summarizes the stored vectors for one model.
type VectorStats struct {
	Model    string `json:"model"`
	Count    int    `json:"count"`
	Dim      int    `json:"dim"`
	OldestAt int64  `json:"oldest_at"`
	NewestAt int64  `json:"newest_at"`
}

// VectorStatsByModel reports stored vector counts grouped by model.
func (d *DB) VectorStatsByModel() ([]VectorStats, error) {
	rows, err := d.db.Query(`
		SELECT model, COUNT(*), MAX(dim), MIN(created_at), MAX(created_at)
		FROM embeddings
		GROUP BY model
		ORDER BY model
	`)
	if err != nil {
		return nil, fmt.Errorf("reading vector stats: %w", err)
	}
	defer rows.Close()

	var stats []VectorStats
	for rows.Next() {
		var s VectorStats
		if err := rows.Scan(&s.Model, &s.Count, &s.Dim, &s.OldestAt, &s.NewestAt); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// encodeVector packs float32 values little-endian, 4 bytes each.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}
