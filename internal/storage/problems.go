package storage

import (
	"database/sql"
	"fmt"

	"github.com/akinlab/akin/internal/problem"
)

// ProblemRecord is a problem row together with the collection it belongs
// to. The collection is a storage concern; the matching pipeline only sees
// problem.Problem values.
type ProblemRecord struct {
	problem.Problem
	CollectionID string `json:"collection_id,omitempty"`
}

const selectProblemFields = `id, label, description, alias, paper_count, collection_id`

// UpsertProblems inserts or replaces the given records in one transaction.
func (d *DB) UpsertProblems(records []ProblemRecord) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning problems upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO problems (id, label, description, alias, paper_count, collection_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing problems upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("problem %q: %w", rec.ID, err)
		}
		_, err = stmt.Exec(
			rec.ID, rec.Label,
			nullableString(rec.Description), nullableString(rec.Alias),
			rec.PaperCount, rec.CollectionID,
		)
		if err != nil {
			return fmt.Errorf("upserting problem %s: %w", rec.ID, err)
		}
	}

	return tx.Commit()
}

// GetProblem retrieves a problem by ID. A missing ID returns (nil, nil).
func (d *DB) GetProblem(id string) (*ProblemRecord, error) {
	row := d.db.QueryRow(`SELECT `+selectProblemFields+` FROM problems WHERE id = ?`, id)
	return scanProblem(row)
}

// ListProblems returns one page of a collection's problems ordered by
// paper count (highest first, ID as tiebreak) plus the collection's total
// row count. An empty collectionID lists across all collections.
func (d *DB) ListProblems(collectionID string, offset, limit int) ([]problem.Problem, int, error) {
	total, err := d.CountProblems(collectionID)
	if err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + selectProblemFields + ` FROM problems`
	var args []interface{}
	if collectionID != "" {
		query += ` WHERE collection_id = ?`
		args = append(args, collectionID)
	}
	query += ` ORDER BY paper_count DESC, id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing problems: %w", err)
	}
	defer rows.Close()

	var problems []problem.Problem
	for rows.Next() {
		rec, err := scanProblem(rows)
		if err != nil {
			return nil, 0, err
		}
		if rec != nil {
			problems = append(problems, rec.Problem)
		}
	}
	return problems, total, rows.Err()
}

// CountProblems returns the number of problems in a collection, or in the
// whole catalogue when collectionID is empty.
func (d *DB) CountProblems(collectionID string) (int, error) {
	var (
		count int
		err   error
	)
	if collectionID != "" {
		err = d.db.QueryRow(`SELECT COUNT(*) FROM problems WHERE collection_id = ?`, collectionID).Scan(&count)
	} else {
		err = d.db.QueryRow(`SELECT COUNT(*) FROM problems`).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("counting problems: %w", err)
	}
	return count, nil
}

// Collections returns the distinct collection IDs with their problem
// counts, ordered by ID.
func (d *DB) Collections() (map[string]int, error) {
	rows, err := d.db.Query(`SELECT collection_id, COUNT(*) FROM problems GROUP BY collection_id ORDER BY collection_id`)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}

func scanProblem(s scanner) (*ProblemRecord, error) {
	var rec ProblemRecord
	var description, alias sql.NullString

	err := s.Scan(&rec.ID, &rec.Label, &description, &alias, &rec.PaperCount, &rec.CollectionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	rec.Description = description.String
	rec.Alias = alias.String
	return &rec, nil
}
