package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// MaxJSONLLineCapacity is the maximum buffer size for reading JSONL lines
// (1MB per line).
const MaxJSONLLineCapacity = 1024 * 1024

// ReadProblemsJSONL reads problem records from a JSONL file. A
// nonexistent file yields an empty slice, not an error.
func ReadProblemsJSONL(path string) ([]ProblemRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening problems file: %w", err)
	}
	defer f.Close()

	var records []ProblemRecord
	scanner := bufio.NewScanner(f)

	// Increase buffer size for long lines
	buf := make([]byte, MaxJSONLLineCapacity)
	scanner.Buffer(buf, MaxJSONLLineCapacity)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue // Skip empty lines
		}

		var rec ProblemRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("parsing line %d: %w", lineNum, err)
		}
		records = append(records, rec)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading problems file: %w", err)
	}

	return records, nil
}

// ImportProblemsJSONL loads a JSONL file into the catalogue. Records with
// no collection of their own are filed under defaultCollection. Returns
// the number of records imported. Unlike ReadProblemsJSONL, a missing
// file is an error here: an import that silently loads nothing would
// mask a mistyped path.
func (d *DB) ImportProblemsJSONL(path, defaultCollection string) (int, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, fmt.Errorf("opening problems file: %w", err)
	}
	records, err := ReadProblemsJSONL(path)
	if err != nil {
		return 0, fmt.Errorf("reading problems JSONL: %w", err)
	}
	for i := range records {
		if records[i].CollectionID == "" {
			records[i].CollectionID = defaultCollection
		}
	}
	if err := d.UpsertProblems(records); err != nil {
		return 0, err
	}
	return len(records), nil
}
