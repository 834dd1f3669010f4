package store

import (
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/tinytelemetry/logstat/internal/model"
)

// maxQueryRows caps the result size of ExecuteQuery.
const maxQueryRows = 1000

// dangerousKeywordPattern matches dangerous SQL keywords at word boundaries.
// This avoids false positives like "RESET" matching "SET".
// Used as defense-in-depth after comment stripping and semicolon rejection.
var dangerousKeywordPattern = regexp.MustCompile(
	`(?i)\b(INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE|COPY|ATTACH|DETACH|LOAD|EXPORT|IMPORT|INSTALL|CALL|EXECUTE|PRAGMA|SET|VACUUM|REPLACE)\b`,
)

// blockCommentPattern matches C-style block comments (/* ... */).
var blockCommentPattern = regexp.MustCompile(`/\*[\s\S]*?\*/`)

// stripSQLComments removes -- line comments and /* */ block comments from a query.
func stripSQLComments(query string) string {
	cleaned := blockCommentPattern.ReplaceAllString(query, " ")
	var result strings.Builder
	for _, line := range strings.Split(cleaned, "\n") {
		if idx := strings.Index(line, "--"); idx >= 0 {
			line = line[:idx]
		}
		result.WriteString(line)
		result.WriteByte('\n')
	}
	return result.String()
}

// validateReadOnly rejects anything but a single SELECT/WITH statement.
func validateReadOnly(query string) error {
	if strings.Contains(query, ";") {
		return fmt.Errorf("query must not contain semicolons")
	}

	stripped := strings.TrimSpace(stripSQLComments(query))
	upper := strings.ToUpper(stripped)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return fmt.Errorf("only SELECT/WITH queries are allowed")
	}
	if match := dangerousKeywordPattern.FindString(stripped); match != "" {
		return fmt.Errorf("query contains disallowed keyword: %s", strings.ToUpper(match))
	}
	return nil
}

// ExecuteQuery runs a read-only SQL query and returns results as maps.
// Only SELECT/WITH read queries are allowed; DDL/DML is rejected.
func (s *Store) ExecuteQuery(query string) ([]map[string]interface{}, error) {
	trimmed := strings.TrimSpace(query)
	if err := validateReadOnly(trimmed); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()
	rows, err := s.db.QueryContext(ctx, trimmed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	results := make([]map[string]interface{}, 0)
	for rows.Next() && len(results) < maxQueryRows {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			log.Printf("store: scan error (ExecuteQuery): %v", err)
			continue
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		results = append(results, row)
	}

	return results, rows.Err()
}

// GetSchemaDescription returns a human-readable schema description.
func (s *Store) GetSchemaDescription() string {
	return `Table 'runs': id (VARCHAR), source (VARCHAR), digest (VARCHAR, xxhash64 hex), ` +
		`input_bytes (BIGINT), started_at (BIGINT, unix ms), finished_at (BIGINT, unix ms), ` +
		`total_entries (BIGINT), most_frequent_process (VARCHAR), most_frequent_hostname (VARCHAR). ` +
		`Table 'run_process_counts': run_id, process, occurrences (BIGINT). ` +
		`Table 'run_hostname_counts': run_id, hostname, occurrences (BIGINT). ` +
		`Table 'run_keywords': run_id, ordinal (INTEGER, 0 = most frequent), keyword. ` +
		`Table 'entries': run_id, seq (BIGINT, 1-based), ts (BIGINT, unix ms, NULL when unresolved), ` +
		`raw_timestamp (VARCHAR), hostname (VARCHAR), process (VARCHAR), pid (BIGINT), message (VARCHAR).`
}

// queryableTables is the allowlist used by TableRowCounts.
var queryableTables = []string{"runs", "run_process_counts", "run_hostname_counts", "run_keywords", "entries"}

// TableRowCounts returns the row count for each known table.
func (s *Store) TableRowCounts() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	counts := make(map[string]int64, len(queryableTables))
	for _, table := range queryableTables {
		var count int64
		// Table names are hardcoded constants, not user input.
		err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
		if err != nil {
			continue
		}
		counts[table] = count
	}
	return counts, nil
}

// TableColumns returns the columns of each known table as reported by the driver.
func (s *Store) TableColumns() (map[string][]model.Column, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	tables := make(map[string][]model.Column, len(queryableTables))
	for _, table := range queryableTables {
		rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT 0", table))
		if err != nil {
			return nil, err
		}
		types, err := rows.ColumnTypes()
		rows.Close()
		if err != nil {
			return nil, err
		}
		cols := make([]model.Column, 0, len(types))
		for _, ct := range types {
			cols = append(cols, model.Column{Name: ct.Name(), Type: ct.DatabaseTypeName()})
		}
		tables[table] = cols
	}
	return tables, nil
}

// TopProcesses returns the processes with the most entries across all runs.
func (s *Store) TopProcesses(limit int) ([]model.DimensionCount, error) {
	return s.topDimension("run_process_counts", "process", limit)
}

// TopHostnames returns the hostnames with the most entries across all runs.
func (s *Store) TopHostnames(limit int) ([]model.DimensionCount, error) {
	return s.topDimension("run_hostname_counts", "hostname", limit)
}

func (s *Store) topDimension(table, column string, limit int) ([]model.DimensionCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	// SUM over BIGINT widens to HUGEINT in DuckDB; cast back for the driver.
	query := fmt.Sprintf(`
		SELECT %[1]s, CAST(SUM(occurrences) AS BIGINT) AS total
		FROM %[2]s
		GROUP BY %[1]s
		ORDER BY total DESC, %[1]s
		LIMIT ?`, column, table)
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]model.DimensionCount, 0)
	for rows.Next() {
		var dc model.DimensionCount
		if err := rows.Scan(&dc.Value, &dc.Count); err != nil {
			log.Printf("store: scan error (%s): %v", table, err)
			continue
		}
		results = append(results, dc)
	}
	return results, rows.Err()
}
