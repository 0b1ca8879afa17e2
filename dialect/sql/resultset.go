package sql

import "fmt"

// ResultSet reads the rows of a query one at a time. Values are returned
// as scanned by the driver.
type ResultSet struct {
	rows    *Rows
	columns []string
	peeked  bool
	done    bool
	err     error
}

func newResultSet(rows *Rows) *ResultSet {
	return &ResultSet{rows: rows}
}

// Columns returns the column names of the result.
func (rs *ResultSet) Columns() ([]string, error) {
	if rs.columns == nil {
		cols, err := rs.rows.Columns()
		if err != nil {
			return nil, err
		}
		rs.columns = cols
	}
	return rs.columns, nil
}

// HasRows reports whether a row is left to fetch.
func (rs *ResultSet) HasRows() bool {
	return rs.advance()
}

func (rs *ResultSet) advance() bool {
	if rs.done {
		return false
	}
	if rs.peeked {
		return true
	}
	if !rs.rows.Next() {
		rs.done = true
		rs.err = rs.rows.Err()
		return false
	}
	rs.peeked = true
	return true
}

// FetchRow returns the next row, or nil at the end of the result.
func (rs *ResultSet) FetchRow() ([]any, error) {
	if !rs.advance() {
		return nil, rs.err
	}
	rs.peeked = false
	cols, err := rs.Columns()
	if err != nil {
		return nil, err
	}
	values := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := rs.rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("strata: scan row: %w", err)
	}
	return values, nil
}

// FetchAssoc returns the next row keyed by column name, or nil at the end
// of the result.
func (rs *ResultSet) FetchAssoc() (map[string]any, error) {
	row, err := rs.FetchRow()
	if row == nil || err != nil {
		return nil, err
	}
	out := make(map[string]any, len(row))
	for i, c := range rs.columns {
		out[c] = row[i]
	}
	return out, nil
}

// All fetches the remaining rows keyed by column name and closes the set.
func (rs *ResultSet) All() ([]map[string]any, error) {
	defer rs.Close()
	var out []map[string]any
	for {
		row, err := rs.FetchAssoc()
		if err != nil {
			return nil, err
		}
		if row == nil {
			return out, nil
		}
		out = append(out, row)
	}
}

// Close releases the rows.
func (rs *ResultSet) Close() error {
	rs.done = true
	return rs.rows.Close()
}
