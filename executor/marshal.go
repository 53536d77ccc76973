package executor

import (
	"encoding/base64"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"

	"github.com/queryproxy/queryproxy/types"
)

// MarshalRows drains rows into a QueryResult with every cell reduced to
// a JSON-safe scalar. Conversion rules:
//
//   - integers, floats, booleans, and strings pass through
//   - date/time values become RFC 3339 strings
//   - arbitrary-precision numerics arrive from the drivers as text and
//     stay strings, since converting to float64 does not round-trip
//   - binary payloads become strings: UTF-8 as-is, anything else base64
//   - NULL stays null
//
// The column list comes from the query's declared output, in execution
// order, so computed expressions and duplicate names are preserved.
func MarshalRows(rows *sqlx.Rows) (*types.QueryResult, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read result columns: %w", err)
	}

	out := make([][]any, 0)
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make([]any, len(values))
		for i, v := range values {
			row[i] = marshalValue(v)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if columns == nil {
		columns = []string{}
	}
	return &types.QueryResult{
		Columns:  columns,
		Rows:     out,
		RowCount: len(out),
	}, nil
}

func marshalValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case bool, string, int64, float64, int32, int16, int8, int, uint64, uint32, float32:
		return val
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case []byte:
		if utf8.Valid(val) {
			return string(val)
		}
		return base64.StdEncoding.EncodeToString(val)
	default:
		// Unsupported driver type: degrade to a string representation
		// rather than failing the whole response.
		return fmt.Sprintf("%v", val)
	}
}
