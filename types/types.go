// Package types holds the request-scoped entities shared by the
// introspection, execution, and presentation layers. Nothing here is
// ever persisted.
package types

// TableMetadata describes one table or view as seen in the catalog.
type TableMetadata struct {
	Name        string  `json:"table_name"`
	Type        string  `json:"table_type"`
	SizeBytes   int64   `json:"size_bytes"`
	ColumnCount int     `json:"column_count"`
	Comment     *string `json:"table_comment"`
}

// ColumnMetadata describes one column in declared order.
type ColumnMetadata struct {
	Name         string  `json:"column_name"`
	DataType     string  `json:"data_type"`
	Nullable     bool    `json:"is_nullable"`
	IsPrimaryKey bool    `json:"is_primary_key"`
	IsForeignKey bool    `json:"is_foreign_key"`
	Comment      *string `json:"column_comment"`
}

// IndexMetadata describes one index. Columns are in index key order.
type IndexMetadata struct {
	Name      string   `json:"index_name"`
	Columns   []string `json:"columns"`
	IsUnique  bool     `json:"is_unique"`
	IsPrimary bool     `json:"is_primary"`
}

// TableSchema is the full schema of a single table.
type TableSchema struct {
	TableName    string           `json:"table_name"`
	TableComment *string          `json:"table_comment"`
	ColumnCount  int              `json:"column_count"`
	Columns      []ColumnMetadata `json:"columns"`
	Indexes      []IndexMetadata  `json:"indexes"`
}

// PaginationInfo carries 1-based page math for list endpoints.
type PaginationInfo struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

// NewPaginationInfo computes TotalPages as ceil(totalCount / pageSize).
func NewPaginationInfo(page, pageSize, totalCount int) PaginationInfo {
	return PaginationInfo{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: totalCount,
		TotalPages: (totalCount + pageSize - 1) / pageSize,
	}
}

// Offset returns the SQL OFFSET for this page.
func (p PaginationInfo) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// QueryResult is the positional result of an executed query. Duplicate
// column names are allowed, as SQL permits them in a select list.
type QueryResult struct {
	Columns  []string `json:"columns"`
	Rows     [][]any  `json:"rows"`
	RowCount int      `json:"row_count"`
}
