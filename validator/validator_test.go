package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate_ForbiddenKeywords(t *testing.T) {
	v := New()

	tests := []struct {
		name   string
		query  string
		reason string
	}{
		{
			name:   "delete statement",
			query:  "DELETE FROM users",
			reason: "not a read query",
		},
		{
			name:   "insert statement",
			query:  "INSERT INTO users VALUES (1)",
			reason: "not a read query",
		},
		{
			name:   "delete inside select",
			query:  "SELECT * FROM users WHERE action = delete",
			reason: "Query contains forbidden keyword: delete",
		},
		{
			name:   "lowercase drop in subexpression",
			query:  "select 1 where exists (drop table users)",
			reason: "Query contains forbidden keyword: drop",
		},
		{
			name:   "update in cte body",
			query:  "WITH x AS (UPDATE t SET a = 1 RETURNING *) SELECT * FROM x",
			reason: "Query contains forbidden keyword: update",
		},
		{
			name:   "truncate",
			query:  "select truncate from t",
			reason: "Query contains forbidden keyword: truncate",
		},
		{
			name:   "grant",
			query:  "select * from t where grant = 1",
			reason: "Query contains forbidden keyword: grant",
		},
		{
			name:   "revoke",
			query:  "select revoke",
			reason: "Query contains forbidden keyword: revoke",
		},
		{
			name:   "alter",
			query:  "select * from t; alter table t add column x int",
			reason: "multiple statements are not allowed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Validate(tt.query)
			assert.False(t, got.Allowed)
			assert.Equal(t, tt.reason, got.Reason)
		})
	}
}

func TestValidate_KeywordInsideIdentifierIsAllowed(t *testing.T) {
	v := New()

	queries := []string{
		"SELECT created_at FROM t",
		"SELECT updated_at, deleted_at FROM audit_log",
		"SELECT dropped_count FROM stats",
		"select is_granted, revoked_by from permissions",
		"SELECT * FROM inserts_by_day",
		"SELECT alteration FROM tailor_orders",
	}

	for _, q := range queries {
		verdict := v.Validate(q)
		assert.True(t, verdict.Allowed, "query should be accepted: %s", q)
	}
}

func TestValidate_KeywordInsideStringLiteralIsAllowed(t *testing.T) {
	v := New()

	queries := []string{
		"SELECT * FROM log WHERE message = 'DROP TABLE users'",
		"SELECT 'insert into t' AS hint",
		"SELECT * FROM t WHERE note = $$delete everything$$",
		"SELECT * FROM t -- drop table t\nWHERE id = 1",
		"SELECT /* update later */ id FROM t",
	}

	for _, q := range queries {
		verdict := v.Validate(q)
		assert.True(t, verdict.Allowed, "query should be accepted: %s", q)
	}
}

func TestValidate_StatementHead(t *testing.T) {
	v := New()

	tests := []struct {
		name    string
		query   string
		allowed bool
	}{
		{"plain select", "SELECT 1", true},
		{"select with leading whitespace", "   \n\tSELECT 1", true},
		{"select behind leading comment", "-- report\nSELECT 1", true},
		{"select behind block comment", "/* x */ SELECT 1", true},
		{"cte", "WITH t AS (SELECT 1) SELECT * FROM t", true},
		{"lowercase with", "with t as (select 1) select * from t", true},
		{"explain", "EXPLAIN SELECT 1", false},
		{"show", "SHOW server_version", false},
		{"vacuum", "VACUUM", false},
		{"copy", "COPY t TO stdout", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Validate(tt.query)
			assert.Equal(t, tt.allowed, got.Allowed)
			if !tt.allowed {
				assert.Equal(t, "not a read query", got.Reason)
			}
		})
	}
}

func TestValidate_MultipleStatements(t *testing.T) {
	v := New()

	got := v.Validate("SELECT 1; SELECT 2")
	assert.False(t, got.Allowed)
	assert.Equal(t, "multiple statements are not allowed", got.Reason)

	// A trailing semicolon alone is not a second statement.
	got = v.Validate("SELECT 1;")
	assert.True(t, got.Allowed)

	// Semicolon hidden in a literal is not a statement separator.
	got = v.Validate("SELECT * FROM t WHERE s = 'a;b'")
	assert.True(t, got.Allowed)
}

func TestValidate_EmptyInput(t *testing.T) {
	v := New()

	for _, q := range []string{"", "   ", "\n\t", "-- just a comment"} {
		got := v.Validate(q)
		assert.False(t, got.Allowed, "input %q", q)
		assert.Equal(t, "empty query", got.Reason)
	}
}

func TestValidate_ExtraKeywords(t *testing.T) {
	v := New("MERGE")

	got := v.Validate("SELECT * FROM t WHERE op = merge")
	assert.False(t, got.Allowed)
	assert.Equal(t, "Query contains forbidden keyword: merge", got.Reason)

	// Substring of an identifier still passes.
	got = v.Validate("SELECT merged_at FROM t")
	assert.True(t, got.Allowed)
}

func TestValidate_FirstOffenderOnly(t *testing.T) {
	v := New()

	got := v.Validate("select * from t where a = insert and b = update")
	assert.False(t, got.Allowed)
	assert.Equal(t, "Query contains forbidden keyword: insert", got.Reason)
}
