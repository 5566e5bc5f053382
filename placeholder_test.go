package fbdriver

import (
	"reflect"
	"strings"
	"testing"
)

func TestParsePlaceholders(t *testing.T) {
	p := parsePlaceholders("WHERE FIELD = :field_1\n OR FIELD = :field$2\n OR KEY = :field_1")

	expected := "WHERE FIELD = ?       \n OR FIELD = ?       \n OR KEY = ?       "
	if p.sql != expected {
		t.Errorf("Expected %q, got %q", expected, p.sql)
	}
	if !reflect.DeepEqual(p.names, []string{"field_1", "field$2", "field_1"}) {
		t.Errorf("Unexpected names: %v", p.names)
	}

	values, err := p.prepareParams([]any{Named{"field_1": "a", "field$2": "b"}})
	if err != nil {
		t.Fatalf("prepareParams failed: %v", err)
	}
	if !reflect.DeepEqual(values, []any{"a", "b", "a"}) {
		t.Errorf("Expected [a b a], got %v", values)
	}
}

func TestParsePlaceholdersMasking(t *testing.T) {
	tests := []struct {
		name     string
		sql      string
		expected string
		names    []string
	}{
		{
			name:     "block comment",
			sql:      "SELECT /* :skipped */ a FROM t WHERE b = :b",
			expected: "SELECT /* :skipped */ a FROM t WHERE b = ? ",
			names:    []string{"b"},
		},
		{
			name:     "line comment",
			sql:      "SELECT a -- :skipped\nFROM t WHERE b = :b",
			expected: "SELECT a -- :skipped\nFROM t WHERE b = ? ",
			names:    []string{"b"},
		},
		{
			name:     "multi-line block comment",
			sql:      "SELECT a FROM t /* first :x\n second :y */ WHERE c = :cc",
			expected: "SELECT a FROM t /* first :x\n second :y */ WHERE c = ?  ",
			names:    []string{"cc"},
		},
		{
			name: "execute block",
			sql: "EXECUTE BLOCK (x INTEGER = :x) RETURNS (y INTEGER) AS\n" +
				"BEGIN\n  y = :x + 1;\n  IF (y > 0) THEN BEGIN y = :y; END\n  SUSPEND;\nEND",
			expected: "EXECUTE BLOCK (x INTEGER = ? ) RETURNS (y INTEGER) AS\n" +
				"BEGIN\n  y = :x + 1;\n  IF (y > 0) THEN BEGIN y = :y; END\n  SUSPEND;\nEND",
			names: []string{"x"},
		},
		{
			name:     "no placeholders",
			sql:      "SELECT 1 FROM RDB$DATABASE",
			expected: "SELECT 1 FROM RDB$DATABASE",
			names:    nil,
		},
		{
			name:     "marker lookalike in text",
			sql:      "SELECT '\x000\x00' FROM t /* c */ WHERE a = :a",
			expected: "SELECT '\x000\x00' FROM t /* c */ WHERE a = ? ",
			names:    []string{"a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := parsePlaceholders(tt.sql)
			if p.sql != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, p.sql)
			}
			if len(p.sql) != len(tt.sql) {
				t.Errorf("Rewrite changed the length from %d to %d", len(tt.sql), len(p.sql))
			}
			if !reflect.DeepEqual(p.names, tt.names) {
				t.Errorf("Expected names %v, got %v", tt.names, p.names)
			}
		})
	}
}

func TestPrepareParamsPositional(t *testing.T) {
	p := parsePlaceholders("INSERT INTO t VALUES (:a, :b)")

	args := []any{1, "two"}
	values, err := p.prepareParams(args)
	if err != nil {
		t.Fatalf("prepareParams failed: %v", err)
	}
	if !reflect.DeepEqual(values, args) {
		t.Errorf("Expected positional args unchanged, got %v", values)
	}

	values, err = p.prepareParams(nil)
	if err != nil || len(values) != 0 {
		t.Errorf("Expected no values, got %v, %v", values, err)
	}
}

func TestPrepareParamsMissing(t *testing.T) {
	p := parsePlaceholders("UPDATE t SET a = :a WHERE id = :id")

	_, err := p.prepareParams([]any{map[string]any{"a": 1}})
	if !IsParameterValueMissing(err) {
		t.Fatalf("Expected ParameterValueMissing, got %v", err)
	}
	if !strings.Contains(err.Error(), `"id"`) || !strings.Contains(err.Error(), p.sql) {
		t.Errorf("Expected error to name the placeholder and the SQL, got %q", err.Error())
	}
}
