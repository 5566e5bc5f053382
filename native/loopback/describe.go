package loopback

import (
	"context"
	"database/sql/driver"
	"regexp"
	"strconv"
	"strings"

	"github.com/tomyedwab/fbdriver/native"
)

// Length of text columns and parameters whose size is not declared.
const maxVaryingLength = 32765

// Bytes per character of the UTF8 connection charset.
const bytesPerChar = 4

type statementKind int

const (
	kindQuery statementKind = iota
	kindModify
	kindSetTransaction
)

var (
	setTransactionPattern = regexp.MustCompile(`(?is)^\s*set\s+transaction\b`)
	readOnlyPattern       = regexp.MustCompile(`(?i)\bread\s+only\b`)
	queryPattern          = regexp.MustCompile(`(?i)^\s*(select|with|values|pragma|explain)\b`)
	targetPattern         = regexp.MustCompile(`(?i)^\s*(?:insert\s+(?:or\s+\w+\s+)?into|replace\s+into|update(?:\s+or\s+\w+)?|delete\s+from)\s+("[^"]+"|\w+)`)
	fromPattern           = regexp.MustCompile(`(?i)\bfrom\s+("[^"]+"|\w+)`)
	insertPattern         = regexp.MustCompile(`(?is)^\s*(?:insert|replace)\b[^(]*\(([^)]*)\)\s*values\s*\((.*)\)`)
	comparedPattern       = regexp.MustCompile(`("[^"]+"|\w+)\s*(?:=|<>|!=|<=|>=|<|>|\blike)\s*$`)
	declTypePattern       = regexp.MustCompile(`^([A-Z ]+?)\s*(?:\(\s*(\d+)\s*(?:,\s*(\d+)\s*)?\))?$`)
)

func classify(sql string) statementKind {
	switch {
	case setTransactionPattern.MatchString(sql):
		return kindSetTransaction
	case queryPattern.MatchString(sql):
		return kindQuery
	}
	return kindModify
}

func unquote(name string) string {
	return strings.Trim(name, `"`)
}

// tableColumn is a row of PRAGMA table_info.
type tableColumn struct {
	CID          int     `db:"cid"`
	Name         string  `db:"name"`
	Type         string  `db:"type"`
	NotNull      bool    `db:"notnull"`
	DefaultValue *string `db:"dflt_value"`
	PK           int     `db:"pk"`
}

// describe prepares sql against SQLite and derives its message layouts.
func (a *attachment) describe(ctx context.Context, sql string) (inputs, outputs []native.Field, err error) {
	conn, err := a.db.Conn(ctx)
	if err != nil {
		return nil, nil, native.Errorf(native.CodeIOError, "I/O error: %v", err)
	}
	defer conn.Close()

	var numInput int
	err = conn.Raw(func(driverConn any) error {
		dc, ok := driverConn.(driver.Conn)
		if !ok {
			return native.Errorf(native.CodeDSQLError, "unsupported SQLite connection")
		}
		st, err := dc.Prepare(sql)
		if err != nil {
			return native.Errorf(native.CodeDSQLError, "Dynamic SQL Error: %v", err)
		}
		defer st.Close()
		numInput = st.NumInput()

		queryer, ok := st.(driver.StmtQueryContext)
		if !ok {
			return nil
		}
		// Querying binds the statement without stepping it, which is enough
		// to read the column names and declared types.
		args := make([]driver.NamedValue, numInput)
		for i := range args {
			args[i] = driver.NamedValue{Ordinal: i + 1}
		}
		rows, err := queryer.QueryContext(ctx, args)
		if err != nil {
			return native.Errorf(native.CodeDSQLError, "Dynamic SQL Error: %v", err)
		}
		defer rows.Close()

		typed, _ := rows.(driver.RowsColumnTypeDatabaseTypeName)
		for i, name := range rows.Columns() {
			declType := ""
			if typed != nil {
				declType = typed.ColumnTypeDatabaseTypeName(i)
			}
			outputs = append(outputs, describeColumn(name, declType))
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	inputs, err = a.inferInputs(ctx, sql, numInput)
	if err != nil {
		return nil, nil, err
	}
	return inputs, outputs, nil
}

// describeColumn maps a declared SQLite column type to a native field.
func describeColumn(name, declType string) native.Field {
	f := native.Field{Name: name, Alias: name, Nullable: true}

	base, length, scale := parseDeclType(declType)
	switch base {
	case "CHAR", "CHARACTER", "NCHAR":
		f.Type = native.SQLText
		f.Length = max(length, 1) * bytesPerChar
	case "VARCHAR", "CHARACTER VARYING", "NVARCHAR", "VARYING CHARACTER":
		f.Type = native.SQLVarying
		f.Length = maxVaryingLength
		if length > 0 {
			f.Length = min(length*bytesPerChar, maxVaryingLength)
		}
	case "SMALLINT":
		f.Type, f.Length = native.SQLShort, 2
	case "INT", "INTEGER":
		f.Type, f.Length = native.SQLLong, 4
	case "BIGINT":
		f.Type, f.Length = native.SQLInt64, 8
	case "NUMERIC", "DECIMAL":
		f.Type, f.Length, f.Scale = native.SQLInt64, 8, -scale
	case "FLOAT":
		f.Type, f.Length = native.SQLFloat, 4
	case "REAL", "DOUBLE", "DOUBLE PRECISION":
		f.Type, f.Length = native.SQLDouble, 8
	case "DATE":
		f.Type, f.Length = native.SQLTypeDate, 4
	case "TIME":
		f.Type, f.Length = native.SQLTypeTime, 4
	case "TIMESTAMP", "DATETIME":
		f.Type, f.Length = native.SQLTimestamp, 8
	case "BOOLEAN":
		f.Type, f.Length = native.SQLBoolean, 1
	case "BLOB":
		f.Type, f.Length = native.SQLBlob, 8
	default:
		f.Type, f.Length = native.SQLVarying, maxVaryingLength
	}
	return f
}

func parseDeclType(declType string) (base string, length, scale int) {
	m := declTypePattern.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(declType)))
	if m == nil {
		return "", 0, 0
	}
	base = strings.Join(strings.Fields(m[1]), " ")
	if m[2] != "" {
		length, _ = strconv.Atoi(m[2])
	}
	if m[3] != "" {
		scale, _ = strconv.Atoi(m[3])
	}
	return base, length, scale
}

// inferInputs types each parameter from the column it is inserted into or
// compared with. Parameters without such a column are variable text.
func (a *attachment) inferInputs(ctx context.Context, sql string, count int) ([]native.Field, error) {
	inputs := make([]native.Field, count)
	for i := range inputs {
		inputs[i] = native.Field{Type: native.SQLVarying, Length: maxVaryingLength, Nullable: true}
	}
	if count == 0 {
		return inputs, nil
	}

	table := ""
	if m := targetPattern.FindStringSubmatch(sql); m != nil {
		table = unquote(m[1])
	} else if m := fromPattern.FindStringSubmatch(sql); m != nil {
		table = unquote(m[1])
	}
	if table == "" {
		return inputs, nil
	}

	var columns []tableColumn
	if err := a.db.SelectContext(ctx, &columns, "SELECT cid, name, type, \"notnull\", dflt_value, pk FROM pragma_table_info(?)", table); err != nil {
		return nil, native.Errorf(native.CodeDSQLError, "Dynamic SQL Error: %v", err)
	}
	if len(columns) == 0 {
		return inputs, nil
	}
	typeOf := func(name string) (native.Field, bool) {
		for _, c := range columns {
			if strings.EqualFold(c.Name, unquote(name)) {
				f := describeColumn("", c.Type)
				f.Name, f.Alias = "", ""
				return f, true
			}
		}
		return native.Field{}, false
	}

	positions := markerPositions(sql)
	if len(positions) != count {
		return inputs, nil
	}

	// INSERT ... (a, b) VALUES (?, ?): parameters standing alone in the
	// values list take the type of their column.
	if m := insertPattern.FindStringSubmatch(sql); m != nil {
		names := splitTopLevel(m[1])
		values := splitTopLevel(m[2])
		if len(names) == len(values) {
			index := 0
			for i, v := range values {
				n := strings.Count(v, "?")
				if strings.TrimSpace(v) == "?" && index < count {
					if f, ok := typeOf(strings.TrimSpace(names[i])); ok {
						inputs[index] = f
					}
				}
				index += n
			}
			return inputs, nil
		}
	}

	for i, pos := range positions {
		m := comparedPattern.FindStringSubmatch(sql[:pos])
		if m == nil {
			continue
		}
		if f, ok := typeOf(m[1]); ok {
			inputs[i] = f
		}
	}
	return inputs, nil
}

// markerPositions returns the byte offsets of '?' markers outside string
// literals and quoted identifiers.
func markerPositions(sql string) []int {
	var positions []int
	var quote byte
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '?':
			positions = append(positions, i)
		}
	}
	return positions
}

// splitTopLevel splits a comma separated list, ignoring commas nested in
// parentheses or string literals.
func splitTopLevel(list string) []string {
	var parts []string
	depth, start := 0, 0
	var quote byte
	for i := 0; i < len(list); i++ {
		c := list[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == ',' && depth == 0:
			parts = append(parts, list[start:i])
			start = i + 1
		}
	}
	return append(parts, list[start:])
}
