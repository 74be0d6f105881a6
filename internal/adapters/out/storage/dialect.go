package storage

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

type dialect string

const (
	dialectSQLite   dialect = "sqlite3"
	dialectPostgres dialect = "postgres"
)

func parseDialect(driver string) (dialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return dialectSQLite, nil
	case "postgres", "postgresql", "pq":
		return dialectPostgres, nil
	}
	return "", fmt.Errorf("unsupported storage driver: %s", driver)
}

// rebind заменяет ? на $1..$n для postgres.
func (d dialect) rebind(query string) string {
	if d != dialectPostgres {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// list кодирует список строк: TEXT[] в postgres, JSON-текст в sqlite.
func (d dialect) list(values []string) driver.Valuer {
	if values == nil {
		values = []string{}
	}
	if d == dialectPostgres {
		return pq.Array(values)
	}
	return jsonList(values)
}

type jsonList []string

func (l jsonList) Value() (driver.Value, error) {
	data, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// stringList читает оба представления списка.
type stringList []string

func (l *stringList) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = []string{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported list type %T", src)
	}

	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var values []string
		if err := json.Unmarshal([]byte(trimmed), &values); err != nil {
			return err
		}
		if values == nil {
			values = []string{}
		}
		*l = values
		return nil
	}

	var arr pq.StringArray
	if err := arr.Scan(raw); err != nil {
		return err
	}
	if arr == nil {
		arr = pq.StringArray{}
	}
	*l = []string(arr)
	return nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
