package registry

import (
	"io/fs"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/vethome-platform/migrations"
)

// tableColumns collects the column names of table across every up migration.
func tableColumns(t *testing.T, table string) map[string]bool {
	t.Helper()
	ups, err := fs.Glob(migrations.FS, "*.up.sql")
	require.NoError(t, err)

	cols := map[string]bool{}
	create := regexp.MustCompile(`(?s)CREATE TABLE IF NOT EXISTS ` + table + ` \((.*?)\n\);`)
	alter := regexp.MustCompile(`ALTER TABLE ` + table + ` ADD COLUMN (?:IF NOT EXISTS )?(\w+)`)
	for _, up := range ups {
		body, err := fs.ReadFile(migrations.FS, up)
		require.NoError(t, err)
		if m := create.FindStringSubmatch(string(body)); m != nil {
			for _, line := range strings.Split(m[1], "\n") {
				fields := strings.Fields(line)
				if len(fields) > 0 {
					cols[fields[0]] = true
				}
			}
		}
		for _, m := range alter.FindAllStringSubmatch(string(body), -1) {
			cols[m[1]] = true
		}
	}
	require.NotEmpty(t, cols, "table %s not found in migrations", table)
	return cols
}

func queryColumns(query string) []string {
	q := strings.Join(strings.Fields(query), " ")
	var out []string
	if m := regexp.MustCompile(`SELECT (.*?) FROM`).FindStringSubmatch(q); m != nil {
		out = append(out, strings.Split(m[1], ",")...)
	}
	if m := regexp.MustCompile(`INSERT INTO \w+ \((.*?)\)`).FindStringSubmatch(q); m != nil {
		out = append(out, strings.Split(m[1], ",")...)
	}
	if m := regexp.MustCompile(`ORDER BY (.*)$`).FindStringSubmatch(q); m != nil {
		for _, term := range strings.Split(m[1], ",") {
			out = append(out, strings.Fields(term)[0])
		}
	}
	for i := range out {
		out[i] = strings.TrimSpace(out[i])
	}
	return out
}

func TestMedicalEntryQueriesMatchSchema(t *testing.T) {
	cols := tableColumns(t, "medical_entries")

	for name, query := range map[string]string{
		"insert":  insertMedicalEntrySQL,
		"history": selectHistorySQL,
	} {
		used := queryColumns(query)
		require.NotEmpty(t, used, name)
		for _, col := range used {
			assert.True(t, cols[col], "%s query uses %q which medical_entries does not define", name, col)
		}
	}
}
