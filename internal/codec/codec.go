// Package codec converts commit records to and from the textual forms shared by every
// report sink. It owns the escaping contract: whatever Sanitize returns can be framed as a
// quoted CSV field or bound as an SQL parameter without corrupting its neighbours.
package codec

import (
	"fmt"
	"strings"

	"github.com/naka-gawa/github-gitlog/internal/domain"
)

// Columns is the fixed column order of every report.
var Columns = []string{"Repository", "Hash", "Committer", "Email", "Date", "Comments"}

const rowSeparator = `","`

var blacklist = strings.NewReplacer(
	"=", "",
	";", "",
	":", "",
	"`", "",
	`"`, "",
	"“", "",
	"”", "",
	"&", "",
	"\t", "",
	`\`, "",
	"[", "",
	"]", "",
	"{", "",
	"}", "",
	"(", "",
	")", "",
	"%", "",
	"$", "",
)

// Sanitize strips characters that would break row framing and escapes single quotes.
// Backslashes are removed before quotes are escaped, so every backslash in the result
// belongs to an escape.
func Sanitize(field string) string {
	return strings.ReplaceAll(blacklist.Replace(field), "'", `\'`)
}

// Header returns the CSV header line, without a trailing newline.
func Header() string {
	return strings.Join(Columns, ",")
}

// EncodeRow renders a record as one quoted, comma separated line without a trailing newline.
func EncodeRow(r domain.CommitRecord) string {
	return `"` + strings.Join(r.Fields(), rowSeparator) + `"`
}

// DecodeRow is the inverse of EncodeRow.
func DecodeRow(line string) (domain.CommitRecord, error) {
	if len(line) < 2 || !strings.HasPrefix(line, `"`) || !strings.HasSuffix(line, `"`) {
		return domain.CommitRecord{}, fmt.Errorf("row is not quoted: %q", line)
	}
	fields := strings.Split(line[1:len(line)-1], rowSeparator)
	if len(fields) != len(Columns) {
		return domain.CommitRecord{}, fmt.Errorf("row has %d fields, want %d", len(fields), len(Columns))
	}
	return domain.CommitRecord{
		Repository: fields[0],
		Hash:       fields[1],
		Committer:  fields[2],
		Email:      fields[3],
		Date:       fields[4],
		Comments:   fields[5],
	}, nil
}

// Args returns the bind values for a parameterized insert, in column order.
func Args(r domain.CommitRecord) []any {
	fields := r.Fields()
	args := make([]any, len(fields))
	for i, f := range fields {
		args[i] = f
	}
	return args
}
