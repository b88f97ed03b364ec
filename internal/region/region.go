// Package region loads the region key table and resolves geographic codes to
// region keys.
package region

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/morikuni/failure/v2"
)

// ErrorCode identifies region table failures.
type ErrorCode string

const (
	ErrInvalidRegionTable ErrorCode = "InvalidRegionTable"
	ErrUnmappedRegionCode ErrorCode = "UnmappedRegionCode"
)

func (c ErrorCode) ErrorCode() string {
	return string(c)
}

// euroSuffix marks the key the EU pseudo-code resolves to.
const euroSuffix = "eur"

// Entry is one `key: value` line of the table.
type Entry struct {
	Key   string
	Value string
}

// Table is the parsed region key table in file order.
type Table struct {
	Entries []Entry
}

// Load reads the table at path.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, failure.Translate(err, ErrInvalidRegionTable,
			failure.Message("cannot open region table"),
			failure.Context{"path": path})
	}
	defer f.Close()

	t, err := Parse(f)
	if err != nil {
		return nil, failure.Wrap(err, failure.Context{"path": path})
	}
	return t, nil
}

// Parse reads `key: value` lines. Blank lines and lines starting with '#'
// are ignored.
func Parse(r io.Reader) (*Table, error) {
	t := &Table{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, failure.New(ErrInvalidRegionTable,
				failure.Message("expected `key: value`"),
				failure.Context{"line": fmt.Sprint(lineNo), "text": line})
		}
		t.Entries = append(t.Entries, Entry{Key: key, Value: strings.TrimSpace(value)})
	}
	if err := scanner.Err(); err != nil {
		return nil, failure.Translate(err, ErrInvalidRegionTable)
	}
	return t, nil
}

// Resolver maps two-letter codes to region keys. It is read-only after
// construction and safe for concurrent use.
type Resolver struct {
	byCode map[string]string
}

// NewResolver builds the reverse mapping from t. For keys of the form
// `<prefix>-<cc>` the upper-cased two-letter suffix maps to the key, last
// entry wins. The EU pseudo-code maps to the last key ending in `-eur`.
func NewResolver(t *Table) *Resolver {
	byCode := make(map[string]string)
	euKey := ""
	for _, e := range t.Entries {
		i := strings.LastIndex(e.Key, "-")
		if i < 0 {
			continue
		}
		suffix := strings.ToLower(e.Key[i+1:])
		if suffix == euroSuffix {
			euKey = e.Key
		}
		if len(suffix) == 2 {
			byCode[strings.ToUpper(suffix)] = e.Key
		}
	}
	if euKey != "" {
		byCode["EU"] = euKey
	}
	return &Resolver{byCode: byCode}
}

// Resolve returns the region key for code. An unknown code yields an
// ErrUnmappedRegionCode error; the caller decides whether to drop the mirror.
func (r *Resolver) Resolve(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	key, ok := r.byCode[code]
	if !ok {
		return "", failure.New(ErrUnmappedRegionCode,
			failure.Message("no region key for geographic code"),
			failure.Context{"code": code})
	}
	return key, nil
}

// Len reports how many codes are mapped.
func (r *Resolver) Len() int {
	return len(r.byCode)
}
