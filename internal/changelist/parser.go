// Package changelist parses FTC change-list files and applies them to the
// registry in batches.
package changelist

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/sells-group/dnc-scrub/internal/phone"
)

// Record is one accepted change-list line.
type Record struct {
	Phone    string `json:"phone"`
	AreaCode string `json:"area_code"`
}

// lineBufferSize bounds a single line. Longer lines cannot hold a phone
// record and are skipped.
const lineBufferSize = 64 * 1024

// Parse reads a line-oriented change list. Each line is a bare phone number
// or a CSV row whose first field is the phone. Lines that do not yield a
// ten-digit key, or whose area code is not in allow, are dropped. An empty
// allow list accepts every area code. Order and duplicates are preserved.
// UTF-8 and UTF-16 byte order marks are honoured.
func Parse(r io.Reader, allow []string) ([]Record, error) {
	allowed := make(map[string]bool, len(allow))
	for _, ac := range allow {
		if ac = strings.TrimSpace(ac); ac != "" {
			allowed[ac] = true
		}
	}

	dec := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	br := bufio.NewReaderSize(dec, lineBufferSize)

	var out []Record
	for {
		line, err := br.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			err = skipLine(br)
		} else if rec, ok := parseLine(string(line), allowed); ok {
			out = append(out, rec)
		}
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, eris.Wrap(err, "changelist: read")
		}
	}
}

// skipLine discards input up to and including the next newline.
func skipLine(br *bufio.Reader) error {
	for {
		_, err := br.ReadSlice('\n')
		if !errors.Is(err, bufio.ErrBufferFull) {
			return err
		}
	}
}

// ParseString parses change-list text already in memory.
func ParseString(s string, allow []string) []Record {
	out, _ := Parse(strings.NewReader(s), allow)
	return out
}

func parseLine(line string, allowed map[string]bool) (Record, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Record{}, false
	}
	if i := strings.IndexByte(line, ','); i >= 0 {
		line = line[:i]
	}

	key := phone.Normalize(line)
	if !phone.IsValid(key) {
		return Record{}, false
	}

	ac := phone.AreaCode(key)
	if len(allowed) > 0 && !allowed[ac] {
		return Record{}, false
	}
	return Record{Phone: key, AreaCode: ac}, true
}

// Batches splits records into consecutive slices of at most size records.
func Batches(records []Record, size int) [][]Record {
	if size <= 0 {
		size = len(records)
	}
	var out [][]Record
	for lo := 0; lo < len(records); lo += size {
		out = append(out, records[lo:min(lo+size, len(records))])
	}
	return out
}
