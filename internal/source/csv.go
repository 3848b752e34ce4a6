package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/JonMunkholm/rostersync/internal/roster"
)

// ctxCheckEvery is how many records are read between cancellation checks.
const ctxCheckEvery = 1000

// sniffSize is how much of the decoded input is inspected to pick a delimiter.
const sniffSize = 4096

// CSVFile is a roster snapshot exported as delimited text.
type CSVFile struct {
	Path     string
	Encoding string
	Comma    rune
}

// Location implements roster.SnapshotSource.
func (c *CSVFile) Location() string { return c.Path }

// Open implements roster.SnapshotSource. The file is decoded and parsed as a
// stream; only the resulting rows are held in memory.
func (c *CSVFile) Open(ctx context.Context) (*roster.Snapshot, error) {
	f, err := os.Open(c.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return c.parse(ctx, f)
}

func (c *CSVFile) parse(ctx context.Context, r io.Reader) (*roster.Snapshot, error) {
	dec, err := decoderFor(c.Encoding)
	if err != nil {
		return nil, err
	}

	br := bufio.NewReaderSize(transform.NewReader(r, dec), sniffSize)
	comma := c.Comma
	if comma == 0 {
		comma = sniffDelimiter(br)
	}

	cr := csv.NewReader(br)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	b := newSnapshotBuilder(filepath.Base(c.Path))
	for n := 0; ; n++ {
		if n%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", filepath.Base(c.Path), err)
		}
		line, _ := cr.FieldPos(0)
		b.add(line, record)
	}
	return b.finish(), nil
}

// decoderFor returns the charset decoder for name. The UTF-8 decoder strips a
// leading BOM and replaces invalid byte sequences with U+FFFD.
func decoderFor(name string) (*encoding.Decoder, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return unicode.UTF8BOM.NewDecoder(), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder(), nil
	case "iso-8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1.NewDecoder(), nil
	default:
		return nil, fmt.Errorf("unsupported CSV encoding %q", name)
	}
}

// sniffDelimiter picks ';' when the first non-empty line has more semicolons
// than commas (the usual Excel export in Spanish locales), ',' otherwise.
func sniffDelimiter(br *bufio.Reader) rune {
	head, _ := br.Peek(sniffSize)
	for _, line := range bytes.Split(head, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
			return ';'
		}
		return ','
	}
	return ','
}
