package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/deusflow/newswire/internal/news"
)

// Column names of the persisted collection.
const (
	ColTitle     = "title"
	ColURL       = "url"
	ColSummary   = "summary"
	ColFullText  = "full_text"
	ColPublished = "publishedAt"
	ColSource    = "source"
	ColDelivered = "delivered"

	// legacyDelivered is the flag column written by older exports.
	legacyDelivered = "sent_to_telegram"
)

var standardColumns = []string{ColTitle, ColURL, ColSummary, ColFullText, ColPublished, ColSource, ColDelivered}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVBackend stores records in a UTF-8 CSV file with a byte order mark.
type CSVBackend struct {
	path      string
	backupDir string
	logger    *slog.Logger
}

// NewCSVBackend stores records at path. When backupDir is set, every save is
// mirrored into it; mirror failures are logged only.
func NewCSVBackend(path, backupDir string, logger *slog.Logger) *CSVBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVBackend{path: path, backupDir: backupDir, logger: logger}
}

func (b *CSVBackend) Path() string { return b.path }

func (b *CSVBackend) Load(ctx context.Context) ([]news.Record, error) {
	f, err := os.Open(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", b.path, err)
	}
	defer f.Close()

	records, err := readCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", b.path, err)
	}
	return records, nil
}

func (b *CSVBackend) Save(ctx context.Context, records []news.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := writeCSV(tmp, records); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		return fmt.Errorf("replace %s: %w", b.path, err)
	}

	b.mirror()
	return nil
}

func (b *CSVBackend) Close() error { return nil }

// mirror copies the store file into the backup folder.
func (b *CSVBackend) mirror() {
	if b.backupDir == "" {
		return
	}
	dst := filepath.Join(b.backupDir, filepath.Base(b.path))
	if sameFile(b.path, dst) {
		return
	}
	if err := copyFile(b.path, dst); err != nil {
		b.logger.Warn("backup mirror failed", "path", dst, "error", err)
		return
	}
	b.logger.Debug("backup mirror updated", "path", dst)
}

func readCSV(r io.Reader) ([]news.Record, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}

	var records []news.Record
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		records = append(records, decodeRow(header, row))
	}
	return records, nil
}

func decodeRow(header, row []string) news.Record {
	var (
		rec       news.Record
		published string
		hasFlag   bool
	)
	for i, name := range header {
		value := ""
		if i < len(row) {
			value = row[i]
		}
		switch name {
		case ColTitle:
			rec.Title = value
		case ColURL:
			rec.URL = value
		case ColSummary:
			rec.Summary = value
		case ColFullText:
			rec.FullText = value
		case ColPublished:
			published = value
		case ColSource:
			rec.Source = value
		case ColDelivered:
			rec.Delivered = parseFlag(value)
			hasFlag = true
		case legacyDelivered:
			if !hasFlag {
				rec.Delivered = parseFlag(value)
			}
		default:
			rec.Extra = append(rec.Extra, news.Field{Name: name, Value: value})
		}
	}
	rec.SetPublished(published)
	return rec
}

// parseFlag accepts the boolean spellings found in older exports.
func parseFlag(s string) bool {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseBool(s); err == nil {
		return v
	}
	switch strings.ToLower(s) {
	case "yes", "y":
		return true
	}
	return false
}

func writeCSV(w io.Writer, records []news.Record) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return err
	}

	header := append([]string(nil), standardColumns...)
	extraCols := extraColumns(records)
	header = append(header, extraCols...)

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, len(header))
	for _, r := range records {
		row = row[:0]
		row = append(row,
			r.Title,
			r.URL,
			r.Summary,
			r.FullText,
			r.PublishedString(),
			r.Source,
			strconv.FormatBool(r.Delivered),
		)
		for _, name := range extraCols {
			v, _ := r.ExtraValue(name)
			row = append(row, v)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// extraColumns returns passthrough column names in first-seen order.
func extraColumns(records []news.Record) []string {
	var cols []string
	seen := make(map[string]bool)
	for _, r := range records {
		for _, f := range r.Extra {
			if !seen[f.Name] {
				seen[f.Name] = true
				cols = append(cols, f.Name)
			}
		}
	}
	return cols
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func sameFile(a, b string) bool {
	as, err := os.Stat(a)
	if err != nil {
		return false
	}
	bs, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(as, bs)
}
