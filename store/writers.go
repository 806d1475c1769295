package store

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(reviews []models.Review) error
	Close() error
	Validate() error
}

// NewWriter returns the writer for format: text, csv, or json.
func NewWriter(format, filename string) (OutputWriter, error) {
	switch format {
	case "text", "":
		return NewTextWriter(filename)
	case "csv":
		return NewCSVWriter(filename)
	case "json":
		return NewJSONWriter(filename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// countingFile tracks how many bytes went to the underlying file so
// Validate can compare it with what landed on disk.
type countingFile struct {
	file    *os.File
	written int64
}

func createCountingFile(filename, kind string) (*countingFile, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create %s file: %w", kind, err)
	}
	return &countingFile{file: f}, nil
}

func (cf *countingFile) Write(p []byte) (int, error) {
	n, err := cf.file.Write(p)
	cf.written += int64(n)
	return n, err
}

func (cf *countingFile) validate(kind string) error {
	info, err := os.Stat(cf.file.Name())
	if err != nil {
		return fmt.Errorf("stat %s file: %w", kind, err)
	}
	if info.Size() != cf.written {
		return fmt.Errorf("%s file holds %d bytes, wrote %d", kind, info.Size(), cf.written)
	}
	return nil
}

// TextWriter appends records in the line format read back by Read.
type TextWriter struct {
	out *countingFile
	mu  sync.Mutex
}

// NewTextWriter creates filename and its parent directories.
func NewTextWriter(filename string) (*TextWriter, error) {
	out, err := createCountingFile(filename, "text")
	if err != nil {
		return nil, err
	}
	return &TextWriter{out: out}, nil
}

// Write appends reviews to the file.
func (tw *TextWriter) Write(reviews []models.Review) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return Write(tw.out, reviews)
}

// Close closes the file handle.
func (tw *TextWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.out.file.Close()
}

// Validate ensures every written byte reached the file. An empty crawl
// produces an empty file.
func (tw *TextWriter) Validate() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.out.validate("text")
}

// CSVWriter writes records to CSV.
type CSVWriter struct {
	out    *countingFile
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter initialises a CSV writer and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	out, err := createCountingFile(filename, "csv")
	if err != nil {
		return nil, err
	}

	writer := csv.NewWriter(out)
	header := []string{"helpful_count", "total_count", "star_rating"}
	if err := writer.Write(header); err != nil {
		out.file.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		out.file.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{
		out:    out,
		writer: writer,
	}, nil
}

// Write appends reviews to the CSV output.
func (cw *CSVWriter) Write(reviews []models.Review) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, review := range reviews {
		record := []string{
			strconv.Itoa(review.Helpfulness.Helpful),
			strconv.Itoa(review.Helpfulness.Total),
			strconv.Itoa(int(review.Stars)),
		}
		if err := cw.writer.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.out.file.Close()
}

// Validate ensures the header and every record reached the file.
func (cw *CSVWriter) Validate() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.out.validate("csv")
}

// JSONWriter writes newline-delimited JSON records.
type JSONWriter struct {
	out     *countingFile
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter initialises the JSON writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	out, err := createCountingFile(filename, "json")
	if err != nil {
		return nil, err
	}

	buffer := bufio.NewWriter(out)
	return &JSONWriter{
		out:     out,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

// Write appends reviews in JSONL format.
func (jw *JSONWriter) Write(reviews []models.Review) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, review := range reviews {
		if err := jw.encoder.Encode(review); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}

	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.out.file.Close()
}

// Validate ensures every encoded record reached the file.
func (jw *JSONWriter) Validate() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	return jw.out.validate("json")
}
