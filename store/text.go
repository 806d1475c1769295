// Package store persists review records. The canonical format is one
// "helpful total stars" line per review, in crawl order.
package store

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

// FormatError reports a stored line that is not a valid record.
type FormatError struct {
	Line int
	Text string
	Err  error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("line %d %q: %v", e.Line, e.Text, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// Write serialises reviews to w, one line per review.
func Write(w io.Writer, reviews []models.Review) error {
	bw := bufio.NewWriter(w)
	for _, review := range reviews {
		if _, err := bw.WriteString(formatLine(review)); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush records: %w", err)
	}
	return nil
}

// Read parses records written by Write. The first malformed line aborts
// the read.
func Read(r io.Reader) ([]models.Review, error) {
	var reviews []models.Review
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		review, err := parseLine(scanner.Text())
		if err != nil {
			return nil, &FormatError{Line: line, Text: scanner.Text(), Err: err}
		}
		reviews = append(reviews, review)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan records: %w", err)
	}
	return reviews, nil
}

// WriteFile writes reviews to filename, creating parent directories.
func WriteFile(filename string, reviews []models.Review) error {
	if err := ensureDir(filename); err != nil {
		return err
	}
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create record file: %w", err)
	}
	if err := Write(f, reviews); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadFile reads the records stored in filename.
func ReadFile(filename string) ([]models.Review, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open record file: %w", err)
	}
	defer f.Close()

	reviews, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return reviews, nil
}

func formatLine(review models.Review) string {
	return fmt.Sprintf("%d %d %d\n", review.Helpfulness.Helpful, review.Helpfulness.Total, int(review.Stars))
}

func parseLine(text string) (models.Review, error) {
	fields := strings.Fields(text)
	if len(fields) != 3 {
		return models.Review{}, fmt.Errorf("want 3 fields, got %d", len(fields))
	}

	values := make([]int, len(fields))
	for i, field := range fields {
		n, err := strconv.Atoi(field)
		if err != nil {
			return models.Review{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		if n < 0 {
			return models.Review{}, fmt.Errorf("field %d is negative", i+1)
		}
		values[i] = n
	}

	review := models.Review{
		Helpfulness: models.HelpfulnessRating{Helpful: values[0], Total: values[1]},
		Stars:       models.StarRating(values[2]),
	}
	if !review.Helpfulness.Valid() {
		return models.Review{}, fmt.Errorf("helpful count %d exceeds total %d", values[0], values[1])
	}
	if !review.Stars.Valid() {
		return models.Review{}, fmt.Errorf("star rating %d out of range", values[2])
	}
	return review, nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
