package utils

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"io"
	"os"
	"strings"

	"gohan/variantstore/models"

	"github.com/pkg/errors"
)

// VariantReader hands out the variants of one input file in order
type VariantReader interface {
	// Samples lists the sample names of the file, in file order
	Samples() []string
	// Read returns at most n variants, io.EOF once the input is exhausted
	Read(n int) ([]*models.Variant, error)
	Close() error
}

// OpenVariantReader picks the reader from the file extension
func OpenVariantReader(path string, includeSrc bool) (VariantReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	var r io.Reader = f
	closers := []io.Closer{f}
	name := strings.ToLower(path)
	if strings.HasSuffix(name, ".gz") {
		gr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "opening %s", path)
		}
		r = gr
		closers = append([]io.Closer{gr}, closers...)
		name = strings.TrimSuffix(name, ".gz")
	}

	var reader VariantReader
	switch {
	case strings.HasSuffix(name, ".vcf"):
		reader, err = NewVcfReader(r, includeSrc)
	case strings.HasSuffix(name, ".json"), strings.HasSuffix(name, ".jsonl"):
		reader, err = NewJsonReader(r)
	default:
		err = errors.Errorf("unsupported input format %s", path)
	}
	if err != nil {
		for _, c := range closers {
			c.Close()
		}
		return nil, err
	}
	return &closingReader{VariantReader: reader, closers: closers}, nil
}

type closingReader struct {
	VariantReader
	closers []io.Closer
}

func (c *closingReader) Close() error {
	err := c.VariantReader.Close()
	for _, cl := range c.closers {
		if cerr := cl.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// JsonReader reads one normalized variant per line
type JsonReader struct {
	scanner *bufio.Scanner
	peeked  *models.Variant
	line    int
}

func NewJsonReader(r io.Reader) (*JsonReader, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
	j := &JsonReader{scanner: scanner}
	v, err := j.next()
	if err != nil && err != io.EOF {
		return nil, err
	}
	j.peeked = v
	return j, nil
}

// Samples are taken from the first variant of the file
func (j *JsonReader) Samples() []string {
	if j.peeked == nil || len(j.peeked.Studies) == 0 {
		return nil
	}
	return j.peeked.Studies[0].Samples
}

func (j *JsonReader) Read(n int) ([]*models.Variant, error) {
	var out []*models.Variant
	if j.peeked != nil {
		out = append(out, j.peeked)
		j.peeked = nil
	}
	for len(out) < n {
		v, err := j.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, io.EOF
	}
	return out, nil
}

func (j *JsonReader) next() (*models.Variant, error) {
	for j.scanner.Scan() {
		j.line++
		line := strings.TrimSpace(j.scanner.Text())
		if line == "" {
			continue
		}
		v := &models.Variant{}
		if err := json.Unmarshal([]byte(line), v); err != nil {
			return nil, errors.Wrapf(err, "line %d", j.line)
		}
		v.Normalize()
		return v, nil
	}
	if err := j.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (j *JsonReader) Close() error {
	return nil
}
