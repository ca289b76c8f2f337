package variant

import (
	"bytes"
	"compress/gzip"
	"io"
	"strings"

	"github.com/pkg/errors"
)

var (
	keyEscaper   = strings.NewReplacer("%", "%25", ".", "%2E")
	keyUnescaper = strings.NewReplacer("%2E", ".", "%25", "%")
)

// EscapeKey makes an attribute name safe for stores that split field names on dots
func EscapeKey(key string) string {
	return keyEscaper.Replace(key)
}

func UnescapeKey(key string) string {
	return keyUnescaper.Replace(key)
}

func EscapeAttributes(attrs map[string]string) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[EscapeKey(k)] = v
	}
	return out
}

func UnescapeAttributes(attrs map[string]string) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[UnescapeKey(k)] = v
	}
	return out
}

func EscapeExtraFields(extra map[string][]string) map[string][]string {
	if len(extra) == 0 {
		return nil
	}
	out := make(map[string][]string, len(extra))
	for k, v := range extra {
		out[EscapeKey(k)] = v
	}
	return out
}

func Compress(text string) ([]byte, error) {
	if text == "" {
		return nil, nil
	}
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write([]byte(text)); err != nil {
		return nil, errors.Wrap(err, "compressing src")
	}
	if err := gw.Close(); err != nil {
		return nil, errors.Wrap(err, "compressing src")
	}
	return buf.Bytes(), nil
}

func Decompress(data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return "", errors.Wrap(err, "decompressing src")
	}
	defer gr.Close()
	out, err := io.ReadAll(gr)
	if err != nil {
		return "", errors.Wrap(err, "decompressing src")
	}
	return string(out), nil
}
