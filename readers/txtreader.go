package readers

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

type TxtFileReader struct{}

var plainTextExts = map[string]struct{}{
	".txt":  {},
	".md":   {},
	".csv":  {},
	".json": {},
	".log":  {},
}

func (r *TxtFileReader) CanRead(path string) bool {
	_, ok := plainTextExts[strings.ToLower(filepath.Ext(path))]
	return ok
}

func (r *TxtFileReader) ReadText(path string) (string, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading text file: %w", err)
	}

	return r.ReadBytes(path, buf)
}

func (r *TxtFileReader) ReadBytes(name string, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("text file %s is not valid UTF-8", name)
	}

	return string(data), nil
}
