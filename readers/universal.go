package readers

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"code.sajari.com/docconv/v2"
)

// UniversalFileReader extracts text from office and markup formats.
type UniversalFileReader struct {
}

var universalExts = map[string]struct{}{
	".docx": {},
	".odt":  {},
	".pdf":  {},
	".xml":  {},
	".html": {},
	".htm":  {},
	".rtf":  {},
	".pptx": {},
	".xlsx": {},
}

func (r *UniversalFileReader) CanRead(path string) bool {
	_, ok := universalExts[strings.ToLower(filepath.Ext(path))]
	return ok
}

func (r *UniversalFileReader) ReadText(path string) (string, error) {
	res, err := docconv.ConvertPath(path)
	if err != nil {
		return "", fmt.Errorf("failed to read document: %w", err)
	}

	return res.Body, nil
}

func (r *UniversalFileReader) ReadBytes(name string, data []byte) (string, error) {
	mime := docconv.MimeTypeByExtension(strings.ToLower(name))
	res, err := docconv.Convert(bytes.NewReader(data), mime, true)
	if err != nil {
		return "", fmt.Errorf("failed to read document %s: %w", name, err)
	}

	return res.Body, nil
}
