package pipeline

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/hugo-lorenzo-mato/diligence-ai/internal/fsutil"
)

// MediaTypeFor guesses a media type from a file name's extension.
func MediaTypeFor(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".txt", ".md":
		return "text/plain"
	case ".pdf":
		return "application/pdf"
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		return mt
	}
	return "application/octet-stream"
}

// ReadUploads reads local files as uploads named after their base name.
func ReadUploads(paths ...string) ([]Upload, error) {
	uploads := make([]Upload, 0, len(paths))
	for _, p := range paths {
		data, err := fsutil.ReadFileScoped(p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		name := filepath.Base(p)
		uploads = append(uploads, Upload{Name: name, MediaType: MediaTypeFor(name), Content: data})
	}
	return uploads, nil
}
