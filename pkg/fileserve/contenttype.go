package fileserve

import (
	"io"
	"mime"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// sniffLen is how many leading bytes are inspected when the extension
// does not name a type.
const sniffLen = 512

// contentType names the media type of path, from its extension when known
// and otherwise from the leading bytes returned by head.
func contentType(path string, head func() []byte) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return mimetype.Detect(head()).String()
}

func sniffViews(views [][]byte) []byte {
	out := make([]byte, 0, sniffLen)
	for _, v := range views {
		if len(out) == sniffLen {
			break
		}
		out = append(out, v[:min(len(v), sniffLen-len(out))]...)
	}
	return out
}

func sniffFile(r io.ReaderAt, size int64) []byte {
	buf := make([]byte, min(size, sniffLen))
	n, _ := r.ReadAt(buf, 0)
	return buf[:n]
}
