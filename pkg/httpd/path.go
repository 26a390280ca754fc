package httpd

import (
	"path"
	"path/filepath"
	"strings"
)

// resolvePath maps a request path onto an absolute path under root. The
// request path is cleaned first, so ".." segments can never climb above
// root. It reports false for paths that cannot name a file.
func resolvePath(root, requestPath string) (string, bool) {
	if !strings.HasPrefix(requestPath, "/") || strings.IndexByte(requestPath, 0) >= 0 {
		return "", false
	}
	clean := path.Clean(requestPath)
	return filepath.Join(root, filepath.FromSlash(clean)), true
}
