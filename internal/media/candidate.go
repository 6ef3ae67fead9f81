package media

import (
	"bytes"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const sniffLen = 512

// Candidate is a file-like blob offered for ingestion. Pickers, pasted paths,
// the inbox watcher and the headless CLI all produce Candidates.
type Candidate interface {
	// Name is the original filename shown to the user.
	Name() string
	// ContentType is the declared MIME type.
	ContentType() string
	// Open returns the blob's bytes.
	Open() (io.ReadCloser, error)
}

// IsImage reports whether a declared content type is admissible.
func IsImage(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/")
}

type fileCandidate struct {
	path        string
	contentType string
}

// FileCandidate wraps a path on disk. The content type comes from the file
// extension, falling back to sniffing the first bytes of the file.
func FileCandidate(path string) Candidate {
	return fileCandidate{path: path, contentType: detectContentType(path)}
}

func (c fileCandidate) Name() string        { return filepath.Base(c.path) }
func (c fileCandidate) ContentType() string { return c.contentType }

func (c fileCandidate) Open() (io.ReadCloser, error) {
	return os.Open(c.path)
}

func detectContentType(path string) string {
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); byExt != "" {
		return byExt
	}
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	head := make([]byte, sniffLen)
	n, _ := io.ReadFull(f, head)
	if n == 0 {
		return ""
	}
	return http.DetectContentType(head[:n])
}

type bytesCandidate struct {
	name        string
	contentType string
	data        []byte
}

// BytesCandidate wraps an in-memory blob, e.g. a pasted image or a test fixture.
func BytesCandidate(name, contentType string, data []byte) Candidate {
	return bytesCandidate{name: name, contentType: contentType, data: data}
}

func (c bytesCandidate) Name() string        { return c.name }
func (c bytesCandidate) ContentType() string { return c.contentType }

func (c bytesCandidate) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(c.data)), nil
}

// FilesFromPaths turns pasted or dropped text into file candidates. Terminals
// paste dragged files as space- or newline-separated paths, sometimes quoted
// or with escaped spaces. The text counts as a drop only when every token is
// an existing regular file; otherwise it is prose and nil is returned.
func FilesFromPaths(text string) []Candidate {
	paths := splitPaths(text)
	if len(paths) == 0 {
		return nil
	}
	out := make([]Candidate, 0, len(paths))
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			return nil
		}
		out = append(out, FileCandidate(path))
	}
	return out
}

func splitPaths(text string) []string {
	var (
		paths   []string
		current strings.Builder
		quote   rune
		escaped bool
	)
	flush := func() {
		if current.Len() > 0 {
			paths = append(paths, current.String())
			current.Reset()
		}
	}
	for _, r := range text {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\' && quote == 0:
			escaped = true
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			current.WriteRune(r)
		case r == '\'' || r == '"':
			quote = r
		case r == ' ' || r == '\n' || r == '\t' || r == '\r':
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return paths
}
