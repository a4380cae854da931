// Package clip loads the ordered dialogue clips of a table read. A clip is
// fetched from a URL, a local path, an S3 object or an inline blob, then
// handed to an audio.Decoder.
package clip

import (
	"net/url"
	"path"
)

// Source identifies one clip. Data, when non-nil, is used as-is and URL is
// ignored. Position in the input slice is position in the output.
type Source struct {
	URL  string
	Data []byte
	Name string
}

// FromURL returns a source fetched from rawURL. Bare paths are read from disk.
func FromURL(rawURL string) Source {
	return Source{URL: rawURL}
}

// FromBytes returns an inline source.
func FromBytes(name string, data []byte) Source {
	if data == nil {
		data = []byte{}
	}
	return Source{Name: name, Data: data}
}

// FromURLs converts a list of URLs into sources, keeping order.
func FromURLs(urls []string) []Source {
	out := make([]Source, len(urls))
	for i, u := range urls {
		out[i] = FromURL(u)
	}
	return out
}

// IsInline reports whether the clip bytes are carried by the source itself.
func (s Source) IsInline() bool {
	return s.Data != nil
}

// String returns a short human-readable label for logs and errors.
func (s Source) String() string {
	switch {
	case s.Name != "":
		return s.Name
	case s.IsInline():
		return "inline"
	case s.URL != "":
		return s.URL
	default:
		return "<empty>"
	}
}

// Scheme returns the lower-case URL scheme of the source: "inline" for blobs
// and "file" for bare paths.
func (s Source) Scheme() string {
	if s.IsInline() {
		return "inline"
	}
	u, err := url.Parse(s.URL)
	if err != nil || u.Scheme == "" {
		return "file"
	}
	return u.Scheme
}

// BaseName returns the last path element of the source, used as a temp file
// name hint.
func (s Source) BaseName() string {
	if s.Name != "" || s.IsInline() {
		return s.String()
	}
	if u, err := url.Parse(s.URL); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return path.Base(s.URL)
}
