package clip

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSource_Scheme(t *testing.T) {
	tests := []struct {
		name string
		src  Source
		want string
	}{
		{"https", FromURL("https://cdn.example.com/line-1.wav"), "https"},
		{"http", FromURL("http://localhost/line.mp3"), "http"},
		{"s3", FromURL("s3://takes/scene-1/line-1.wav"), "s3"},
		{"file url", FromURL("file:///tmp/line.wav"), "file"},
		{"bare path", FromURL("takes/line-1.wav"), "file"},
		{"inline", FromBytes("take", []byte("RIFF")), "inline"},
		{"inline ignores url", Source{URL: "https://x", Data: []byte{}}, "inline"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.src.Scheme())
		})
	}
}

func TestSource_String(t *testing.T) {
	assert.Equal(t, "narrator", Source{Name: "narrator", URL: "https://x"}.String())
	assert.Equal(t, "inline", FromBytes("", nil).String())
	assert.Equal(t, "https://x/a.wav", FromURL("https://x/a.wav").String())
	assert.Equal(t, "<empty>", Source{}.String())
}

func TestSource_BaseName(t *testing.T) {
	assert.Equal(t, "a.wav", FromURL("https://x/takes/a.wav?sig=1").BaseName())
	assert.Equal(t, "b.flac", FromURL("/tmp/b.flac").BaseName())
	assert.Equal(t, "take", FromBytes("take", []byte{1}).BaseName())
}

func TestFromURLs_KeepsOrder(t *testing.T) {
	got := FromURLs([]string{"c", "a", "b"})
	assert.Equal(t, []Source{{URL: "c"}, {URL: "a"}, {URL: "b"}}, got)
}
