package storage

import (
	"bytes"
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/princinho/eldercarebackend/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func testValidator() *FileValidator {
	return NewImageValidator(config.AvatarConfig{
		MaxUploadSizeMB:   1,
		AllowedExtensions: []string{".png", "jpg"},
		AllowedMimeTypes:  []string{"image/png", "image/jpeg"},
	})
}

func TestValidate(t *testing.T) {
	v := testValidator()
	assert.Equal(t, int64(1<<20), v.MaxSize())
	assert.Equal(t, int64(5<<20), NewImageValidator(config.AvatarConfig{}).MaxSize())

	r := bytes.NewReader(pngHeader)
	mime, err := v.Validate("me.PNG", int64(len(pngHeader)), r)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)

	pos, _ := r.Seek(0, 1)
	assert.Equal(t, int64(0), pos, "reader is rewound")
}

func TestValidate_Rejects(t *testing.T) {
	v := testValidator()

	tests := []struct {
		name     string
		filename string
		size     int64
		body     []byte
		wantErr  string
	}{
		{"too large", "a.png", 2 << 20, pngHeader, "file too large"},
		{"extension", "a.gif", 10, pngHeader, "invalid file extension"},
		{"sniffed type", "a.png", 10, []byte("just some text"), "invalid file type"},
		{"empty", "a.jpg", 0, nil, "empty file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(tt.filename, tt.size, bytes.NewReader(tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAvatarObjectName(t *testing.T) {
	name := AvatarObjectName("abc123", "Photo.JPG")
	assert.Regexp(t, regexp.MustCompile(`^avatars/abc123/\d+-[0-9a-f-]{36}\.jpg$`), name)

	assert.True(t, strings.HasSuffix(AvatarObjectName("abc123", "noext"), ".bin"))
	assert.True(t, strings.HasPrefix(name, AvatarPrefix("abc123")))
	assert.False(t, strings.HasPrefix(AvatarObjectName("abc1234", "a.png"), AvatarPrefix("abc123")))
	assert.NotEqual(t, AvatarObjectName("x", "a.png"), AvatarObjectName("x", "a.png"))
}

func TestR2ObjectName(t *testing.T) {
	r := &R2Store{bucket: "avatars", domain: "https://files.example.com"}

	url := r.publicURL("avatars/u1/1-x.png")
	assert.Equal(t, "https://files.example.com/avatars/avatars/u1/1-x.png", url)

	name, ok := r.ObjectName(url)
	require.True(t, ok)
	assert.Equal(t, "avatars/u1/1-x.png", name)

	_, ok = r.ObjectName("https://via.placeholder.com/100")
	assert.False(t, ok)
}

func TestGCSObjectName(t *testing.T) {
	name, err := gcsObjectName("bkt", "https://storage.googleapis.com/bkt/avatars/u1/a.png")
	require.NoError(t, err)
	assert.Equal(t, "avatars/u1/a.png", name)

	name, err = gcsObjectName("bkt", "https://bkt.storage.googleapis.com/avatars/u1/a.png")
	require.NoError(t, err)
	assert.Equal(t, "avatars/u1/a.png", name)

	_, err = gcsObjectName("bkt", "https://storage.googleapis.com/other/a.png")
	assert.Error(t, err)
	_, err = gcsObjectName("bkt", "https://via.placeholder.com/100")
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore("https://cdn.test")

	url, err := m.Put(ctx, "avatars/u1/a.png", "image/png", bytes.NewReader(pngHeader))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/avatars/u1/a.png", url)

	name, ok := m.ObjectName(url)
	require.True(t, ok)
	ct, data, ok := m.Object(name)
	require.True(t, ok)
	assert.Equal(t, "image/png", ct)
	assert.Equal(t, pngHeader, data)

	require.NoError(t, m.Delete(ctx, name))
	assert.Error(t, m.Delete(ctx, name))
	assert.Zero(t, m.Len())
}

func TestNew(t *testing.T) {
	s, err := New(context.Background(), config.AvatarConfig{})
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = New(context.Background(), config.AvatarConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = New(context.Background(), config.AvatarConfig{Backend: "r2"})
	assert.Error(t, err)

	_, err = New(context.Background(), config.AvatarConfig{Backend: "ftp"})
	assert.Error(t, err)
}
