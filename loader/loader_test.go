package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/pdfrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLoader_Text(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello from a text file"), 0644))

	pages, err := NewFileLoader().Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "hello from a text file", pages[0])
}

func TestFileLoader_NotFound(t *testing.T) {
	_, err := NewFileLoader().Load(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, core.KindInput, core.Classify(err))
}

func TestFileLoader_Directory(t *testing.T) {
	_, err := NewFileLoader().Load(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileLoader_UnsupportedType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.png")
	require.NoError(t, os.WriteFile(path, []byte{0x89, 'P', 'N', 'G'}, 0644))

	_, err := NewFileLoader().Load(context.Background(), path)
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestFileLoader_CorruptPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("this is not a pdf"), 0644))

	_, err := NewFileLoader().Load(context.Background(), path)
	assert.ErrorIs(t, err, ErrUnreadable)
	assert.Equal(t, core.KindInput, core.Classify(err))
}
