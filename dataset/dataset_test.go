package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imglens/imglens/query"
)

func writeManifest(t *testing.T, raw string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeManifest(t, `
name: pets
fields:
  width: int
  photographer: string
items:
  - file_path: img/0001.png
    labels: [cat]
    split: train
    meta:
      width: 32
      photographer: ada
  - file_path: img/0002.png
    labels: [dog, puppy]
    split: val
`)

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "pets", m.Name)
	require.Len(t, m.Items, 2)
	assert.Equal(t, "img/0001.png", m.Items[0].FilePath)
	assert.Equal(t, []string{"dog", "puppy"}, m.Items[1].Labels)

	sch, err := m.Schema()
	require.NoError(t, err)
	assert.Equal(t, query.Schema{"width": query.KindInt, "photographer": query.KindString}, sch)

	sources, err := m.Sources()
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "train", sources[0].Split)
	assert.Equal(t, query.Int(32), sources[0].Meta["width"])
	assert.Equal(t, query.String("ada"), sources[0].Meta["photographer"])
	assert.Nil(t, sources[1].Meta)
}

func TestLoadValidates(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"missing name", "items:\n  - file_path: a.png\n", "name is required"},
		{"missing file_path", "name: pets\nitems:\n  - labels: [cat]\n", "item 0: file_path is required"},
		{"malformed yaml", "name: [unterminated", "dataset: parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeManifest(t, tt.raw))
			require.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorContains(t, err, "dataset: read")
}

func TestSchemaRejectsUnknownKind(t *testing.T) {
	m := &Manifest{Name: "pets", Fields: map[string]string{"width": "decimal128"}}
	_, err := m.Schema()
	require.ErrorContains(t, err, `field "width"`)
}

func TestSchemaEmpty(t *testing.T) {
	m := &Manifest{Name: "pets"}
	sch, err := m.Schema()
	require.NoError(t, err)
	assert.Nil(t, sch)
}
