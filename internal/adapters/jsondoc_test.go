package adapters

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDocumentKeepsNumbers(t *testing.T) {
	doc, err := DecodeDocument([]byte(`{"createdAt": 1700000000123, "ratio": 0.5}`))
	require.NoError(t, err)
	assert.Equal(t, json.Number("1700000000123"), doc["createdAt"])

	out, err := doc.Encode()
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"createdAt\": 1700000000123,\n  \"ratio\": 0.5\n}\n", string(out))
}

func TestDecodeDocumentBlankAndMalformed(t *testing.T) {
	doc, err := DecodeDocument([]byte("  \n"))
	require.NoError(t, err)
	assert.Empty(t, doc)

	_, err = DecodeDocument([]byte(`{"a":`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = DecodeDocument([]byte(`[1,2]`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestEncodeDoesNotEscapeHTML(t *testing.T) {
	out, err := Document{"url": "https://a.example.com/?a=1&b=<2>"}.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(out), "a=1&b=<2>")
}

func TestObjectAndLookup(t *testing.T) {
	doc := Document{"env": "not-an-object"}
	env := doc.Object("env")
	env["K"] = "v"
	got, ok := doc.Lookup("env")
	require.True(t, ok)
	assert.Equal(t, "v", got.String("K"))

	_, ok = doc.Lookup("missing")
	assert.False(t, ok)

	doc.SetOrDelete("x", "1")
	assert.Equal(t, "1", doc.String("x"))
	doc.SetOrDelete("x", "")
	assert.NotContains(t, doc, "x")
}

func TestUpdateDocumentSkipsNoops(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")

	_, err := UpdateDocument(path, 0o600, func(doc Document) error {
		delete(doc, "anything")
		return nil
	})
	require.NoError(t, err)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	res, err := UpdateDocument(path, 0o600, func(doc Document) error {
		doc["theme"] = "dark"
		return nil
	})
	require.NoError(t, err)
	assert.True(t, res.Changed)

	res, err = UpdateDocument(path, 0o600, func(doc Document) error {
		doc["theme"] = "dark"
		return nil
	})
	require.NoError(t, err)
	assert.False(t, res.Changed)
}

func TestUpdateDocumentRefusesMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{oops"), 0o600))
	_, err := UpdateDocument(path, 0o600, func(doc Document) error { return nil })
	assert.ErrorIs(t, err, ErrMalformed)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{oops", string(raw))
}

func TestInt(t *testing.T) {
	for _, v := range []any{json.Number("42"), 42, int64(42), float64(42)} {
		n, ok := Int(v)
		assert.True(t, ok)
		assert.Equal(t, 42, n)
	}
	_, ok := Int("42")
	assert.False(t, ok)
}
