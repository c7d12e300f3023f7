package diffblob

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_Snapshots(t *testing.T) {
	before := "var speed = 1;\nvar jump = 2;\n"
	after := "var speed = 5;\nvar jump = 2;\nvar dash = true;\n"
	diff, err := json.Marshal(map[string]any{
		"files": []map[string]any{{"path": "scripts/player.js", "before": before, "after": after}},
	})
	require.NoError(t, err)

	blob, err := Encode(diff)
	require.NoError(t, err)
	require.NotEmpty(t, blob)
	assert.Equal(t, []byte{0x1f, 0x8b}, blob[:2], "gzip magic")

	rev, err := Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, FormatDMP, rev.Format)

	got, err := rev.Apply("scripts/player.js", after)
	require.NoError(t, err)
	assert.Equal(t, before, got)

	_, err = rev.Apply("other.js", after)
	assert.Error(t, err)
}

func TestEncode_NewFileSnapshot(t *testing.T) {
	diff := json.RawMessage(`{"files":[{"path":"a.gd","before":"","after":"extends Node\n"}]}`)
	rev, err := Build(diff)
	require.NoError(t, err)
	got, err := rev.Apply("a.gd", "extends Node\n")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestEncode_Raw(t *testing.T) {
	diff := json.RawMessage(`{"ops":[{"op":"remove","path":"/entities/3"}]}`)
	blob, err := Encode(diff)
	require.NoError(t, err)

	rev, err := Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, FormatRaw, rev.Format)
	assert.JSONEq(t, string(diff), string(rev.Raw))

	_, err = rev.Apply("x", "y")
	assert.Error(t, err)
}

func TestEncode_Empty(t *testing.T) {
	for _, in := range []string{"", "null", "  "} {
		blob, err := Encode(json.RawMessage(in))
		assert.NoError(t, err)
		assert.Nil(t, blob, "input %q", in)
	}
}

func TestEncode_Invalid(t *testing.T) {
	_, err := Encode(json.RawMessage(`{not json`))
	assert.Error(t, err)
}

func TestDecode_NotGzip(t *testing.T) {
	_, err := Decode([]byte("plain"))
	assert.Error(t, err)
}
