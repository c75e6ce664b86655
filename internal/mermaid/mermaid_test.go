package mermaid

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCode = "graph TD; A-->B;"

func TestBuildState(t *testing.T) {
	state := BuildState(sampleCode, "")

	assert.Equal(t, sampleCode, state.Code)
	assert.Equal(t, "dark", state.Mermaid.Theme)
	assert.True(t, state.UpdateEditor)
	assert.True(t, state.AutoSync)
	assert.True(t, state.UpdateDiagram)

	assert.Equal(t, "forest", BuildState(sampleCode, "forest").Mermaid.Theme)
}

func TestSerializeState(t *testing.T) {
	got, err := SerializeState(BuildState(sampleCode, "dark"))
	require.NoError(t, err)

	want := `{"code":"graph TD; A-->B;","mermaid":{"theme":"dark"},"updateEditor":true,"autoSync":true,"updateDiagram":true}`
	assert.Equal(t, want, got)
}

func TestSerializeStateEscaping(t *testing.T) {
	state := BuildState("graph TD; A[\"<a> & b\"]\u2028-->B", "dark")
	got, err := SerializeState(state)
	require.NoError(t, err)
	assert.Contains(t, got, `A[\"<a> & b\"]`)
	assert.Contains(t, got, `\u2028`)

	back, err := DeserializeState(got)
	require.NoError(t, err)
	assert.Equal(t, state, back)

	invalid, err := SerializeState(BuildState("A\xff-->B", "dark"))
	require.NoError(t, err)
	back, err = DeserializeState(invalid)
	require.NoError(t, err)
	assert.Equal(t, "A\ufffd-->B", back.Code)
}

func TestSerializeDeserializeState(t *testing.T) {
	states := []State{
		BuildState(sampleCode, "dark"),
		BuildState("sequenceDiagram\n    Alice->>Bob: Hello Bob, how are you?\n    Bob-->>Alice: Not too bad, thanks!", "neutral"),
		BuildState("graph LR; Ä[\"<b>日本</b>\"] --> B & C", "default"),
		{Code: "x", Mermaid: Config{Theme: "base"}},
	}

	for _, s := range states {
		serialized, err := SerializeState(s)
		require.NoError(t, err)

		got, err := DeserializeState(serialized)
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

func TestDeserializeStateInvalid(t *testing.T) {
	_, err := DeserializeState("{not json")
	assert.Error(t, err)
}

func TestSerdes(t *testing.T) {
	for _, serde := range []Serde{PakoSerde{}, Base64Serde{}} {
		t.Run(serde.Name(), func(t *testing.T) {
			original := "Hello, world!"
			serialized, err := serde.Serialize(original)
			require.NoError(t, err)
			assert.NotContains(t, serialized, "=")
			assert.NotContains(t, serialized, "+")
			assert.NotContains(t, serialized, "/")

			got, err := serde.Deserialize(serialized)
			require.NoError(t, err)
			assert.Equal(t, original, got)
		})
	}
}

func TestDecodeBase64AcceptsStandardAlphabet(t *testing.T) {
	// "??>" encodes to "Pz8+" in the standard alphabet and "Pz8-" URL-safe.
	got, err := decodeBase64("Pz8+")
	require.NoError(t, err)
	assert.Equal(t, "??>", string(got))

	got, err = decodeBase64("Pz8-")
	require.NoError(t, err)
	assert.Equal(t, "??>", string(got))
}

func TestBuildLiveEditorURL(t *testing.T) {
	e := NewEncoder("", "")
	state := BuildState(sampleCode, "")

	u, code, err := e.BuildLiveEditorURL(state)
	require.NoError(t, err)
	assert.Equal(t, sampleCode, code)
	assert.True(t, strings.HasPrefix(u, "https://mermaid.ink/svg/pako:"))

	parsed, err := url.Parse(u)
	require.NoError(t, err)
	assert.Equal(t, "https", parsed.Scheme)
	assert.Equal(t, "mermaid.ink", parsed.Host)

	decoded, err := DecodePayload(strings.TrimPrefix(u, "https://mermaid.ink/svg/"))
	require.NoError(t, err)
	assert.Equal(t, state, decoded)
}

func TestBuildLiveEditorURLIsDeterministic(t *testing.T) {
	e := NewEncoder("", "")

	first, _, err := e.BuildLiveEditorURL(BuildState(sampleCode, ""))
	require.NoError(t, err)
	second, _, err := e.BuildLiveEditorURL(BuildState(sampleCode, ""))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEditURL(t *testing.T) {
	e := NewEncoder("", "https://mermaid.live/")
	state := BuildState(sampleCode, "")

	u, err := e.EditURL(state)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(u, "https://mermaid.live/edit#pako:"))

	decoded, err := DecodePayload(strings.TrimPrefix(u, "https://mermaid.live/edit#"))
	require.NoError(t, err)
	assert.Equal(t, state, decoded)
}

func TestDecodePayload(t *testing.T) {
	state := BuildState(sampleCode, "")

	t.Run("base64 prefix", func(t *testing.T) {
		payload, err := EncodePayload(state, Base64Serde{})
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(payload, "base64:"))

		got, err := DecodePayload(payload)
		require.NoError(t, err)
		assert.Equal(t, state, got)
	})

	t.Run("no prefix means base64", func(t *testing.T) {
		payload, err := EncodePayload(state, Base64Serde{})
		require.NoError(t, err)

		got, err := DecodePayload(strings.TrimPrefix(payload, "base64:"))
		require.NoError(t, err)
		assert.Equal(t, state, got)
	})

	t.Run("unknown serde", func(t *testing.T) {
		_, err := DecodePayload("brotli:abc")
		assert.Error(t, err)
	})

	t.Run("corrupt pako", func(t *testing.T) {
		_, err := DecodePayload("pako:AAAA")
		assert.Error(t, err)
	})
}
