package generator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChaptersMarshalKeepsOrder(t *testing.T) {
	cs := Chapters{
		{Key: "chapter2", Title: "B", Content: "2"},
		{Key: "chapter1", Title: "A", Content: "1"},
	}
	b, err := json.Marshal(cs)
	require.NoError(t, err)
	assert.Equal(t, `{"chapter2":{"title":"B","content":"2"},"chapter1":{"title":"A","content":"1"}}`, string(b))
}

func TestChaptersRoundTripInsideDocument(t *testing.T) {
	in := `{"title":"T","chapters":{"z":{"title":"Z","content":"last"},"a":{"title":"A","content":"first"}}}`
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(in), &doc))
	assert.Equal(t, Chapters{
		{Key: "z", Title: "Z", Content: "last"},
		{Key: "a", Title: "A", Content: "first"},
	}, doc.Chapters)

	b, err := json.Marshal(doc.Chapters)
	require.NoError(t, err)
	assert.Equal(t, `{"z":{"title":"Z","content":"last"},"a":{"title":"A","content":"first"}}`, string(b))
}

func TestChaptersUnmarshalRejectsNonObject(t *testing.T) {
	var cs Chapters
	assert.Error(t, json.Unmarshal([]byte(`["a"]`), &cs))

	require.NoError(t, json.Unmarshal([]byte(`null`), &cs))
	assert.Nil(t, cs)
}

func TestChaptersUnmarshalCollapsesDuplicateKeys(t *testing.T) {
	var cs Chapters
	require.NoError(t, json.Unmarshal([]byte(`{"a":{"title":"1"},"b":{"title":"2"},"a":{"title":"3"}}`), &cs))
	assert.Equal(t, Chapters{{Key: "a", Title: "3"}, {Key: "b", Title: "2"}}, cs)

	b, err := json.Marshal(cs)
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"title":"3","content":""},"b":{"title":"2","content":""}}`, string(b))
}

func TestEmptyChaptersEncodeAsObject(t *testing.T) {
	b, err := json.Marshal(Chapters{})
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(b))
}

func TestLanguageName(t *testing.T) {
	assert.Equal(t, "Indonesian", LanguageIndonesian.Name())
	assert.Equal(t, "English", LanguageEnglish.Name())
}
