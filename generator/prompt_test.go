package generator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildThesisPromptIndonesian(t *testing.T) {
	p := BuildThesisPrompt(validRequest())
	assert.Equal(t, PromptThesis, p.Kind)
	assert.Contains(t, p.System, "only with valid JSON")
	assert.Contains(t, p.User, "in Indonesian language")
	assert.Contains(t, p.User, "Topic: Pengaruh media sosial terhadap prestasi belajar mahasiswa\n")
	assert.Contains(t, p.User, "Academic Level: S1\n")
	assert.Contains(t, p.User, "Writing Style: formal\n")
	assert.Contains(t, p.User, "Citation Style: APA\n")
	assert.Contains(t, p.User, "references in APA format")

	last := -1
	for i, title := range chapterTitles[LanguageIndonesian] {
		idx := strings.Index(p.User, `"title": "`+title+`"`)
		assert.Greater(t, idx, last, "chapter %d out of order", i+1)
		last = idx
	}
	for _, key := range []string{`"title"`, `"abstract"`, `"tableOfContents"`, `"chapters"`, `"references"`, `"plagiarismScore"`, `"aiSuggestions"`} {
		assert.Contains(t, p.User, key)
	}
}

func TestBuildThesisPromptEnglish(t *testing.T) {
	req := validRequest()
	req.Language = LanguageEnglish
	req.CitationStyle = CitationIEEE
	p := BuildThesisPrompt(req)
	assert.Contains(t, p.User, "in English language")
	assert.Contains(t, p.User, "CHAPTER 1 INTRODUCTION")
	assert.NotContains(t, p.User, "BAB 1")
	assert.Contains(t, p.User, "references in IEEE format")
}

func TestBuildRevisionPrompt(t *testing.T) {
	p := BuildRevisionPrompt("isi tesis")
	assert.Equal(t, PromptRevision, p.Kind)
	assert.Contains(t, p.System, "JSON array of strings")
	assert.True(t, strings.HasSuffix(p.User, "\n\nisi tesis"))
}
