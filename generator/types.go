package generator

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/tidwall/gjson"
)

type AcademicLevel string

const (
	LevelS1 AcademicLevel = "S1"
	LevelS2 AcademicLevel = "S2"
	LevelS3 AcademicLevel = "S3"
)

type WritingStyle string

const (
	StyleFormal   WritingStyle = "formal"
	StyleInformal WritingStyle = "informal"
)

type Language string

const (
	LanguageIndonesian Language = "id"
	LanguageEnglish    Language = "en"
)

// Name 返回提示词里使用的语言名称。
func (l Language) Name() string {
	if l == LanguageIndonesian {
		return "Indonesian"
	}
	return "English"
}

type CitationStyle string

const (
	CitationAPA  CitationStyle = "APA"
	CitationMLA  CitationStyle = "MLA"
	CitationIEEE CitationStyle = "IEEE"
)

// Request describes the thesis a caller wants generated.
type Request struct {
	Topic         string        `json:"topic"`
	AcademicLevel AcademicLevel `json:"academicLevel"`
	WritingStyle  WritingStyle  `json:"writingStyle"`
	Language      Language      `json:"language"`
	CitationStyle CitationStyle `json:"citationStyle"`
}

// Chapter 是 chapters 对象中的一项；Key 保留模型给出的原始键名（如 chapter1）。
type Chapter struct {
	Key     string `json:"-"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Chapters keeps chapters in the order the model emitted them and encodes as a
// JSON object keyed by Chapter.Key.
type Chapters []Chapter

func (cs Chapters) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range cs {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(struct {
			Title   string `json:"title"`
			Content string `json:"content"`
		}{c.Title, c.Content})
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (cs *Chapters) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return errors.New("chapters: invalid JSON")
	}
	res := gjson.ParseBytes(data)
	if res.Type == gjson.Null {
		*cs = nil
		return nil
	}
	if !res.IsObject() {
		return errors.New("chapters: expected object")
	}
	*cs = coerceChapterEntries(res)
	return nil
}

// Document is the canonical thesis. Every field always holds a renderable value.
type Document struct {
	Title           string   `json:"title"`
	Abstract        string   `json:"abstract"`
	TableOfContents []string `json:"tableOfContents"`
	Chapters        Chapters `json:"chapters"`
	References      []string `json:"references"`
	PlagiarismScore float64  `json:"plagiarismScore"`
	AISuggestions   []string `json:"aiSuggestions"`
}

// Turn 记录一次对稿件的审阅结果。
type Turn struct {
	Suggestions []string  `json:"suggestions"`
	CreatedAt   time.Time `json:"createdAt"`
}
