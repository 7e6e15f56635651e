package generator

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"thesis_generator/logger"
)

// Recoverer turns the model's reply into a Document.
type Recoverer struct {
	// RequireChapters rejects replies whose chapters object has no usable entry.
	RequireChapters bool
	Log             *zap.Logger
}

// Recover repairs raw, checks it looks like a JSON object, parses it and
// coerces every field to its canonical type. The failing text is logged,
// never returned.
func (r *Recoverer) Recover(raw string) (Document, error) {
	log := logger.OrNop(r.Log).With(zap.String("component", "recoverer"))

	cleaned := Repair(raw)
	if !strings.HasPrefix(cleaned, "{") || !strings.HasSuffix(cleaned, "}") {
		log.Error("reply is not a JSON object", zap.String("content", cleaned))
		return Document{}, &RecoveryError{Reason: "invalid JSON structure"}
	}

	var parsed any
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		log.Error("content that failed to parse", zap.Error(err), zap.String("content", cleaned))
		return Document{}, &RecoveryError{Reason: "invalid JSON", Err: err}
	}

	doc := Coerce(gjson.Parse(cleaned))
	if r.RequireChapters && len(doc.Chapters) == 0 {
		log.Warn("reply has no usable chapters", zap.String("content", cleaned))
		return Document{}, &RecoveryError{Reason: "no usable chapters"}
	}
	return doc, nil
}

// Coerce never fails: fields with the wrong type fall back to their defaults.
func Coerce(root gjson.Result) Document {
	doc := Document{
		Title:           stringOr(root.Get("title")),
		Abstract:        stringOr(root.Get("abstract")),
		TableOfContents: stringsOf(root.Get("tableOfContents"), false),
		References:      stringsOf(root.Get("references"), true),
		AISuggestions:   stringsOf(root.Get("aiSuggestions"), false),
	}

	if ch := root.Get("chapters"); ch.IsObject() {
		doc.Chapters = coerceChapterEntries(ch)
	} else {
		doc.Chapters = placeholderChapters()
	}

	if score := root.Get("plagiarismScore"); score.Type == gjson.Number {
		doc.PlagiarismScore = score.Num
	}
	return doc
}

func placeholderChapters() Chapters {
	return Chapters{{Key: "chapter1"}}
}

// coerceChapterEntries keeps object entries in document order; anything that is
// not a {title, content} object is skipped.
func coerceChapterEntries(obj gjson.Result) Chapters {
	out := Chapters{}
	// 重复的 key 保留首次出现的位置，取最后一次的值
	seen := map[string]int{}
	obj.ForEach(func(key, value gjson.Result) bool {
		if !value.IsObject() {
			return true
		}
		ch := Chapter{
			Key:     key.String(),
			Title:   stringOr(value.Get("title")),
			Content: stringOr(value.Get("content")),
		}
		if i, ok := seen[ch.Key]; ok {
			out[i] = ch
			return true
		}
		seen[ch.Key] = len(out)
		out = append(out, ch)
		return true
	})
	return out
}

func stringOr(r gjson.Result) string {
	if r.Type == gjson.String {
		return r.Str
	}
	return ""
}

func stringsOf(r gjson.Result, trim bool) []string {
	out := []string{}
	if !r.IsArray() {
		return out
	}
	for _, item := range r.Array() {
		if item.Type != gjson.String {
			continue
		}
		s := item.Str
		if trim {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
		}
		out = append(out, s)
	}
	return out
}
