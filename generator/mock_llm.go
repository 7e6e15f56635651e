package generator

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
)

// MockLLM 本地调试用，不调用外部模型。Reply/Err 可覆盖默认输出，Calls 统计调用次数。
type MockLLM struct {
	Reply string
	Err   error
	calls atomic.Int64
}

func (m *MockLLM) Calls() int64 { return m.calls.Load() }

func (m *MockLLM) Complete(_ context.Context, prompt Prompt) (string, error) {
	m.calls.Add(1)
	if m.Err != nil {
		return "", m.Err
	}
	if m.Reply != "" {
		return m.Reply, nil
	}
	if prompt.Kind == PromptRevision {
		return `["Perjelas rumusan masalah pada BAB 1.", "Tambahkan referensi lima tahun terakhir."]`, nil
	}

	topic := "Contoh Topik"
	for _, line := range strings.Split(prompt.User, "\n") {
		if v, ok := strings.CutPrefix(line, "Topic: "); ok {
			topic = v
			break
		}
	}
	doc := Document{
		Title:           topic,
		Abstract:        "Abstrak yang dihasilkan secara otomatis untuk keperluan pengujian.",
		TableOfContents: []string{"BAB 1 PENDAHULUAN", "BAB 2 TINJAUAN PUSTAKA"},
		Chapters: Chapters{
			{Key: "chapter1", Title: "BAB 1 PENDAHULUAN", Content: "Latar belakang.\nRumusan masalah."},
			{Key: "chapter2", Title: "BAB 2 TINJAUAN PUSTAKA", Content: "Kajian teori."},
		},
		References:    []string{"Doe, J. (2023). Example reference. Journal of Tests."},
		AISuggestions: []string{"Perluas metodologi."},
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	return "```json\n" + string(b) + "\n```", nil
}
