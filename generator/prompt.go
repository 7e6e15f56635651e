package generator

import (
	"fmt"
	"strings"
)

type PromptKind int

const (
	PromptThesis PromptKind = iota
	PromptRevision
)

// Prompt 表示发送给 LLM 的 system + user 消息。
type Prompt struct {
	Kind   PromptKind
	System string
	User   string
}

const thesisSystem = "You are a thesis generator that responds only with valid JSON matching the specified structure. " +
	"Always include references in your response. Do not include any explanatory text or markdown formatting."

const revisionSystem = "You are a thesis reviewer. Reply only with a JSON array of strings, each one a concrete, actionable improvement suggestion."

var chapterTitles = map[Language][5]string{
	LanguageIndonesian: {
		"BAB 1 PENDAHULUAN",
		"BAB 2 TINJAUAN PUSTAKA",
		"BAB 3 METODOLOGI PENELITIAN",
		"BAB 4 HASIL DAN PEMBAHASAN",
		"BAB 5 KESIMPULAN DAN SARAN",
	},
	LanguageEnglish: {
		"CHAPTER 1 INTRODUCTION",
		"CHAPTER 2 LITERATURE REVIEW",
		"CHAPTER 3 RESEARCH METHODOLOGY",
		"CHAPTER 4 RESULTS AND DISCUSSION",
		"CHAPTER 5 CONCLUSION AND RECOMMENDATIONS",
	},
}

// BuildThesisPrompt embeds the (already sanitized) request and the target JSON shape.
func BuildThesisPrompt(req Request) Prompt {
	titles, ok := chapterTitles[req.Language]
	if !ok {
		titles = chapterTitles[LanguageEnglish]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Generate a detailed academic thesis in %s language.\n\n", req.Language.Name())
	fmt.Fprintf(&sb, "Topic: %s\n", req.Topic)
	fmt.Fprintf(&sb, "Academic Level: %s\n", req.AcademicLevel)
	fmt.Fprintf(&sb, "Writing Style: %s\n", req.WritingStyle)
	fmt.Fprintf(&sb, "Citation Style: %s\n\n", req.CitationStyle)
	sb.WriteString("Please provide a complete thesis with detailed content for each section. ")
	sb.WriteString("Each chapter should contain comprehensive information, analysis, and discussion relevant to the topic. Include:\n\n")
	sb.WriteString("1. Detailed introduction with clear background, problem statement, objectives, and significance\n")
	sb.WriteString("2. Comprehensive literature review with current research and theoretical framework\n")
	sb.WriteString("3. Complete methodology section explaining research approach, methods, and procedures\n")
	sb.WriteString("4. In-depth results and discussion with data analysis and findings\n")
	sb.WriteString("5. Thorough conclusion with recommendations and future work\n")
	fmt.Fprintf(&sb, "6. Proper citations and references in %s format\n\n", req.CitationStyle)
	sb.WriteString("Format the response as a structured JSON with detailed content for each section:\n")
	sb.WriteString("{\n")
	sb.WriteString(`  "title": "Complete thesis title",` + "\n")
	sb.WriteString(`  "abstract": "Comprehensive abstract with keywords",` + "\n")
	sb.WriteString(`  "tableOfContents": ["Detailed table of contents"],` + "\n")
	sb.WriteString(`  "chapters": {` + "\n")
	for i, t := range titles {
		fmt.Fprintf(&sb, "    \"chapter%d\": {\n      \"title\": %q,\n      \"content\": \"Detailed content including all subsections...\"\n    }", i+1, t)
		if i < len(titles)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("  },\n")
	sb.WriteString(`  "references": ["Complete reference list"],` + "\n")
	sb.WriteString(`  "plagiarismScore": 0,` + "\n")
	sb.WriteString(`  "aiSuggestions": ["Improvement suggestions"]` + "\n")
	sb.WriteString("}\n\n")
	sb.WriteString("Ensure each chapter contains substantial content with proper academic writing and analysis.")

	return Prompt{Kind: PromptThesis, System: thesisSystem, User: sb.String()}
}

// BuildRevisionPrompt 生成审阅提示词。
func BuildRevisionPrompt(text string) Prompt {
	return Prompt{
		Kind:   PromptRevision,
		System: revisionSystem,
		User:   "Please review the following thesis and give specific improvement suggestions:\n\n" + text,
	}
}
