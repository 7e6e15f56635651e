// Package exporter renders a generated thesis as Markdown, HTML or a Word-compatible document.
package exporter

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"thesis_generator/generator"
)

type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatDoc      Format = "doc"
)

// ParseFormat accepts the format names used by the CLI and the HTTP export route.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "markdown", "md":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	case "doc", "word":
		return FormatDoc, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// ContentType 返回下载时使用的 MIME 类型。
func (f Format) ContentType() string {
	switch f {
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatDoc:
		return "application/msword"
	default:
		return "text/markdown; charset=utf-8"
	}
}

func (f Format) ext() string {
	switch f {
	case FormatHTML:
		return ".html"
	case FormatDoc:
		return ".doc"
	default:
		return ".md"
	}
}

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

// Markdown lays the document out in reading order; empty sections are omitted.
func Markdown(doc generator.Document) string {
	var b strings.Builder
	title := strings.TrimSpace(doc.Title)
	if title == "" {
		title = "Untitled Thesis"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)

	if s := strings.TrimSpace(doc.Abstract); s != "" {
		b.WriteString("## Abstract\n\n")
		b.WriteString(s)
		b.WriteString("\n\n")
	}
	if len(doc.TableOfContents) > 0 {
		b.WriteString("## Table of Contents\n\n")
		for i, item := range doc.TableOfContents {
			fmt.Fprintf(&b, "%d. %s\n", i+1, item)
		}
		b.WriteString("\n")
	}
	for _, ch := range doc.Chapters {
		heading := strings.TrimSpace(ch.Title)
		if heading == "" {
			heading = ch.Key
		}
		fmt.Fprintf(&b, "## %s\n\n", heading)
		if s := strings.TrimSpace(ch.Content); s != "" {
			b.WriteString(s)
			b.WriteString("\n\n")
		}
	}
	if len(doc.References) > 0 {
		b.WriteString("## References\n\n")
		for _, ref := range doc.References {
			fmt.Fprintf(&b, "- %s\n", ref)
		}
		b.WriteString("\n")
	}
	if len(doc.AISuggestions) > 0 {
		b.WriteString("## Suggestions\n\n")
		for _, s := range doc.AISuggestions {
			fmt.Fprintf(&b, "- %s\n", s)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// HTML converts the Markdown rendering with goldmark. The result is a fragment.
func HTML(doc generator.Document) (string, error) {
	return mdToHTML(Markdown(doc))
}

// WordHTML wraps a word-processor friendly rendering in a complete HTML page.
// Word opens it directly when served as application/msword.
func WordHTML(doc generator.Document) (string, error) {
	body, err := HTML(doc)
	if err != nil {
		return "", err
	}
	body = normalizeForWord(body)

	var b strings.Builder
	b.WriteString("<html><head><meta charset=\"utf-8\">")
	fmt.Fprintf(&b, "<title>%s</title>", html.EscapeString(doc.Title))
	fmt.Fprintf(&b, "<meta name=\"description\" content=\"%s\">", html.EscapeString(Digest(doc.Abstract, 120)))
	b.WriteString("</head><body style=\"font-family:'Times New Roman',serif;font-size:12pt;line-height:1.5;\">")
	b.WriteString(body)
	b.WriteString("</body></html>")
	return b.String(), nil
}

// Render dispatches on format.
func Render(doc generator.Document, format Format) ([]byte, error) {
	switch format {
	case FormatMarkdown:
		return []byte(Markdown(doc)), nil
	case FormatHTML:
		s, err := HTML(doc)
		return []byte(s), err
	case FormatDoc:
		s, err := WordHTML(doc)
		return []byte(s), err
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

var unsafeName = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// FileName derives a download name from the title, e.g. "pengaruh-media-sosial.md".
func FileName(doc generator.Document, format Format) string {
	slug := strings.Trim(unsafeName.ReplaceAllString(strings.ToLower(doc.Title), "-"), "-")
	if r := []rune(slug); len(r) > 80 {
		slug = strings.TrimRight(string(r[:80]), "-")
	}
	if slug == "" {
		slug = "thesis"
	}
	return slug + format.ext()
}

// Digest 压缩空白后按 rune 截断。
func Digest(text string, limit int) string {
	joined := strings.Join(strings.Fields(text), " ")
	r := []rune(joined)
	if len(r) <= limit {
		return joined
	}
	return string(r[:limit])
}

func mdToHTML(src string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var (
	listRe     = regexp.MustCompile(`(?s)<(ol|ul)[^>]*>(.*?)</(?:ol|ul)>`)
	listItemRe = regexp.MustCompile(`(?s)<li[^>]*>(.*?)</li>`)
	headingRe  = regexp.MustCompile(`(?s)<h([1-6])[^>]*>(.*?)</h[1-6]>`)
)

// Word 对嵌套列表和标题样式的处理不稳定，导出前把列表展开成段落、
// 标题转成带字号的粗体段落。
func flattenLists(s string) string {
	return listRe.ReplaceAllStringFunc(s, func(block string) string {
		m := listRe.FindStringSubmatch(block)
		items := listItemRe.FindAllStringSubmatch(m[2], -1)
		if len(items) == 0 {
			return block
		}
		var b strings.Builder
		for i, item := range items {
			b.WriteString(paragraph("", itemMarker(m[1], i+1)+strings.TrimSpace(item[1])))
		}
		return b.String()
	})
}

// itemMarker 返回列表第 n 项（从 1 开始）的前缀。
func itemMarker(tag string, n int) string {
	if tag == "ol" {
		return strconv.Itoa(n) + ". "
	}
	return "• "
}

type headingStyle struct {
	size  string
	align string
}

// 下标即标题级别，0 不用。
var headingStyles = [7]headingStyle{
	1: {"18pt", "center"},
	2: {"14pt", "left"},
	3: {"13pt", "left"},
	4: {"12pt", "left"},
	5: {"12pt", "left"},
	6: {"12pt", "left"},
}

func convertHeadings(s string) string {
	return headingRe.ReplaceAllStringFunc(s, func(block string) string {
		m := headingRe.FindStringSubmatch(block)
		st := headingStyles[m[1][0]-'0']
		style := "font-size:" + st.size + ";font-weight:700;text-align:" + st.align + ";margin:1em 0 0.6em;"
		return paragraph(style, strings.TrimSpace(m[2]))
	})
}

func paragraph(style, text string) string {
	if style == "" {
		return "<p>" + text + "</p>"
	}
	return `<p style="` + style + `">` + text + "</p>"
}

func normalizeForWord(s string) string {
	return flattenLists(convertHeadings(s))
}
