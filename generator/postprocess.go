package generator

import (
	"regexp"
	"strings"
)

// 模型被要求只输出 JSON，但常见的偏差有：代码块包裹、控制字符、字符串拼接、
// 字符串内的裸换行、多余/缺失的逗号。下面每一步都是独立的文本修复，按固定顺序执行。

var (
	fenceRe          = regexp.MustCompile("(?i)```json\\s*|\\s*```")
	controlRe        = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F-\x{9F}]`)
	concatRe         = regexp.MustCompile(`"\s*\+\s*"`)
	trailingCommaRe  = regexp.MustCompile(`,(\s*[}\]])`)
	missingCommaRe   = regexp.MustCompile(`\](\s*["\w])`)
	repeatedCommasRe = regexp.MustCompile(`,{2,}`)
)

type repairPass struct {
	name string
	fn   func(string) string
}

var repairPasses = []repairPass{
	{"strip fences", stripFences},
	{"strip control characters", stripControl},
	{"join concatenations", joinConcatenations},
	{"collapse newlines", collapseNewlines},
	{"drop trailing commas", dropTrailingCommas},
	{"insert missing commas", insertMissingCommas},
	{"squeeze commas", squeezeCommas},
	{"trim", strings.TrimSpace},
}

// Repair runs every pass over raw and returns the cleaned text.
func Repair(raw string) string {
	s := raw
	for _, p := range repairPasses {
		s = p.fn(s)
	}
	return s
}

func stripFences(s string) string { return fenceRe.ReplaceAllString(s, "") }

// stripControl keeps \t, \n and \r; collapseNewlines deals with those.
func stripControl(s string) string { return controlRe.ReplaceAllString(s, "") }

func joinConcatenations(s string) string { return concatRe.ReplaceAllString(s, "") }

// collapseNewlines turns line breaks between tokens into a single space. Inside
// a string literal raw line breaks and tabs become escapes so the value keeps them.
func collapseNewlines(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
				// 反斜杠后紧跟原始换行（含 CRLF）时按 \n 处理
				switch ch {
				case '\r':
					ch = 'n'
					if i+1 < len(s) && s[i+1] == '\n' {
						i++
					}
				case '\n':
					ch = 'n'
				case '\t':
					ch = 't'
				}
				b.WriteByte(ch)
			case ch == '\\':
				escaped = true
				b.WriteByte(ch)
			case ch == '"':
				inString = false
				b.WriteByte(ch)
			case ch == '\n':
				b.WriteString(`\n`)
			case ch == '\t':
				b.WriteString(`\t`)
			case ch == '\r':
			default:
				b.WriteByte(ch)
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
			b.WriteByte(ch)
		case '\n', '\r':
			j := i
			for j < len(s) && isLineSpace(s[j]) {
				j++
			}
			b.WriteByte(' ')
			i = j - 1
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

func isLineSpace(c byte) bool {
	return c == '\n' || c == '\r' || c == ' ' || c == '\t'
}

func dropTrailingCommas(s string) string { return trailingCommaRe.ReplaceAllString(s, "$1") }

// insertMissingCommas 处理 `] "next"` 这类数组后缺逗号的情况。
// 注意它也会改写字符串值里的 "] word"，这是已知的取舍。
func insertMissingCommas(s string) string { return missingCommaRe.ReplaceAllString(s, "],$1") }

func squeezeCommas(s string) string { return repeatedCommasRe.ReplaceAllString(s, ",") }
