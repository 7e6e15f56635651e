package generator

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MinTopicLength = 10
	MaxTopicLength = 500
)

var forbiddenTopic = regexp.MustCompile(`(?i)<script|javascript:|data:`)

// Validate checks req before anything touches the network. Checks run in a
// fixed order and stop at the first failure. Lengths count runes of the
// trimmed topic.
func Validate(req Request) error {
	topic := strings.TrimSpace(req.Topic)
	n := utf8.RuneCountInString(topic)
	switch {
	case n == 0:
		return &ValidationError{Field: "topic", Err: ErrTopicEmpty}
	case n < MinTopicLength:
		return &ValidationError{Field: "topic", Err: ErrTopicTooShort}
	case n > MaxTopicLength:
		return &ValidationError{Field: "topic", Err: ErrTopicTooLong}
	case forbiddenTopic.MatchString(topic):
		return &ValidationError{Field: "topic", Err: ErrInvalidCharacters}
	}

	switch req.AcademicLevel {
	case LevelS1, LevelS2, LevelS3:
	default:
		return &ValidationError{Field: "academicLevel", Err: ErrInvalidField}
	}
	switch req.WritingStyle {
	case StyleFormal, StyleInformal:
	default:
		return &ValidationError{Field: "writingStyle", Err: ErrInvalidField}
	}
	switch req.Language {
	case LanguageIndonesian, LanguageEnglish:
	default:
		return &ValidationError{Field: "language", Err: ErrInvalidField}
	}
	switch req.CitationStyle {
	case CitationAPA, CitationMLA, CitationIEEE:
	default:
		return &ValidationError{Field: "citationStyle", Err: ErrInvalidField}
	}
	return nil
}

// sanitizeTopic strips angle brackets on top of Validate.
func sanitizeTopic(topic string) string {
	return strings.TrimSpace(strings.NewReplacer("<", "", ">", "").Replace(topic))
}
