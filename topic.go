package mqttbus

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	topicSeparator      = "/"
	singleLevelWildcard = "+"
	multiLevelWildcard  = "#"
)

// TopicPath is a concrete topic split into its levels.
// Empty levels are preserved, so "a//b" has three levels and "" has one.
type TopicPath []string

// ParseTopicPath splits a topic name on "/".
func ParseTopicPath(topic string) TopicPath {
	return strings.Split(topic, topicSeparator)
}

// String joins the levels back into a topic name.
func (p TopicPath) String() string {
	return strings.Join(p, topicSeparator)
}

type tokenKind uint8

const (
	tokenLiteral tokenKind = iota
	tokenSingleLevel
	tokenMultiLevel
)

type filterToken struct {
	kind    tokenKind
	literal string
}

// TopicFilter is a parsed subscription pattern. It is immutable once parsed
// and is identified by its pattern string.
type TopicFilter struct {
	pattern string
	tokens  []filterToken
}

// ParseTopicFilter parses a subscription pattern.
//
// "+" must occupy a whole level and matches exactly one level, including an
// empty one. "#" must occupy a whole level and matches all remaining levels,
// including none. A "#" that is not the last level is accepted; matching
// stops at the first "#", so later levels are never evaluated. Use
// ValidateTopicFilter to reject such filters.
func ParseTopicFilter(filter string) (*TopicFilter, error) {
	if !utf8.ValidString(filter) {
		return nil, invalidFilter(filter, "invalid UTF-8")
	}

	for _, r := range filter {
		if unicode.IsControl(r) {
			return nil, invalidFilter(filter, "contains control character")
		}
	}

	levels := strings.Split(filter, topicSeparator)
	tokens := make([]filterToken, len(levels))

	for i, level := range levels {
		switch {
		case level == singleLevelWildcard:
			tokens[i] = filterToken{kind: tokenSingleLevel}
		case level == multiLevelWildcard:
			tokens[i] = filterToken{kind: tokenMultiLevel}
		case strings.ContainsAny(level, singleLevelWildcard+multiLevelWildcard):
			return nil, invalidFilter(filter, "wildcard must occupy an entire level")
		default:
			tokens[i] = filterToken{kind: tokenLiteral, literal: level}
		}
	}

	return &TopicFilter{pattern: filter, tokens: tokens}, nil
}

// MustParseTopicFilter is like ParseTopicFilter but panics on error.
func MustParseTopicFilter(filter string) *TopicFilter {
	f, err := ParseTopicFilter(filter)
	if err != nil {
		panic(err)
	}
	return f
}

// ValidateTopicFilter parses the filter and additionally requires "#" to be
// the last level, as the MQTT standard does.
func ValidateTopicFilter(filter string) error {
	f, err := ParseTopicFilter(filter)
	if err != nil {
		return err
	}

	for i, tok := range f.tokens {
		if tok.kind == tokenMultiLevel && i != len(f.tokens)-1 {
			return invalidFilter(filter, "multi-level wildcard must be the last level")
		}
	}

	return nil
}

// ValidateTopicName checks that a topic can be published to: it must be
// non-empty UTF-8 without NUL characters or wildcards.
func ValidateTopicName(topic string) error {
	if topic == "" {
		return ErrInvalidTopicName
	}

	if !utf8.ValidString(topic) {
		return ErrInvalidTopicName
	}

	if strings.ContainsAny(topic, "\x00"+singleLevelWildcard+multiLevelWildcard) {
		return ErrInvalidTopicName
	}

	return nil
}

// String returns the filter pattern.
func (f *TopicFilter) String() string {
	return f.pattern
}

// Levels returns the number of levels in the pattern.
func (f *TopicFilter) Levels() int {
	return len(f.tokens)
}

// HasWildcard reports whether the filter contains "+" or "#".
func (f *TopicFilter) HasWildcard() bool {
	for _, tok := range f.tokens {
		if tok.kind != tokenLiteral {
			return true
		}
	}
	return false
}

// Equal reports whether both filters have the same pattern.
func (f *TopicFilter) Equal(other *TopicFilter) bool {
	if f == nil || other == nil {
		return f == other
	}
	return f.pattern == other.pattern
}

// Match reports whether the topic path matches the filter.
func (f *TopicFilter) Match(path TopicPath) bool {
	pi := 0

	for _, tok := range f.tokens {
		switch tok.kind {
		case tokenMultiLevel:
			return true

		case tokenSingleLevel:
			if pi >= len(path) {
				return false
			}

		default:
			if pi >= len(path) || path[pi] != tok.literal {
				return false
			}
		}
		pi++
	}

	// Filter exhausted - path must also be exhausted
	return pi == len(path)
}

// MatchTopic parses the topic and matches it against the filter.
func (f *TopicFilter) MatchTopic(topic string) bool {
	return f.Match(ParseTopicPath(topic))
}

// TopicMatch reports whether topic matches filter. Invalid filters never match.
func TopicMatch(filter, topic string) bool {
	f, err := ParseTopicFilter(filter)
	if err != nil {
		return false
	}
	return f.MatchTopic(topic)
}
