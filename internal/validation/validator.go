package validation

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	DefaultMinLength = 3
	DefaultMaxLength = 1000

	MinRating = 1
	MaxRating = 5
)

var (
	forbiddenPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<script.*?>.*?</script>`),
		regexp.MustCompile(`(?i)javascript:`),
		regexp.MustCompile(`(?i)on\w+\s*=`),
	}

	tagPattern = regexp.MustCompile(`<[^>]+>`)
)

// Validator holds the length bounds; everything else is stateless.
type Validator struct {
	minLength int
	maxLength int
}

func New(minLength, maxLength int) *Validator {
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &Validator{minLength: minLength, maxLength: maxLength}
}

func (v *Validator) MinLength() int { return v.minLength }
func (v *Validator) MaxLength() int { return v.maxLength }

// ValidateQuery checks the raw, trimmed text. It does not sanitize.
func (v *Validator) ValidateQuery(query string) bool {
	query = strings.TrimSpace(query)
	if query == "" {
		return false
	}
	return v.CheckLength(query) && v.CheckSafety(query)
}

// CheckLength counts characters, not bytes, after trimming.
func (v *Validator) CheckLength(text string) bool {
	n := utf8.RuneCountInString(strings.TrimSpace(text))
	return v.minLength <= n && n <= v.maxLength
}

func (v *Validator) CheckSafety(text string) bool {
	for _, p := range forbiddenPatterns {
		if p.MatchString(text) {
			return false
		}
	}
	return true
}

// SanitizeInput strips markup tags and NUL bytes and collapses whitespace.
// The result is a fixed point, so sanitizing twice changes nothing.
func (v *Validator) SanitizeInput(input string) string {
	for {
		next := sanitizeOnce(input)
		if next == input {
			return next
		}
		input = next
	}
}

func sanitizeOnce(s string) string {
	s = tagPattern.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.Join(strings.Fields(s), " ")
}

// ValidateRating accepts only integer kinds in [1,5].
func (v *Validator) ValidateRating(rating any) bool {
	var n int64
	switch r := rating.(type) {
	case int:
		n = int64(r)
	case int8:
		n = int64(r)
	case int16:
		n = int64(r)
	case int32:
		n = int64(r)
	case int64:
		n = r
	case uint:
		if r > MaxRating {
			return false
		}
		n = int64(r)
	case uint8:
		n = int64(r)
	case uint16:
		n = int64(r)
	case uint32:
		n = int64(r)
	case uint64:
		if r > MaxRating {
			return false
		}
		n = int64(r)
	default:
		return false
	}
	return n >= MinRating && n <= MaxRating
}

// ValidateFeedbackComment treats an empty comment as valid.
func (v *Validator) ValidateFeedbackComment(comment string) bool {
	if comment == "" {
		return true
	}
	return v.CheckLength(comment) && v.CheckSafety(comment)
}
