// Package popsearch logs per-user searches (24 h retention) and rolls them
// up into k-anonymous popularity aggregates. Raw queries never reach the
// aggregate table, and unique-user counts never leave this package.
package popsearch

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// maxNormalizedLen caps stored normalized queries.
const maxNormalizedLen = 200

// PII patterns rejected before a raw query is ever stored. Moroccan phone
// formats (+212 and 06/07 prefixes) are matched explicitly because local
// numbers are shorter than the generic ten-digit rule.
var (
	emailPattern         = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	longPhonePattern     = regexp.MustCompile(`(?:\d[\s\-.()]?){10,}`)
	urlPattern           = regexp.MustCompile(`(?i)(?:https?://|www\.)\S+`)
	moroccanPhonePattern = regexp.MustCompile(`(?:\+212|00212|0[67])[\s\-.]?(?:\d[\s\-.]?){6,}`)
)

// ContainsPII reports whether a raw query holds an email address, a long
// phone number, a URL, or a Moroccan phone number.
func ContainsPII(query string) bool {
	return emailPattern.MatchString(query) ||
		longPhonePattern.MatchString(query) ||
		urlPattern.MatchString(query) ||
		moroccanPhonePattern.MatchString(query)
}

// arabicTranslit maps Arabic letters to a Latin romanisation so that
// "كسكس" and "kskس"-style mixed spellings group onto one aggregate row.
// Diacritics (tashkeel) are dropped.
var arabicTranslit = map[rune]string{
	'ا': "a", 'أ': "a", 'إ': "i", 'آ': "a", 'ء': "", 'ئ': "i", 'ؤ': "o",
	'ب': "b", 'ت': "t", 'ث': "th", 'ج': "j", 'ح': "h", 'خ': "kh",
	'د': "d", 'ذ': "dh", 'ر': "r", 'ز': "z", 'س': "s", 'ش': "sh",
	'ص': "s", 'ض': "d", 'ط': "t", 'ظ': "z", 'ع': "a", 'غ': "gh",
	'ف': "f", 'ق': "q", 'ك': "k", 'ل': "l", 'م': "m", 'ن': "n",
	'ه': "h", 'و': "w", 'ي': "y", 'ى': "a", 'ة': "a",
	'ـ': "", 'َ': "", 'ُ': "", 'ِ': "", 'ّ': "", 'ْ': "", 'ً': "", 'ٌ': "", 'ٍ': "",
}

func transliterate(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if t, ok := arabicTranslit[r]; ok {
			sb.WriteString(t)
		} else {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// Normalize lowercases, trims, collapses whitespace, transliterates Arabic
// script, and truncates a query for aggregation.
func Normalize(query string) string {
	q := transliterate(strings.ToLower(strings.TrimSpace(query)))
	q = strings.Join(strings.Fields(q), " ")
	if len(q) > maxNormalizedLen {
		cut := maxNormalizedLen
		// Back up to a rune boundary so a multi-byte rune is never split.
		for cut > 0 && !utf8.RuneStart(q[cut]) {
			cut--
		}
		q = q[:cut]
	}
	return q
}
