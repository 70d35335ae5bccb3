// Package normalize converts raw medication strings into canonical token
// sequences and numeric-strength features. All functions are pure and
// deterministic; normalizing already-normalized text changes nothing.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/rxbridge/rxmatch/internal/models"
)

var bracketRe = regexp.MustCompile(`\[([^\]]*)\]`)

// diacriticStripper removes combining marks after NFD decomposition.
var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize converts text into its canonical token form: lowercased,
// diacritics stripped, bracketed brand segments split into standalone tokens,
// abbreviations expanded, unit spellings canonicalized to uppercase, alphabetic
// tokens suffix-stemmed, duplicates removed preserving first-seen order.
func Normalize(text string) models.NormalizedText {
	tokens := Tokens(text)
	return models.NormalizedText{
		Tokens:  tokens,
		Numeric: ExtractNumericFeatures(tokens),
	}
}

// Tokens returns the canonical token sequence of text without numeric
// feature extraction.
func Tokens(text string) []string {
	text = strings.ToLower(text)
	if stripped, _, err := transform.String(diacriticStripper, text); err == nil {
		text = stripped
	}

	// Bracketed brand segments become standalone tokens in place.
	text = bracketRe.ReplaceAllString(text, " $1 ")

	raw := splitTokens(text)

	out := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, tok := range raw {
		for _, t := range canonicalize(tok) {
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// BracketSegments returns the raw contents of bracketed segments in text,
// in order of appearance. Used by the catalog to extract brand names.
func BracketSegments(text string) []string {
	var segs []string
	for _, m := range bracketRe.FindAllStringSubmatch(text, -1) {
		if s := strings.TrimSpace(m[1]); s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// splitTokens splits on every rune that is not a letter, digit, or one of the
// significant characters '.', '/', '%'.
func splitTokens(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
		return r != '.' && r != '/' && r != '%'
	})
}

// canonicalize maps one raw token to zero or more canonical tokens:
// fused number+unit tokens are split, percent signs detached, unit spellings
// uppercased, abbreviations expanded, and alphabetic tokens stemmed.
func canonicalize(tok string) []string {
	tok = strings.Trim(tok, "./")
	if tok == "" {
		return nil
	}

	// "5%" -> "5", "%"
	if strings.HasSuffix(tok, "%") && len(tok) > 1 {
		return append(canonicalize(strings.TrimSuffix(tok, "%")), "%")
	}

	// "10mg" or "0.5ml" -> number + unit
	if num, unit, ok := splitFused(tok); ok {
		return append(canonicalize(num), canonicalize(unit)...)
	}

	if u, ok := canonicalUnit(tok); ok {
		return []string{u}
	}
	if exp, ok := abbreviations[tok]; ok {
		tok = exp
	}
	return []string{stem(tok)}
}

// canonicalUnit canonicalizes tok as a unit spelling, handling compound
// per-volume units like "mg/ml".
func canonicalUnit(tok string) (string, bool) {
	if u, ok := unitSpelling[tok]; ok {
		return u, true
	}
	if num, den, ok := strings.Cut(tok, "/"); ok {
		un, okN := unitSpelling[num]
		ud, okD := unitSpelling[den]
		if okN && okD {
			return un + "/" + ud, true
		}
	}
	// Already-canonical forms pass through so normalization is idempotent.
	if _, ok := unitInfo[strings.ToUpper(tok)]; ok {
		return strings.ToUpper(tok), true
	}
	return "", false
}

// splitFused splits a fused number+unit token ("10mg", "0.05%"). The alpha
// tail must be a recognized unit spelling; otherwise the token is left whole.
func splitFused(tok string) (num, unit string, ok bool) {
	i := 0
	for i < len(tok) && (isDigitByte(tok[i]) || tok[i] == '.') {
		i++
	}
	if i == 0 || i == len(tok) {
		return "", "", false
	}
	head, tail := tok[:i], tok[i:]
	if !isNumber(head) {
		return "", "", false
	}
	if _, known := canonicalUnit(tail); !known {
		return "", "", false
	}
	return head, tail, true
}

// stem strips the suffixes ing, ed, ly, es, s from alphabetic tokens of at
// least four characters, iterating to a fixpoint so that stemming is
// idempotent. Numeric and unit tokens are untouched.
func stem(tok string) string {
	for {
		next := stemOnce(tok)
		if next == tok {
			return tok
		}
		tok = next
	}
}

var stemSuffixes = []string{"ing", "ed", "ly", "es", "s"}

func stemOnce(tok string) string {
	if len(tok) < 4 || !isLowerAlpha(tok) {
		return tok
	}
	for _, suf := range stemSuffixes {
		if !strings.HasSuffix(tok, suf) {
			continue
		}
		rest := strings.TrimSuffix(tok, suf)
		if len(rest) < 3 {
			continue
		}
		if suf == "s" && (strings.HasSuffix(rest, "s") || strings.HasSuffix(rest, "u")) {
			// "class", "bolus" keep their final s.
			continue
		}
		return rest
	}
	return tok
}

func isLowerAlpha(s string) bool {
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return s != ""
}

func isDigitByte(b byte) bool { return b >= '0' && b <= '9' }

// isNumber reports whether s parses as a plain decimal number.
func isNumber(s string) bool {
	if s == "" {
		return false
	}
	dots := 0
	for i := 0; i < len(s); i++ {
		switch {
		case isDigitByte(s[i]):
		case s[i] == '.':
			dots++
			if dots > 1 {
				return false
			}
		default:
			return false
		}
	}
	return s != "."
}

// IsNumericToken reports whether tok is a plain number.
func IsNumericToken(tok string) bool { return isNumber(tok) }

// IsUnitToken reports whether tok is a canonical unit, including compound
// per-volume units built from two recognized units.
func IsUnitToken(tok string) bool {
	if _, ok := unitInfo[tok]; ok {
		return true
	}
	if num, den, ok := strings.Cut(tok, "/"); ok {
		_, okN := unitInfo[num]
		_, okD := unitInfo[den]
		return okN && okD
	}
	return false
}

// IsFormToken reports whether tok is a dose-form keyword.
func IsFormToken(tok string) bool { return formWords[tok] }

// IsStopword reports whether tok is a connective stopword.
func IsStopword(tok string) bool { return stopwords[tok] }

// IsRouteWord reports whether tok names an administration route.
func IsRouteWord(tok string) bool {
	_, ok := routeWords[tok]
	return ok
}

// DrugWords returns the tokens that are candidate drug words: not numbers,
// units, dose-form keywords, route words, or stopwords.
func DrugWords(tokens []string) []string {
	var words []string
	for _, t := range tokens {
		if t == "%" || IsNumericToken(t) || IsUnitToken(t) || IsFormToken(t) || IsRouteWord(t) || IsStopword(t) {
			continue
		}
		words = append(words, t)
	}
	return words
}

// DetectRoute returns the first route hinted by the token sequence, or
// RouteUnknown when no route word is present.
func DetectRoute(tokens []string) models.Route {
	for _, t := range tokens {
		if r, ok := routeWords[t]; ok {
			return r
		}
	}
	return models.RouteUnknown
}
