package payload

import (
	"regexp/syntax"
	"strings"
	"unicode"
)

// preferredRunes are tried in order when a character class has to be
// satisfied; the first one the class accepts is used.
var preferredRunes = []rune{'f', 'a', 'A', '0', '_', '-', '.'}

// matchPattern builds one string matching pattern. It is deterministic: the
// first alternative of every alternation is taken and every repetition is
// emitted the minimum number of times. ok is false for patterns that do not
// compile or cannot match anything.
func matchPattern(pattern string) (string, bool) {
	re, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return "", false
	}
	var b strings.Builder
	if !emitPattern(&b, re.Simplify()) {
		return "", false
	}
	return b.String(), true
}

func emitPattern(b *strings.Builder, re *syntax.Regexp) bool {
	switch re.Op {
	case syntax.OpNoMatch:
		return false
	case syntax.OpLiteral:
		for _, r := range re.Rune {
			b.WriteRune(r)
		}
	case syntax.OpCharClass:
		r, ok := pickRune(re.Rune)
		if !ok {
			return false
		}
		b.WriteRune(r)
	case syntax.OpAnyChar, syntax.OpAnyCharNotNL:
		b.WriteRune(preferredRunes[0])
	case syntax.OpCapture:
		return emitPattern(b, re.Sub[0])
	case syntax.OpStar, syntax.OpQuest:
	case syntax.OpPlus:
		return emitPattern(b, re.Sub[0])
	case syntax.OpRepeat:
		for i := 0; i < re.Min; i++ {
			if !emitPattern(b, re.Sub[0]) {
				return false
			}
		}
	case syntax.OpConcat:
		for _, sub := range re.Sub {
			if !emitPattern(b, sub) {
				return false
			}
		}
	case syntax.OpAlternate:
		for _, sub := range re.Sub {
			var alt strings.Builder
			if emitPattern(&alt, sub) {
				b.WriteString(alt.String())
				return true
			}
		}
		return false
	}
	// Anchors, word boundaries and empty matches emit nothing.
	return true
}

// pickRune chooses a printable rune from a character class given as
// [lo, hi] pairs.
func pickRune(ranges []rune) (rune, bool) {
	in := func(r rune) bool {
		for i := 0; i+1 < len(ranges); i += 2 {
			if ranges[i] <= r && r <= ranges[i+1] {
				return true
			}
		}
		return false
	}
	for _, r := range preferredRunes {
		if in(r) {
			return r, true
		}
	}
	for i := 0; i+1 < len(ranges); i += 2 {
		lo, hi := ranges[i], ranges[i+1]
		if lo < ' ' {
			lo = ' '
		}
		for r := lo; r <= hi && r <= lo+0xff; r++ {
			if unicode.IsPrint(r) {
				return r, true
			}
		}
	}
	return 0, false
}
