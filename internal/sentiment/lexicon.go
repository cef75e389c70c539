// Package sentiment scores discussion text and summarizes a set of posts
// into a sentiment signal.
package sentiment

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// Scorer maps text to a polarity in [-1, 1].
type Scorer func(text string) float64

// alpha is the normalization constant for compound scores.
const alpha = 15.0

var (
	urlRe      = regexp.MustCompile(`https?://\S+|www\.\S+`)
	mdLinkRe   = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	mdEmphRe   = regexp.MustCompile(`[*_]{1,2}([^*_]+)[*_]{1,2}`)
	negations  = map[string]bool{"not": true, "no": true, "never": true, "dont": true, "don't": true, "isnt": true, "isn't": true, "wasnt": true, "wasn't": true, "cant": true, "can't": true, "without": true}
	negateSpan = 3
)

// Lexicon is a phrase and word valence table.
type Lexicon struct {
	phrases []phrase
	words   map[string]float64
}

type phrase struct {
	text    string
	valence float64
}

// NewLexicon builds a lexicon. Entries containing a space are matched as
// phrases before single words are considered.
func NewLexicon(entries map[string]float64) *Lexicon {
	l := &Lexicon{words: make(map[string]float64)}
	for k, v := range entries {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if strings.Contains(k, " ") {
			l.phrases = append(l.phrases, phrase{text: k, valence: v})
		} else {
			l.words[k] = v
		}
	}
	// Longest phrases match first.
	sort.Slice(l.phrases, func(i, j int) bool {
		if len(l.phrases[i].text) != len(l.phrases[j].text) {
			return len(l.phrases[i].text) > len(l.phrases[j].text)
		}
		return l.phrases[i].text < l.phrases[j].text
	})
	return l
}

var defaultLexicon = NewLexicon(map[string]float64{
	// Product-review phrases.
	"worth it":              2.5,
	"game changer":          3.0,
	"holy grail":            3.0,
	"must have":             2.5,
	"highly recommend":      3.0,
	"best purchase":         3.0,
	"exceeded expectations": 2.5,
	"well made":             2.0,
	"great quality":         2.5,
	"love it":               2.5,
	"bang for buck":         2.5,
	"value for money":       2.0,
	"waste of money":        -3.0,
	"cheaply made":          -2.5,
	"fell apart":            -2.5,
	"returned it":           -2.0,
	"don't buy":             -3.0,
	"rip off":               -3.0,
	"buyer beware":          -2.5,
	"stopped working":       -2.5,

	// Single words.
	"perfect":       2.5,
	"durable":       1.5,
	"sturdy":        1.5,
	"reliable":      1.5,
	"love":          2.0,
	"great":         2.0,
	"excellent":     2.5,
	"amazing":       2.5,
	"awesome":       2.5,
	"good":          1.5,
	"best":          2.0,
	"recommend":     1.5,
	"happy":         1.5,
	"useful":        1.5,
	"solid":         1.0,
	"broke":         -2.0,
	"broken":        -2.0,
	"avoid":         -2.5,
	"scam":          -3.5,
	"ripoff":        -3.0,
	"overpriced":    -2.0,
	"disappointing": -2.0,
	"disappointed":  -2.0,
	"flimsy":        -2.0,
	"junk":          -2.5,
	"garbage":       -3.0,
	"bad":           -1.5,
	"terrible":      -2.5,
	"awful":         -2.5,
	"worst":         -3.0,
	"hate":          -2.5,
	"useless":       -2.5,
	"defective":     -2.5,
	"refund":        -1.5,
	"poor":          -1.5,
})

// DefaultLexicon returns the built-in product-review lexicon.
func DefaultLexicon() *Lexicon {
	return defaultLexicon
}

// ScoreText scores text with the built-in lexicon.
func ScoreText(text string) float64 {
	return defaultLexicon.Score(text)
}

// Score returns the normalized compound valence of text in [-1, 1]. Empty
// or neutral text scores 0.
func (l *Lexicon) Score(text string) float64 {
	text = l.preprocess(text)
	if text == "" {
		return 0
	}

	var sum float64
	padded := " " + text + " "
	for _, p := range l.phrases {
		needle := " " + p.text + " "
		if n := strings.Count(padded, needle); n > 0 {
			sum += float64(n) * p.valence
			padded = strings.ReplaceAll(padded, needle, " ")
		}
	}

	negateLeft := 0
	for _, tok := range strings.Fields(padded) {
		if negations[tok] {
			negateLeft = negateSpan
			continue
		}
		if v, ok := l.words[tok]; ok {
			if negateLeft > 0 {
				v = -v * 0.74
				negateLeft = 0
			}
			sum += v
			continue
		}
		if negateLeft > 0 {
			negateLeft--
		}
	}

	if sum == 0 {
		return 0
	}
	return sum / math.Sqrt(sum*sum+alpha)
}

func (l *Lexicon) preprocess(text string) string {
	text = urlRe.ReplaceAllString(text, " ")
	text = mdLinkRe.ReplaceAllString(text, "$1")
	text = mdEmphRe.ReplaceAllString(text, "$1")
	// A Caser is stateful, so each call gets its own.
	text = cases.Fold().String(text)

	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	for i, f := range fields {
		fields[i] = strings.Trim(f, "'")
	}
	return strings.Join(fields, " ")
}
