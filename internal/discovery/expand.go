package discovery

import (
	"regexp"
	"strings"

	"github.com/sells-group/niche-scout/internal/config"
	"github.com/sells-group/niche-scout/internal/model"
)

// maxQueryWords is the longest topic still treated as a product search.
const maxQueryWords = 8

// informationalPattern matches searches for information rather than a
// product.
var informationalPattern = regexp.MustCompile(`(?i)\b(how to|what is|why|when|where|tutorial|guide|tips|best way|vs|versus|comparison|review|reviews|near me|store|buy online)\b`)

// accessoryPattern matches keywords that already name an accessory.
var accessoryPattern = regexp.MustCompile(`(?i)\b(case|cases|cover|covers|charger|chargers|stand|stands|holder|holders|mount|mounts|strap|straps|sleeve|sleeves|adapter|adapters|cable|cables|liner|liners|accessory|accessories)\b`)

// Expansion is a keyword template: Suffix is appended to a trend topic and
// the result carries Niche.
type Expansion struct {
	Suffix string
	Niche  model.Niche
}

// DefaultExpansions returns the accessory, alternative, and kit templates.
func DefaultExpansions() []Expansion {
	return []Expansion{
		{Suffix: "accessories", Niche: model.NicheAccessory},
		{Suffix: "alternative", Niche: model.NicheAlternative},
		{Suffix: "kit", Niche: model.NicheComplementary},
	}
}

// ExpansionsFromConfig converts configured templates, skipping blank ones.
func ExpansionsFromConfig(cfgs []config.ExpansionConfig) []Expansion {
	out := make([]Expansion, 0, len(cfgs))
	for _, c := range cfgs {
		suffix := NormalizeName(c.Suffix)
		if suffix == "" {
			continue
		}
		out = append(out, Expansion{Suffix: suffix, Niche: model.Niche(strings.ToLower(strings.TrimSpace(c.Niche)))})
	}
	return out
}

// Keyword is one marketplace query derived from a seed.
type Keyword struct {
	Text   string
	Seed   string
	Origin model.Origin
	Niche  model.Niche
	Trend  *model.TrendSignal
}

// IsProductQuery reports whether a trend topic reads like a product search.
func IsProductQuery(q string) bool {
	n := len(strings.Fields(q))
	if n == 0 || n > maxQueryWords {
		return false
	}
	return !informationalPattern.MatchString(q)
}

// ClassifyNiche returns NicheAccessory for keywords naming an accessory.
func ClassifyNiche(keyword string) model.Niche {
	if accessoryPattern.MatchString(keyword) {
		return model.NicheAccessory
	}
	return model.NicheNone
}

// SeedKeywords turns seeds into keywords searched without trend data.
func SeedKeywords(seeds []string) []Keyword {
	var out []Keyword
	seen := make(map[string]bool, len(seeds))
	for _, s := range seeds {
		text := NormalizeName(s)
		id := NormalizeID(text)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, Keyword{Text: text, Seed: text, Origin: model.OriginSeed, Niche: ClassifyNiche(text)})
	}
	return out
}

// Expand filters trend topics down to product queries and derives the
// marketplace keywords. Every kept topic is searched as-is before any
// templated variant, rising topics before stable ones. Falling topics are
// dropped. At most limit keywords are returned when limit > 0.
func Expand(topics []model.TrendTopic, expansions []Expansion, limit int) []Keyword {
	var base []Keyword
	seen := make(map[string]bool)

	for _, dir := range []model.Direction{model.DirectionRising, model.DirectionStable} {
		for _, t := range topics {
			if t.Direction != dir {
				continue
			}
			text := NormalizeName(t.Keyword)
			id := NormalizeID(text)
			if id == "" || seen[id] || !IsProductQuery(text) {
				continue
			}
			seen[id] = true
			base = append(base, Keyword{
				Text:   text,
				Seed:   NormalizeName(t.Seed),
				Origin: model.OriginTrend,
				Niche:  ClassifyNiche(text),
				Trend:  &model.TrendSignal{Keyword: text, Direction: t.Direction, Magnitude: t.Magnitude},
			})
		}
	}

	out := append([]Keyword(nil), base...)
	for _, e := range expansions {
		for _, k := range base {
			if k.Niche == model.NicheAccessory && e.Niche == model.NicheAccessory {
				continue
			}
			text := k.Text + " " + e.Suffix
			id := NormalizeID(text)
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, Keyword{Text: text, Seed: k.Seed, Origin: k.Origin, Niche: e.Niche, Trend: k.Trend})
		}
	}

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
