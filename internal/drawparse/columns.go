package drawparse

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var underscoreRuns = regexp.MustCompile(`_+`)

var (
	dateAliases = []string{"date_de_tirage", "date_tirage", "date_du_tirage", "date_du_jeu", "date"}

	mainCombinedAliases = []string{
		"combinaison_gagnante_en_ordre_croissant",
		"boules_gagnantes_en_ordre_croissant",
		"numeros_gagnants_en_ordre_croissant",
		"numeros_gagnants",
	}

	lotoChanceAliases = []string{"numero_chance", "numero_de_chance", "num_chance", "chance"}

	starsCombinedAliases = []string{
		"etoiles_gagnantes_en_ordre_croissant",
		"etoiles_gagnantes",
		"stars_gagnantes_en_ordre_croissant",
		"stars_gagnantes",
	}
)

// columnIndex maps normalized header names to their first position, keeping header order for token scans.
type columnIndex struct {
	positions map[string]int
	ordered   []string
}

func buildColumnIndex(headers []string) columnIndex {
	index := columnIndex{positions: make(map[string]int, len(headers))}
	for position, header := range headers {
		normalized := normalizeHeader(header)
		if normalized == "" {
			continue
		}
		if _, exists := index.positions[normalized]; exists {
			continue
		}
		index.positions[normalized] = position
		index.ordered = append(index.ordered, normalized)
	}
	return index
}

// normalizeHeader strips diacritics, lower-cases letters and digits and folds everything else to single underscores.
func normalizeHeader(header string) string {
	stripped, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn))), header)
	if err != nil {
		stripped = header
	}
	var builder strings.Builder
	for _, r := range stripped {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			builder.WriteRune(unicode.ToLower(r))
		} else {
			builder.WriteByte('_')
		}
	}
	return strings.Trim(underscoreRuns.ReplaceAllString(builder.String(), "_"), "_")
}

// columnResolver finds the position of one semantic column within a header set.
type columnResolver func(index columnIndex) (int, bool)

func byAliases(aliases ...string) columnResolver {
	return func(index columnIndex) (int, bool) {
		for _, alias := range aliases {
			if position, ok := index.positions[alias]; ok {
				return position, true
			}
		}
		return 0, false
	}
}

func byTokens(tokens ...string) columnResolver {
	return func(index columnIndex) (int, bool) {
		for _, header := range index.ordered {
			if containsAllTokens(header, tokens) {
				return index.positions[header], true
			}
		}
		return 0, false
	}
}

func firstResolved(resolvers ...columnResolver) columnResolver {
	return func(index columnIndex) (int, bool) {
		for _, resolve := range resolvers {
			if position, ok := resolve(index); ok {
				return position, true
			}
		}
		return 0, false
	}
}

func containsAllTokens(header string, tokens []string) bool {
	for _, token := range tokens {
		if !strings.Contains(header, token) {
			return false
		}
	}
	return true
}

func mainNumberAliases(position int) []string {
	return []string{
		fmt.Sprintf("boule_%d", position),
		fmt.Sprintf("boule%d", position),
		fmt.Sprintf("numero_%d", position),
		fmt.Sprintf("numero%d", position),
		fmt.Sprintf("num_%d", position),
		fmt.Sprintf("num%d", position),
		fmt.Sprintf("n_%d", position),
		fmt.Sprintf("n%d", position),
	}
}

func starAliases(position int) []string {
	return []string{
		fmt.Sprintf("etoile_%d", position),
		fmt.Sprintf("etoile%d", position),
		fmt.Sprintf("star_%d", position),
		fmt.Sprintf("star%d", position),
		fmt.Sprintf("lucky_star_%d", position),
		fmt.Sprintf("lucky_star%d", position),
	}
}

var (
	resolveDate = firstResolved(
		byAliases(dateAliases...),
		byTokens("date", "tirage"),
		byTokens("date"),
	)
	resolveMainCombined = firstResolved(
		byAliases(mainCombinedAliases...),
		byTokens("combinaison", "gagnante"),
		byTokens("boules", "gagnantes"),
		byTokens("numeros", "gagnants"),
	)
	resolveLotoChance   = byAliases(lotoChanceAliases...)
	resolveLotoCombined = firstResolved(
		byAliases(mainCombinedAliases...),
		byTokens("combinaison", "gagnante"),
	)
	resolveStar1         = byAliases(starAliases(1)...)
	resolveStar2         = byAliases(starAliases(2)...)
	resolveStarsCombined = firstResolved(
		byAliases(starsCombinedAliases...),
		byTokens("etoiles", "gagnantes"),
		byTokens("stars", "gagnantes"),
	)
)

const unresolved = -1

// columnLayout holds the resolved position of every semantic column for one table; unresolved is -1.
type columnLayout struct {
	date          int
	main          [5]int
	mainCombined  int
	lotoChance    int
	lotoCombined  int
	star1         int
	star2         int
	starsCombined int
}

func resolveLayout(index columnIndex) columnLayout {
	layout := columnLayout{
		date:          positionOrUnresolved(resolveDate(index)),
		mainCombined:  positionOrUnresolved(resolveMainCombined(index)),
		lotoChance:    positionOrUnresolved(resolveLotoChance(index)),
		lotoCombined:  positionOrUnresolved(resolveLotoCombined(index)),
		star1:         positionOrUnresolved(resolveStar1(index)),
		star2:         positionOrUnresolved(resolveStar2(index)),
		starsCombined: positionOrUnresolved(resolveStarsCombined(index)),
	}
	for i := range layout.main {
		layout.main[i] = positionOrUnresolved(byAliases(mainNumberAliases(i + 1)...)(index))
	}
	return layout
}

// hasMinimumColumns requires a date column and either the first main-number column or a combined column.
func hasMinimumColumns(index columnIndex) bool {
	if _, ok := byAliases(dateAliases...)(index); !ok {
		return false
	}
	if _, ok := byAliases(mainNumberAliases(1)...)(index); ok {
		return true
	}
	_, ok := byAliases(mainCombinedAliases...)(index)
	return ok
}

func positionOrUnresolved(position int, ok bool) int {
	if !ok {
		return unresolved
	}
	return position
}
