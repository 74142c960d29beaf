package drawparse

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/drawsync/internal/lottery"
)

var (
	errMissingDate  = errors.New("date column missing or empty")
	errInvalidDate  = errors.New("unrecognized date format")
	errMissingMain  = errors.New("main numbers not found")
	errMissingBonus = errors.New("bonus numbers not found")
)

var (
	integerPattern  = regexp.MustCompile(`\d+`)
	drawDateLayouts = []string{"02/01/2006", "2/1/2006", "2006-01-02", "02-01-2006", "2-1-2006"}
)

// mapRow turns one record into a validated draw. Numbers are sorted per zone before validation.
func mapRow(rules lottery.Rules, layout columnLayout, fields []string) (ParsedDraw, error) {
	rawDate := fieldAt(fields, layout.date)
	if rawDate == "" {
		return ParsedDraw{}, errMissingDate
	}
	drawDate, err := parseDrawDate(rawDate)
	if err != nil {
		return ParsedDraw{}, err
	}

	main, ok := mainNumbers(layout, fields)
	if !ok {
		return ParsedDraw{}, errMissingMain
	}

	bonus, ok := bonusNumbers(rules.Game, layout, fields)
	if !ok {
		return ParsedDraw{}, errMissingBonus
	}

	sort.Ints(main)
	sort.Ints(bonus)
	if err := rules.ValidateNumbers(main, bonus); err != nil {
		return ParsedDraw{}, err
	}

	return ParsedDraw{Date: drawDate, Main: main, Bonus: bonus}, nil
}

func parseDrawDate(raw string) (lottery.Date, error) {
	for _, layout := range drawDateLayouts {
		parsed, err := time.Parse(layout, raw)
		if err == nil {
			return lottery.DateOf(parsed), nil
		}
	}
	return lottery.Date{}, fmt.Errorf("%w: %q", errInvalidDate, raw)
}

func mainNumbers(layout columnLayout, fields []string) ([]int, bool) {
	discrete := make([]int, 0, len(layout.main))
	for _, position := range layout.main {
		if number, ok := parseInteger(fieldAt(fields, position)); ok {
			discrete = append(discrete, number)
		}
	}
	if len(discrete) == len(layout.main) {
		return discrete, true
	}

	if layout.mainCombined == unresolved {
		return nil, false
	}
	extracted := extractIntegers(fieldAt(fields, layout.mainCombined), len(layout.main))
	if len(extracted) != len(layout.main) {
		return nil, false
	}
	return extracted, true
}

func bonusNumbers(game lottery.Game, layout columnLayout, fields []string) ([]int, bool) {
	switch game {
	case lottery.GameLoto:
		if chance, ok := parseInteger(fieldAt(fields, layout.lotoChance)); ok {
			return []int{chance}, true
		}
		if layout.lotoCombined == unresolved {
			return nil, false
		}
		combined := extractIntegers(fieldAt(fields, layout.lotoCombined), 0)
		if len(combined) < 6 {
			return nil, false
		}
		return []int{combined[len(combined)-1]}, true
	case lottery.GameEuroMillions:
		first, okFirst := parseInteger(fieldAt(fields, layout.star1))
		second, okSecond := parseInteger(fieldAt(fields, layout.star2))
		if okFirst && okSecond {
			return []int{first, second}, true
		}
		if layout.starsCombined == unresolved {
			return nil, false
		}
		stars := extractIntegers(fieldAt(fields, layout.starsCombined), 2)
		if len(stars) != 2 {
			return nil, false
		}
		return stars, true
	default:
		return nil, false
	}
}

func fieldAt(fields []string, position int) string {
	if position < 0 || position >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[position])
}

func parseInteger(raw string) (int, bool) {
	if raw == "" {
		return 0, false
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, false
	}
	return value, true
}

// extractIntegers scans digit runs; limit <= 0 keeps all of them.
func extractIntegers(raw string, limit int) []int {
	matches := integerPattern.FindAllString(raw, -1)
	values := make([]int, 0, len(matches))
	for _, match := range matches {
		if limit > 0 && len(values) == limit {
			break
		}
		value, err := strconv.Atoi(match)
		if err != nil {
			continue
		}
		values = append(values, value)
	}
	return values
}
