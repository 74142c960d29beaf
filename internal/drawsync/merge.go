package drawsync

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/drawsync/internal/drawparse"
	"github.com/MarcoPoloResearchLab/drawsync/internal/lottery"
	"gorm.io/datatypes"
)

// Precedence decides which archive wins when two archives report the same draw date.
type Precedence string

const (
	PrecedenceLaterWins   Precedence = "later_wins"
	PrecedenceEarlierWins Precedence = "earlier_wins"
)

var errUnknownPrecedence = errors.New("unknown merge precedence")

// ParsePrecedence accepts the configured policy name; empty selects later_wins.
func ParsePrecedence(raw string) (Precedence, error) {
	switch Precedence(strings.ToLower(strings.TrimSpace(raw))) {
	case "", PrecedenceLaterWins:
		return PrecedenceLaterWins, nil
	case PrecedenceEarlierWins:
		return PrecedenceEarlierWins, nil
	default:
		return "", fmt.Errorf("%w: %q", errUnknownPrecedence, raw)
	}
}

type mergedDraw struct {
	main   []int
	bonus  []int
	source string
}

// mergeDraws folds one entry's draws into merged, dropping draws before ruleStart. It returns how many draws it kept.
func mergeDraws(merged map[lottery.Date]mergedDraw, draws []drawparse.ParsedDraw, source string, ruleStart lottery.Date, precedence Precedence) int {
	kept := 0
	for _, draw := range draws {
		if draw.Date.IsZero() {
			continue
		}
		if !ruleStart.IsZero() && draw.Date.Before(ruleStart) {
			continue
		}
		if _, exists := merged[draw.Date]; exists && precedence == PrecedenceEarlierWins {
			continue
		}
		merged[draw.Date] = mergedDraw{
			main:   slices.Clone(draw.Main),
			bonus:  slices.Clone(draw.Bonus),
			source: source,
		}
		kept++
	}
	return kept
}

func sortedDates(merged map[lottery.Date]mergedDraw) []lottery.Date {
	dates := make([]lottery.Date, 0, len(merged))
	for date := range merged {
		dates = append(dates, date)
	}
	sort.Slice(dates, func(i, j int) bool {
		return dates[i].Before(dates[j])
	})
	return dates
}

type drawChange int

const (
	drawUnchanged drawChange = iota
	drawInserted
	drawUpdated
)

type drawOutcome struct {
	change drawChange
	draw   Draw
}

// resolveDraw compares a merged candidate with the stored row. Inserted outcomes carry no ID yet.
func resolveDraw(existing *Draw, game lottery.Game, date lottery.Date, candidate mergedDraw, appliedAt time.Time) drawOutcome {
	if existing == nil {
		return drawOutcome{
			change: drawInserted,
			draw: Draw{
				Game:         game,
				DrawDate:     date,
				MainNumbers:  datatypes.JSONSlice[int](slices.Clone(candidate.main)),
				BonusNumbers: datatypes.JSONSlice[int](slices.Clone(candidate.bonus)),
				Source:       candidate.source,
				CreatedAt:    appliedAt,
				UpdatedAt:    appliedAt,
			},
		}
	}

	stored := *existing
	if slices.Equal([]int(stored.MainNumbers), candidate.main) &&
		slices.Equal([]int(stored.BonusNumbers), candidate.bonus) &&
		stored.Source == candidate.source {
		return drawOutcome{change: drawUnchanged, draw: stored}
	}

	stored.MainNumbers = datatypes.JSONSlice[int](slices.Clone(candidate.main))
	stored.BonusNumbers = datatypes.JSONSlice[int](slices.Clone(candidate.bonus))
	stored.Source = candidate.source
	stored.UpdatedAt = appliedAt
	return drawOutcome{change: drawUpdated, draw: stored}
}
