package lottery

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Game identifies a supported lottery product.
type Game string

const (
	// GameLoto is the base game: five numbers out of 49 plus one chance number out of 10.
	GameLoto Game = "loto"
	// GameEuroMillions is the secondary game: five numbers out of 50 plus two stars out of 12.
	GameEuroMillions Game = "euromillions"
)

var (
	// ErrUnknownGame indicates that a game name did not match any supported product.
	ErrUnknownGame = errors.New("lottery: unknown game")
	// ErrNoDrawDays indicates that a rules entry declares no weekly draw days.
	ErrNoDrawDays = errors.New("lottery: no draw days configured")
)

// Rules describes the number pools and weekly schedule of a game.
type Rules struct {
	Game           Game
	MainPoolSize   int
	MainPickCount  int
	BonusPoolSize  int
	BonusPickCount int
	DrawDays       []time.Weekday
}

var rulesCatalog = map[Game]Rules{
	GameLoto: {
		Game:           GameLoto,
		MainPoolSize:   49,
		MainPickCount:  5,
		BonusPoolSize:  10,
		BonusPickCount: 1,
		DrawDays:       []time.Weekday{time.Monday, time.Wednesday, time.Saturday},
	},
	GameEuroMillions: {
		Game:           GameEuroMillions,
		MainPoolSize:   50,
		MainPickCount:  5,
		BonusPoolSize:  12,
		BonusPickCount: 2,
		DrawDays:       []time.Weekday{time.Tuesday, time.Friday},
	},
}

// AllGames lists the supported games in sync order.
func AllGames() []Game {
	return []Game{GameLoto, GameEuroMillions}
}

// String returns the canonical game identifier.
func (g Game) String() string {
	return string(g)
}

// ParseGame resolves a user supplied game name.
func ParseGame(raw string) (Game, error) {
	normalized := compactName(raw)
	switch normalized {
	case "loto":
		return GameLoto, nil
	case "euromillion", "euromillions", "euromillionsmymillion":
		return GameEuroMillions, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownGame, raw)
	}
}

// RulesFor returns the rules of the provided game.
func RulesFor(game Game) (Rules, error) {
	rules, ok := rulesCatalog[game]
	if !ok {
		return Rules{}, fmt.Errorf("%w: %q", ErrUnknownGame, string(game))
	}
	return rules, nil
}

// NextDrawDate returns the first draw date on or after from.
func NextDrawDate(game Game, from Date) (Date, error) {
	rules, err := RulesFor(game)
	if err != nil {
		return Date{}, err
	}
	for offset := 0; offset <= 7; offset++ {
		candidate := from.AddDays(offset)
		for _, weekday := range rules.DrawDays {
			if candidate.Weekday() == weekday {
				return candidate, nil
			}
		}
	}
	return Date{}, fmt.Errorf("%w: %s", ErrNoDrawDays, game)
}

func compactName(raw string) string {
	stripped, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), raw)
	if err != nil {
		stripped = raw
	}
	var builder strings.Builder
	for _, r := range strings.ToLower(stripped) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}
