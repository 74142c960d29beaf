package lottery

import (
	"errors"
	"fmt"
)

var (
	ErrMainCount      = errors.New("lottery: wrong main number count")
	ErrMainRange      = errors.New("lottery: main number out of range")
	ErrMainDuplicate  = errors.New("lottery: duplicate main number")
	ErrBonusCount     = errors.New("lottery: wrong bonus number count")
	ErrBonusRange     = errors.New("lottery: bonus number out of range")
	ErrBonusDuplicate = errors.New("lottery: duplicate bonus number")
)

// ValidateNumbers checks both zones of a draw against the game rules.
func (r Rules) ValidateNumbers(main, bonus []int) error {
	if len(main) != r.MainPickCount {
		return fmt.Errorf("%w: expected %d, got %d", ErrMainCount, r.MainPickCount, len(main))
	}
	if err := validateZone(main, r.MainPoolSize, ErrMainRange, ErrMainDuplicate); err != nil {
		return err
	}
	if len(bonus) != r.BonusPickCount {
		return fmt.Errorf("%w: expected %d, got %d", ErrBonusCount, r.BonusPickCount, len(bonus))
	}
	return validateZone(bonus, r.BonusPoolSize, ErrBonusRange, ErrBonusDuplicate)
}

func validateZone(numbers []int, poolSize int, rangeErr, duplicateErr error) error {
	seen := make(map[int]struct{}, len(numbers))
	for _, number := range numbers {
		if number < 1 || number > poolSize {
			return fmt.Errorf("%w: %d not in 1..%d", rangeErr, number, poolSize)
		}
		if _, exists := seen[number]; exists {
			return fmt.Errorf("%w: %d", duplicateErr, number)
		}
		seen[number] = struct{}{}
	}
	return nil
}
