package lottery

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"
)

const isoDateLayout = "2006-01-02"

// ErrInvalidDate indicates that a value could not be read as a calendar date.
var ErrInvalidDate = errors.New("lottery: invalid date")

// Date is a calendar date without clock or zone. The zero value is "no date".
type Date struct {
	year  int
	month time.Month
	day   int
}

// NewDate builds a normalized calendar date.
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	year, month, day := t.Date()
	return Date{year: year, month: month, day: day}
}

// ParseDate reads an ISO YYYY-MM-DD date.
func ParseDate(raw string) (Date, error) {
	parsed, err := time.Parse(isoDateLayout, strings.TrimSpace(raw))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return DateOf(parsed), nil
}

// MustParseDate is ParseDate for constants known to be valid.
func MustParseDate(raw string) Date {
	date, err := ParseDate(raw)
	if err != nil {
		panic(err)
	}
	return date
}

func (d Date) IsZero() bool {
	return d == Date{}
}

// Time returns midnight UTC of the date.
func (d Date) Time() time.Time {
	if d.IsZero() {
		return time.Time{}
	}
	return time.Date(d.year, d.month, d.day, 0, 0, 0, 0, time.UTC)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Time().Format(isoDateLayout)
}

func (d Date) Weekday() time.Weekday {
	return d.Time().Weekday()
}

func (d Date) AddDays(days int) Date {
	return DateOf(d.Time().AddDate(0, 0, days))
}

// Compare returns -1, 0 or +1 depending on whether d is before, equal to or after other.
func (d Date) Compare(other Date) int {
	switch {
	case d.year != other.year:
		return compareInt(d.year, other.year)
	case d.month != other.month:
		return compareInt(int(d.month), int(other.month))
	default:
		return compareInt(d.day, other.day)
	}
}

func (d Date) Before(other Date) bool { return d.Compare(other) < 0 }
func (d Date) After(other Date) bool  { return d.Compare(other) > 0 }

// MaxDate returns the later of two dates; zero dates lose.
func MaxDate(a, b Date) Date {
	if a.IsZero() {
		return b
	}
	if b.IsZero() || !b.After(a) {
		return a
	}
	return b
}

// Value stores the date as an ISO string column.
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}

// Scan reads ISO strings as well as driver time values.
func (d *Date) Scan(value any) error {
	switch typed := value.(type) {
	case nil:
		*d = Date{}
		return nil
	case string:
		return d.scanString(typed)
	case []byte:
		return d.scanString(string(typed))
	case time.Time:
		*d = DateOf(typed)
		return nil
	default:
		return fmt.Errorf("%w: unsupported type %T", ErrInvalidDate, value)
	}
}

func (d *Date) scanString(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		*d = Date{}
		return nil
	}
	if len(trimmed) > len(isoDateLayout) {
		trimmed = trimmed[:len(isoDateLayout)]
	}
	parsed, err := ParseDate(trimmed)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalText renders the ISO form, used by JSON and CSV encoders.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(text []byte) error {
	return d.scanString(string(text))
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
