package archive

import (
	"regexp"
	"time"

	"github.com/MarcoPoloResearchLab/drawsync/internal/lottery"
)

var (
	fullDatePattern  = regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{4}\b`)
	monthSpanPattern = regexp.MustCompile(`([a-z]+)\s+(\d{4})\s+a\s+([a-z]+)\s+(\d{4})`)
	dayFirstLayouts  = []string{"02/01/2006", "2/1/2006", "02-01-2006", "2-1-2006"}
)

var frenchMonths = map[string]time.Month{
	"janvier":   time.January,
	"janv":      time.January,
	"fevrier":   time.February,
	"fev":       time.February,
	"mars":      time.March,
	"avril":     time.April,
	"avr":       time.April,
	"mai":       time.May,
	"juin":      time.June,
	"juillet":   time.July,
	"juil":      time.July,
	"aout":      time.August,
	"septembre": time.September,
	"sept":      time.September,
	"octobre":   time.October,
	"oct":       time.October,
	"novembre":  time.November,
	"nov":       time.November,
	"decembre":  time.December,
	"dec":       time.December,
}

// inferPeriod extracts the coverage period advertised by an archive label or URL.
// The first and last full dates bound the period only when both parse; otherwise a month span is tried.
func inferPeriod(text string) (start, end *lottery.Date) {
	if matches := fullDatePattern.FindAllString(text, -1); len(matches) >= 2 {
		first, okFirst := parseDayFirst(matches[0])
		last, okLast := parseDayFirst(matches[len(matches)-1])
		if okFirst && okLast {
			return &first, &last
		}
	}

	groups := monthSpanPattern.FindStringSubmatch(NormalizeText(text))
	if groups == nil {
		return nil, nil
	}
	startMonth, okStart := frenchMonths[groups[1]]
	endMonth, okEnd := frenchMonths[groups[3]]
	if !okStart || !okEnd {
		return nil, nil
	}
	startYear, okStartYear := parseYear(groups[2])
	endYear, okEndYear := parseYear(groups[4])
	if !okStartYear || !okEndYear {
		return nil, nil
	}
	periodStart := lottery.NewDate(startYear, startMonth, 1)
	periodEnd := lottery.DateOf(lottery.NewDate(endYear, endMonth, 1).Time().AddDate(0, 1, -1))
	return &periodStart, &periodEnd
}

func parseDayFirst(raw string) (lottery.Date, bool) {
	for _, layout := range dayFirstLayouts {
		parsed, err := time.Parse(layout, raw)
		if err == nil {
			return lottery.DateOf(parsed), true
		}
	}
	return lottery.Date{}, false
}

func parseYear(raw string) (int, bool) {
	parsed, err := time.Parse("2006", raw)
	if err != nil {
		return 0, false
	}
	return parsed.Year(), true
}
