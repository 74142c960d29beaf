package drawparse

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/MarcoPoloResearchLab/drawsync/internal/lottery"
	"go.uber.org/zap"
)

// ParsedDraw is a validated draw read from an archive entry, not yet attributed to a source.
type ParsedDraw struct {
	Date  lottery.Date
	Main  []int
	Bonus []int
}

// Parser reads draw files whose encoding, delimiter and header naming are not known in advance.
type Parser struct {
	logger *zap.Logger
}

func NewParser(logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{logger: logger}
}

// Parse returns the valid draws found in content. Unreadable files and rows degrade to fewer draws, never to an error.
func (p *Parser) Parse(game lottery.Game, archiveLabel, entryName string, content []byte) []ParsedDraw {
	rules, err := lottery.RulesFor(game)
	if err != nil {
		p.logger.Warn("draw file skipped", zap.String("entry", entryName), zap.Error(err))
		return nil
	}
	fields := []zap.Field{
		zap.String("game", game.String()),
		zap.String("archive", archiveLabel),
		zap.String("entry", entryName),
	}

	if draws, ok := p.parseDelimited(rules, content, fields); ok {
		return draws
	}
	if draws, ok := p.parseWorkbook(rules, content, fields); ok {
		return draws
	}

	p.logger.Warn("draw file not interpretable as delimited text or workbook", fields...)
	return nil
}

func (p *Parser) parseDelimited(rules lottery.Rules, content []byte, fields []zap.Field) ([]ParsedDraw, bool) {
	decoded := make(map[string]string)
	for _, trial := range csvTrials() {
		text, cached := decoded[trial.codec.name]
		if !cached {
			value, ok := trial.codec.decode(content)
			if !ok {
				decoded[trial.codec.name] = ""
				continue
			}
			text = value
			decoded[trial.codec.name] = text
		}
		if text == "" {
			continue
		}

		draws, ok := p.parseDelimitedText(rules, text, trial.delimiter, fields)
		if ok && len(draws) > 0 {
			p.logger.Debug("draw file parsed as delimited text", append(fields,
				zap.String("encoding", trial.codec.name),
				zap.String("delimiter", delimiterName(trial.delimiter)),
				zap.Int("draws", len(draws)))...)
			return draws, true
		}
	}
	return nil, false
}

func (p *Parser) parseDelimitedText(rules lottery.Rules, text string, delimiter rune, fields []zap.Field) ([]ParsedDraw, bool) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil || len(header) == 0 {
		return nil, false
	}
	index := buildColumnIndex(header)
	if !hasMinimumColumns(index) {
		return nil, false
	}
	layout := resolveLayout(index)

	draws := make([]ParsedDraw, 0)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			line := 0
			if errors.As(err, &parseErr) {
				line = parseErr.StartLine
			}
			p.logger.Warn("malformed csv line skipped", append(fields, zap.Int("line", line), zap.Error(err))...)
			continue
		}
		if len(record) == 0 {
			continue
		}

		draw, err := mapRow(rules, layout, record)
		if err != nil {
			line, _ := reader.FieldPos(0)
			p.logger.Warn("csv row skipped", append(fields, zap.Int("line", line), zap.String("reason", err.Error()))...)
			continue
		}
		draws = append(draws, draw)
	}
	return draws, true
}
