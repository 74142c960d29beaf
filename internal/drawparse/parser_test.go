package drawparse

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/drawsync/internal/lottery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

func TestParseAcceptsEveryEncodingAndDelimiter(t *testing.T) {
	encoders := map[string]func(string) []byte{
		"utf-8":        func(text string) []byte { return []byte(text) },
		"utf-8-bom":    func(text string) []byte { return append([]byte{0xEF, 0xBB, 0xBF}, text...) },
		"windows-1252": mustEncode(t, charmap.Windows1252),
		"iso-8859-1":   mustEncode(t, charmap.ISO8859_1),
	}
	delimiters := map[string]string{"semicolon": ";", "comma": ",", "tab": "\t"}

	for encodingName, encode := range encoders {
		for delimiterName, delimiter := range delimiters {
			t.Run(encodingName+"/"+delimiterName, func(t *testing.T) {
				header := strings.Join([]string{"Date de tirage", "boule_1", "boule_2", "boule_3", "boule_4", "boule_5", "numéro_chance"}, delimiter)
				row := strings.Join([]string{"19/02/2026", "5", "3", "1", "4", "2", "9"}, delimiter)

				draws := NewParser(nil).Parse(lottery.GameLoto, "archive.zip", "loto.csv", encode(header+"\n"+row+"\n"))

				require.Len(t, draws, 1)
				assert.Equal(t, lottery.NewDate(2026, time.February, 19), draws[0].Date)
				assert.Equal(t, []int{1, 2, 3, 4, 5}, draws[0].Main)
				assert.Equal(t, []int{9}, draws[0].Bonus)
			})
		}
	}
}

func TestParseHandlesAlternativeLotoHeaders(t *testing.T) {
	content := "date_tirage;numero1;numero2;numero3;numero4;numero5;num_chance\n19/02/2026;1;2;3;4;5;9\n"

	draws := NewParser(nil).Parse(lottery.GameLoto, "archive.zip", "loto.csv", []byte(content))

	require.Len(t, draws, 1)
	assert.Equal(t, "2026-02-19", draws[0].Date.String())
	assert.Equal(t, []int{1, 2, 3, 4, 5}, draws[0].Main)
	assert.Equal(t, []int{9}, draws[0].Bonus)
}

func TestParseHandlesCombinedEuroMillionsColumns(t *testing.T) {
	content := "Date du tirage,numeros gagnants,stars gagnantes\n20/02/2026,1 2 3 4 5,1 7\n"

	draws := NewParser(nil).Parse(lottery.GameEuroMillions, "archive.zip", "euromillions.csv", []byte(content))

	require.Len(t, draws, 1)
	assert.Equal(t, "2026-02-20", draws[0].Date.String())
	assert.Equal(t, []int{1, 2, 3, 4, 5}, draws[0].Main)
	assert.Equal(t, []int{1, 7}, draws[0].Bonus)
}

func TestParseSkipsInvalidRowsAndKeepsValidRows(t *testing.T) {
	content := strings.Join([]string{
		"date_de_tirage;boule_1;boule_2;boule_3;boule_4;boule_5;numero_chance",
		"20/02/2026;1;2;3;4;5;3",
		"21/02/2026;1;2;2;4;5;3",
		"22/02/2026;1;2;3;4;50;3",
		"23/02/2026;1;2;3;4;5;11",
		"not a date;1;2;3;4;5;3",
	}, "\n")

	draws := NewParser(nil).Parse(lottery.GameLoto, "archive.zip", "loto.csv", []byte(content))

	require.Len(t, draws, 1)
	assert.Equal(t, "2026-02-20", draws[0].Date.String())
}

func TestParseReadsLotoChanceFromCombinedColumn(t *testing.T) {
	content := "date;combinaison_gagnante_en_ordre_croissant\n2019-11-04;40-12-3-31-25-7\n"

	draws := NewParser(nil).Parse(lottery.GameLoto, "archive.zip", "loto.csv", []byte(content))

	require.Len(t, draws, 1)
	assert.Equal(t, []int{3, 12, 25, 31, 40}, draws[0].Main)
	assert.Equal(t, []int{7}, draws[0].Bonus)
}

func TestParseReadsDiscreteStarColumns(t *testing.T) {
	content := "date_de_tirage;boule_1;boule_2;boule_3;boule_4;boule_5;etoile_1;etoile_2\n" +
		"01-03-2024;50;11;22;33;44;12;2\n"

	draws := NewParser(nil).Parse(lottery.GameEuroMillions, "archive.zip", "euromillions.csv", []byte(content))

	require.Len(t, draws, 1)
	assert.Equal(t, "2024-03-01", draws[0].Date.String())
	assert.Equal(t, []int{11, 22, 33, 44, 50}, draws[0].Main)
	assert.Equal(t, []int{2, 12}, draws[0].Bonus)
}

func TestParseFallsBackToWorkbook(t *testing.T) {
	workbook := excelize.NewFile()
	defer workbook.Close()

	require.NoError(t, workbook.SetSheetRow("Sheet1", "A1", &[]interface{}{"Date de tirage", "Boule 1", "Boule 2", "Boule 3", "Boule 4", "Boule 5", "Numéro chance"}))
	require.NoError(t, workbook.SetSheetRow("Sheet1", "A2", &[]interface{}{"19/02/2026", 8, 16, 4, 42, 23, 6}))
	require.NoError(t, workbook.SetSheetRow("Sheet1", "A3", &[]interface{}{"21/02/2026", 8, 8, 4, 42, 23, 6}))
	_, err := workbook.NewSheet("Notes")
	require.NoError(t, err)
	require.NoError(t, workbook.SetSheetRow("Notes", "A1", &[]interface{}{"Remarque"}))

	buffer, err := workbook.WriteToBuffer()
	require.NoError(t, err)

	draws := NewParser(nil).Parse(lottery.GameLoto, "archive.zip", "loto.xlsx", buffer.Bytes())

	require.Len(t, draws, 1)
	assert.Equal(t, "2026-02-19", draws[0].Date.String())
	assert.Equal(t, []int{4, 8, 16, 23, 42}, draws[0].Main)
	assert.Equal(t, []int{6}, draws[0].Bonus)
}

func TestParseReadsLegacyBinaryWorkbook(t *testing.T) {
	content, err := os.ReadFile(filepath.Join("testdata", "loto_legacy.xls"))
	require.NoError(t, err)
	require.True(t, len(content) > len(legacyWorkbookMagic))

	draws := NewParser(nil).Parse(lottery.GameLoto, "archive.zip", "loto.xls", content)

	require.Len(t, draws, 2)
	assert.Equal(t, "2026-02-19", draws[0].Date.String())
	assert.Equal(t, []int{4, 8, 16, 23, 42}, draws[0].Main)
	assert.Equal(t, []int{6}, draws[0].Bonus)
	assert.Equal(t, "2026-02-21", draws[1].Date.String())
	assert.Equal(t, []int{1, 2, 3, 4, 5}, draws[1].Main)
	assert.Equal(t, []int{9}, draws[1].Bonus)
}

func TestParseIgnoresCorruptLegacyWorkbook(t *testing.T) {
	content := append(append([]byte{}, legacyWorkbookMagic...), []byte("truncated compound file")...)

	assert.NotPanics(t, func() {
		assert.Empty(t, NewParser(nil).Parse(lottery.GameLoto, "archive.zip", "loto.xls", content))
	})
}

func TestParseTableSkipsHeaderlessAndBlankRows(t *testing.T) {
	parser := NewParser(nil)
	rules, err := lottery.RulesFor(lottery.GameLoto)
	require.NoError(t, err)

	notes := sheetTable{name: "Notes", rows: [][]string{{"Remarque"}}}
	assert.Empty(t, parser.parseTable(rules, notes, nil))

	draws := parser.parseTable(rules, sheetTable{name: "Tirages", rows: [][]string{
		{"Date de tirage", "Boule 1", "Boule 2", "Boule 3", "Boule 4", "Boule 5", "Numéro chance"},
		nil,
		{"19/02/2026", "8", "16", "4", "42", "23", "6"},
	}}, nil)
	require.Len(t, draws, 1)
	assert.Equal(t, "2026-02-19", draws[0].Date.String())
}

func TestParseReturnsNothingForUnreadableContent(t *testing.T) {
	parser := NewParser(nil)

	assert.Empty(t, parser.Parse(lottery.GameLoto, "archive.zip", "notes.txt", []byte("nothing to see here\n")))
	assert.Empty(t, parser.Parse(lottery.GameLoto, "archive.zip", "blob.bin", []byte{0x00, 0xFF, 0x10, 0x81}))
	assert.Empty(t, parser.Parse(lottery.GameLoto, "archive.zip", "empty.csv", nil))
	assert.Empty(t, parser.Parse(lottery.Game("keno"), "archive.zip", "keno.csv", []byte("date;n1\n")))
}

func TestNormalizeHeader(t *testing.T) {
	tests := map[string]string{
		"Date du tirage":             "date_du_tirage",
		"  Numéro Chance ":           "numero_chance",
		"Étoile-1":                   "etoile_1",
		"__boules gagnantes (asc)__": "boules_gagnantes_asc",
		"***":                        "",
	}
	for raw, expected := range tests {
		assert.Equal(t, expected, normalizeHeader(raw), "header %q", raw)
	}
}

func TestColumnResolversFallBackToTokens(t *testing.T) {
	index := buildColumnIndex([]string{"Jour", "Date officielle du tirage", "Boules gagnantes (ordre de sortie)", "Étoiles gagnantes triées"})

	position, ok := resolveDate(index)
	require.True(t, ok)
	assert.Equal(t, 1, position)

	position, ok = resolveMainCombined(index)
	require.True(t, ok)
	assert.Equal(t, 2, position)

	position, ok = resolveStarsCombined(index)
	require.True(t, ok)
	assert.Equal(t, 3, position)

	_, ok = resolveLotoChance(index)
	assert.False(t, ok)
	assert.False(t, hasMinimumColumns(index), "token matches alone do not qualify a header")
}

func mustEncode(t *testing.T, codePage *charmap.Charmap) func(string) []byte {
	t.Helper()
	return func(text string) []byte {
		encoded, err := codePage.NewEncoder().String(text)
		if err != nil {
			t.Fatalf("failed to encode fixture: %v", err)
		}
		return []byte(encoded)
	}
}
