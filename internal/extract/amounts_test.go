package extract

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"german thousands", "1.234,56", "1234.56"},
		{"english thousands", "1,234.56", "1234.56"},
		{"plain german", "1234,56", "1234.56"},
		{"plain english", "1234.56", "1234.56"},
		{"currency prefix", "€ 89,50", "89.50"},
		{"currency suffix", "42,00 €", "42.00"},
		{"large german", "12.345.678,90", "12345678.90"},
		{"integer", "500", "500"},
		{"empty", "", "0"},
		{"junk", "abc", "0"},
		{"mixed separators", "1.2.3,4,5", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseAmount(tt.in)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)),
				"ParseAmount(%q) = %s, want %s", tt.in, got, tt.want)
		})
	}
}

func TestExtractAmounts_LabeledBeatsPositional(t *testing.T) {
	// amount tokens appear in a misleading order; the labels must win
	text := "Porto 5,00 Zwischensumme 200,00 MwSt 19% 38,00 Rechnungsbetrag 238,00"

	a := extractAmounts(text)
	assert.True(t, a.labeled)
	assert.True(t, a.gross.Equal(decimal.RequireFromString("238.00")), "gross = %s", a.gross)
	assert.True(t, a.net.Equal(decimal.RequireFromString("200.00")), "net = %s", a.net)
}

func TestExtractAmounts_LabeledNetSurvivesPositionalFill(t *testing.T) {
	// only the net is labeled; the positional scan completes vat and gross
	// but must not replace the labeled net with the first token
	text := "Netto 200,00 Versand 5,00 Verpackung 2,00 238,00"

	a := extractAmounts(text)
	assert.True(t, a.labeled)
	assert.True(t, a.net.Equal(decimal.RequireFromString("200.00")), "net = %s", a.net)
	assert.True(t, a.gross.Equal(decimal.RequireFromString("238.00")), "gross = %s", a.gross)
}

func TestExtractAmounts_NetDerivedFromGrossAndVAT(t *testing.T) {
	a := extractAmounts("MwSt 19% 19,00 Gesamtbetrag 119,00")

	assert.True(t, a.labeled)
	assert.True(t, a.net.Equal(decimal.RequireFromString("100.00")), "net = %s", a.net)
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"control chars dropped", "Rechnung\x00\x07 Nr. 1", "Rechnung Nr. 1"},
		{"whitespace collapsed", "a  \t  b", "a b"},
		{"lines preserved", "eins\nzwei", "eins\nzwei"},
		{"crlf normalized", "eins\r\nzwei", "eins\nzwei"},
		{"symbols kept", "19% MwSt: 1.234,56 €", "19% MwSt: 1.234,56 €"},
		{"edges trimmed", "  hallo  ", "hallo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanText(tt.in))
		})
	}
}
