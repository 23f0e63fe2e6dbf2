package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"trims whitespace", "  Casa Pepe  ", "CASA PEPE"},
		{"folds accents", "Café Peñón", "CAFE PENON"},
		{"uppercases", "sala apolo", "SALA APOLO"},
		{"strips SL suffix", "Casa Pepe SL", "CASA PEPE"},
		{"strips dotted suffix", "Grupo Botín S.L.", "GRUPO BOTIN"},
		{"strips SA suffix", "Eventos Madrid SA", "EVENTOS MADRID"},
		{"strips venue suffix", "El Sol Sala", "EL SOL"},
		{"keeps leading venue word", "Sala Apolo", "SALA APOLO"},
		{"ampersand becomes Y", "Pan & Agua", "PAN Y AGUA"},
		{"drops punctuation", "¡Toma Jamón!", "TOMA JAMON"},
		{"collapses spaces", "La   Terraza", "LA TERRAZA"},
		{"empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeName(tt.input))
		})
	}
}

func TestSimilarityExactAfterNormalization(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("Café Peñón", "CAFE PENON"))
	assert.Equal(t, 1.0, Similarity("Casa Pepe SL", "Casa Pepe"))
}

func TestSimilarityContainment(t *testing.T) {
	// "APOLO" covers half of "SALA APOLO".
	assert.InDelta(t, 0.5, Similarity("Sala Apolo", "Apolo SL"), 0.01)
}

func TestSimilarityTokenOverlap(t *testing.T) {
	// Shared tokens CASA and BOTIN out of three distinct tokens.
	score := Similarity("Restaurante Casa Botín", "Casa Botin S.L.")
	assert.InDelta(t, 0.667, score, 0.01)
}

func TestSimilarityStopwordsIgnored(t *testing.T) {
	// Articles alone never produce a match.
	assert.Equal(t, 0.0, Similarity("El La Los", "De Del Y"))
}

func TestSimilarityUnrelatedNames(t *testing.T) {
	assert.Equal(t, 0.0, Similarity("Sala Apolo", "Teatro Kapital"))
	assert.Equal(t, 0.0, Similarity("", "Teatro Kapital"))
}
