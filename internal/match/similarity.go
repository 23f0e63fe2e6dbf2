package match

import "strings"

// Similarity scores two display names in [0,1]. Both names are normalized
// first, so the score is case- and accent-insensitive. The score is the
// better of two signals: containment (shorter name appears inside the
// longer one, weighted by how much of the longer name it covers) and
// token overlap (Jaccard over the word sets).
func Similarity(a, b string) float64 {
	na := NormalizeName(a)
	nb := NormalizeName(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	s := containmentScore(na, nb)
	if t := tokenOverlap(na, nb); t > s {
		s = t
	}
	return s
}

func containmentScore(na, nb string) float64 {
	shorter, longer := na, nb
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if !strings.Contains(longer, shorter) {
		return 0
	}
	return float64(len(shorter)) / float64(len(longer))
}

func tokenOverlap(na, nb string) float64 {
	ta := tokenSet(na)
	tb := tokenSet(nb)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	inter := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		// Articles and connectors carry no identity signal.
		switch tok {
		case "EL", "LA", "LOS", "LAS", "DE", "DEL", "Y", "THE":
			continue
		}
		set[tok] = struct{}{}
	}
	return set
}
