package vacations

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Pédiatrie", "pediatrie"},
		{"Hôpital Necker, Paris 15è", "hopital necker, paris 15e"},
		{"ANESTHÉSIE-RÉANIMATION", "anesthesie-reanimation"},
		{"médecine générale", "medecine generale"},
		{"plain ascii", "plain ascii"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestSearchTextJoinsAllFields(t *testing.T) {
	got := searchText("Remplacement été", "Pédiatrie", "Lyon", "Garde de nuit")
	assert.Equal(t, "remplacement ete pediatrie lyon garde de nuit", got)
}
