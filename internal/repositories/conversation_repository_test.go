package repositories

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLikeEscaperNeutralizesMetacharacters(t *testing.T) {
	cases := map[string]string{
		"bob":     "bob",
		"%":       `\%`,
		"_ob":     `\_ob`,
		"50%off":  `50\%off`,
		`back\sl`: `back\\sl`,
	}
	for input, want := range cases {
		assert.Equal(t, want, likeEscaper.Replace(input), "input %q", input)
	}
}
