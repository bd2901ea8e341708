package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestHitPositions_ExtractsTransverseCoordinates(t *testing.T) {
	x := mat.NewDense(3, 4, []float64{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
	})

	pos := hitPositions(x)

	want := mat.NewDense(3, 2, []float64{1, 2, 5, 6, 9, 10})
	assert.True(t, mat.Equal(pos, want), "got %v", mat.Formatted(pos))
}

func TestScanCmd_FlagDefaults(t *testing.T) {
	cases := []struct {
		flag string
		want string
	}{
		{"trials", "100"},
		{"guide", "trk.double_majority"},
		{"proxy", "vm"},
		{"eps-min", "1e-05"},
		{"eps-max", "1"},
		{"min-samples-min", "1"},
		{"min-samples-max", "50"},
	}
	for _, tc := range cases {
		f := scanCmd.Flags().Lookup(tc.flag)
		if f == nil {
			t.Errorf("flag %q not registered", tc.flag)
			continue
		}
		assert.Equal(t, tc.want, f.DefValue, "flag %q", tc.flag)
	}
}
