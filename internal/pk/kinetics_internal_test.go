package pk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBateman_EqualRatesUsesLimit(t *testing.T) {
	vd := volume(70)
	equal := absorption{ka: 0.05, ke: 0.05, f: 1}
	near := absorption{ka: 0.05 + 1e-7, ke: 0.05, f: 1}

	for _, tt := range []float64{0, 1, 10, 20, 50, 100} {
		want := bateman(5, near, vd, tt)
		got := bateman(5, equal, vd, tt)
		assert.InDelta(t, want, got, 1e-4*(1+want), "t=%v", tt)
	}
	assert.Equal(t, 0.0, bateman(5, equal, vd, -1))
}

func TestInfusion_ContinuousAtRemoval(t *testing.T) {
	vd := volume(60)
	before := infusion(0.004, 84, KePatch, vd, 84)
	after := infusion(0.004, 84, KePatch, vd, 84+1e-9)
	assert.InDelta(t, before, after, 1e-6)
}

func TestContribution_ZeroWeight(t *testing.T) {
	d := DoseEvent{route: Oral, compound: Estradiol, massMg: 2}
	assert.Equal(t, 0.0, Contribution(d, 0, 5))
}
