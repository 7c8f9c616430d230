// SPDX-License-Identifier: MIT
package beat

import (
	"math"
	"testing"
)

func TestRunningEnergyOfConstant(t *testing.T) {
	e := NewRunningEnergy(100)

	var got float32
	for i := range 100 {
		got = e.Sample(0.5)
		want := 0.25 * float64(i+1) / 100
		if math.Abs(float64(got)-want) > 1e-6 {
			t.Fatalf("sample %d: energy = %g, want %g", i, got, want)
		}
	}
	for range 500 {
		got = e.Sample(0.5)
	}
	if math.Abs(float64(got)-0.25) > 1e-6 {
		t.Errorf("steady energy = %g, want 0.25", got)
	}
}

func TestNormalizer(t *testing.T) {
	n := NewNormalizer(0.5, 0.01)

	if got := n.Sample(0.001); math.Abs(float64(got)-0.1) > 1e-6 {
		t.Errorf("below floor: Sample = %g, want 0.1", got)
	}
	if got := n.Sample(2); got != 1 {
		t.Errorf("new maximum: Sample = %g, want 1", got)
	}
	// max decays to 1
	if got := n.Sample(0.5); math.Abs(float64(got)-0.5) > 1e-6 {
		t.Errorf("after decay: Sample = %g, want 0.5", got)
	}
	for range 100 {
		n.Sample(0)
	}
	if n.Max() != 0.01 {
		t.Errorf("Max() = %g, want floor 0.01", n.Max())
	}
}

func TestNormalizerBounded(t *testing.T) {
	n := NewNormalizer(0.9999, 1e-3)
	for i := range 10000 {
		x := float32(math.Abs(math.Sin(float64(i) * 0.01)))
		if y := n.Sample(x); y < 0 || y > 1 {
			t.Fatalf("Sample(%g) = %g, want within [0, 1]", x, y)
		}
	}
}
