package utils

import (
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"
)

func TestMulDivOrdering(t *testing.T) {
	// 7 * 3 / 2 == 10 when multiplied first; naive 7/2*3 would give 9.
	got, err := MulDiv(sdkmath.NewInt(7), sdkmath.NewInt(3), sdkmath.NewInt(2))
	if err != nil {
		t.Fatalf("MulDiv failed: %v", err)
	}
	if !got.Equal(sdkmath.NewInt(10)) {
		t.Errorf("expected 10, got %s", got)
	}
}

func TestMulDivLargeIntermediate(t *testing.T) {
	// The intermediate product overflows int64 but must stay exact.
	big := sdkmath.NewInt(1_000_000_000_000)
	got, err := MulDiv(big, big, sdkmath.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("MulDiv failed: %v", err)
	}
	want, ok := sdkmath.NewIntFromString("1000000000000000000")
	if !ok {
		t.Fatal("failed to parse expected value")
	}
	if !got.Equal(want) {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestMulDivRejectsZeroDenominator(t *testing.T) {
	_, err := MulDiv(sdkmath.OneInt(), sdkmath.OneInt(), sdkmath.ZeroInt())
	if !errors.Is(err, ErrDivisionByZero) {
		t.Errorf("expected ErrDivisionByZero, got %v", err)
	}
}

func TestBpsOf(t *testing.T) {
	got, err := BpsOf(sdkmath.NewInt(1_000_000), 10)
	if err != nil {
		t.Fatalf("BpsOf failed: %v", err)
	}
	if !got.Equal(sdkmath.NewInt(1000)) {
		t.Errorf("expected 1000, got %s", got)
	}

	// Truncation, not rounding.
	got, err = BpsOf(sdkmath.NewInt(99), 10)
	if err != nil {
		t.Fatalf("BpsOf failed: %v", err)
	}
	if !got.IsZero() {
		t.Errorf("expected 0 from truncation, got %s", got)
	}

	if _, err := BpsOf(sdkmath.NewInt(100), -1); !errors.Is(err, ErrInvalidBps) {
		t.Errorf("expected ErrInvalidBps, got %v", err)
	}
}

func TestClampInt(t *testing.T) {
	lo, hi := sdkmath.NewInt(10), sdkmath.NewInt(20)

	if got := ClampInt(sdkmath.NewInt(5), lo, hi); !got.Equal(lo) {
		t.Errorf("expected clamp to lower bound, got %s", got)
	}
	if got := ClampInt(sdkmath.NewInt(25), lo, hi); !got.Equal(hi) {
		t.Errorf("expected clamp to upper bound, got %s", got)
	}
	if got := ClampInt(sdkmath.NewInt(15), lo, hi); !got.Equal(sdkmath.NewInt(15)) {
		t.Errorf("expected value unchanged, got %s", got)
	}
}

func TestDecRatio(t *testing.T) {
	got, err := DecRatio(sdkmath.NewInt(1), sdkmath.NewInt(3))
	if err != nil {
		t.Fatalf("DecRatio failed: %v", err)
	}
	want := sdkmath.LegacyNewDecFromInt(sdkmath.NewInt(1)).QuoInt(sdkmath.NewInt(3))
	if !got.Equal(want) {
		t.Errorf("expected %s, got %s", want, got)
	}

	if _, err := DecRatio(sdkmath.OneInt(), sdkmath.ZeroInt()); !errors.Is(err, ErrDivisionByZero) {
		t.Errorf("expected ErrDivisionByZero, got %v", err)
	}
}
