package config

import (
	"testing"

	sdkmath "cosmossdk.io/math"
)

func TestGetEnvAsDec(t *testing.T) {
	if _, err := getEnvAsDec("TEST_DEC_UNSET", "1.0"); err != nil {
		t.Fatalf("default decimal should parse: %v", err)
	}

	t.Setenv("TEST_DEC", "4.25")
	rate, err := getEnvAsDec("TEST_DEC", "1.0")
	if err != nil {
		t.Fatalf("getEnvAsDec failed: %v", err)
	}
	if !rate.Equal(sdkmath.LegacyMustNewDecFromStr("4.25")) {
		t.Errorf("expected 4.25, got %s", rate)
	}

	t.Setenv("TEST_DEC", "not-a-number")
	if _, err := getEnvAsDec("TEST_DEC", "1.0"); err == nil {
		t.Error("expected error for invalid decimal")
	}
}

func TestGetEnvAsRates(t *testing.T) {
	rates, err := getEnvAsRates("TEST_RATES_UNSET")
	if err != nil {
		t.Fatalf("unset rates should parse to empty: %v", err)
	}
	if len(rates) != 0 {
		t.Errorf("expected no rates, got %d", len(rates))
	}

	t.Setenv("TEST_RATES", "usdc_usd=1.0, dai_usd=0.999")
	rates, err = getEnvAsRates("TEST_RATES")
	if err != nil {
		t.Fatalf("getEnvAsRates failed: %v", err)
	}
	if len(rates) != 2 {
		t.Fatalf("expected 2 rates, got %d", len(rates))
	}
	if !rates["usdc_usd"].Equal(sdkmath.LegacyOneDec()) {
		t.Errorf("expected usdc_usd rate 1.0, got %s", rates["usdc_usd"])
	}
	if !rates["dai_usd"].Equal(sdkmath.LegacyMustNewDecFromStr("0.999")) {
		t.Errorf("expected dai_usd rate 0.999, got %s", rates["dai_usd"])
	}

	t.Setenv("TEST_RATES", "missing-separator")
	if _, err := getEnvAsRates("TEST_RATES"); err == nil {
		t.Error("expected error for a pair without a separator")
	}
}
