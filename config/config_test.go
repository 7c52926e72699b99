package config

import "testing"

func TestDefaultsPassValidate(t *testing.T) {
	cfg := defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestValidateRejectsUnknownAsset(t *testing.T) {
	cfg := defaults()
	cfg.Assets = []string{"DOGE"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected an error for an unknown asset")
	}
}

func TestValidateRejectsExposureCapBelowPerTradeCap(t *testing.T) {
	cfg := defaults()
	cfg.Positions.TotalExposureCap = cfg.Positions.PerTradeCapUsdc - 1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected an error when total_exposure_cap < per_trade_cap_usdc")
	}
}

func TestValidateRequiresJWTSecretWhenAuthEnabled(t *testing.T) {
	cfg := defaults()
	cfg.Snapshot.AuthEnabled = true
	cfg.Snapshot.OperatorPasswordHash = "hash"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected an error when auth is enabled without a jwt secret")
	}
}

func TestValidateRejectsOutOfRangeMinConfidence(t *testing.T) {
	cfg := defaults()
	cfg.Predictor.MinConfidence = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected an error for min_confidence outside (0, 1)")
	}
}
