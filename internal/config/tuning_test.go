package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEmptyTuningConfigDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if cfg.GetDetrend() != false {
		t.Errorf("GetDetrend() = %v, want false", cfg.GetDetrend())
	}
	if cfg.GetFilterWindow() != 400 {
		t.Errorf("GetFilterWindow() = %d, want 400", cfg.GetFilterWindow())
	}
	if cfg.GetSigma() != 100 {
		t.Errorf("GetSigma() = %f, want 100", cfg.GetSigma())
	}
	if cfg.GetLambda() != 1.2 {
		t.Errorf("GetLambda() = %f, want 1.2", cfg.GetLambda())
	}
	if cfg.GetSSPTolDegrees() != 15 {
		t.Errorf("GetSSPTolDegrees() = %f, want 15", cfg.GetSSPTolDegrees())
	}
	if cfg.GetBandsPerOctave() != 10 {
		t.Errorf("GetBandsPerOctave() = %d, want 10", cfg.GetBandsPerOctave())
	}
	if cfg.GetSampleRate() != 1 {
		t.Errorf("GetSampleRate() = %f, want 1", cfg.GetSampleRate())
	}
	if cfg.GetBoomSensor() != -1 {
		t.Errorf("GetBoomSensor() = %d, want -1", cfg.GetBoomSensor())
	}
	if cfg.GetCSIterations() != 5 {
		t.Errorf("GetCSIterations() = %d, want 5", cfg.GetCSIterations())
	}
	if cfg.GetWorkers() != 0 {
		t.Errorf("GetWorkers() = %d, want 0", cfg.GetWorkers())
	}
	if cfg.GetClusterMinPoints() != 4 {
		t.Errorf("GetClusterMinPoints() = %d, want 4", cfg.GetClusterMinPoints())
	}
	if cfg.GetClusterEps() != 0 {
		t.Errorf("GetClusterEps() = %f, want 0", cfg.GetClusterEps())
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("partial config keeps defaults", func(t *testing.T) {
		path := filepath.Join(tmpDir, "partial.json")
		content := `{"sigma": 10, "bands_per_octave": 4, "detrend": true}`
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}

		cfg, err := LoadTuningConfig(path)
		if err != nil {
			t.Fatalf("LoadTuningConfig: %v", err)
		}
		if cfg.GetSigma() != 10 {
			t.Errorf("GetSigma() = %f, want 10", cfg.GetSigma())
		}
		if cfg.GetBandsPerOctave() != 4 {
			t.Errorf("GetBandsPerOctave() = %d, want 4", cfg.GetBandsPerOctave())
		}
		if !cfg.GetDetrend() {
			t.Error("GetDetrend() = false, want true")
		}
		// Untouched fields fall back to defaults
		if cfg.GetLambda() != 1.2 {
			t.Errorf("GetLambda() = %f, want default 1.2", cfg.GetLambda())
		}
	})

	t.Run("rejects non-json extension", func(t *testing.T) {
		path := filepath.Join(tmpDir, "config.yaml")
		if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadTuningConfig(path); err == nil {
			t.Error("expected error for non-json extension")
		}
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		path := filepath.Join(tmpDir, "bad.json")
		content := `{"ssp_tol_degrees": 120}`
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadTuningConfig(path); err == nil {
			t.Error("expected error for out-of-range ssp_tol_degrees")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadTuningConfig(filepath.Join(tmpDir, "nope.json")); err == nil {
			t.Error("expected error for missing file")
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     TuningConfig
		wantErr bool
	}{
		{"empty is valid", TuningConfig{}, false},
		{"negative window", TuningConfig{FilterWindow: ptrInt(-1)}, true},
		{"zero bpo", TuningConfig{BandsPerOctave: ptrInt(0)}, true},
		{"negative sample rate", TuningConfig{SampleRate: ptrFloat64(-1)}, true},
		{"zero cs iterations", TuningConfig{CSIterations: ptrInt(0)}, true},
		{"min points too small", TuningConfig{ClusterMinPoints: ptrInt(1)}, true},
		{"valid overrides", TuningConfig{Sigma: ptrFloat64(5), Workers: ptrInt(2)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func ptrInt(v int) *int             { return &v }
func ptrFloat64(v float64) *float64 { return &v }
