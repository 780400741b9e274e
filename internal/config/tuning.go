package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// TuningConfig is the JSON schema for pipeline tuning parameters. All fields
// are optional pointers: fields omitted from a config file fall back to the
// defaults supplied by the Get* accessors, so partial configs are safe.
type TuningConfig struct {
	// Detrending
	Detrend      *bool `json:"detrend,omitempty"`
	FilterWindow *int  `json:"filter_window,omitempty"` // moving-average window, samples

	// Point filtering
	Sigma         *float64 `json:"sigma,omitempty"`           // magnitude filter threshold
	Lambda        *float64 `json:"lambda,omitempty"`          // magnitude filter threshold factor
	SSPTolDegrees *float64 `json:"ssp_tol_degrees,omitempty"` // single-source-point angular tolerance

	// Transform
	BandsPerOctave *int     `json:"bands_per_octave,omitempty"`
	SampleRate     *float64 `json:"sample_rate,omitempty"` // Hz

	// Demixing
	BoomSensor   *int `json:"boom_sensor,omitempty"`   // index of boom magnetometer, -1 disables
	CSIterations *int `json:"cs_iterations,omitempty"` // reweighting loop bound
	Workers      *int `json:"workers,omitempty"`       // demix pool size, 0 = auto

	// Clustering
	ClusterMinPoints *int     `json:"cluster_min_points,omitempty"`
	ClusterEps       *float64 `json:"cluster_eps,omitempty"` // 0 derives from ssp_tol_degrees
}

// EmptyTuningConfig returns a TuningConfig with all fields unset.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must have
// a .json extension and be under the max file size.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *TuningConfig) Validate() error {
	if c.FilterWindow != nil && *c.FilterWindow <= 0 {
		return fmt.Errorf("filter_window must be positive, got %d", *c.FilterWindow)
	}
	if c.Sigma != nil && *c.Sigma < 0 {
		return fmt.Errorf("sigma must be non-negative, got %f", *c.Sigma)
	}
	if c.SSPTolDegrees != nil && (*c.SSPTolDegrees <= 0 || *c.SSPTolDegrees >= 90) {
		return fmt.Errorf("ssp_tol_degrees must be in (0, 90), got %f", *c.SSPTolDegrees)
	}
	if c.BandsPerOctave != nil && *c.BandsPerOctave <= 0 {
		return fmt.Errorf("bands_per_octave must be positive, got %d", *c.BandsPerOctave)
	}
	if c.SampleRate != nil && *c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %f", *c.SampleRate)
	}
	if c.CSIterations != nil && *c.CSIterations <= 0 {
		return fmt.Errorf("cs_iterations must be positive, got %d", *c.CSIterations)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	if c.ClusterMinPoints != nil && *c.ClusterMinPoints < 2 {
		return fmt.Errorf("cluster_min_points must be at least 2, got %d", *c.ClusterMinPoints)
	}
	if c.ClusterEps != nil && *c.ClusterEps < 0 {
		return fmt.Errorf("cluster_eps must be non-negative, got %f", *c.ClusterEps)
	}
	return nil
}

// GetDetrend returns the detrend flag or the default.
func (c *TuningConfig) GetDetrend() bool {
	if c.Detrend == nil {
		return false
	}
	return *c.Detrend
}

// GetFilterWindow returns the detrending window length or the default.
func (c *TuningConfig) GetFilterWindow() int {
	if c.FilterWindow == nil {
		return 400
	}
	return *c.FilterWindow
}

// GetSigma returns the magnitude filter threshold or the default.
func (c *TuningConfig) GetSigma() float64 {
	if c.Sigma == nil {
		return 100
	}
	return *c.Sigma
}

// GetLambda returns the magnitude filter threshold factor or the default.
func (c *TuningConfig) GetLambda() float64 {
	if c.Lambda == nil {
		return 1.2
	}
	return *c.Lambda
}

// GetSSPTolDegrees returns the single-source-point tolerance or the default.
func (c *TuningConfig) GetSSPTolDegrees() float64 {
	if c.SSPTolDegrees == nil {
		return 15
	}
	return *c.SSPTolDegrees
}

// GetBandsPerOctave returns the transform resolution or the default.
func (c *TuningConfig) GetBandsPerOctave() int {
	if c.BandsPerOctave == nil {
		return 10
	}
	return *c.BandsPerOctave
}

// GetSampleRate returns the sampling rate or the default.
func (c *TuningConfig) GetSampleRate() float64 {
	if c.SampleRate == nil {
		return 1
	}
	return *c.SampleRate
}

// GetBoomSensor returns the boom magnetometer index, or -1 when no boom
// sensor is configured.
func (c *TuningConfig) GetBoomSensor() int {
	if c.BoomSensor == nil {
		return -1
	}
	return *c.BoomSensor
}

// GetCSIterations returns the compressive sensing iteration bound or the default.
func (c *TuningConfig) GetCSIterations() int {
	if c.CSIterations == nil {
		return 5
	}
	return *c.CSIterations
}

// GetWorkers returns the demix worker pool size; 0 means size from the
// machine's available parallelism.
func (c *TuningConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetClusterMinPoints returns the density clustering core-point threshold.
func (c *TuningConfig) GetClusterMinPoints() int {
	if c.ClusterMinPoints == nil {
		return 4
	}
	return *c.ClusterMinPoints
}

// GetClusterEps returns the clustering neighbourhood radius; 0 means derive
// it from the SSP angular tolerance.
func (c *TuningConfig) GetClusterEps() float64 {
	if c.ClusterEps == nil {
		return 0
	}
	return *c.ClusterEps
}
