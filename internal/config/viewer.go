package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/slam.viewer/internal/graph"
	"github.com/banshee-data/slam.viewer/internal/keyframe"
)

// DefaultConfigPath is the path to the canonical viewer defaults file.
const DefaultConfigPath = "config/viewer.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// ViewerConfig is the root configuration of the viewer. Every field is
// optional; the Get* methods fall back to the built-in defaults so partial
// files are safe.
type ViewerConfig struct {
	// Display and point filter
	CutFirstNKf        *int     `json:"cut_first_n_kf,omitempty"`
	ScaledDepthVarTH   *float64 `json:"scaled_depth_var_th,omitempty"`
	AbsDepthVarTH      *float64 `json:"abs_depth_var_th,omitempty"`
	MinNearSupport     *int     `json:"min_near_support,omitempty"`
	SparsifyFactor     *int     `json:"sparsify_factor,omitempty"`
	ConstraintErrScale *float64 `json:"constraint_err_scale,omitempty"`
	CaptureEvery       *int     `json:"capture_every,omitempty"`
	ShowKFCameras      *bool    `json:"show_kf_cameras,omitempty"`
	ShowKFPointclouds  *bool    `json:"show_kf_pointclouds,omitempty"`
	ShowConstraints    *bool    `json:"show_constraints,omitempty"`

	// Export
	FlushInterval *string `json:"flush_interval,omitempty"` // duration string, "0s" disables
	ExportDir     *string `json:"export_dir,omitempty"`
	ExportName    *string `json:"export_name,omitempty"`

	// Upload (disabled when the bucket is empty)
	UploadEndpoint  *string `json:"upload_endpoint,omitempty"`
	UploadBucket    *string `json:"upload_bucket,omitempty"`
	UploadPrefix    *string `json:"upload_prefix,omitempty"`
	UploadAccessKey *string `json:"upload_access_key,omitempty"`
	UploadSecretKey *string `json:"upload_secret_key,omitempty"`
	UploadUseSSL    *bool   `json:"upload_use_ssl,omitempty"`

	// Monitoring
	StatsInterval *string `json:"stats_interval,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyViewerConfig returns a ViewerConfig with all fields unset.
func EmptyViewerConfig() *ViewerConfig {
	return &ViewerConfig{}
}

// LoadViewerConfig loads a ViewerConfig from a JSON file. The file must have
// a .json extension and be under 1MB.
func LoadViewerConfig(path string) (*ViewerConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyViewerConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory
// or one of its parents. Panics if the file cannot be loaded; intended for
// test setup.
func MustLoadDefaultConfig() *ViewerConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from internal/storage/sqlite/
	}
	for _, path := range candidates {
		if cfg, err := LoadViewerConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *ViewerConfig) Validate() error {
	if c.CutFirstNKf != nil && *c.CutFirstNKf < 0 {
		return fmt.Errorf("cut_first_n_kf must be non-negative, got %d", *c.CutFirstNKf)
	}
	if c.ScaledDepthVarTH != nil && *c.ScaledDepthVarTH <= 0 {
		return fmt.Errorf("scaled_depth_var_th must be positive, got %g", *c.ScaledDepthVarTH)
	}
	if c.AbsDepthVarTH != nil && *c.AbsDepthVarTH <= 0 {
		return fmt.Errorf("abs_depth_var_th must be positive, got %g", *c.AbsDepthVarTH)
	}
	if c.MinNearSupport != nil && (*c.MinNearSupport < 0 || *c.MinNearSupport > 9) {
		return fmt.Errorf("min_near_support must be between 0 and 9, got %d", *c.MinNearSupport)
	}
	if c.SparsifyFactor != nil && *c.SparsifyFactor < 1 {
		return fmt.Errorf("sparsify_factor must be at least 1, got %d", *c.SparsifyFactor)
	}
	if c.ConstraintErrScale != nil && *c.ConstraintErrScale <= 0 {
		return fmt.Errorf("constraint_err_scale must be positive, got %g", *c.ConstraintErrScale)
	}
	if c.CaptureEvery != nil && *c.CaptureEvery < 0 {
		return fmt.Errorf("capture_every must be non-negative, got %d", *c.CaptureEvery)
	}

	if c.FlushInterval != nil && *c.FlushInterval != "" {
		d, err := time.ParseDuration(*c.FlushInterval)
		if err != nil {
			return fmt.Errorf("invalid flush_interval '%s': %w", *c.FlushInterval, err)
		}
		if d < 0 {
			return fmt.Errorf("flush_interval must be non-negative, got %s", d)
		}
	}
	if c.StatsInterval != nil && *c.StatsInterval != "" {
		if _, err := time.ParseDuration(*c.StatsInterval); err != nil {
			return fmt.Errorf("invalid stats_interval '%s': %w", *c.StatsInterval, err)
		}
	}

	if c.ExportName != nil {
		name := *c.ExportName
		if name == "" || filepath.Base(name) != name || filepath.Ext(name) != ".pcd" {
			return fmt.Errorf("export_name must be a bare file name ending in .pcd, got %q", name)
		}
	}
	return nil
}

// GetCutFirstNKf returns the cut_first_n_kf value or the default.
func (c *ViewerConfig) GetCutFirstNKf() int {
	if c.CutFirstNKf == nil {
		return 5
	}
	return *c.CutFirstNKf
}

// GetFilter assembles the point filter from its four settings.
func (c *ViewerConfig) GetFilter() keyframe.Filter {
	f := keyframe.DefaultFilter()
	if c.ScaledDepthVarTH != nil {
		f.ScaledDepthVarTH = *c.ScaledDepthVarTH
	}
	if c.AbsDepthVarTH != nil {
		f.AbsDepthVarTH = *c.AbsDepthVarTH
	}
	if c.MinNearSupport != nil {
		f.MinNearSupport = *c.MinNearSupport
	}
	if c.SparsifyFactor != nil {
		f.SparsifyFactor = *c.SparsifyFactor
	}
	return f
}

// GetConstraintErrScale returns the constraint_err_scale value or the default.
func (c *ViewerConfig) GetConstraintErrScale() float64 {
	if c.ConstraintErrScale == nil {
		return 0.05
	}
	return *c.ConstraintErrScale
}

// GetCaptureEvery returns the capture_every value or the default.
func (c *ViewerConfig) GetCaptureEvery() int {
	if c.CaptureEvery == nil {
		return 0 // default: capture disabled
	}
	return *c.CaptureEvery
}

func getBool(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// DisplaySettings converts the display section into graph settings.
func (c *ViewerConfig) DisplaySettings() graph.DisplaySettings {
	return graph.DisplaySettings{
		CutFirstNKf:        c.GetCutFirstNKf(),
		Filter:             c.GetFilter(),
		ConstraintErrScale: c.GetConstraintErrScale(),
		CaptureEvery:       c.GetCaptureEvery(),
		ShowKFCameras:      getBool(c.ShowKFCameras, true),
		ShowKFPointclouds:  getBool(c.ShowKFPointclouds, true),
		ShowConstraints:    getBool(c.ShowConstraints, true),
	}
}

// GetFlushInterval parses the flush_interval. Zero disables periodic export.
func (c *ViewerConfig) GetFlushInterval() time.Duration {
	if c.FlushInterval == nil || *c.FlushInterval == "" {
		return 0 // default: periodic flush disabled
	}
	d, err := time.ParseDuration(*c.FlushInterval)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// GetStatsInterval parses the stats_interval.
func (c *ViewerConfig) GetStatsInterval() time.Duration {
	if c.StatsInterval == nil || *c.StatsInterval == "" {
		return 10 * time.Second
	}
	d, err := time.ParseDuration(*c.StatsInterval)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// GetExportDir returns the export_dir value or the system temp dir.
func (c *ViewerConfig) GetExportDir() string {
	if c.ExportDir == nil || *c.ExportDir == "" {
		return os.TempDir()
	}
	return *c.ExportDir
}

// GetExportName returns the export_name value or the default.
func (c *ViewerConfig) GetExportName() string {
	if c.ExportName == nil || *c.ExportName == "" {
		return "pc.pcd"
	}
	return *c.ExportName
}

// UploadSettings groups the object-store options.
type UploadSettings struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

func getString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// GetUpload returns the upload settings. Credentials not set in the file
// are taken from SLAM_VIEWER_S3_ACCESS_KEY and SLAM_VIEWER_S3_SECRET_KEY.
func (c *ViewerConfig) GetUpload() UploadSettings {
	u := UploadSettings{
		Endpoint:  getString(c.UploadEndpoint),
		Bucket:    getString(c.UploadBucket),
		Prefix:    getString(c.UploadPrefix),
		AccessKey: getString(c.UploadAccessKey),
		SecretKey: getString(c.UploadSecretKey),
		UseSSL:    getBool(c.UploadUseSSL, false),
	}
	if u.AccessKey == "" {
		u.AccessKey = os.Getenv("SLAM_VIEWER_S3_ACCESS_KEY")
	}
	if u.SecretKey == "" {
		u.SecretKey = os.Getenv("SLAM_VIEWER_S3_SECRET_KEY")
	}
	return u
}

// UploadEnabled reports whether an upload bucket is configured.
func (c *ViewerConfig) UploadEnabled() bool {
	return getString(c.UploadBucket) != ""
}
