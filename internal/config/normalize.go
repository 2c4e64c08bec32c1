package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeVision(); err != nil {
		return err
	}
	if err := c.normalizeTools(); err != nil {
		return err
	}
	c.normalizeUpload()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.JobsRoot) == "" {
		c.Paths.JobsRoot = defaultJobsRoot
	}
	if c.Paths.JobsRoot, err = expandPath(c.Paths.JobsRoot); err != nil {
		return fmt.Errorf("paths.jobs_root: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeVision() error {
	if c.Vision.APIKey == "" {
		if value, ok := os.LookupEnv("VISION_API_KEY"); ok {
			c.Vision.APIKey = value
		}
	}
	c.Vision.APIKey = strings.TrimSpace(c.Vision.APIKey)
	c.Vision.BaseURL = strings.TrimRight(strings.TrimSpace(c.Vision.BaseURL), "/")
	if c.Vision.BaseURL == "" {
		c.Vision.BaseURL = defaultVisionBaseURL
	}
	c.Vision.Model = strings.TrimSpace(c.Vision.Model)
	if c.Vision.Model == "" {
		c.Vision.Model = defaultVisionModel
	}
	if c.Vision.TimeoutSeconds <= 0 {
		c.Vision.TimeoutSeconds = defaultVisionTimeoutSeconds
	}
	return nil
}

func (c *Config) normalizeTools() error {
	var err error
	if c.Tools.TripoSRDir, err = expandPath(strings.TrimSpace(c.Tools.TripoSRDir)); err != nil {
		return fmt.Errorf("tools.triposr_dir: %w", err)
	}
	if c.Tools.BlenderScript, err = expandPath(strings.TrimSpace(c.Tools.BlenderScript)); err != nil {
		return fmt.Errorf("tools.blender_script: %w", err)
	}
	c.Tools.PythonBinary = strings.TrimSpace(c.Tools.PythonBinary)
	if c.Tools.PythonBinary == "" {
		c.Tools.PythonBinary = defaultPythonBinary
	}
	c.Tools.BlenderBinary = strings.TrimSpace(c.Tools.BlenderBinary)
	c.Tools.RembgBinary = strings.TrimSpace(c.Tools.RembgBinary)
	if c.Tools.MeshTimeoutSeconds <= 0 {
		c.Tools.MeshTimeoutSeconds = defaultMeshTimeoutSeconds
	}
	if c.Tools.RenderTimeoutSeconds <= 0 {
		c.Tools.RenderTimeoutSeconds = defaultRenderTimeoutSeconds
	}
	return nil
}

func (c *Config) normalizeUpload() {
	if c.Upload.MaxBytes <= 0 {
		c.Upload.MaxBytes = defaultUploadMaxBytes
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
