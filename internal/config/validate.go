package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateVision(); err != nil {
		return err
	}
	if err := c.validateTools(); err != nil {
		return err
	}
	if err := c.validateUpload(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateVision() error {
	if c.Vision.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/collider/config.toml"
		}
		return fmt.Errorf("vision.api_key is required. Set VISION_API_KEY env var or edit %s (create with 'collider config init')", defaultPath)
	}
	if c.Vision.TimeoutSeconds <= 0 {
		return errors.New("vision.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateTools() error {
	if c.Tools.TripoSRDir == "" {
		return errors.New("tools.triposr_dir must point at the TripoSR checkout")
	}
	if c.Tools.BlenderBinary == "" {
		return errors.New("tools.blender_binary must be set")
	}
	if c.Tools.BlenderScript == "" {
		return errors.New("tools.blender_script must point at the render script")
	}
	if c.Tools.MeshTimeoutSeconds <= 0 {
		return errors.New("tools.mesh_timeout_seconds must be positive")
	}
	if c.Tools.RenderTimeoutSeconds <= 0 {
		return errors.New("tools.render_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateUpload() error {
	if c.Upload.MaxBytes <= 0 {
		return errors.New("upload.max_bytes must be positive")
	}
	return nil
}
