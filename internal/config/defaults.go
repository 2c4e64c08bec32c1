package config

const (
	defaultJobsRoot             = "~/.local/share/collider/jobs"
	defaultLogDir               = "~/.local/share/collider/logs"
	defaultAPIBind              = "127.0.0.1:5213"
	defaultVisionBaseURL        = "https://generativelanguage.googleapis.com/v1beta"
	defaultVisionModel          = "gemini-2.5-flash"
	defaultVisionTimeoutSeconds = 120
	defaultPythonBinary         = "python"
	defaultMeshTimeoutSeconds   = 900
	defaultRenderTimeoutSeconds = 1800
	defaultUploadMaxBytes       = 16 << 20
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			JobsRoot: defaultJobsRoot,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Vision: Vision{
			BaseURL:        defaultVisionBaseURL,
			Model:          defaultVisionModel,
			TimeoutSeconds: defaultVisionTimeoutSeconds,
		},
		Tools: Tools{
			PythonBinary:         defaultPythonBinary,
			MeshTimeoutSeconds:   defaultMeshTimeoutSeconds,
			RenderTimeoutSeconds: defaultRenderTimeoutSeconds,
		},
		Upload: Upload{
			MaxBytes: defaultUploadMaxBytes,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
