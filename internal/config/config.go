// Package config handles exporter configuration loading and management.
package config

// Config holds all exporter settings.
type Config struct {
	Export  ExportConfig  `yaml:"export"`
	Gltf    GltfConfig    `yaml:"gltf"`
	Logging LoggingConfig `yaml:"logging"`
}

// ExportConfig holds document generation settings.
type ExportConfig struct {
	// Options is the export option string. See threejs.ParseOptions for
	// the token grammar.
	Options string `yaml:"options"`
	// TextureDir receives texture copies when the copyTextures option is
	// set. Empty means the output document's directory.
	TextureDir string `yaml:"texture_dir"`
}

// GltfConfig holds glTF conversion settings.
type GltfConfig struct {
	SampleRate float64 `yaml:"sample_rate"` // Frames per second for animation timelines
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Export: ExportConfig{
			Options:    "vertices faces normals uvs materials",
			TextureDir: "",
		},
		Gltf: GltfConfig{
			SampleRate: 30,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}
