// Package config handles chunktool configuration loading and management.
package config

// Config holds all chunktool settings.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Convert ConvertConfig `yaml:"convert"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// ConvertConfig holds conversion settings.
type ConvertConfig struct {
	Indent  int  `yaml:"indent"`  // JSON indent, 0 for single-line output
	Workers int  `yaml:"workers"` // parallel files in batch mode
	Strict  bool `yaml:"strict"`  // fail on chunks without a layout
}

// Overrides are command-line values applied on top of the file.
// Zero values leave the loaded setting alone.
type Overrides struct {
	Debug   bool
	LogFile string
	Workers int
	Indent  *int
	Strict  bool
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:   "warn",
			LogFile: "",
		},
		Convert: ConvertConfig{
			Indent:  2,
			Workers: 4,
			Strict:  false,
		},
	}
}

// Apply merges o into c.
func (c *Config) Apply(o Overrides) {
	if o.Debug {
		c.Logging.Level = "debug"
	}
	if o.LogFile != "" {
		c.Logging.LogFile = o.LogFile
	}
	if o.Workers > 0 {
		c.Convert.Workers = o.Workers
	}
	if o.Indent != nil {
		c.Convert.Indent = *o.Indent
	}
	if o.Strict {
		c.Convert.Strict = true
	}
}
