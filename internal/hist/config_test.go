package hist

import (
	"errors"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	valid := DefaultConfig()
	if err := valid.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero width", func(c *Config) { c.Width = 0 }},
		{"non power of two block", func(c *Config) { c.BlockWidth = 6 }},
		{"zero bins", func(c *Config) { c.NumOfBins = 0 }},
		{"too many bins", func(c *Config) { c.NumOfBins = 257 }},
		{"chromatic 1-pixel block", func(c *Config) { c.BlockWidth, c.BlockHeight = 1, 1 }},
		{"too many chromatic lanes", func(c *Config) { c.BlockWidth, c.BlockHeight = 128, 64 }},
		{"too many grayscale lanes", func(c *Config) { c.Color = Grayscale; c.BlockWidth, c.BlockHeight = 64, 32 }},
		{"image smaller than block", func(c *Config) { c.Width, c.Height = 4, 4 }},
		{"subgroup not power of two", func(c *Config) { c.SubgroupWidth = 12 }},
		{"unknown format", func(c *Config) { c.Format = 7 }},
		{"unknown precision", func(c *Config) { c.Precision = 3 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestConfigAcceptsEdgeGeometries(t *testing.T) {
	tests := []Config{
		testConfig(Grayscale, FormatPlanar, 1, 1, 1, 1, 1),
		testConfig(Grayscale, FormatPlanar, 1024, 1, 1024, 1, 256),
		testConfig(Chromatic, FormatSemiPlanar, 64, 64, 64, 64, 3),
		testConfig(Chromatic, FormatPlanar, 1921, 1081, 8, 8, 16),
	}
	for _, cfg := range tests {
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate(%+v) = %v", cfg, err)
		}
	}
}

func TestParseEnums(t *testing.T) {
	if f, err := ParseFormat("NV12"); err != nil || f != FormatSemiPlanar {
		t.Errorf("ParseFormat(NV12) = %v, %v", f, err)
	}
	if c, err := ParseColor("gray"); err != nil || c != Grayscale {
		t.Errorf("ParseColor(gray) = %v, %v", c, err)
	}
	if p, err := ParsePrecision("float"); err != nil || p != PrecisionFloat {
		t.Errorf("ParsePrecision(float) = %v, %v", p, err)
	}
	if _, err := ParseFormat("rgb"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("ParseFormat(rgb) = %v", err)
	}
}
