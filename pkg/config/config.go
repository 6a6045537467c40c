// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"image/color"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/user/gopseek/pkg/ports"
	"github.com/user/gopseek/pkg/sheet"
)

// Config represents the full configuration for gopseek.
type Config struct {
	// Backend
	Backend    string `yaml:"backend"`
	FFmpegPath string `yaml:"ffmpeg_path"`

	// Output
	Layout    string `yaml:"layout"`
	OutputDir string `yaml:"output_dir"`

	// Logging
	LogLevel string `yaml:"log_level"`

	// Contact sheet
	Sheet SheetConfig `yaml:"sheet"`
}

// SheetConfig represents contact sheet options.
type SheetConfig struct {
	Columns         int     `yaml:"columns"`
	Count           int     `yaml:"count"`
	ThumbWidth      int     `yaml:"thumb_width"`
	Gap             int     `yaml:"gap"`
	Label           bool    `yaml:"label"`
	FontSize        float64 `yaml:"font_size"`
	FontPath        string  `yaml:"font_path"`
	BackgroundColor string  `yaml:"background_color"`
	TextColor       string  `yaml:"text_color"`
	KeyframeColor   string  `yaml:"keyframe_color"`
	Workers         int     `yaml:"workers"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		Backend:   "auto",
		Layout:    "auto",
		OutputDir: ".",
		LogLevel:  "info",
		Sheet: SheetConfig{
			Columns:         5,
			Count:           20,
			ThumbWidth:      192,
			Gap:             8,
			Label:           true,
			FontSize:        12,
			BackgroundColor: "#1a1a2e",
			TextColor:       "#ffffff",
			KeyframeColor:   "#4ade80",
			Workers:         4,
		},
	}
}

// LoadFromFile loads configuration from a YAML file over the defaults.
func LoadFromFile(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// ParseLogLevel converts the configured level name. Unknown names are an
// error rather than a silent fallback to info.
func (c Config) ParseLogLevel() (ports.LogLevel, error) {
	return ports.ParseLogLevel(c.LogLevel)
}

// PixelLayout returns the configured layout, or nil for "auto".
func (c Config) PixelLayout() (*ports.PixelLayout, error) {
	if c.Layout == "" || c.Layout == "auto" {
		return nil, nil
	}
	layout, err := ports.ParsePixelLayout(c.Layout)
	if err != nil {
		return nil, err
	}
	return &layout, nil
}

// ToSheetConfig converts the sheet section to sheet.Config.
func (c Config) ToSheetConfig() sheet.Config {
	return sheet.Config{
		Columns:       c.Sheet.Columns,
		ThumbWidth:    c.Sheet.ThumbWidth,
		Gap:           c.Sheet.Gap,
		Label:         c.Sheet.Label,
		FontSize:      c.Sheet.FontSize,
		FontPath:      c.Sheet.FontPath,
		Background:    ParseColor(c.Sheet.BackgroundColor),
		TextColor:     ParseColor(c.Sheet.TextColor),
		KeyframeColor: ParseColor(c.Sheet.KeyframeColor),
		Workers:       c.Sheet.Workers,
	}
}

// ParseColor parses a hex color string ("#rrggbb" or "rrggbb") to
// color.Color. Malformed input yields black.
func ParseColor(hex string) color.Color {
	if len(hex) > 0 && hex[0] == '#' {
		hex = hex[1:]
	}
	if len(hex) != 6 {
		return color.Black
	}

	var rgb [3]uint8
	for i := range rgb {
		rgb[i] = hexValue(hex[2*i])<<4 | hexValue(hex[2*i+1])
	}
	return color.RGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 255}
}

func hexValue(c byte) uint8 {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	default:
		return 0
	}
}
