// Package theme holds the white-label colors and branding served to clients
// and printed on certificates.
package theme

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the theme configuration
type Config struct {
	Colors   Colors   `yaml:"colors" json:"colors"`
	Branding Branding `yaml:"branding" json:"branding"`
}

// Colors are palette names (indigo, gray, ...) or hex values
type Colors struct {
	Primary    string `yaml:"primary" json:"primary"`
	Secondary  string `yaml:"secondary" json:"secondary"`
	Accent     string `yaml:"accent" json:"accent"`
	Background string `yaml:"background" json:"background"`
	Text       string `yaml:"text" json:"text"`
}

// Branding is the product identity
type Branding struct {
	Logo        string      `yaml:"logo" json:"logo"`
	Title       string      `yaml:"title" json:"title"`
	Issuer      string      `yaml:"issuer" json:"issuer"`
	FooterLinks FooterLinks `yaml:"footer_links" json:"footer_links"`
}

// FooterLinks are optional legal links
type FooterLinks struct {
	Privacy string `yaml:"privacy,omitempty" json:"privacy,omitempty"`
	Terms   string `yaml:"terms,omitempty" json:"terms,omitempty"`
	Imprint string `yaml:"imprint,omitempty" json:"imprint,omitempty"`
}

// Default returns the built-in theme
func Default() Config {
	return Config{
		Colors: Colors{
			Primary:    "indigo",
			Secondary:  "gray",
			Accent:     "purple",
			Background: "gray",
			Text:       "gray",
		},
		Branding: Branding{
			Logo:   "BookOpen",
			Title:  "Lernplattform by ADLX",
			Issuer: "ADLX GmbH",
		},
	}
}

// Load reads a YAML theme over the defaults. A missing file yields the
// defaults with a warning.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Warn("theme file not found, using defaults", "path", path)
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read theme: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("failed to parse theme %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Default(), err
	}

	slog.Info("loaded theme", "path", path, "title", cfg.Branding.Title)
	return cfg, nil
}

// Validate checks colors and branding
func (c Config) Validate() error {
	colors := map[string]string{
		"primary":    c.Colors.Primary,
		"secondary":  c.Colors.Secondary,
		"accent":     c.Colors.Accent,
		"background": c.Colors.Background,
		"text":       c.Colors.Text,
	}
	for name, value := range colors {
		if _, _, _, ok := RGB(value); !ok {
			return fmt.Errorf("invalid theme color %s: %q", name, value)
		}
	}
	if c.Branding.Title == "" {
		return errors.New("theme branding title is required")
	}
	return nil
}

var hexColor = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// palette holds the 600 shade of the named colors
var palette = map[string][3]uint8{
	"slate":   {71, 85, 105},
	"gray":    {75, 85, 99},
	"zinc":    {82, 82, 91},
	"red":     {220, 38, 38},
	"orange":  {234, 88, 12},
	"amber":   {217, 119, 6},
	"yellow":  {202, 138, 4},
	"green":   {22, 163, 74},
	"emerald": {5, 150, 105},
	"teal":    {13, 148, 136},
	"cyan":    {8, 145, 178},
	"sky":     {2, 132, 199},
	"blue":    {37, 99, 235},
	"indigo":  {79, 70, 229},
	"violet":  {124, 58, 237},
	"purple":  {147, 51, 234},
	"pink":    {219, 39, 119},
	"rose":    {225, 29, 72},
}

// RGB resolves a palette name or hex color
func RGB(color string) (r, g, b uint8, ok bool) {
	if c, found := palette[color]; found {
		return c[0], c[1], c[2], true
	}
	if !hexColor.MatchString(color) {
		return 0, 0, 0, false
	}

	hex := color[1:]
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	return uint8(v >> 16), uint8(v >> 8), uint8(v), true
}
