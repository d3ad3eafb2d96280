package balance

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Costs holds the token price of each paid operation.
type Costs struct {
	StoryboardVideo int `yaml:"storyboard_video"`
	CharacterVideo  int `yaml:"character_video"`
	ImageBanana     int `yaml:"image_banana"`
	ImageDoubao     int `yaml:"image_doubao"`
}

// DefaultCosts mirrors the shipped pricing table.
func DefaultCosts() Costs {
	return Costs{
		StoryboardVideo: 3,
		CharacterVideo:  3,
		ImageBanana:     4,
		ImageDoubao:     2,
	}
}

// LoadCosts returns the default pricing, overridden by the YAML file at path
// when one is configured. Zero or negative entries in the file fall back to
// the default so a partial file cannot make an operation free.
func LoadCosts(path string) (Costs, error) {
	costs := DefaultCosts()
	if path == "" {
		return costs, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return costs, fmt.Errorf("read pricing file: %w", err)
	}

	var override Costs
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return costs, fmt.Errorf("parse pricing file: %w", err)
	}

	if override.StoryboardVideo > 0 {
		costs.StoryboardVideo = override.StoryboardVideo
	}
	if override.CharacterVideo > 0 {
		costs.CharacterVideo = override.CharacterVideo
	}
	if override.ImageBanana > 0 {
		costs.ImageBanana = override.ImageBanana
	}
	if override.ImageDoubao > 0 {
		costs.ImageDoubao = override.ImageDoubao
	}
	return costs, nil
}

// ImageCost resolves the per-image price for a model name.
func (c Costs) ImageCost(model string) int {
	switch {
	case strings.Contains(model, "nano-banana"):
		return c.ImageBanana
	case strings.Contains(model, "doubao"):
		return c.ImageDoubao
	}
	return c.ImageBanana
}
