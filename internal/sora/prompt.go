package sora

import (
	"fmt"
	"strings"
)

// LinkedAsset names a character, scene, or prop together with its reference
// image.
type LinkedAsset struct {
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl"`
}

// LinkedAssets groups the assets attached to a storyboard, in the order they
// are appended to the reference image list: characters, scenes, props.
type LinkedAssets struct {
	Characters []LinkedAsset `json:"characters"`
	Scenes     []LinkedAsset `json:"scenes"`
	Props      []LinkedAsset `json:"props"`
}

func (l LinkedAssets) Empty() bool {
	return len(l.Characters) == 0 && len(l.Scenes) == 0 && len(l.Props) == 0
}

// BuildReferenceImages assembles the final image list: explicit reference
// images first, then linked asset images in characters/scenes/props order so
// the indices in the reference map text line up.
func BuildReferenceImages(referenceImages []string, assets LinkedAssets) []string {
	images := make([]string, 0, len(referenceImages))
	images = append(images, referenceImages...)
	for _, groups := range [][]LinkedAsset{assets.Characters, assets.Scenes, assets.Props} {
		for _, asset := range groups {
			if asset.ImageURL != "" {
				images = append(images, asset.ImageURL)
			}
		}
	}
	return images
}

// BuildReferenceMapPrompt renders the reference-map preamble the generation
// model expects, numbering linked asset images from startIndex (1-based,
// after the explicit reference images). The text is Chinese because that is
// the wire contract with the generation model.
func BuildReferenceMapPrompt(assets LinkedAssets, startIndex int) string {
	idx := startIndex
	section := func(label string, group []LinkedAsset) string {
		if len(group) == 0 {
			return ""
		}
		entries := make([]string, 0, len(group))
		for _, asset := range group {
			if asset.ImageURL == "" {
				// Kept out of the image list, so it gets no index either.
				continue
			}
			entries = append(entries, fmt.Sprintf("%s:第%d张参考图", asset.Name, idx))
			idx++
		}
		if len(entries) == 0 {
			return ""
		}
		return fmt.Sprintf("%s:{%s}", label, strings.Join(entries, ","))
	}

	var parts []string
	if s := section("角色设计", assets.Characters); s != "" {
		parts = append(parts, s)
	}
	if s := section("场景设计", assets.Scenes); s != "" {
		parts = append(parts, s)
	}
	if s := section("物品设计", assets.Props); s != "" {
		parts = append(parts, s)
	}
	if len(parts) == 0 {
		return ""
	}
	return fmt.Sprintf("视频中涉及的角色、场景、物品，请参考参考图映射表。参考图映射表：[%s]\n\n", strings.Join(parts, ","))
}

// ComposePrompt prefixes the storyboard prompt with the reference map when
// linked assets are present.
func ComposePrompt(prompt string, referenceImages []string, assets LinkedAssets) string {
	if assets.Empty() {
		return prompt
	}
	return BuildReferenceMapPrompt(assets, len(referenceImages)+1) + prompt
}
