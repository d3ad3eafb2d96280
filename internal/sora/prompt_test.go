package sora

import (
	"fmt"
	"strings"
	"testing"
)

func TestBuildReferenceImagesOrdering(t *testing.T) {
	assets := LinkedAssets{
		Characters: []LinkedAsset{{Name: "小明", ImageURL: "char1.png"}, {Name: "小红", ImageURL: "char2.png"}},
		Scenes:     []LinkedAsset{{Name: "教室", ImageURL: "scene1.png"}},
		Props:      []LinkedAsset{{Name: "书包", ImageURL: "prop1.png"}},
	}
	images := BuildReferenceImages([]string{"ref1.png", "ref2.png"}, assets)

	want := []string{"ref1.png", "ref2.png", "char1.png", "char2.png", "scene1.png", "prop1.png"}
	if len(images) != len(want) {
		t.Fatalf("got %d images, want %d", len(images), len(want))
	}
	for i := range want {
		if images[i] != want[i] {
			t.Fatalf("images[%d] = %q, want %q", i, images[i], want[i])
		}
	}
}

func TestBuildReferenceImagesSkipsMissingURLs(t *testing.T) {
	assets := LinkedAssets{
		Characters: []LinkedAsset{{Name: "小明"}, {Name: "小红", ImageURL: "char2.png"}},
	}
	images := BuildReferenceImages(nil, assets)
	if len(images) != 1 || images[0] != "char2.png" {
		t.Fatalf("unexpected images: %v", images)
	}
}

func TestBuildReferenceMapPromptNumbering(t *testing.T) {
	assets := LinkedAssets{
		Characters: []LinkedAsset{{Name: "小明", ImageURL: "c1.png"}},
		Scenes:     []LinkedAsset{{Name: "教室", ImageURL: "s1.png"}},
	}
	// Two explicit reference images come first, so assets start at index 3.
	got := BuildReferenceMapPrompt(assets, 3)

	for _, fragment := range []string{
		"角色设计:{小明:第3张参考图}",
		"场景设计:{教室:第4张参考图}",
		"参考图映射表：[",
	} {
		if !strings.Contains(got, fragment) {
			t.Fatalf("prompt missing %q:\n%s", fragment, got)
		}
	}
	if !strings.HasSuffix(got, "\n\n") {
		t.Fatal("prompt must end with a blank line before the storyboard text")
	}
}

func TestReferenceMapIndicesMatchImageList(t *testing.T) {
	assets := LinkedAssets{
		Characters: []LinkedAsset{{Name: "甲", ImageURL: "c1.png"}, {Name: "乙"}},
		Props:      []LinkedAsset{{Name: "剑", ImageURL: "p1.png"}},
	}
	refs := []string{"ref1.png"}
	images := BuildReferenceImages(refs, assets)
	prompt := BuildReferenceMapPrompt(assets, len(refs)+1)

	// 乙 has no image, so 剑 must take the slot right after 甲.
	wantIdx := map[string]string{"甲": "c1.png", "剑": "p1.png"}
	for name, img := range wantIdx {
		idx := -1
		for i, u := range images {
			if u == img {
				idx = i + 1
			}
		}
		if idx < 0 {
			t.Fatalf("%s image missing from list", name)
		}
		frag := fmt.Sprintf("%s:第%d张参考图", name, idx)
		if !strings.Contains(prompt, frag) {
			t.Fatalf("prompt missing %q:\n%s", frag, prompt)
		}
	}
	if strings.Contains(prompt, "乙") {
		t.Fatal("asset without an image must not appear in the map")
	}
}

func TestComposePromptWithoutAssets(t *testing.T) {
	prompt := ComposePrompt("just a prompt", []string{"ref.png"}, LinkedAssets{})
	if prompt != "just a prompt" {
		t.Fatalf("prompt = %q", prompt)
	}
}

func TestComposePromptPrefixesReferenceMap(t *testing.T) {
	assets := LinkedAssets{Characters: []LinkedAsset{{Name: "小明", ImageURL: "c1.png"}}}
	prompt := ComposePrompt("走进教室", nil, assets)

	if !strings.HasSuffix(prompt, "走进教室") {
		t.Fatalf("storyboard text must come last: %q", prompt)
	}
	if !strings.Contains(prompt, "小明:第1张参考图") {
		t.Fatalf("reference map missing: %q", prompt)
	}
}
