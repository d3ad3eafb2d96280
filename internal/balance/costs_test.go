package balance

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCostsDefaults(t *testing.T) {
	costs, err := LoadCosts("")
	if err != nil {
		t.Fatalf("LoadCosts: %v", err)
	}
	if costs != DefaultCosts() {
		t.Fatalf("costs = %+v, want defaults", costs)
	}
}

func TestLoadCostsPartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	data := "storyboard_video: 5\nimage_doubao: -1\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	costs, err := LoadCosts(path)
	if err != nil {
		t.Fatalf("LoadCosts: %v", err)
	}
	if costs.StoryboardVideo != 5 {
		t.Fatalf("StoryboardVideo = %d, want 5", costs.StoryboardVideo)
	}
	// Negative entries must not make an operation free or paying.
	if costs.ImageDoubao != DefaultCosts().ImageDoubao {
		t.Fatalf("ImageDoubao = %d, want default", costs.ImageDoubao)
	}
	if costs.CharacterVideo != DefaultCosts().CharacterVideo {
		t.Fatalf("CharacterVideo = %d, want default", costs.CharacterVideo)
	}
}

func TestLoadCostsMissingFileKeepsDefaults(t *testing.T) {
	costs, err := LoadCosts(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if costs != DefaultCosts() {
		t.Fatalf("costs = %+v, want defaults on error", costs)
	}
}

func TestImageCost(t *testing.T) {
	costs := DefaultCosts()
	cases := []struct {
		model string
		want  int
	}{
		{"nano-banana", 4},
		{"gemini-nano-banana-hd", 4},
		{"doubao-seedream", 2},
		{"unknown-model", 4},
	}
	for _, tc := range cases {
		if got := costs.ImageCost(tc.model); got != tc.want {
			t.Errorf("ImageCost(%q) = %d, want %d", tc.model, got, tc.want)
		}
	}
}
