package scene

import (
	"context"
	"testing"
)

func TestCacheMemoizesByContent(t *testing.T) {
	cache := NewCache(New(), 2)
	ctx := context.Background()
	buf := createPortraitBuffer(40, 50)

	first, err := cache.AnalyzeAt(ctx, buf, 256)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	second, err := cache.AnalyzeAt(ctx, buf.Clone(), 256)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if first != second {
		t.Error("Identical content should return the cached analysis")
	}

	// a different working resolution is a different entry
	if _, err := cache.AnalyzeAt(ctx, buf, 20); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	hits, misses := cache.Stats()
	if hits != 1 || misses != 2 {
		t.Errorf("Expected 1 hit / 2 misses, got %d / %d", hits, misses)
	}
}

func TestCacheEvictsOldest(t *testing.T) {
	cache := NewCache(New(), 1)
	ctx := context.Background()
	a := createPortraitBuffer(40, 50)
	b := createLandscapeBuffer(40, 30, 15)

	cache.AnalyzeAt(ctx, a, 256)
	cache.AnalyzeAt(ctx, b, 256)
	if cache.Len() != 1 {
		t.Fatalf("Expected 1 entry, got %d", cache.Len())
	}
	cache.AnalyzeAt(ctx, a, 256)
	if hits, _ := cache.Stats(); hits != 0 {
		t.Errorf("Evicted entry should miss, got %d hits", hits)
	}
}

func TestCacheModifiedBufferMisses(t *testing.T) {
	cache := NewCache(New(), 4)
	ctx := context.Background()
	buf := createPortraitBuffer(40, 50)
	cache.AnalyzeAt(ctx, buf, 256)

	changed := buf.Clone()
	changed.SetRGB(0, 0, 1, 2, 3)
	cache.AnalyzeAt(ctx, changed, 256)
	if _, misses := cache.Stats(); misses != 2 {
		t.Errorf("Changed content should miss, got %d misses", misses)
	}
}
