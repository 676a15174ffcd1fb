package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testrunner/internal/model"
)

type fakeWarm struct {
	entries map[string]model.CacheEntry
}

func newFakeWarm() *fakeWarm { return &fakeWarm{entries: map[string]model.CacheEntry{}} }

func (f *fakeWarm) Get(_ context.Context, key string) (model.CacheEntry, bool, error) {
	e, ok := f.entries[key]
	return e, ok, nil
}
func (f *fakeWarm) Set(_ context.Context, key string, entry model.CacheEntry) error {
	f.entries[key] = entry
	return nil
}
func (f *fakeWarm) Delete(_ context.Context, key string) error {
	delete(f.entries, key)
	return nil
}

func testKey() model.CacheKey {
	return model.CacheKey{SessionScope: "s1", URLPattern: "https://x.com/a?q=1", ElementName: "  Search  Box ", ActionClass: "fill"}
}

func TestNormalizeURLStripsQueryAndFragment(t *testing.T) {
	assert.Equal(t, "https://x.com/a", NormalizeURL("https://x.com/a?q=1"))
	assert.Equal(t, "https://x.com/a", NormalizeURL("https://x.com/a#frag"))
}

func TestNormalizeElementNameFoldsCaseAndWhitespace(t *testing.T) {
	assert.Equal(t, "search box", NormalizeElementName("  Search  Box "))
}

func TestSkeletonDriftZeroForIdenticalSkeletons(t *testing.T) {
	s := "DIV.a|SPAN.b"
	assert.Equal(t, 0.0, SkeletonDrift(s, s))
}

func TestSkeletonDriftHighForDisjointSkeletons(t *testing.T) {
	d := SkeletonDrift("DIV.a|SPAN.b", "P.c|UL.d")
	assert.Equal(t, 1.0, d)
}

func TestSaveSkipsNonStableEntries(t *testing.T) {
	hot := NewMemoryHot()
	warm := newFakeWarm()
	c := New(hot, warm, time.Hour, 0.35, nil)

	c.Save(context.Background(), testKey(), model.CacheEntry{Selector: "#x", Stable: false})
	_, ok, _ := warm.Get(context.Background(), Key(testKey()))
	assert.False(t, ok)
}

func TestSaveThenLookupHitsHotTier(t *testing.T) {
	hot := NewMemoryHot()
	warm := newFakeWarm()
	c := New(hot, warm, time.Hour, 0.35, nil)

	entry := model.CacheEntry{Selector: "#x", Stable: true, DOMSkeleton: "DIV.a"}
	c.Save(context.Background(), testKey(), entry)

	got, ok := c.Lookup(context.Background(), testKey(), "DIV.a")
	require.True(t, ok)
	assert.Equal(t, "#x", got.Selector)
}

func TestLookupInvalidatesOnHighDrift(t *testing.T) {
	hot := NewMemoryHot()
	warm := newFakeWarm()
	c := New(hot, warm, time.Hour, 0.1, nil)

	entry := model.CacheEntry{Selector: "#x", Stable: true, DOMSkeleton: "DIV.a|SPAN.b"}
	c.Save(context.Background(), testKey(), entry)

	_, ok := c.Lookup(context.Background(), testKey(), "P.c|UL.d")
	assert.False(t, ok)

	_, hotOK, _ := hot.Get(context.Background(), Key(testKey()))
	assert.False(t, hotOK)
}

func TestLookupMissWhenNoEntry(t *testing.T) {
	c := New(NewMemoryHot(), newFakeWarm(), time.Hour, 0.35, nil)
	_, ok := c.Lookup(context.Background(), testKey(), "DIV.a")
	assert.False(t, ok)
}

func TestTwoConsecutiveFailuresInvalidates(t *testing.T) {
	hot := NewMemoryHot()
	warm := newFakeWarm()
	c := New(hot, warm, time.Hour, 0.35, nil)
	entry := model.CacheEntry{Selector: "#x", Stable: true, DOMSkeleton: "DIV.a"}
	c.Save(context.Background(), testKey(), entry)

	c.RecordValidationFailure(context.Background(), testKey())
	c.RecordValidationFailure(context.Background(), testKey())

	_, ok := c.Lookup(context.Background(), testKey(), "DIV.a")
	assert.False(t, ok)
}

func TestMemoryHotRespectsTTL(t *testing.T) {
	hot := NewMemoryHot()
	ctx := context.Background()
	require.NoError(t, hot.Set(ctx, "k", model.CacheEntry{Selector: "#x"}, time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	_, ok, err := hot.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
