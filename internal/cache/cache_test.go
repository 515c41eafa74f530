package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"lattice/api/internal/model"
)

func setupTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	c, err := NewRedisCache("redis://"+s.Addr(), time.Minute)
	if err != nil {
		t.Fatalf("failed to create redis cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, s
}

func TestNewRedisCacheRejectsBadURL(t *testing.T) {
	if _, err := NewRedisCache("not-a-url", time.Minute); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSetGetInvalidate(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()
	doc := model.NewDocumentID()
	other := model.NewDocumentID()

	if _, ok, err := c.Get(ctx, doc, KindHTML); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	if err := c.Set(ctx, doc, KindHTML, []byte("<p>x</p>")); err != nil {
		t.Fatalf("set html: %v", err)
	}
	if err := c.Set(ctx, doc, KindMarkmap, []byte(`{"content":""}`)); err != nil {
		t.Fatalf("set markmap: %v", err)
	}
	if err := c.Set(ctx, other, KindHTML, []byte("<p>y</p>")); err != nil {
		t.Fatalf("set other: %v", err)
	}

	value, ok, err := c.Get(ctx, doc, KindHTML)
	if err != nil || !ok || string(value) != "<p>x</p>" {
		t.Fatalf("unexpected get: %q %v %v", value, ok, err)
	}

	if err := c.Invalidate(ctx, doc); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	for _, kind := range []string{KindHTML, KindMarkmap} {
		if _, ok, _ := c.Get(ctx, doc, kind); ok {
			t.Fatalf("%s should be gone after invalidate", kind)
		}
	}
	if _, ok, _ := c.Get(ctx, other, KindHTML); !ok {
		t.Fatal("other document must keep its entry")
	}
}

func TestEntriesExpire(t *testing.T) {
	c, s := setupTestCache(t)
	ctx := context.Background()
	doc := model.NewDocumentID()

	if err := c.Set(ctx, doc, KindMarkdown, []byte("# A")); err != nil {
		t.Fatalf("set: %v", err)
	}
	s.FastForward(2 * time.Minute)

	if _, ok, err := c.Get(ctx, doc, KindMarkdown); err != nil || ok {
		t.Fatalf("expected expiry, got ok=%v err=%v", ok, err)
	}
}

func TestNoopCache(t *testing.T) {
	var c Cache = Noop{}
	ctx := context.Background()
	doc := model.NewDocumentID()
	if err := c.Set(ctx, doc, KindHTML, []byte("x")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok, _ := c.Get(ctx, doc, KindHTML); ok {
		t.Fatal("noop cache must never hit")
	}
}

func TestPerUserKindsShareInvalidation(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()
	doc := model.NewDocumentID()

	for _, user := range []string{"ana", "bo"} {
		if err := c.Set(ctx, doc, PerUser(KindMarkmap, user), []byte(user)); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}
	if got, ok, _ := c.Get(ctx, doc, PerUser(KindMarkmap, "bo")); !ok || string(got) != "bo" {
		t.Fatalf("unexpected per-user value %q %v", got, ok)
	}
	if err := c.Invalidate(ctx, doc); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if _, ok, _ := c.Get(ctx, doc, PerUser(KindMarkmap, "ana")); ok {
		t.Fatal("expected per-user entry to be invalidated")
	}
	if kindLabel(PerUser(KindMarkmap, "ana")) != KindMarkmap {
		t.Fatal("metric label should drop the user")
	}
}
