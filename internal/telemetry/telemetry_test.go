package telemetry

import "testing"

func TestShimMethodsDoNotPanicOnNilLogger(t *testing.T) {
	var s *Shim
	s.Profile("STATIC", "https://example.com")
	s.Discovery(1, "aria-label", "[aria-label='Search']", true)
	s.CacheEvent("HIT", "hot", "Search", "#q")
	s.CacheDrift("key", 10, 35, "reuse")
	s.Readiness(1, "ok", "")
	s.Gate(true, true, true, true, true)
	s.Heal(1, "reprobe", "success")
	s.Result("PASS", 2, 0)
	s.Sync()
}

func TestNewBuildsWorkingLogger(t *testing.T) {
	s, err := New(true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Sync()
	s.Result("PASS", 1, 0)
	if s.Raw() == nil {
		t.Fatal("expected non-nil raw logger")
	}
}
