package instance

import "testing"

func TestGetIDPrefersDyno(t *testing.T) {
	t.Setenv("DYNO", "web.1")
	t.Setenv("STOREFRONT_INSTANCE_ID", "override")
	if got := GetID(); got != "web.1" {
		t.Fatalf("expected dyno name, got %q", got)
	}
}

func TestGetIDFallsBackToOverride(t *testing.T) {
	t.Setenv("DYNO", "")
	t.Setenv("STOREFRONT_INSTANCE_ID", "cron-a")
	if got := GetID(); got != "cron-a" {
		t.Fatalf("expected override, got %q", got)
	}
}

func TestGetIDNeverEmpty(t *testing.T) {
	t.Setenv("DYNO", "")
	t.Setenv("STOREFRONT_INSTANCE_ID", "")
	if GetID() == "" {
		t.Fatalf("expected a non-empty instance id")
	}
}
