package inventory

import (
	"reflect"
	"testing"

	"github.com/kestrelops/kestrel/internal/domain"
)

func buildTestInventory(t *testing.T) *domain.Inventory {
	t.Helper()
	inv := domain.NewInventory()
	for _, name := range []string{"web01", "web02", "db01", "db02", "cache01"} {
		inv.AddHost(&domain.Host{Name: name, Groups: []string{groupFor(name)}})
	}
	if err := inv.LinkChild(domain.AllGroup, "web"); err != nil {
		t.Fatal(err)
	}
	if err := inv.LinkChild(domain.AllGroup, "db"); err != nil {
		t.Fatal(err)
	}
	if err := inv.LinkChild(domain.AllGroup, "cache"); err != nil {
		t.Fatal(err)
	}
	inv.Groups["web"].Hosts = []string{"web01", "web02"}
	inv.Groups["db"].Hosts = []string{"db01", "db02"}
	inv.Groups["cache"].Hosts = []string{"cache01"}
	return inv
}

func groupFor(name string) string {
	switch {
	case len(name) >= 3 && name[:3] == "web":
		return "web"
	case len(name) >= 2 && name[:2] == "db":
		return "db"
	default:
		return "cache"
	}
}

func TestResolveUnion(t *testing.T) {
	inv := buildTestInventory(t)
	got, err := Resolve(inv, "web:db")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"web01", "web02", "db01", "db02"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestResolveIntersection(t *testing.T) {
	inv := buildTestInventory(t)
	got, err := Resolve(inv, "all:&web")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"web01", "web02"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestResolveDifference(t *testing.T) {
	inv := buildTestInventory(t)
	got, err := Resolve(inv, "all:!db")
	if err != nil {
		t.Fatal(err)
	}
	for _, h := range got {
		if h == "db01" || h == "db02" {
			t.Fatalf("expected db hosts excluded, got %v", got)
		}
	}
}

func TestResolveRegex(t *testing.T) {
	inv := buildTestInventory(t)
	got, err := Resolve(inv, "~^web")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"web01", "web02"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestResolveGlob(t *testing.T) {
	inv := buildTestInventory(t)
	got, err := Resolve(inv, "db*")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"db01", "db02"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestResolveNumericRange(t *testing.T) {
	inv := domain.NewInventory()
	for _, n := range []string{"web01", "web02", "web03"} {
		inv.AddHost(&domain.Host{Name: n})
	}
	got, err := Resolve(inv, "web[01:02]")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"web01", "web02"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestResolveDeterministicAcrossCalls(t *testing.T) {
	inv := buildTestInventory(t)
	first, err := Resolve(inv, "all:!cache")
	if err != nil {
		t.Fatal(err)
	}
	second, err := Resolve(inv, "all:!cache")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("pattern resolution not deterministic: %v vs %v", first, second)
	}
}

func TestResolveUnknownGroupYieldsEmpty(t *testing.T) {
	inv := buildTestInventory(t)
	got, err := Resolve(inv, "nonexistent")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result for unknown group, got %v", got)
	}
}
