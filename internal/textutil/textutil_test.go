package textutil

import "testing"

func TestPascalName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"greet_neighbor", "GreetNeighbor"},
		{"happy-glow", "HappyGlow"},
		{"is adult", "IsAdult"},
		{"greet@en", "GreetEn"},
		{"single", "Single"},
		{"__x__", "X"},
		{"GreetNeighbor", "GreetNeighbor"},
		{"greetNeighbor", "GreetNeighbor"},
		{"NPCGreeting", "NPCGreeting"},
		{"npc_HUD", "NpcHUD"},
	}
	for _, tt := range tests {
		if got := PascalName(tt.in); got != tt.want {
			t.Errorf("PascalName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestInstanceID(t *testing.T) {
	a := InstanceID("mod", "greet_neighbor")
	if a != InstanceID("MOD", "Greet_Neighbor") {
		t.Error("instance ids must ignore case")
	}
	if a == InstanceID("other", "greet_neighbor") {
		t.Error("namespace must change the instance id")
	}
	if a&(1<<63) == 0 {
		t.Errorf("high bit not set in %x", a)
	}
}

func TestHashBytes(t *testing.T) {
	if HashBytes([]byte("a")) == HashBytes([]byte("b")) {
		t.Error("distinct inputs hash equal")
	}
	if got := HashBytes(nil); got != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Errorf("HashBytes(nil) = %s", got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"truncated text", 9, "truncated..."},
		{"héllo wörld", 5, "héllo..."},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
