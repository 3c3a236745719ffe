package token

import (
	"fmt"
	"strings"
	"testing"

	"github.com/trackshift/platform/uplink/internal/resource"
)

func TestGenerateDeterministic(t *testing.T) {
	a := Generate(resource.Video, "demo.mp4")
	b := Generate(resource.Video, "demo.mp4")
	if a != b {
		t.Fatalf("tokens differ: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "Bearer ") {
		t.Fatalf("token %q missing scheme", a)
	}
}

func TestGenerateDistinct(t *testing.T) {
	seen := make(map[string]string)
	for _, kind := range []resource.Kind{resource.Scene, resource.Video} {
		for i := 0; i < 500; i++ {
			input := fmt.Sprintf("%s/%d", kind, i)
			tok := Generate(kind, fmt.Sprintf("target-%d", i))
			if prev, ok := seen[tok]; ok {
				t.Fatalf("collision between %s and %s", prev, input)
			}
			seen[tok] = input
		}
	}
	if Generate(resource.Scene, "forest") == Generate(resource.Video, "forest") {
		t.Fatal("kind does not influence token")
	}
}

func TestGenerateHeaderSafe(t *testing.T) {
	for i := 0; i < 200; i++ {
		tok := strings.TrimPrefix(Generate(resource.Scene, fmt.Sprintf("场景-%d", i)), "Bearer ")
		for _, r := range tok {
			ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
			if !ok {
				t.Fatalf("token %q contains %q", tok, r)
			}
		}
	}
}

func TestIDDoesNotLeakToken(t *testing.T) {
	tok := Generate(resource.Video, "demo.mp4")
	id := ID(tok)
	if len(id) != 12 || strings.Contains(tok, id) {
		t.Fatalf("unexpected id %q", id)
	}
}
