package render_test

import (
	"strings"
	"testing"

	"github.com/notifyhub/notification-engine/internal/render"
)

func TestText_Substitution(t *testing.T) {
	got := render.Text("Hello {{name}}, you have {{count}} new likes", map[string]string{
		"name":  "Ada",
		"count": "3",
	})
	want := "Hello Ada, you have 3 new likes"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestText_UnknownPlaceholderLeftUntouched(t *testing.T) {
	got := render.Text("Hi {{name}}, {{unknown}}", map[string]string{"name": "Ada"})
	if !strings.Contains(got, "{{unknown}}") {
		t.Fatalf("expected unknown placeholder to survive, got %q", got)
	}
}

func TestHTML_EscapesSubstitutedValues(t *testing.T) {
	got := render.HTML("Hi {{name}}", map[string]string{"name": "<script>alert(1)</script>"})
	if strings.Contains(got, "<script>") {
		t.Fatalf("expected HTML escaping, got %q", got)
	}
}

func TestText_NoVarsReturnsTemplateUnchanged(t *testing.T) {
	got := render.Text("plain text", nil)
	if got != "plain text" {
		t.Fatalf("got %q", got)
	}
}
