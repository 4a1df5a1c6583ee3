package dispatch

import (
	"testing"

	"relaypoint/internal/types"
)

// recordingLogger captures warnings so tests can assert on them.
type recordingLogger struct {
	warns    []string
	warnArgs [][]any
}

func (l *recordingLogger) Info(msg string, args ...any)  {}
func (l *recordingLogger) Error(msg string, args ...any) {}
func (l *recordingLogger) Warn(msg string, args ...any) {
	l.warns = append(l.warns, msg)
	l.warnArgs = append(l.warnArgs, args)
}
func (l *recordingLogger) With(args ...any) types.Logger { return l }

func TestRenderSubstitutesTokens(t *testing.T) {
	r := NewRenderer()
	ctx := map[string]string{
		"name":     "Ada Lovelace",
		"download": "Analytical Engine Plans",
		"total":    "$49.00",
	}

	got := r.Render(&mockLogger{}, "%name% bought %download% for %total%", ctx)
	want := "Ada Lovelace bought Analytical Engine Plans for $49.00"
	if got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
}

func TestRenderUnknownTokenPassesThroughAndWarns(t *testing.T) {
	r := NewRenderer()
	log := &recordingLogger{}

	got := r.Render(log, "Hello %nonexistent%!", map[string]string{"name": "Ada"})
	if got != "Hello %nonexistent%!" {
		t.Errorf("expected unknown token kept literally, got %q", got)
	}

	if len(log.warns) != 1 {
		t.Fatalf("expected one warning for the unresolved token, got %d", len(log.warns))
	}
	args := log.warnArgs[0]
	if len(args) != 2 || args[0] != "token" || args[1] != "nonexistent" {
		t.Errorf("expected warning to carry the token name, got %v", args)
	}
}

func TestRenderNonTokenPercentsDoNotWarn(t *testing.T) {
	r := NewRenderer()
	log := &recordingLogger{}

	// Lone and doubled percents are not tokens; only a well-formed %token%
	// missing from the context warrants a warning.
	r.Render(log, "save 100%% now, or 50% later", map[string]string{"off": "50"})
	if len(log.warns) != 0 {
		t.Errorf("expected no warnings for non-token percents, got %v", log.warns)
	}
}

func TestRenderSinglePassNoRescan(t *testing.T) {
	r := NewRenderer()

	// A substituted value containing a token pattern must render literally,
	// never recursively.
	ctx := map[string]string{
		"name":  "%email%",
		"email": "ada@example.com",
	}
	got := r.Render(&mockLogger{}, "user: %name%", ctx)
	if got != "user: %email%" {
		t.Errorf("expected single-pass substitution, got %q", got)
	}
}

func TestRenderIdempotent(t *testing.T) {
	r := NewRenderer()
	ctx := map[string]string{
		"name":     "Ada Lovelace",
		"discount": "15%",
		"total":    "$49.00",
	}

	// Rendering an already-rendered string must change nothing: resolved
	// tokens are gone, unresolved tokens stay unresolved, and stray percents
	// in substituted values never form new tokens.
	templates := []string{
		"%name% paid %total%",
		"%name% saved %discount% using %mystery_code%",
		"plain text, no tokens",
		"save 100%% before %deadline%",
	}
	for _, tmpl := range templates {
		once := r.Render(&mockLogger{}, tmpl, ctx)
		twice := r.Render(&mockLogger{}, once, ctx)
		if twice != once {
			t.Errorf("Render(%q) not idempotent: first %q, second %q", tmpl, once, twice)
		}
	}
}

func TestRenderPercentEdgeCases(t *testing.T) {
	r := NewRenderer()
	ctx := map[string]string{"off": "50"}

	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"no tokens here", "no tokens here"},
		{"100%", "100%"},
		{"100%%", "100%%"},
		{"%%", "%%"},
		{"%off%", "50"},
		{"save 100%% with %off%", "save 100%% with 50"},
		{"unterminated %off", "unterminated %off"},
		{"spaces %not a token%", "spaces %not a token%"},
	}
	for _, tc := range cases {
		if got := r.Render(&mockLogger{}, tc.in, ctx); got != tc.want {
			t.Errorf("Render(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRenderTemplateAllFields(t *testing.T) {
	r := NewRenderer()
	ctx := map[string]string{"name": "Ada"}

	got := r.RenderTemplate(&mockLogger{}, types.RuleTemplate{
		Pretext: "New sale by %name%",
		Title:   "%name%",
		Body:    "thanks, %name%",
	}, ctx)

	if got.Pretext != "New sale by Ada" || got.Title != "Ada" || got.Body != "thanks, Ada" {
		t.Errorf("unexpected rendered template: %+v", got)
	}
}
