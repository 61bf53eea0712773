package redis

import (
	"testing"
	"time"

	"github.com/oddsmesh/oddsmesh/internal/domain"
)

// stringify converts HSet-shaped fields into the map HGetAll would return.
func stringify(t *testing.T, fields map[string]interface{}) map[string]string {
	t.Helper()
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		switch val := v.(type) {
		case string:
			out[k] = val
		case []byte:
			out[k] = string(val)
		default:
			t.Fatalf("field %s has unexpected type %T", k, v)
		}
	}
	return out
}

func TestNodeFieldsRoundTrip(t *testing.T) {
	registered := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	lastSeen := registered.Add(45 * time.Second)

	in := domain.Node{
		ID: "node-7",
		Watching: domain.Watching{
			Sports: []string{"nba", "nfl"},
			Books:  []string{"draftkings", "fanduel"},
		},
		Agents:           map[string]bool{"scanner": true, "steam": false},
		Reputation:       73,
		SignalsPublished: 42,
		RegisteredAt:     registered,
		LastSeen:         lastSeen,
	}

	fields, err := nodeFields(in)
	if err != nil {
		t.Fatalf("nodeFields: %v", err)
	}

	out, err := parseNode("node-7", stringify(t, fields))
	if err != nil {
		t.Fatalf("parseNode: %v", err)
	}

	if out.ID != in.ID {
		t.Errorf("ID = %q, want %q", out.ID, in.ID)
	}
	if len(out.Watching.Sports) != 2 || out.Watching.Sports[0] != "nba" {
		t.Errorf("Watching.Sports = %v, want %v", out.Watching.Sports, in.Watching.Sports)
	}
	if len(out.Watching.Books) != 2 || out.Watching.Books[1] != "fanduel" {
		t.Errorf("Watching.Books = %v, want %v", out.Watching.Books, in.Watching.Books)
	}
	if !out.Agents["scanner"] || out.Agents["steam"] {
		t.Errorf("Agents = %v, want %v", out.Agents, in.Agents)
	}
	if out.Reputation != 73 {
		t.Errorf("Reputation = %d, want 73", out.Reputation)
	}
	if out.SignalsPublished != 42 {
		t.Errorf("SignalsPublished = %d, want 42", out.SignalsPublished)
	}
	if !out.RegisteredAt.Equal(registered) {
		t.Errorf("RegisteredAt = %v, want %v", out.RegisteredAt, registered)
	}
	if !out.LastSeen.Equal(lastSeen) {
		t.Errorf("LastSeen = %v, want %v", out.LastSeen, lastSeen)
	}
}

func TestNodeFieldsOmitsZeroTimestamps(t *testing.T) {
	fields, err := nodeFields(domain.Node{ID: "bare"})
	if err != nil {
		t.Fatalf("nodeFields: %v", err)
	}
	if _, ok := fields["registered_at"]; ok {
		t.Error("zero RegisteredAt should not be written")
	}
	if _, ok := fields["last_seen"]; ok {
		t.Error("zero LastSeen should not be written")
	}

	out, err := parseNode("bare", stringify(t, fields))
	if err != nil {
		t.Fatalf("parseNode: %v", err)
	}
	if !out.RegisteredAt.IsZero() || !out.LastSeen.IsZero() {
		t.Errorf("timestamps should parse back as zero, got %v / %v", out.RegisteredAt, out.LastSeen)
	}
}

func TestParseNodeRejectsMalformedWatching(t *testing.T) {
	_, err := parseNode("broken", map[string]string{"watching": "{not json"})
	if err == nil {
		t.Fatal("expected error for malformed watching JSON")
	}
}

func TestHasPattern(t *testing.T) {
	cases := []struct {
		channel string
		want    bool
	}{
		{"signals:*", true},
		{"signals:arbitrage", false},
		{"sig?nals", true},
		{"odds:[ab]", true},
		{"", false},
	}
	for _, tc := range cases {
		if got := hasPattern(tc.channel); got != tc.want {
			t.Errorf("hasPattern(%q) = %v, want %v", tc.channel, got, tc.want)
		}
	}
}
