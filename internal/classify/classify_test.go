package classify

import (
	"testing"

	"siftgram/internal/platform"
)

func TestNewType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   platform.Entity
		want Type
	}{
		{"broadcast channel", platform.Entity{ID: 1, Title: "News", Broadcast: true}, Channel},
		{"channel with subscriber count", platform.Entity{ID: 2, Title: "Big", Broadcast: true, Members: 5000}, Channel},
		{"megagroup", platform.Entity{ID: 3, Title: "Work", Megagroup: true}, Group},
		{"megagroup with broadcast flag set", platform.Entity{ID: 4, Title: "Huge", Broadcast: true, Megagroup: true}, Group},
		{"group via member count", platform.Entity{ID: 5, Title: "Family", Members: 6}, Group},
		{"bot user", platform.Entity{ID: 6, FirstName: "Helper", Bot: true}, Bot},
		{"plain user", platform.Entity{ID: 7, FirstName: "Ada"}, DM},
		{"user with unknown member count", platform.Entity{ID: 8, FirstName: "Ada", Members: -1}, DM},
		{"zero entity", platform.Entity{}, DM},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := New(tt.in)
			if got.Type != tt.want {
				t.Fatalf("New(%+v).Type = %q, want %q", tt.in, got.Type, tt.want)
			}
			if got.Title == "" {
				t.Fatalf("New(%+v).Title is empty", tt.in)
			}
			// Same entity, same result.
			again := New(tt.in)
			if again.Type != got.Type || again.Title != got.Title {
				t.Fatalf("classification not deterministic: %+v vs %+v", got, again)
			}
		})
	}
}

func TestTitleFallbacks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   platform.Entity
		want string
	}{
		{"title wins", platform.Entity{ID: 1, Title: "Family", FirstName: "x", Members: 6}, "Family"},
		{"full name", platform.Entity{ID: 2, FirstName: "Ada", LastName: "Lovelace"}, "Ada Lovelace"},
		{"first name only", platform.Entity{ID: 3, FirstName: "Ada"}, "Ada"},
		{"username fallback", platform.Entity{ID: 4, Username: "ada_l"}, "ada_l"},
		{"id fallback", platform.Entity{ID: 42}, "42"},
		{"whitespace title ignored", platform.Entity{ID: 5, Title: "   ", Username: "u"}, "u"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Title(tt.in); got != tt.want {
				t.Fatalf("Title(%+v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
