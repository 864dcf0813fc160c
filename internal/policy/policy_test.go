package policy

import (
	"testing"

	"siftgram/internal/classify"
	"siftgram/internal/platform"
	logx "siftgram/pkg/logx"
)

var testSelf = platform.Entity{ID: 99, Username: "sam", FirstName: "Sam", LastName: "Tan"}

func msg(sender int64, text string) platform.Message {
	return platform.Message{ID: 1, ChatID: 1, SenderID: sender, Text: text}
}

func TestEvaluateMessageBasics(t *testing.T) {
	t.Parallel()

	p := New(Smart{}, testSelf)
	dm := chat(platform.Entity{ID: 1, FirstName: "Ada"})

	tests := []struct {
		name    string
		m       platform.Message
		include bool
		reason  string
	}{
		{"normal dm", msg(1, "dinner at 7?"), true, "ok"},
		{"empty", msg(1, ""), false, "empty"},
		{"whitespace only", msg(1, "  \n\t "), false, "empty"},
		{"spam", msg(1, "Join now for guaranteed profit"), false, "spam"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := p.EvaluateMessage(tt.m, dm)
			if d.Include != tt.include || d.Reason != tt.reason {
				t.Fatalf("EvaluateMessage(%q) = %+v, want include=%v reason=%q", tt.m.Text, d, tt.include, tt.reason)
			}
		})
	}
}

func TestEvaluateMessageForwards(t *testing.T) {
	t.Parallel()

	p := New(Smart{}, testSelf)
	group := chat(platform.Entity{ID: 2, Title: "Family", Members: 6})
	dm := chat(platform.Entity{ID: 1, FirstName: "Ada"})

	fwd := msg(1, "saw this elsewhere")
	fwd.Forwarded = true
	if d := p.EvaluateMessage(fwd, group); d.Include {
		t.Fatalf("third-party forward in group should be excluded, got %+v", d)
	}

	own := msg(testSelf.ID, "saved for later")
	own.Forwarded = true
	if d := p.EvaluateMessage(own, group); !d.Include {
		t.Fatalf("self forward in group should pass, got %+v", d)
	}

	if d := p.EvaluateMessage(fwd, dm); !d.Include {
		t.Fatalf("forward in dm should pass, got %+v", d)
	}
}

func TestEvaluateMessageMentionGate(t *testing.T) {
	t.Parallel()

	smallGroup := chat(platform.Entity{ID: 2, Title: "Family", Members: 6})
	bigGroup := chat(platform.Entity{ID: 3, Title: "Org", Members: MentionGateMin + 50})

	tests := []struct {
		name    string
		mode    Mode
		chat    classify.Chat
		m       platform.Message
		include bool
	}{
		{"smart small group ungated", Smart{}, smallGroup, msg(1, "dinner at 7"), true},
		{"smart big group needs mention", Smart{}, bigGroup, msg(1, "hello all"), false},
		{"smart big group mention passes", Smart{}, bigGroup, msg(1, "@sam can you check?"), true},
		{"smart big group self passes", Smart{}, bigGroup, msg(testSelf.ID, "on it"), true},
		{"exclude_keywords big group needs mention", ExcludeKeywords{}, bigGroup, msg(1, "hello all"), false},
		{"exclude_keywords big group mention passes", ExcludeKeywords{}, bigGroup, msg(1, "sam tan should see this"), true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := New(tt.mode, testSelf)
			if d := p.EvaluateMessage(tt.m, tt.chat); d.Include != tt.include {
				t.Fatalf("%s: got %+v, want include=%v", tt.name, d, tt.include)
			}
		})
	}
}

func TestSuperStrictGateAppliesToEveryGroupSize(t *testing.T) {
	t.Parallel()

	p := New(SuperStrict{}, testSelf)
	for _, members := range []int{1, 10, StrictGroupMax, 5000} {
		c := chat(platform.Entity{ID: 4, Title: "Group", Members: members})
		if d := p.EvaluateMessage(msg(1, "no mention here"), c); d.Include {
			t.Fatalf("members=%d: unmentioned group message should be excluded, got %+v", members, d)
		}
		if d := p.EvaluateMessage(msg(1, "@sam ping"), c); !d.Include {
			t.Fatalf("members=%d: mention should pass, got %+v", members, d)
		}
		if d := p.EvaluateMessage(msg(testSelf.ID, "note to self"), c); !d.Include {
			t.Fatalf("members=%d: self-authored should pass, got %+v", members, d)
		}
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		p    Params
		want string
	}{
		{"default", Params{}, "smart"},
		{"explicit smart", Params{Mode: "smart"}, "smart"},
		{"case insensitive", Params{Mode: "DM_Only"}, "dm_only"},
		{"no_channels", Params{Mode: "no_channels"}, "no_channels"},
		{"super_strict", Params{Mode: "super_strict"}, "super_strict"},
		{"exclude_keywords", Params{Mode: "exclude_keywords", Keywords: []string{"x"}}, "exclude_keywords"},
		{"exclude_folders", Params{Mode: "exclude_folders", Folders: []string{"Archive"}}, "exclude_folders"},
		{"allowlist", Params{Mode: "allowlist", AllowIDs: []int64{1, 2}}, "allowlist"},
		{"unknown falls back to smart", Params{Mode: "paranoid"}, "smart"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := Build(tt.p, nil, logx.Nop())
			if m.Name() != tt.want {
				t.Fatalf("Build(%+v) = %q, want %q", tt.p, m.Name(), tt.want)
			}
		})
	}

	al, ok := Build(Params{Mode: "allowlist", AllowIDs: []int64{7, 8}}, nil, logx.Nop()).(Allowlist)
	if !ok {
		t.Fatalf("allowlist mode has wrong concrete type")
	}
	if _, ok := al.IDs[7]; !ok || len(al.IDs) != 2 {
		t.Fatalf("allowlist ids not mapped: %+v", al.IDs)
	}
}
