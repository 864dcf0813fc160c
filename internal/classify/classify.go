// Package classify resolves raw platform entities into chat kinds.
//
// Classification happens exactly once per entity; everything downstream
// (policy, pipeline, digest) switches on the resulting Type and never
// re-reads the raw platform flags.
package classify

import (
	"strconv"
	"strings"

	"siftgram/internal/platform"
)

type Type string

const (
	DM      Type = "dm"
	Group   Type = "group"
	Channel Type = "channel"
	Bot     Type = "bot"
)

func (t Type) String() string { return string(t) }

// Chat is a classified entity with its display title.
type Chat struct {
	Entity platform.Entity
	Type   Type
	Title  string
}

// New classifies an entity. Total and deterministic: every entity yields
// exactly one type and a non-empty title.
func New(e platform.Entity) Chat {
	return Chat{Entity: e, Type: typeOf(e), Title: Title(e)}
}

// typeOf applies the rules in order. Megagroups may report the broadcast
// flag as well; the megagroup flag wins and the entity stays a group.
func typeOf(e platform.Entity) Type {
	switch {
	case e.Broadcast && !e.Megagroup:
		return Channel
	case e.Megagroup || e.Members > 0:
		return Group
	case e.Bot:
		return Bot
	default:
		return DM
	}
}

// Title returns a display title: entity title, else first+last name,
// else username, else the decimal ID.
func Title(e platform.Entity) string {
	if t := strings.TrimSpace(e.Title); t != "" {
		return t
	}
	name := strings.TrimSpace(strings.TrimSpace(e.FirstName) + " " + strings.TrimSpace(e.LastName))
	if name != "" {
		return name
	}
	if u := strings.TrimSpace(e.Username); u != "" {
		return u
	}
	return strconv.FormatInt(e.ID, 10)
}
