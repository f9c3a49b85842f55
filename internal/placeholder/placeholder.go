// Package placeholder marks viewer-dependent holes in rendered output so a
// shared render can be completed per viewer later.
package placeholder

import (
	"strings"
)

// Name identifies what a placeholder stands for.
type Name string

const (
	NumChildren  Name = "numChildren"
	ColumnMargin Name = "columnMargin"
	CommentLabel Name = "commentLabel"
	VoteState    Name = "voteState"
	FriendClass  Name = "friendClass"
	ReplyButton  Name = "replyButton"
	SaveState    Name = "saveState"
)

const (
	markerOpen  = "{{ph:"
	markerClose = "}}"
)

// Ref addresses one placeholder in one render.
type Ref struct {
	Name   Name
	ItemID string
}

// Marker is the text embedded in output in place of the value. It contains
// no characters that HTML escaping rewrites.
func (r Ref) Marker() string {
	return markerOpen + string(r.Name) + ":" + r.ItemID + markerClose
}

// Declaration records a placeholder and the value used when no viewer value
// is supplied.
type Declaration struct {
	Name     Name   `json:"name"`
	ItemID   string `json:"item_id"`
	Fallback string `json:"fallback"`
}

func (d Declaration) Ref() Ref {
	return Ref{Name: d.Name, ItemID: d.ItemID}
}

// Registry collects the declarations of one render. It is not safe for
// concurrent use.
type Registry struct {
	decls []Declaration
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Declare records a placeholder and returns its reference.
func (r *Registry) Declare(name Name, itemID, fallback string) Ref {
	r.decls = append(r.decls, Declaration{Name: name, ItemID: itemID, Fallback: fallback})
	return Ref{Name: name, ItemID: itemID}
}

// Declarations returns the declarations in the order they were made.
func (r *Registry) Declarations() []Declaration {
	out := make([]Declaration, len(r.decls))
	copy(out, r.decls)
	return out
}

// Resolve replaces the markers of decls in output with values, falling back
// to each declaration's fallback. Markers not in decls are left untouched.
func Resolve(output string, decls []Declaration, values map[Ref]string) string {
	if len(decls) == 0 {
		return output
	}

	pairs := make([]string, 0, len(decls)*2)
	seen := make(map[Ref]bool, len(decls))
	for _, d := range decls {
		ref := d.Ref()
		if seen[ref] {
			continue
		}
		seen[ref] = true

		value, ok := values[ref]
		if !ok {
			value = d.Fallback
		}
		pairs = append(pairs, ref.Marker(), value)
	}
	return strings.NewReplacer(pairs...).Replace(output)
}

// Escape neutralizes marker syntax in user-supplied text so it cannot be
// mistaken for a placeholder.
func Escape(text string) string {
	return strings.ReplaceAll(text, markerOpen, "{ {ph:")
}
