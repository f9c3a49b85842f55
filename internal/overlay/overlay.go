// Package overlay computes the per-viewer patch applied on top of a shared
// canonical render.
package overlay

import (
	"encoding/json"
	"fmt"
	"html/template"

	"github.com/alphabot-ai/threadcache/internal/placeholder"
	"github.com/alphabot-ai/threadcache/internal/render"
)

// Entry is one item's viewer state. Only items with some non-neutral state
// get an entry.
type Entry struct {
	ID       string `json:"id"`
	Liked    *bool  `json:"liked"`
	IsFriend bool   `json:"friend,omitempty"`
	Saved    bool   `json:"saved,omitempty"`
}

func (e Entry) neutral() bool {
	return e.Liked == nil && !e.IsFriend && !e.Saved
}

// Patch is the viewer-specific delta for one canonical render. It is
// computed per request and never stored. Entries carries per-item state.
// CanReply is a viewer-wide permission that turns on every reply button; it
// depends on the viewer's standing in the community, not on any item.
type Patch struct {
	ViewerID string  `json:"-"`
	Key      string  `json:"key"`
	CanReply bool    `json:"can_reply,omitempty"`
	Entries  []Entry `json:"entries"`
}

// Empty reports whether the viewer has no per-item state to apply. A viewer
// who never interacted with the pane gets an empty patch even when CanReply
// is set.
func (p Patch) Empty() bool {
	return len(p.Entries) == 0
}

// Overlay walks tree, which must be annotated for the real viewer, in the
// same order the renderer declares placeholders: story first, then comments
// in pre-order.
func Overlay(viewerID, key string, tree *render.Tree, canReply bool) Patch {
	p := Patch{ViewerID: viewerID, Key: key, CanReply: canReply && viewerID != "", Entries: []Entry{}}

	story := Entry{ID: tree.Story.ID, Liked: tree.StoryLikes, Saved: tree.StorySaved}
	if !story.neutral() {
		p.Entries = append(p.Entries, story)
	}

	tree.Walk(func(n *render.Node) {
		e := Entry{ID: n.Comment.ID, Liked: n.Likes, IsFriend: n.IsFriend}
		if !e.neutral() {
			p.Entries = append(p.Entries, e)
		}
	})
	return p
}

// Values maps the patch onto placeholder values.
func (p Patch) Values(decls []placeholder.Declaration) map[placeholder.Ref]string {
	values := make(map[placeholder.Ref]string)
	for _, e := range p.Entries {
		if e.Liked != nil {
			state := "dislikes"
			if *e.Liked {
				state = "likes"
			}
			values[placeholder.Ref{Name: placeholder.VoteState, ItemID: e.ID}] = state
		}
		if e.IsFriend {
			values[placeholder.Ref{Name: placeholder.FriendClass, ItemID: e.ID}] = "friend"
		}
		if e.Saved {
			values[placeholder.Ref{Name: placeholder.SaveState, ItemID: e.ID}] = "saved"
		}
	}
	if p.CanReply {
		for _, d := range decls {
			if d.Name == placeholder.ReplyButton {
				values[d.Ref()] = `<li><a class="reply" data-id="` + template.HTMLEscapeString(d.ItemID) + `">reply</a></li>`
			}
		}
	}
	return values
}

// Merge resolves every placeholder in canonical for the patch's viewer.
func Merge(canonical string, decls []placeholder.Declaration, p Patch) string {
	return placeholder.Resolve(canonical, decls, p.Values(decls))
}

// Script encodes the patch as an inline JSON block for client-side merging.
func (p Patch) Script() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode patch: %w", err)
	}
	return `<script type="application/json" class="thing-updater">` + string(data) + `</script>`, nil
}
