package overlay

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/alphabot-ai/threadcache/internal/placeholder"
	"github.com/alphabot-ai/threadcache/internal/render"
	"github.com/alphabot-ai/threadcache/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func sampleTree() *render.Tree {
	c2 := &render.Node{Comment: &store.Comment{ID: "c2"}, Depth: 1, Likes: boolPtr(false)}
	c1 := &render.Node{Comment: &store.Comment{ID: "c1"}, Children: []*render.Node{c2}, IsFriend: true}
	c3 := &render.Node{Comment: &store.Comment{ID: "c3"}}
	stub := &render.Node{More: &render.More{ParentID: "", Count: 4}}
	return &render.Tree{
		Story:      &store.Story{ID: "s1"},
		Roots:      []*render.Node{c1, c3, stub},
		StoryLikes: boolPtr(true),
		StorySaved: true,
	}
}

func TestOverlayOrdersAndSkipsNeutral(t *testing.T) {
	p := Overlay("v1", "key", sampleTree(), true)

	assert.Equal(t, "key", p.Key)
	assert.True(t, p.CanReply)
	require.Len(t, p.Entries, 3)
	assert.Equal(t, "s1", p.Entries[0].ID)
	assert.True(t, p.Entries[0].Saved)
	assert.Equal(t, "c1", p.Entries[1].ID)
	assert.Nil(t, p.Entries[1].Liked)
	assert.Equal(t, "c2", p.Entries[2].ID)
	assert.False(t, *p.Entries[2].Liked)
}

func TestOverlayAnonymousCannotReply(t *testing.T) {
	tree := &render.Tree{Story: &store.Story{ID: "s1"}}
	p := Overlay("", "key", tree, true)
	assert.False(t, p.CanReply)
	assert.True(t, p.Empty())
}

func TestOverlayNoInteractionIsEmptyEvenWhenReplying(t *testing.T) {
	tree := &render.Tree{
		Story: &store.Story{ID: "s1"},
		Roots: []*render.Node{{Comment: &store.Comment{ID: "c1"}}},
	}
	p := Overlay("v2", "key", tree, true)
	assert.True(t, p.CanReply)
	assert.Empty(t, p.Entries)
	assert.True(t, p.Empty())
}

func TestMergeFillsViewerValues(t *testing.T) {
	decls := []placeholder.Declaration{
		{Name: placeholder.VoteState, ItemID: "s1", Fallback: "unvoted"},
		{Name: placeholder.SaveState, ItemID: "s1", Fallback: ""},
		{Name: placeholder.VoteState, ItemID: "c2", Fallback: "unvoted"},
		{Name: placeholder.VoteState, ItemID: "c3", Fallback: "unvoted"},
		{Name: placeholder.FriendClass, ItemID: "c1", Fallback: ""},
		{Name: placeholder.ReplyButton, ItemID: "c3", Fallback: ""},
	}
	var sb strings.Builder
	for _, d := range decls {
		sb.WriteString("[" + d.Ref().Marker() + "]")
	}
	canonical := sb.String()

	merged := Merge(canonical, decls, Overlay("v1", "key", sampleTree(), true))
	assert.Equal(t,
		`[likes][saved][dislikes][unvoted][friend][<li><a class="reply" data-id="c3">reply</a></li>]`,
		merged)

	empty := Merge(canonical, decls, Overlay("", "key", &render.Tree{Story: &store.Story{ID: "s1"}}, false))
	assert.Equal(t, "[unvoted][][unvoted][unvoted][][]", empty)
}

func TestScriptEmbedsPatchWithoutViewer(t *testing.T) {
	p := Overlay("v1", "key", sampleTree(), false)
	script, err := p.Script()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(script, `<script type="application/json" class="thing-updater">`))
	assert.NotContains(t, script, "v1")

	body := strings.TrimSuffix(strings.TrimPrefix(script, `<script type="application/json" class="thing-updater">`), `</script>`)
	var decoded Patch
	require.NoError(t, json.Unmarshal([]byte(body), &decoded))
	assert.Equal(t, "key", decoded.Key)
	assert.Len(t, decoded.Entries, 3)
}
