package fingerprint

import (
	"testing"
	"time"

	"github.com/alphabot-ai/threadcache/internal/identity"
	"github.com/alphabot-ai/threadcache/internal/store"
	"github.com/stretchr/testify/assert"
)

func sampleStory() *store.Story {
	return &store.Story{
		ID:           "s1",
		CommunityID:  "c1",
		AuthorID:     "author",
		Title:        "Hello",
		URL:          "https://example.com",
		Score:        12,
		CommentCount: 4,
		CreatedAt:    time.Date(2024, 5, 1, 10, 0, 30, 0, time.UTC),
	}
}

func TestIdenticalContentYieldsIdenticalFingerprint(t *testing.T) {
	a := sampleStory()
	b := sampleStory()
	// fields outside the content state
	b.Hidden = true
	b.CreatedAt = b.CreatedAt.Add(20 * time.Second)

	for _, style := range []Style{StyleHTML, StyleCompact, StyleXML} {
		fa := Build(StoryItem{a}, style, Options{})
		fb := Build(StoryItem{b}, style, Options{})
		assert.Equal(t, fa.Key(), fb.Key(), "style %s", style)
		assert.Equal(t, fa.Hash(), fb.Hash())
	}
}

func TestFingerprintChangesWithContent(t *testing.T) {
	base := Build(StoryItem{sampleStory()}, StyleHTML, Options{}).Hash()

	mutations := map[string]func(*store.Story){
		"score":   func(s *store.Story) { s.Score++ },
		"title":   func(s *store.Story) { s.Title = "Changed" },
		"spam":    func(s *store.Story) { s.Spam = true },
		"deleted": func(s *store.Story) { s.Deleted = true },
		"edited": func(s *store.Story) {
			edited := s.CreatedAt.Add(time.Hour)
			s.EditedAt = &edited
		},
	}
	for name, mutate := range mutations {
		s := sampleStory()
		mutate(s)
		assert.NotEqual(t, base, Build(StoryItem{s}, StyleHTML, Options{}).Hash(), name)
	}
}

func TestStyleFieldsOnlyAffectTheirStyle(t *testing.T) {
	item := StoryItem{sampleStory()}

	html := Build(item, StyleHTML, Options{})
	htmlTwoColumn := Build(item, StyleHTML, Options{TwoColumn: true, HideThumbnails: true})
	assert.Equal(t, html.Key(), htmlTwoColumn.Key())

	compact := Build(item, StyleCompact, Options{})
	compactTwoColumn := Build(item, StyleCompact, Options{TwoColumn: true})
	assert.NotEqual(t, compact.Key(), compactTwoColumn.Key())
	assert.NotEqual(t, html.Key(), compact.Key())

	xml := Build(item, StyleXML, Options{})
	xmlNoThumbs := Build(item, StyleXML, Options{HideThumbnails: true})
	assert.NotEqual(t, xml.Key(), xmlNoThumbs.Key())
}

func TestKeyIsTypeTaggedAndUnambiguous(t *testing.T) {
	assert.NotEqual(t, Fingerprint{"1"}.Key(), Fingerprint{1}.Key())
	assert.NotEqual(t, Fingerprint{"a;b"}.Key(), Fingerprint{"a", "b"}.Key())
	assert.NotEqual(t, Fingerprint{true}.Key(), Fingerprint{1}.Key())
	assert.Equal(t, "s2:ab;i3;b1;n;", Fingerprint{"ab", int64(3), true, nil}.Key())

	assert.Panics(t, func() { Fingerprint{3.5}.Key() })
}

func TestPaneFingerprint(t *testing.T) {
	story := sampleStory()
	base := Pane(story, store.SortTop, 200, "en", StyleHTML, Options{})

	assert.Equal(t, base.Hash(), Pane(sampleStory(), store.SortTop, 200, "en", StyleHTML, Options{}).Hash())
	assert.NotEqual(t, base.Hash(), Pane(story, store.SortNew, 200, "en", StyleHTML, Options{}).Hash())
	assert.NotEqual(t, base.Hash(), Pane(story, store.SortTop, 50, "en", StyleHTML, Options{}).Hash())
	assert.NotEqual(t, base.Hash(), Pane(story, store.SortTop, 200, "de", StyleHTML, Options{}).Hash())

	story.CommentCount++
	assert.NotEqual(t, base.Hash(), Pane(story, store.SortTop, 200, "en", StyleHTML, Options{}).Hash())
}

func TestCommentItem(t *testing.T) {
	c := &store.Comment{ID: "c1", StoryID: "s1", Score: 3, CreatedAt: time.Unix(1_700_000_000, 0)}
	item := CommentItem{c}

	fp := Build(item, StyleHTML, Options{})
	c.AuthorID = "someone-else"
	assert.Equal(t, fp.Key(), Build(item, StyleHTML, Options{}).Key())

	assert.True(t, item.CacheableStyle(StyleHTML))
	assert.False(t, item.CacheableStyle(StyleDebug))
	assert.Contains(t, item.PersonalizationFields(), "likes")
}

func TestParseStyle(t *testing.T) {
	style, ok := ParseStyle("")
	assert.True(t, ok)
	assert.Equal(t, StyleHTML, style)

	style, ok = ParseStyle("Compact")
	assert.True(t, ok)
	assert.Equal(t, StyleCompact, style)

	style, ok = ParseStyle("rss")
	assert.False(t, ok)
	assert.Equal(t, StyleHTML, style)
}

func TestGate(t *testing.T) {
	ok := GateInput{Style: StyleHTML, MinCommentScore: identity.DefaultMinCommentScore, Item: StoryItem{sampleStory()}}
	assert.True(t, Gate(ok).Cacheable)

	cases := map[string]func(*GateInput){
		"debug style":     func(in *GateInput) { in.Style = StyleDebug },
		"compact style":   func(in *GateInput) { in.Style = StyleCompact },
		"permalink":       func(in *GateInput) { in.Narrowed = true },
		"moderator":       func(in *GateInput) { in.CanModerate = true },
		"score threshold": func(in *GateInput) { in.MinCommentScore = 0 },
	}
	for name, mutate := range cases {
		in := ok
		mutate(&in)
		d := Gate(in)
		assert.False(t, d.Cacheable, name)
		assert.NotEmpty(t, d.Reason, name)
	}
}
