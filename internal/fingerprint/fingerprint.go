// Package fingerprint derives viewer-independent cache keys from content
// state and decides whether a request may use the shared render cache.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alphabot-ai/threadcache/internal/store"
)

// Style selects the markup variant a render produces.
type Style string

const (
	StyleHTML    Style = "html"
	StyleCompact Style = "compact"
	StyleXML     Style = "xml"
	StyleDebug   Style = "debug"
)

// ParseStyle maps a request parameter to a Style. Empty means StyleHTML.
func ParseStyle(s string) (Style, bool) {
	switch Style(strings.ToLower(s)) {
	case "", StyleHTML:
		return StyleHTML, true
	case StyleCompact:
		return StyleCompact, true
	case StyleXML:
		return StyleXML, true
	case StyleDebug:
		return StyleDebug, true
	}
	return StyleHTML, false
}

// Printable is implemented by every content kind that can be rendered and
// cached.
type Printable interface {
	// ContentFingerprintFields lists the content state a render depends on.
	// Only primitives are allowed and viewer state must never appear.
	ContentFingerprintFields() []any
	CacheableStyle(Style) bool
	// PersonalizationFields names the per-viewer fields left to the overlay.
	PersonalizationFields() []string
}

// Options carries the style-specific settings that change markup.
type Options struct {
	TwoColumn      bool   // compact
	LinkTarget     string // compact
	HideThumbnails bool   // xml
}

// Fingerprint is an ordered list of primitive values.
type Fingerprint []any

// Build fingerprints item rendered in style.
func Build(item Printable, style Style, opts Options) Fingerprint {
	fp := Fingerprint{"item"}
	fp = append(fp, item.ContentFingerprintFields()...)
	return appendStyle(fp, style, opts)
}

// Pane fingerprints a whole comment pane: the story's content plus the
// listing parameters. Comment-level edits inside the pane are picked up when
// the cached render expires.
func Pane(story *store.Story, sort store.SortOrder, limit int, lang string, style Style, opts Options) Fingerprint {
	fp := Fingerprint{"commentpane"}
	fp = append(fp, StoryItem{story}.ContentFingerprintFields()...)
	fp = append(fp, story.CommentCount, string(sort), limit, lang)
	return appendStyle(fp, style, opts)
}

func appendStyle(fp Fingerprint, style Style, opts Options) Fingerprint {
	fp = append(fp, string(style))
	switch style {
	case StyleCompact:
		fp = append(fp, opts.TwoColumn, opts.LinkTarget)
	case StyleXML:
		fp = append(fp, opts.HideThumbnails)
	}
	return fp
}

// Key encodes the fingerprint deterministically. Every element is tagged
// with its type and strings are length-prefixed so distinct fingerprints
// never share a key.
func (f Fingerprint) Key() string {
	var b strings.Builder
	for _, v := range f {
		switch x := v.(type) {
		case nil:
			b.WriteString("n;")
		case string:
			b.WriteString("s")
			b.WriteString(strconv.Itoa(len(x)))
			b.WriteString(":")
			b.WriteString(x)
			b.WriteString(";")
		case bool:
			if x {
				b.WriteString("b1;")
			} else {
				b.WriteString("b0;")
			}
		case int:
			b.WriteString("i" + strconv.FormatInt(int64(x), 10) + ";")
		case int64:
			b.WriteString("i" + strconv.FormatInt(x, 10) + ";")
		default:
			panic(fmt.Sprintf("fingerprint: unsupported value %T", v))
		}
	}
	return b.String()
}

// Hash is the hex SHA-256 of Key, used as the cache key.
func (f Fingerprint) Hash() string {
	sum := sha256.Sum256([]byte(f.Key()))
	return hex.EncodeToString(sum[:])
}

// Bucket truncates t to the minute so sub-minute timestamp noise does not
// split cache entries. The zero time buckets to 0.
func Bucket(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix() / 60
}

func editedBucket(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return Bucket(*t)
}

// StoryItem adapts a story to Printable.
type StoryItem struct {
	*store.Story
}

func (s StoryItem) ContentFingerprintFields() []any {
	return []any{
		"story", s.ID, s.CommunityID, s.Title, s.URL, s.Score,
		s.Spam, s.Deleted, Bucket(s.CreatedAt), editedBucket(s.EditedAt),
	}
}

func (s StoryItem) CacheableStyle(style Style) bool {
	return style != StyleDebug
}

func (s StoryItem) PersonalizationFields() []string {
	return []string{"likes", "saved", "hidden", "clicked"}
}

// CommentItem adapts a comment to Printable.
type CommentItem struct {
	*store.Comment
}

func (c CommentItem) ContentFingerprintFields() []any {
	return []any{
		"comment", c.ID, c.StoryID, c.ParentID, c.Score,
		c.Spam, c.Deleted, Bucket(c.CreatedAt), editedBucket(c.EditedAt),
	}
}

func (c CommentItem) CacheableStyle(style Style) bool {
	return style == StyleHTML || style == StyleCompact
}

func (c CommentItem) PersonalizationFields() []string {
	return []string{"likes", "friend", "author", "can_reply"}
}

var (
	_ Printable = StoryItem{}
	_ Printable = CommentItem{}
)
