package store

import "time"

type Account struct {
	ID              string     `json:"id"`
	DisplayName     string     `json:"display_name"`
	CreatedAt       time.Time  `json:"created_at"`
	Admin           bool       `json:"-"`
	MinCommentScore int        `json:"-"`
	MsgTime         *time.Time `json:"-"` // first unseen inbox item, nil when inbox is clean
}

// Community types
const (
	CommunityPublic     = "public"
	CommunityRestricted = "restricted"
	CommunityPrivate    = "private"
)

type Community struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Title     string    `json:"title"`
	Type      string    `json:"type"`
	AuthorID  string    `json:"author_id,omitempty"`
	Spam      bool      `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

type Story struct {
	ID           string     `json:"id"`
	CommunityID  string     `json:"community_id,omitempty"`
	AuthorID     string     `json:"author_id,omitempty"`
	Title        string     `json:"title"`
	URL          string     `json:"url,omitempty"`
	Text         string     `json:"text,omitempty"`
	Lang         string     `json:"lang,omitempty"`
	Score        int        `json:"score"`
	CommentCount int        `json:"comment_count"`
	CreatedAt    time.Time  `json:"created_at"`
	EditedAt     *time.Time `json:"edited_at,omitempty"`
	Deleted      bool       `json:"deleted,omitempty"`
	Spam         bool       `json:"-"`
	Hidden       bool       `json:"-"`
}

type Comment struct {
	ID        string     `json:"id"`
	StoryID   string     `json:"story_id"`
	ParentID  string     `json:"parent_id,omitempty"`
	AuthorID  string     `json:"author_id,omitempty"`
	Text      string     `json:"text"`
	Score     int        `json:"score"`
	CreatedAt time.Time  `json:"created_at"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`
	Deleted   bool       `json:"deleted,omitempty"`
	Spam      bool       `json:"-"`
	Hidden    bool       `json:"-"`
	Children  []*Comment `json:"children,omitempty"`
}

type Vote struct {
	ID         string    `json:"id"`
	AccountID  string    `json:"account_id"`
	TargetType string    `json:"target_type"` // "story" or "comment"
	TargetID   string    `json:"target_id"`
	Value      int       `json:"value"` // 1 or -1
	CreatedAt  time.Time `json:"created_at"`
}

// Relation is a named fact linking a subject to an object, unique per
// (kind, subject, object, name).
type Relation struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	SubjectID string          `json:"subject_id"`
	ObjectID  string          `json:"object_id"`
	Name      string          `json:"name"`
	Flags     map[string]bool `json:"flags,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// RelationFilter selects relations of one kind. Empty slices match nothing.
type RelationFilter struct {
	Kind     string
	Subjects []string
	Objects  []string
	Names    []string
}

// SlotTable maps attachment names owned by one entity to small integer
// slots. Free holds released slots awaiting reuse.
type SlotTable struct {
	EntityID string         `json:"entity_id"`
	Slots    map[string]int `json:"slots"`
	Free     []int          `json:"free"`
	Version  int64          `json:"-"`
}

type Token struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Token     string    `json:"access_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Sort options
type SortOrder string

const (
	SortTop       SortOrder = "top"
	SortNew       SortOrder = "new"
	SortDiscussed SortOrder = "discussed"
)

// View options for comments
type ViewMode string

const (
	ViewTree ViewMode = "tree"
	ViewFlat ViewMode = "flat"
)

// List options
type ListOptions struct {
	Sort   SortOrder
	Limit  int
	Cursor string
}

type CommentListOptions struct {
	Sort SortOrder
	View ViewMode
}
