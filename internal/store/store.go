package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDuplicate is returned when an insert collides with a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate row")
	// ErrVersionConflict is returned by compare-and-swap writes whose expected
	// version no longer matches.
	ErrVersionConflict = errors.New("version conflict")
)

// Store defines the interface for data persistence
type Store interface {
	// Accounts
	CreateAccount(ctx context.Context, account *Account) error
	GetAccount(ctx context.Context, id string) (*Account, error)
	GetAccounts(ctx context.Context, ids []string) (map[string]*Account, error)
	SetMsgTimeIfUnset(ctx context.Context, accountID string, t time.Time) (bool, error)
	ClearMsgTime(ctx context.Context, accountID string) error

	// Communities
	CreateCommunity(ctx context.Context, community *Community) error
	GetCommunity(ctx context.Context, id string) (*Community, error)
	GetCommunities(ctx context.Context, ids []string) (map[string]*Community, error)

	// Stories
	CreateStory(ctx context.Context, story *Story) error
	GetStory(ctx context.Context, id string) (*Story, error)
	ListStories(ctx context.Context, opts ListOptions) ([]*Story, string, error) // returns stories and next cursor
	FindStoryByURL(ctx context.Context, url string, since time.Time) (*Story, error)
	UpdateStoryScore(ctx context.Context, id string, delta int) error
	UpdateStoryCommentCount(ctx context.Context, id string, delta int) error
	HideStory(ctx context.Context, id string) error
	MarkStorySpam(ctx context.Context, id string, spam bool) error

	// Comments
	CreateComment(ctx context.Context, comment *Comment) error
	GetComment(ctx context.Context, id string) (*Comment, error)
	ListComments(ctx context.Context, storyID string, opts CommentListOptions) ([]*Comment, error)
	UpdateCommentScore(ctx context.Context, id string, delta int) error
	HideComment(ctx context.Context, id string) error
	DeleteComment(ctx context.Context, id string) error
	EditComment(ctx context.Context, id, text string) error

	// Votes
	CreateVote(ctx context.Context, vote *Vote) error
	GetVote(ctx context.Context, accountID, targetType, targetID string) (*Vote, error)
	UpdateVote(ctx context.Context, id string, value int) error
	ListVotes(ctx context.Context, accountID, targetType string, targetIDs []string) (map[string]int, error)

	// Relations
	InsertRelation(ctx context.Context, rel *Relation) error
	GetRelation(ctx context.Context, kind, subjectID, objectID, name string) (*Relation, error)
	QueryRelations(ctx context.Context, filter RelationFilter) ([]*Relation, error)
	ListRelationsByObject(ctx context.Context, kind, objectID, name string) ([]*Relation, error)
	ListRelationsBySubject(ctx context.Context, kind, subjectID, name string) ([]*Relation, error)
	DeleteRelation(ctx context.Context, kind, subjectID, objectID, name string) error
	UpdateRelationFlags(ctx context.Context, id string, flags map[string]bool) error

	// Attachment slots
	GetSlotTable(ctx context.Context, entityID string) (*SlotTable, error)
	CompareAndSwapSlotTable(ctx context.Context, table *SlotTable) error

	// Auth
	CreateToken(ctx context.Context, token *Token) error
	GetToken(ctx context.Context, tokenStr string) (*Token, error)
	DeleteExpiredTokens(ctx context.Context) error

	// Lifecycle
	Close() error
}
