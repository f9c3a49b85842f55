// Package relation stores named facts between two entities: community
// membership, saved and hidden stories, inbox entries and friendships.
package relation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alphabot-ai/threadcache/internal/store"
)

// Relation kinds.
const (
	KindMember   = "member"   // account -> community
	KindSaveHide = "savehide" // account -> story
	KindClick    = "click"    // account -> story
	KindInbox    = "inbox"    // account -> comment
	KindFriend   = "friend"   // account -> account
)

// Relation names.
const (
	Subscriber  = "subscriber"
	Moderator   = "moderator"
	Contributor = "contributor"
	Banned      = "banned"

	Save  = "save"
	Hide  = "hide"
	Click = "click"

	Inbox     = "inbox"
	SelfReply = "selfreply"

	Friend = "friend"
)

// FlagNew marks an unread inbox relation.
const FlagNew = "new"

var (
	ErrDuplicateRelation = errors.New("relation already exists")
	ErrBackendTimeout    = errors.New("relation backend timed out")
)

// Backend is the part of the entity store relations are kept in.
type Backend interface {
	InsertRelation(ctx context.Context, rel *store.Relation) error
	GetRelation(ctx context.Context, kind, subjectID, objectID, name string) (*store.Relation, error)
	QueryRelations(ctx context.Context, filter store.RelationFilter) ([]*store.Relation, error)
	ListRelationsByObject(ctx context.Context, kind, objectID, name string) ([]*store.Relation, error)
	ListRelationsBySubject(ctx context.Context, kind, subjectID, name string) ([]*store.Relation, error)
	DeleteRelation(ctx context.Context, kind, subjectID, objectID, name string) error
	UpdateRelationFlags(ctx context.Context, id string, flags map[string]bool) error
	SetMsgTimeIfUnset(ctx context.Context, accountID string, t time.Time) (bool, error)
	ClearMsgTime(ctx context.Context, accountID string) error
}

// Store enforces one relation per (subject, object, name) within a kind and
// bounds every backend call by a timeout.
type Store struct {
	backend Backend
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

func NewStore(b Backend, timeout time.Duration, logger *slog.Logger) *Store {
	return &Store{
		backend: b,
		timeout: timeout,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Key addresses one relation within a kind.
type Key struct {
	Subject string
	Object  string
	Name    string
}

// Set is the result of a batched Query. Absent triples have no entry.
type Set map[Key]*store.Relation

func (s Set) Get(subject, object, name string) (*store.Relation, bool) {
	rel, ok := s[Key{subject, object, name}]
	return rel, ok
}

func (s Set) Has(subject, object, name string) bool {
	_, ok := s[Key{subject, object, name}]
	return ok
}

// Add creates a relation. It fails with ErrDuplicateRelation when the triple
// already exists.
func (s *Store) Add(ctx context.Context, kind, subject, object, name string, flags map[string]bool) (*store.Relation, error) {
	rel := &store.Relation{
		Kind:      kind,
		SubjectID: subject,
		ObjectID:  object,
		Name:      name,
		Flags:     flags,
		CreatedAt: s.now(),
	}
	err := s.call(ctx, func(ctx context.Context) error {
		return s.backend.InsertRelation(ctx, rel)
	})
	if errors.Is(err, store.ErrDuplicate) {
		return nil, fmt.Errorf("%w: %s %s/%s/%s", ErrDuplicateRelation, kind, subject, object, name)
	}
	if err != nil {
		return nil, err
	}
	return rel, nil
}

// Ensure adds the relation or returns the one already stored. Concurrent
// callers on one triple all receive the same stored relation.
func (s *Store) Ensure(ctx context.Context, kind, subject, object, name string, flags map[string]bool) (*store.Relation, bool, error) {
	rel, err := s.Add(ctx, kind, subject, object, name, flags)
	if err == nil {
		return rel, true, nil
	}
	if !errors.Is(err, ErrDuplicateRelation) {
		return nil, false, err
	}

	err = s.call(ctx, func(ctx context.Context) error {
		var err error
		rel, err = s.backend.GetRelation(ctx, kind, subject, object, name)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if rel == nil {
		// removed between the failed insert and the read
		return s.Ensure(ctx, kind, subject, object, name, flags)
	}
	return rel, false, nil
}

// Get returns the relation for the triple, or nil.
func (s *Store) Get(ctx context.Context, kind, subject, object, name string) (*store.Relation, error) {
	var rel *store.Relation
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		rel, err = s.backend.GetRelation(ctx, kind, subject, object, name)
		return err
	})
	return rel, err
}

// Query fetches every stored relation among the cross product of subjects,
// objects and names with one backend call.
func (s *Store) Query(ctx context.Context, kind string, subjects, objects, names []string) (Set, error) {
	set := Set{}
	if len(subjects) == 0 || len(objects) == 0 || len(names) == 0 {
		return set, nil
	}

	var rels []*store.Relation
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		rels, err = s.backend.QueryRelations(ctx, store.RelationFilter{
			Kind:     kind,
			Subjects: dedupe(subjects),
			Objects:  dedupe(objects),
			Names:    dedupe(names),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	for _, rel := range rels {
		set[Key{rel.SubjectID, rel.ObjectID, rel.Name}] = rel
	}
	return set, nil
}

// BySubject lists the subject's relations of one name, oldest first.
func (s *Store) BySubject(ctx context.Context, kind, subject, name string) ([]*store.Relation, error) {
	var rels []*store.Relation
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		rels, err = s.backend.ListRelationsBySubject(ctx, kind, subject, name)
		return err
	})
	return rels, err
}

// ByObject lists the object's relations of one name, oldest first.
func (s *Store) ByObject(ctx context.Context, kind, object, name string) ([]*store.Relation, error) {
	var rels []*store.Relation
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		rels, err = s.backend.ListRelationsByObject(ctx, kind, object, name)
		return err
	})
	return rels, err
}

// Remove deletes the relation. Removing an absent relation is not an error.
func (s *Store) Remove(ctx context.Context, kind, subject, object, name string) error {
	return s.call(ctx, func(ctx context.Context) error {
		return s.backend.DeleteRelation(ctx, kind, subject, object, name)
	})
}

// SetFlag sets a boolean flag on rel and persists it. Marking an inbox
// relation new also records the recipient's first unseen time, unless one is
// already recorded.
func (s *Store) SetFlag(ctx context.Context, rel *store.Relation, flag string, value bool) error {
	flags := make(map[string]bool, len(rel.Flags)+1)
	for k, v := range rel.Flags {
		flags[k] = v
	}
	flags[flag] = value

	err := s.call(ctx, func(ctx context.Context) error {
		return s.backend.UpdateRelationFlags(ctx, rel.ID, flags)
	})
	if err != nil {
		return err
	}
	rel.Flags = flags

	if rel.Kind == KindInbox && flag == FlagNew && value {
		return s.noteUnseen(ctx, rel.SubjectID)
	}
	return nil
}

// AddInbox delivers a comment to the recipient's inbox as unread. name is
// Inbox or SelfReply. Delivering twice leaves one relation.
func (s *Store) AddInbox(ctx context.Context, recipientID, commentID, name string) (*store.Relation, error) {
	rel, created, err := s.Ensure(ctx, KindInbox, recipientID, commentID, name, map[string]bool{FlagNew: true})
	if err != nil {
		return nil, err
	}
	if !created && !rel.Flags[FlagNew] {
		return rel, s.SetFlag(ctx, rel, FlagNew, true)
	}
	if err := s.noteUnseen(ctx, recipientID); err != nil {
		return nil, err
	}
	return rel, nil
}

// MarkInbox flips the unread state of every inbox relation the recipient has
// for the comment.
func (s *Store) MarkInbox(ctx context.Context, recipientID, commentID string, unread bool) error {
	set, err := s.Query(ctx, KindInbox, []string{recipientID}, []string{commentID}, []string{Inbox, SelfReply})
	if err != nil {
		return err
	}
	for _, rel := range set {
		if rel.Flags[FlagNew] == unread {
			continue
		}
		if err := s.SetFlag(ctx, rel, FlagNew, unread); err != nil {
			return err
		}
	}
	return nil
}

// ClearUnseen resets the account's first unseen time after it has read its
// inbox.
func (s *Store) ClearUnseen(ctx context.Context, accountID string) error {
	return s.call(ctx, func(ctx context.Context) error {
		return s.backend.ClearMsgTime(ctx, accountID)
	})
}

// ClearUnseenIfRead resets the account's first unseen time when none of its
// inbox relations is still new. It reports whether the time was cleared.
func (s *Store) ClearUnseenIfRead(ctx context.Context, accountID string) (bool, error) {
	for _, name := range []string{Inbox, SelfReply} {
		rels, err := s.BySubject(ctx, KindInbox, accountID, name)
		if err != nil {
			return false, err
		}
		for _, rel := range rels {
			if rel.Flags[FlagNew] {
				return false, nil
			}
		}
	}
	return true, s.ClearUnseen(ctx, accountID)
}

func (s *Store) noteUnseen(ctx context.Context, accountID string) error {
	var wrote bool
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		wrote, err = s.backend.SetMsgTimeIfUnset(ctx, accountID, s.now())
		return err
	})
	if err != nil {
		return err
	}
	if wrote {
		s.logger.Debug("recorded first unseen message", "account", accountID)
	}
	return nil
}

// call runs fn under the store timeout. Hitting the timeout yields
// ErrBackendTimeout; cancellation by the caller passes through.
func (s *Store) call(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.timeout <= 0 {
		return fn(ctx)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := fn(callCtx)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %v", ErrBackendTimeout, s.timeout, err)
	}
	return err
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
