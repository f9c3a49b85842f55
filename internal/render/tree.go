// Package render builds annotated comment trees and renders them, either for
// a real viewer or as the shared canonical render.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alphabot-ai/threadcache/internal/identity"
	"github.com/alphabot-ai/threadcache/internal/relation"
	"github.com/alphabot-ai/threadcache/internal/store"
)

// Node is one comment in a tree, or a stub standing in for comments cut by
// the limit when More is set.
type Node struct {
	Comment     *store.Comment
	Depth       int
	NumChildren int
	Children    []*Node
	More        *More

	// Viewer annotations.
	Likes       *bool
	IsFriend    bool
	IsAuthor    bool
	Collapsed   bool
	CanReply    bool
	CanModerate bool
}

// More summarizes comments left out of a tree.
type More struct {
	ParentID string
	Count    int
}

// Tree is a story and its comments, annotated for one viewer.
type Tree struct {
	Story       *store.Story
	Lang        string
	Roots       []*Node
	Total       int
	StoryLikes  *bool
	StorySaved  bool
	IsAuthor    bool
	CanModerate bool
}

// Walk visits every comment node in pre-order. Stubs are skipped.
func (t *Tree) Walk(fn func(*Node)) {
	var walk func([]*Node)
	walk = func(nodes []*Node) {
		for _, n := range nodes {
			if n.More != nil {
				continue
			}
			fn(n)
			walk(n.Children)
		}
	}
	walk(t.Roots)
}

// ContainsAuthor reports whether the viewer the tree was built for wrote the
// story or any comment in it.
func ContainsAuthor(t *Tree) bool {
	if t.IsAuthor {
		return true
	}
	found := false
	t.Walk(func(n *Node) {
		if n.IsAuthor {
			found = true
		}
	})
	return found
}

// VoteLister returns one account's votes on a batch of targets.
type VoteLister interface {
	ListVotes(ctx context.Context, accountID, targetType string, targetIDs []string) (map[string]int, error)
}

// BuildOptions shapes the tree.
type BuildOptions struct {
	// Limit caps the number of comments kept; zero keeps all.
	Limit int
	// Focus narrows the tree to the subtree rooted at this comment.
	Focus       string
	CanModerate bool
}

// TreeBuilder nests comments and annotates them for the request's viewer
// with batched lookups.
type TreeBuilder struct {
	votes     VoteLister
	relations *relation.Store
	logger    *slog.Logger
}

func NewTreeBuilder(votes VoteLister, relations *relation.Store, logger *slog.Logger) *TreeBuilder {
	return &TreeBuilder{votes: votes, relations: relations, logger: logger}
}

// Build nests comments, which must be in display order, under story and
// annotates the result for rc.Viewer.
func (b *TreeBuilder) Build(ctx context.Context, rc *identity.RequestContext, story *store.Story, comments []*store.Comment, opts BuildOptions) (*Tree, error) {
	v := rc.Viewer
	lang := story.Lang
	if lang == "" {
		lang = rc.Lang
	}

	roots := nest(comments)
	if opts.Focus != "" {
		roots = focus(roots, opts.Focus)
	}
	total := count(roots, 0)
	if opts.Limit > 0 {
		budget := opts.Limit
		roots = trim(roots, "", &budget)
	}

	tree := &Tree{
		Story:       story,
		Lang:        lang,
		Roots:       roots,
		Total:       total,
		IsAuthor:    v.ID() != "" && story.AuthorID == v.ID(),
		CanModerate: opts.CanModerate && v.ID() != "",
	}

	var ids []string
	tree.Walk(func(n *Node) { ids = append(ids, n.Comment.ID) })

	commentVotes, err := b.votes.ListVotes(ctx, v.ID(), "comment", ids)
	if err != nil {
		return nil, fmt.Errorf("load comment votes: %w", err)
	}
	storyVotes, err := b.votes.ListVotes(ctx, v.ID(), "story", []string{story.ID})
	if err != nil {
		return nil, fmt.Errorf("load story vote: %w", err)
	}
	tree.StoryLikes = likes(storyVotes, story.ID)

	if v.ID() != "" && b.relations != nil {
		saved, err := b.relations.Query(ctx, relation.KindSaveHide, []string{v.ID()}, []string{story.ID}, []string{relation.Save})
		switch {
		case errors.Is(err, relation.ErrBackendTimeout):
			b.logger.Warn("saved lookup timed out, rendering as unsaved", "story", story.ID)
		case err != nil:
			return nil, fmt.Errorf("load saved state: %w", err)
		default:
			tree.StorySaved = saved.Has(v.ID(), story.ID, relation.Save)
		}
	}

	tree.Walk(func(n *Node) {
		c := n.Comment
		n.Likes = likes(commentVotes, c.ID)
		n.IsFriend = !c.Deleted && v.IsFriend(c.AuthorID)
		n.IsAuthor = v.ID() != "" && c.AuthorID == v.ID()
		n.Collapsed = c.Deleted || c.Score < v.MinCommentScore
		n.CanReply = v.ID() != "" && rc.CanReply && !c.Deleted
		n.CanModerate = tree.CanModerate
	})

	return tree, nil
}

func likes(votes map[string]int, id string) *bool {
	value, ok := votes[id]
	if !ok || value == 0 {
		return nil
	}
	liked := value > 0
	return &liked
}

// nest links comments to their parents without modifying them. Comments
// whose parent is missing are dropped.
func nest(comments []*store.Comment) []*Node {
	byID := make(map[string]*Node, len(comments))
	for _, c := range comments {
		byID[c.ID] = &Node{Comment: c}
	}

	var roots []*Node
	for _, c := range comments {
		n := byID[c.ID]
		if c.ParentID == "" {
			roots = append(roots, n)
		} else if parent, ok := byID[c.ParentID]; ok {
			parent.Children = append(parent.Children, n)
		}
	}
	return roots
}

func focus(roots []*Node, id string) []*Node {
	var found *Node
	var search func([]*Node)
	search = func(nodes []*Node) {
		for _, n := range nodes {
			if found != nil {
				return
			}
			if n.Comment.ID == id {
				found = n
				return
			}
			search(n.Children)
		}
	}
	search(roots)
	if found == nil {
		return nil
	}
	return []*Node{found}
}

// count sets Depth and NumChildren and returns the number of nodes.
func count(nodes []*Node, depth int) int {
	total := 0
	for _, n := range nodes {
		n.Depth = depth
		n.NumChildren = count(n.Children, depth+1)
		total += 1 + n.NumChildren
	}
	return total
}

// trim keeps nodes in pre-order until budget runs out, replacing the rest of
// each sibling list with a More stub.
func trim(nodes []*Node, parentID string, budget *int) []*Node {
	for i, n := range nodes {
		if *budget <= 0 {
			cut := 0
			for _, rest := range nodes[i:] {
				cut += 1 + rest.NumChildren
			}
			kept := append(nodes[:i:i], &Node{Depth: n.Depth, More: &More{ParentID: parentID, Count: cut}})
			return kept
		}
		*budget--
		n.Children = trim(n.Children, n.Comment.ID, budget)
	}
	return nodes
}
