// Package pane serves comment panes: a story with its comment tree, shared
// across viewers through the render cache where that is safe.
package pane

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alphabot-ai/threadcache/internal/fingerprint"
	"github.com/alphabot-ai/threadcache/internal/identity"
	"github.com/alphabot-ai/threadcache/internal/overlay"
	"github.com/alphabot-ai/threadcache/internal/placeholder"
	"github.com/alphabot-ai/threadcache/internal/relation"
	"github.com/alphabot-ai/threadcache/internal/render"
	"github.com/alphabot-ai/threadcache/internal/rendercache"
	"github.com/alphabot-ai/threadcache/internal/store"
)

var (
	ErrNotFound  = errors.New("story not found")
	ErrForbidden = errors.New("story not visible to viewer")
)

// Request selects a pane.
type Request struct {
	StoryID string
	Sort    store.SortOrder
	Limit   int
	// Focus narrows the pane to one comment's thread.
	Focus   string
	Options fingerprint.Options
}

// Result is either a canonical render plus the viewer's patch, or a
// personalized render when the cache was bypassed.
type Result struct {
	Story        *store.Story
	Key          string
	Canonical    string
	Declarations []placeholder.Declaration
	Patch        overlay.Patch
	Personalized string
	// Cached is set when Canonical came from the cache.
	Cached bool
	// Bypass explains why the cache was not used.
	Bypass string
}

// HTML returns the final markup: the personalized render, or the canonical
// render merged with the patch followed by the patch itself for clients.
func (r *Result) HTML() (string, error) {
	if r.Bypass != "" {
		return r.Personalized, nil
	}
	script, err := r.Patch.Script()
	if err != nil {
		return "", err
	}
	return overlay.Merge(r.Canonical, r.Declarations, r.Patch) + script, nil
}

type Service struct {
	store     store.Store
	relations *relation.Store
	builder   *render.TreeBuilder
	renderer  *render.Renderer
	cache     rendercache.Cache
	ttl       time.Duration
	limit     int
	logger    *slog.Logger
}

func NewService(s store.Store, relations *relation.Store, renderer *render.Renderer, cache rendercache.Cache, ttl time.Duration, limit int, logger *slog.Logger) *Service {
	return &Service{
		store:     s,
		relations: relations,
		builder:   render.NewTreeBuilder(s, relations, logger),
		renderer:  renderer,
		cache:     cache,
		ttl:       ttl,
		limit:     limit,
		logger:    logger,
	}
}

// Render produces the pane for rc's viewer. Cache and relation failures fall
// back to rendering directly; only entity store failures and identity leaks
// are returned.
func (s *Service) Render(ctx context.Context, rc *identity.RequestContext, req Request) (*Result, error) {
	story, err := s.store.GetStory(ctx, req.StoryID)
	if err != nil {
		return nil, fmt.Errorf("load story: %w", err)
	}
	if story == nil {
		return nil, ErrNotFound
	}

	style, _ := fingerprint.ParseStyle(rc.Style)
	sort := req.Sort
	if sort == "" {
		sort = store.SortTop
	}
	limit := req.Limit
	if limit <= 0 || limit > s.limit {
		limit = s.limit
	}
	lang := story.Lang
	if lang == "" {
		lang = rc.Lang
	}

	community, membership, known, err := s.membership(ctx, rc.Viewer, story)
	if err != nil {
		return nil, err
	}
	if !relation.CanView(rc.Viewer, community, membership) {
		return nil, ErrForbidden
	}
	rc.CanReply = known && relation.CanComment(rc.Viewer, community, membership)
	canModerate := known && relation.CanBan(rc.Viewer, membership)

	comments, err := s.store.ListComments(ctx, story.ID, store.CommentListOptions{Sort: sort, View: store.ViewFlat})
	if err != nil {
		return nil, fmt.Errorf("load comments: %w", err)
	}

	tree, err := s.builder.Build(ctx, rc, story, comments, render.BuildOptions{
		Limit:       limit,
		Focus:       req.Focus,
		CanModerate: canModerate,
	})
	if err != nil {
		return nil, err
	}

	decision := fingerprint.Gate(fingerprint.GateInput{
		Style:           style,
		Item:            fingerprint.StoryItem{Story: story},
		Narrowed:        req.Focus != "",
		CanModerate:     canModerate,
		MinCommentScore: rc.Viewer.MinCommentScore,
	})
	switch {
	case !known:
		decision = fingerprint.Decision{Reason: "membership unknown"}
	case decision.Cacheable && render.ContainsAuthor(tree):
		decision = fingerprint.Decision{Reason: "viewer authored content in the pane"}
	}
	if !decision.Cacheable {
		s.logger.Debug("bypassing render cache", "story", story.ID, "reason", decision.Reason)
		return s.personalized(rc, story, tree, style, decision.Reason)
	}

	key := fingerprint.Pane(story, sort, limit, lang, style, req.Options).Hash()
	result := &Result{Story: story, Key: key}

	cached, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		result.Canonical = cached.Output
		result.Declarations = cached.Declarations
		result.Cached = true
	default:
		if !errors.Is(err, rendercache.ErrCacheMiss) {
			s.logger.Warn("render cache get failed", "key", key, "error", err)
		}
		output, decls, err := s.renderer.RenderCanonical(rc, lang, style, func() (*render.Tree, error) {
			return s.builder.Build(ctx, rc, story, comments, render.BuildOptions{Limit: limit})
		})
		if err != nil {
			return nil, fmt.Errorf("canonical render of story %s: %w", story.ID, err)
		}
		result.Canonical = output
		result.Declarations = decls

		if err := s.cache.Put(ctx, key, &rendercache.CachedRender{Output: output, Declarations: decls}, s.ttl); err != nil {
			s.logger.Warn("render cache put failed", "key", key, "error", err)
		}
	}

	result.Patch = overlay.Overlay(rc.Viewer.ID(), key, tree, rc.CanReply)
	return result, nil
}

func (s *Service) personalized(rc *identity.RequestContext, story *store.Story, tree *render.Tree, style fingerprint.Style, reason string) (*Result, error) {
	reg := placeholder.NewRegistry()
	output, err := s.renderer.Render(tree, style, reg)
	if err != nil {
		return nil, err
	}
	patch := overlay.Overlay(rc.Viewer.ID(), "", tree, rc.CanReply)
	return &Result{
		Story:        story,
		Patch:        patch,
		Personalized: overlay.Merge(output, reg.Declarations(), patch),
		Bypass:       reason,
	}, nil
}

// membership loads the story's community and the viewer's standing in it.
// known is false when the relation lookup timed out.
func (s *Service) membership(ctx context.Context, v *identity.Viewer, story *store.Story) (*store.Community, relation.Membership, bool, error) {
	if story.CommunityID == "" {
		return nil, relation.Membership{}, true, nil
	}

	community, err := s.store.GetCommunity(ctx, story.CommunityID)
	if err != nil {
		return nil, relation.Membership{}, false, fmt.Errorf("load community: %w", err)
	}
	if community == nil {
		return nil, relation.Membership{}, true, nil
	}

	memberships, err := s.relations.LoadMembership(ctx, v, []string{community.ID})
	if errors.Is(err, relation.ErrBackendTimeout) {
		s.logger.Warn("membership lookup timed out", "community", community.ID, "error", err)
		return community, relation.Membership{}, false, nil
	}
	if err != nil {
		return nil, relation.Membership{}, false, fmt.Errorf("load membership: %w", err)
	}
	return community, memberships[community.ID], true, nil
}
