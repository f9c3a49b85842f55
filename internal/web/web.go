package web

import (
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alphabot-ai/threadcache/internal/config"
	"github.com/alphabot-ai/threadcache/internal/fingerprint"
	"github.com/alphabot-ai/threadcache/internal/identity"
	"github.com/alphabot-ai/threadcache/internal/overlay"
	"github.com/alphabot-ai/threadcache/internal/pane"
	"github.com/alphabot-ai/threadcache/internal/relation"
	"github.com/alphabot-ai/threadcache/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

// Handler holds dependencies for web handlers
type Handler struct {
	store     store.Store
	panes     *pane.Service
	relations *relation.Store
	cfg       *config.Config
	logger    *slog.Logger
	templates map[string]*template.Template
}

// NewHandler creates a new web handler
func NewHandler(s store.Store, panes *pane.Service, relations *relation.Store, cfg *config.Config, logger *slog.Logger) (*Handler, error) {
	templates := make(map[string]*template.Template)

	base, err := template.New("base.html").Funcs(template.FuncMap{"score": FormatScore}).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, err
	}

	// Each page gets its own clone of base so their content blocks don't collide
	pages := []string{"home.html", "story.html", "submit.html"}
	for _, page := range pages {
		tmpl, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := tmpl.ParseFS(templateFS, "templates/"+page); err != nil {
			return nil, err
		}
		templates[page] = tmpl
	}

	return &Handler{
		store:     s,
		panes:     panes,
		relations: relations,
		cfg:       cfg,
		logger:    logger,
		templates: templates,
	}, nil
}

// HomeData is the data for the home page template
type HomeData struct {
	Stories []*store.Story
	Sort    string
	BaseURL string
	Viewer  *identity.Viewer
}

// StoryData is the data for the story page template
type StoryData struct {
	Story   *store.Story
	Pane    template.HTML
	BaseURL string
	Viewer  *identity.Viewer
}

// SubmitData is the data for the submit page template
type SubmitData struct {
	BaseURL string
	Error   string
}

// Home handles GET /. Stories the viewer hid are left out.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	sortStr := r.URL.Query().Get("sort")
	var sort store.SortOrder
	switch sortStr {
	case "new":
		sort = store.SortNew
	case "discussed":
		sort = store.SortDiscussed
	default:
		sort = store.SortTop
		sortStr = "top"
	}

	stories, _, err := h.store.ListStories(r.Context(), store.ListOptions{Sort: sort, Limit: 30})
	if err != nil {
		h.logger.Error("failed to list stories", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	viewer := identity.FromContext(r.Context())
	stories = h.withoutHidden(r, viewer, stories)

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, map[string]any{
			"stories": stories,
			"sort":    sortStr,
		})
		return
	}

	data := HomeData{
		Stories: stories,
		Sort:    sortStr,
		BaseURL: h.cfg.BaseURL,
		Viewer:  viewer,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates["home.html"].ExecuteTemplate(w, "base", data); err != nil {
		h.logger.Error("template error", "page", "home", "error", err)
	}
}

// withoutHidden drops stories the viewer hid. A slow relation store shows
// the full list rather than failing the page.
func (h *Handler) withoutHidden(r *http.Request, viewer *identity.Viewer, stories []*store.Story) []*store.Story {
	if viewer.ID() == "" || len(stories) == 0 {
		return stories
	}
	ids := make([]string, len(stories))
	for i, s := range stories {
		ids[i] = s.ID
	}
	hidden, err := h.relations.Query(r.Context(), relation.KindSaveHide, []string{viewer.ID()}, ids, []string{relation.Hide})
	if err != nil {
		h.logger.Warn("failed to load hidden stories", "viewer", viewer.ID(), "error", err)
		return stories
	}

	visible := stories[:0]
	for _, s := range stories {
		if !hidden.Has(viewer.ID(), s.ID, relation.Hide) {
			visible = append(visible, s)
		}
	}
	return visible
}

// Story handles GET /story/{id}. Query parameters pick the pane: sort,
// limit, comment (focus on one thread), style, twocolumn and target.
func (h *Handler) Story(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	query := r.URL.Query()
	viewer := identity.FromContext(r.Context())
	style, ok := fingerprint.ParseStyle(query.Get("style"))
	if !ok {
		http.Error(w, "unknown style", http.StatusBadRequest)
		return
	}
	rc := &identity.RequestContext{Viewer: viewer, Lang: viewer.Lang, Style: string(style)}

	req := pane.Request{
		StoryID: id,
		Sort:    parseSort(query.Get("sort")),
		Focus:   query.Get("comment"),
		Options: fingerprint.Options{
			TwoColumn:  query.Get("twocolumn") == "1",
			LinkTarget: query.Get("target"),
		},
	}
	if limit, err := strconv.Atoi(query.Get("limit")); err == nil {
		req.Limit = limit
	}

	result, err := h.panes.Render(r.Context(), rc, req)
	switch {
	case errors.Is(err, pane.ErrNotFound):
		http.NotFound(w, r)
		return
	case errors.Is(err, pane.ErrForbidden):
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	case err != nil:
		h.logger.Error("failed to render pane", "story", id, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if viewer.ID() != "" {
		if _, _, err := h.relations.Ensure(r.Context(), relation.KindClick, viewer.ID(), result.Story.ID, relation.Click, nil); err != nil {
			h.logger.Warn("failed to record click", "story", result.Story.ID, "error", err)
		}
	}

	if wantsJSON(r) {
		body := map[string]any{
			"story":  result.Story,
			"cached": result.Cached,
			"patch":  result.Patch,
		}
		if result.Bypass != "" {
			body["bypass"] = result.Bypass
			body["html"] = result.Personalized
		} else {
			body["key"] = result.Key
			body["html"] = result.Canonical
			body["placeholders"] = result.Declarations
		}
		writeJSON(w, http.StatusOK, body)
		return
	}

	// Feeds get the merged document without the client-side patch.
	if style == fingerprint.StyleXML {
		doc := result.Personalized
		if result.Bypass == "" {
			doc = overlay.Merge(result.Canonical, result.Declarations, result.Patch)
		}
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		w.Write([]byte(doc))
		return
	}

	html, err := result.HTML()
	if err != nil {
		h.logger.Error("failed to assemble pane", "story", id, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	data := StoryData{
		Story:   result.Story,
		Pane:    template.HTML(html),
		BaseURL: h.cfg.BaseURL,
		Viewer:  viewer,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates["story.html"].ExecuteTemplate(w, "base", data); err != nil {
		h.logger.Error("template error", "page", "story", "error", err)
	}
}

// Submit handles GET /submit
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, map[string]any{
			"fields": map[string]any{
				"title": map[string]any{
					"type":      "string",
					"required":  true,
					"minLength": 8,
					"maxLength": 180,
				},
				"url": map[string]any{
					"type":     "string",
					"required": false,
					"format":   "uri",
				},
				"text": map[string]any{
					"type":     "string",
					"required": false,
				},
				"community_id": map[string]any{
					"type":     "string",
					"required": false,
				},
			},
			"constraints": []string{
				"Exactly one of 'url' or 'text' must be provided",
			},
		})
		return
	}

	data := SubmitData{
		BaseURL: h.cfg.BaseURL,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates["submit.html"].ExecuteTemplate(w, "base", data); err != nil {
		h.logger.Error("template error", "page", "submit", "error", err)
	}
}

// Helper functions

func parseSort(s string) store.SortOrder {
	switch s {
	case "new":
		return store.SortNew
	default:
		return store.SortTop
	}
}

func wantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return accept == "application/json" || r.URL.Query().Get("format") == "json"
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// FormatScore formats a score for display
func FormatScore(score int) string {
	if score == 1 || score == -1 {
		return strconv.Itoa(score) + " point"
	}
	return strconv.Itoa(score) + " points"
}
