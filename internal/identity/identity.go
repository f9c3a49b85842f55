// Package identity carries the viewer a request renders for and the scoped
// substitution used when rendering as someone else.
package identity

import (
	"context"
	"errors"
	"sync"
)

// DefaultMinCommentScore is the collapse threshold a viewer gets unless they
// chose another.
const DefaultMinCommentScore = -4

// ErrIdentitySubstitutionLeak means a render returned with a viewer other
// than the one it was handed. The output must not be served.
var ErrIdentitySubstitutionLeak = errors.New("identity substitution leaked past its scope")

type Viewer struct {
	AccountID       string
	LoggedIn        bool
	Admin           bool
	Lang            string
	MinCommentScore int
	Friends         map[string]bool
}

// Anonymous returns a logged-out viewer with default preferences.
func Anonymous(lang string) *Viewer {
	return &Viewer{Lang: lang, MinCommentScore: DefaultMinCommentScore}
}

func (v *Viewer) IsFriend(accountID string) bool {
	return v != nil && accountID != "" && v.Friends[accountID]
}

// ID returns the account id, or "" for logged-out viewers.
func (v *Viewer) ID() string {
	if v == nil || !v.LoggedIn {
		return ""
	}
	return v.AccountID
}

// RequestContext is the per-request state threaded through rendering. It is
// owned by one request and must not be shared across goroutines.
type RequestContext struct {
	Viewer   *Viewer
	Lang     string
	Style    string
	CanReply bool
}

// Substitute installs fake as rc's viewer and returns a function that puts
// the previous viewer back. Calling restore more than once is harmless.
func Substitute(rc *RequestContext, fake *Viewer) (restore func()) {
	original := rc.Viewer
	rc.Viewer = fake

	var once sync.Once
	return func() {
		once.Do(func() { rc.Viewer = original })
	}
}

// WithSubstitutedIdentity runs body with fake as rc's viewer. The original
// viewer is restored on every exit path, panics included. If body leaves a
// different viewer installed than fake, ErrIdentitySubstitutionLeak is
// returned.
func WithSubstitutedIdentity(rc *RequestContext, fake *Viewer, body func() error) error {
	restore := Substitute(rc, fake)
	defer restore()

	if err := body(); err != nil {
		return err
	}
	if rc.Viewer != fake {
		return ErrIdentitySubstitutionLeak
	}
	return nil
}

type contextKey struct{}

func NewContext(ctx context.Context, v *Viewer) context.Context {
	return context.WithValue(ctx, contextKey{}, v)
}

// FromContext returns the viewer stored by NewContext, or an anonymous
// viewer when there is none.
func FromContext(ctx context.Context) *Viewer {
	if v, ok := ctx.Value(contextKey{}).(*Viewer); ok && v != nil {
		return v
	}
	return Anonymous("")
}
