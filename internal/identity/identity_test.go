package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func realViewer() *Viewer {
	return &Viewer{AccountID: "u1", LoggedIn: true, Lang: "en", MinCommentScore: DefaultMinCommentScore}
}

func TestWithSubstitutedIdentityRestoresOnSuccess(t *testing.T) {
	real := realViewer()
	rc := &RequestContext{Viewer: real}
	anon := Anonymous("en")

	var seen *Viewer
	err := WithSubstitutedIdentity(rc, anon, func() error {
		seen = rc.Viewer
		return nil
	})

	require.NoError(t, err)
	assert.Same(t, anon, seen)
	assert.Same(t, real, rc.Viewer)
}

func TestWithSubstitutedIdentityRestoresOnError(t *testing.T) {
	real := realViewer()
	rc := &RequestContext{Viewer: real}
	boom := errors.New("boom")

	err := WithSubstitutedIdentity(rc, Anonymous("en"), func() error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.Same(t, real, rc.Viewer)
}

func TestWithSubstitutedIdentityRestoresOnPanic(t *testing.T) {
	real := realViewer()
	rc := &RequestContext{Viewer: real}

	assert.PanicsWithValue(t, "render exploded", func() {
		WithSubstitutedIdentity(rc, Anonymous("en"), func() error {
			panic("render exploded")
		})
	})
	assert.Same(t, real, rc.Viewer)
}

func TestWithSubstitutedIdentityDetectsLeak(t *testing.T) {
	real := realViewer()
	rc := &RequestContext{Viewer: real}

	err := WithSubstitutedIdentity(rc, Anonymous("en"), func() error {
		// nested substitution that never restores
		Substitute(rc, &Viewer{AccountID: "intruder", LoggedIn: true})
		return nil
	})

	assert.ErrorIs(t, err, ErrIdentitySubstitutionLeak)
	assert.Same(t, real, rc.Viewer)
}

func TestNestedSubstitutionRestoresInOrder(t *testing.T) {
	real := realViewer()
	rc := &RequestContext{Viewer: real}
	outer := Anonymous("en")
	inner := Anonymous("de")

	err := WithSubstitutedIdentity(rc, outer, func() error {
		return WithSubstitutedIdentity(rc, inner, func() error {
			assert.Same(t, inner, rc.Viewer)
			return nil
		})
	})

	require.NoError(t, err)
	assert.Same(t, real, rc.Viewer)
}

func TestRestoreIsIdempotent(t *testing.T) {
	real := realViewer()
	rc := &RequestContext{Viewer: real}

	restore := Substitute(rc, Anonymous(""))
	restore()
	other := Anonymous("fr")
	rc.Viewer = other
	restore()

	assert.Same(t, other, rc.Viewer)
}

func TestViewerHelpers(t *testing.T) {
	v := realViewer()
	v.Friends = map[string]bool{"u2": true}

	assert.True(t, v.IsFriend("u2"))
	assert.False(t, v.IsFriend("u3"))
	assert.False(t, v.IsFriend(""))
	assert.Equal(t, "u1", v.ID())

	anon := Anonymous("en")
	assert.Equal(t, "", anon.ID())
	assert.False(t, anon.IsFriend("u2"))
	assert.Equal(t, DefaultMinCommentScore, anon.MinCommentScore)
}

func TestContextRoundTrip(t *testing.T) {
	v := realViewer()
	ctx := NewContext(context.Background(), v)
	assert.Same(t, v, FromContext(ctx))

	fallback := FromContext(context.Background())
	assert.False(t, fallback.LoggedIn)
}
