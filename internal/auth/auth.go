package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/alphabot-ai/threadcache/internal/identity"
	"github.com/alphabot-ai/threadcache/internal/relation"
	"github.com/alphabot-ai/threadcache/internal/store"
	"github.com/google/uuid"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidToken    = errors.New("invalid or expired token")
)

// Service issues session tokens and resolves them to viewers.
type Service struct {
	store     store.Store
	relations *relation.Store
	tokenTTL  time.Duration
}

// NewService creates a new auth service
func NewService(s store.Store, relations *relation.Store, tokenTTL time.Duration) *Service {
	return &Service{
		store:     s,
		relations: relations,
		tokenTTL:  tokenTTL,
	}
}

// IssueToken creates a bearer token for an existing account.
func (s *Service) IssueToken(ctx context.Context, accountID string) (*store.Token, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, err
	}

	token := &store.Token{
		ID:        uuid.New().String(),
		AccountID: account.ID,
		Token:     base64.URLEncoding.EncodeToString(tokenBytes),
		ExpiresAt: time.Now().UTC().Add(s.tokenTTL),
	}
	if err := s.store.CreateToken(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}

// ValidateToken returns the live token for tokenStr, or nil if it is unknown
// or expired.
func (s *Service) ValidateToken(ctx context.Context, tokenStr string) (*store.Token, error) {
	return s.store.GetToken(ctx, tokenStr)
}

// Viewer resolves a token to the viewer making the request, including the
// viewer's friend set. An unknown token is ErrInvalidToken.
func (s *Service) Viewer(ctx context.Context, tokenStr, lang string) (*identity.Viewer, error) {
	token, err := s.ValidateToken(ctx, tokenStr)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, ErrInvalidToken
	}

	account, err := s.store.GetAccount(ctx, token.AccountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrInvalidToken
	}

	friends, err := s.relations.BySubject(ctx, relation.KindFriend, account.ID, relation.Friend)
	if err != nil {
		return nil, fmt.Errorf("load friends of %s: %w", account.ID, err)
	}

	v := &identity.Viewer{
		AccountID:       account.ID,
		LoggedIn:        true,
		Admin:           account.Admin,
		Lang:            lang,
		MinCommentScore: account.MinCommentScore,
		Friends:         make(map[string]bool, len(friends)),
	}
	for _, f := range friends {
		v.Friends[f.ObjectID] = true
	}
	return v, nil
}
