package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alphabot-ai/threadcache/internal/store/migrations"
	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for schema tooling.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Accounts

func (s *SQLiteStore) CreateAccount(ctx context.Context, account *Account) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, display_name, created_at, admin, min_comment_score)
		VALUES (?, ?, ?, ?, ?)
	`, account.ID, account.DisplayName, account.CreatedAt, boolToInt(account.Admin), account.MinCommentScore)

	return mapConstraint(err)
}

const accountColumns = `id, display_name, created_at, admin, min_comment_score, msg_time`

func (s *SQLiteStore) GetAccount(ctx context.Context, id string) (*Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)

	account, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return account, err
}

func (s *SQLiteStore) GetAccounts(ctx context.Context, ids []string) (map[string]*Account, error) {
	out := make(map[string]*Account, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id IN (`+placeholders(len(ids))+`)`,
		stringArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out[account.ID] = account
	}
	return out, rows.Err()
}

// SetMsgTimeIfUnset records t as the account's first unseen inbox time unless
// one is already recorded. It reports whether the write happened.
func (s *SQLiteStore) SetMsgTimeIfUnset(ctx context.Context, accountID string, t time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET msg_time = ? WHERE id = ? AND msg_time IS NULL`, t.UTC(), accountID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) ClearMsgTime(ctx context.Context, accountID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE accounts SET msg_time = NULL WHERE id = ?`, accountID)
	return err
}

// Communities

func (s *SQLiteStore) CreateCommunity(ctx context.Context, community *Community) error {
	if community.ID == "" {
		community.ID = uuid.New().String()
	}
	if community.CreatedAt.IsZero() {
		community.CreatedAt = time.Now().UTC()
	}
	if community.Type == "" {
		community.Type = CommunityPublic
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO communities (id, name, title, type, author_id, spam, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, community.ID, community.Name, nullString(community.Title), community.Type,
		nullString(community.AuthorID), boolToInt(community.Spam), community.CreatedAt)

	return mapConstraint(err)
}

const communityColumns = `id, name, title, type, author_id, spam, created_at`

func (s *SQLiteStore) GetCommunity(ctx context.Context, id string) (*Community, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+communityColumns+` FROM communities WHERE id = ?`, id)

	community, err := scanCommunity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return community, err
}

func (s *SQLiteStore) GetCommunities(ctx context.Context, ids []string) (map[string]*Community, error) {
	out := make(map[string]*Community, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+communityColumns+` FROM communities WHERE id IN (`+placeholders(len(ids))+`)`,
		stringArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		community, err := scanCommunity(rows)
		if err != nil {
			return nil, err
		}
		out[community.ID] = community
	}
	return out, rows.Err()
}

// Stories

const storyColumns = `id, community_id, author_id, title, url, text, lang, score, comment_count,
	created_at, edited_at, deleted, spam, hidden`

func (s *SQLiteStore) CreateStory(ctx context.Context, story *Story) error {
	if story.ID == "" {
		story.ID = uuid.New().String()
	}
	if story.CreatedAt.IsZero() {
		story.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stories (id, community_id, author_id, title, url, text, lang, score, comment_count,
			created_at, deleted, spam, hidden)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, story.ID, nullString(story.CommunityID), nullString(story.AuthorID), story.Title,
		nullString(story.URL), nullString(story.Text), nullString(story.Lang),
		story.Score, story.CommentCount, story.CreatedAt,
		boolToInt(story.Deleted), boolToInt(story.Spam), boolToInt(story.Hidden))

	return err
}

func (s *SQLiteStore) GetStory(ctx context.Context, id string) (*Story, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+storyColumns+` FROM stories WHERE id = ? AND hidden = 0`, id)

	story, err := scanStory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return story, err
}

func (s *SQLiteStore) ListStories(ctx context.Context, opts ListOptions) ([]*Story, string, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 30
	}

	var orderBy string
	switch opts.Sort {
	case SortNew:
		orderBy = "created_at DESC"
	case SortDiscussed:
		orderBy = "comment_count DESC, created_at DESC"
	default: // SortTop
		// score minus age in hours
		orderBy = "score - (CAST((julianday('now') - julianday(created_at)) * 24 AS REAL)) DESC"
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM stories WHERE hidden = 0
		ORDER BY %s
		LIMIT ?
	`, storyColumns, orderBy)

	rows, err := s.db.QueryContext(ctx, query, opts.Limit+1)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var stories []*Story
	for rows.Next() {
		story, err := scanStory(rows)
		if err != nil {
			return nil, "", err
		}
		stories = append(stories, story)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	var nextCursor string
	if len(stories) > opts.Limit {
		stories = stories[:opts.Limit]
		nextCursor = stories[len(stories)-1].ID
	}

	return stories, nextCursor, nil
}

func (s *SQLiteStore) FindStoryByURL(ctx context.Context, url string, since time.Time) (*Story, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+storyColumns+`
		FROM stories WHERE url = ? AND created_at > ? AND hidden = 0
		ORDER BY created_at DESC LIMIT 1
	`, url, since)

	story, err := scanStory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return story, err
}

func (s *SQLiteStore) UpdateStoryScore(ctx context.Context, id string, delta int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE stories SET score = score + ? WHERE id = ?`, delta, id)
	return err
}

// UpdateStoryCommentCount increments the counter in place so concurrent
// writers never lose an update.
func (s *SQLiteStore) UpdateStoryCommentCount(ctx context.Context, id string, delta int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE stories SET comment_count = comment_count + ? WHERE id = ?`, delta, id)
	return err
}

func (s *SQLiteStore) HideStory(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE stories SET hidden = 1 WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) MarkStorySpam(ctx context.Context, id string, spam bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE stories SET spam = ? WHERE id = ?`, boolToInt(spam), id)
	return err
}

// Comments

const commentColumns = `id, story_id, parent_id, author_id, text, score, created_at, edited_at,
	deleted, spam, hidden`

func (s *SQLiteStore) CreateComment(ctx context.Context, comment *Comment) error {
	if comment.ID == "" {
		comment.ID = uuid.New().String()
	}
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, story_id, parent_id, author_id, text, score, created_at, deleted, spam, hidden)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, comment.ID, comment.StoryID, nullString(comment.ParentID), nullString(comment.AuthorID),
		comment.Text, comment.Score, comment.CreatedAt,
		boolToInt(comment.Deleted), boolToInt(comment.Spam), boolToInt(comment.Hidden))

	return err
}

func (s *SQLiteStore) GetComment(ctx context.Context, id string) (*Comment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+commentColumns+` FROM comments WHERE id = ? AND hidden = 0`, id)

	comment, err := scanComment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return comment, err
}

func (s *SQLiteStore) ListComments(ctx context.Context, storyID string, opts CommentListOptions) ([]*Comment, error) {
	var orderBy string
	switch opts.Sort {
	case SortNew:
		orderBy = "created_at DESC, id ASC"
	default:
		orderBy = "score DESC, created_at ASC, id ASC"
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM comments WHERE story_id = ? AND hidden = 0
		ORDER BY %s
	`, commentColumns, orderBy)

	rows, err := s.db.QueryContext(ctx, query, storyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []*Comment
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if opts.View == ViewTree {
		return BuildCommentTree(comments), nil
	}

	return comments, nil
}

// BuildCommentTree links comments to their parents, preserving input order
// among siblings. Comments whose parent is missing are dropped.
func BuildCommentTree(comments []*Comment) []*Comment {
	byID := make(map[string]*Comment)
	for _, c := range comments {
		byID[c.ID] = c
	}

	var roots []*Comment
	for _, c := range comments {
		if c.ParentID == "" {
			roots = append(roots, c)
		} else if parent, ok := byID[c.ParentID]; ok {
			parent.Children = append(parent.Children, c)
		}
	}

	return roots
}

func (s *SQLiteStore) UpdateCommentScore(ctx context.Context, id string, delta int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE comments SET score = score + ? WHERE id = ?`, delta, id)
	return err
}

func (s *SQLiteStore) HideComment(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE comments SET hidden = 1 WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) DeleteComment(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE comments SET deleted = 1 WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) EditComment(ctx context.Context, id, text string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE comments SET text = ?, edited_at = ? WHERE id = ?`,
		text, time.Now().UTC(), id)
	return err
}

// Votes

func (s *SQLiteStore) CreateVote(ctx context.Context, vote *Vote) error {
	if vote.ID == "" {
		vote.ID = uuid.New().String()
	}
	if vote.CreatedAt.IsZero() {
		vote.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO votes (id, account_id, target_type, target_id, value, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, vote.ID, vote.AccountID, vote.TargetType, vote.TargetID, vote.Value, vote.CreatedAt)

	return mapConstraint(err)
}

func (s *SQLiteStore) GetVote(ctx context.Context, accountID, targetType, targetID string) (*Vote, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, target_type, target_id, value, created_at
		FROM votes WHERE account_id = ? AND target_type = ? AND target_id = ?
	`, accountID, targetType, targetID)

	var vote Vote
	err := row.Scan(&vote.ID, &vote.AccountID, &vote.TargetType, &vote.TargetID, &vote.Value, &vote.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &vote, nil
}

func (s *SQLiteStore) UpdateVote(ctx context.Context, id string, value int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE votes SET value = ? WHERE id = ?`, value, id)
	return err
}

// ListVotes returns the account's vote value per target id. Targets the
// account never voted on are absent.
func (s *SQLiteStore) ListVotes(ctx context.Context, accountID, targetType string, targetIDs []string) (map[string]int, error) {
	out := make(map[string]int)
	if accountID == "" || len(targetIDs) == 0 {
		return out, nil
	}

	args := append([]any{accountID, targetType}, stringArgs(targetIDs)...)
	rows, err := s.db.QueryContext(ctx, `
		SELECT target_id, value FROM votes
		WHERE account_id = ? AND target_type = ? AND target_id IN (`+placeholders(len(targetIDs))+`)
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var value int
		if err := rows.Scan(&id, &value); err != nil {
			return nil, err
		}
		out[id] = value
	}
	return out, rows.Err()
}

// Relations

const relationColumns = `id, kind, subject_id, object_id, name, flags, created_at`

// InsertRelation stores rel, returning ErrDuplicate if the
// (kind, subject, object, name) triple already exists.
func (s *SQLiteStore) InsertRelation(ctx context.Context, rel *Relation) error {
	if rel.ID == "" {
		rel.ID = uuid.New().String()
	}
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = time.Now().UTC()
	}

	flags, err := encodeFlags(rel.Flags)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO relations (id, kind, subject_id, object_id, name, flags, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rel.ID, rel.Kind, rel.SubjectID, rel.ObjectID, rel.Name, flags, rel.CreatedAt)

	return mapConstraint(err)
}

func (s *SQLiteStore) GetRelation(ctx context.Context, kind, subjectID, objectID, name string) (*Relation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+relationColumns+` FROM relations
		WHERE kind = ? AND subject_id = ? AND object_id = ? AND name = ?
	`, kind, subjectID, objectID, name)

	rel, err := scanRelation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rel, err
}

// QueryRelations returns every stored relation matching the cross product of
// the filter's subjects, objects and names in a single round trip.
func (s *SQLiteStore) QueryRelations(ctx context.Context, filter RelationFilter) ([]*Relation, error) {
	if len(filter.Subjects) == 0 || len(filter.Objects) == 0 || len(filter.Names) == 0 {
		return nil, nil
	}

	args := []any{filter.Kind}
	args = append(args, stringArgs(filter.Subjects)...)
	args = append(args, stringArgs(filter.Objects)...)
	args = append(args, stringArgs(filter.Names)...)

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+relationColumns+` FROM relations
		WHERE kind = ?
		AND subject_id IN (`+placeholders(len(filter.Subjects))+`)
		AND object_id IN (`+placeholders(len(filter.Objects))+`)
		AND name IN (`+placeholders(len(filter.Names))+`)
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rels []*Relation
	for rows.Next() {
		rel, err := scanRelation(rows)
		if err != nil {
			return nil, err
		}
		rels = append(rels, rel)
	}
	return rels, rows.Err()
}

func (s *SQLiteStore) ListRelationsByObject(ctx context.Context, kind, objectID, name string) ([]*Relation, error) {
	return s.listRelations(ctx, `
		SELECT `+relationColumns+` FROM relations
		WHERE kind = ? AND object_id = ? AND name = ?
		ORDER BY created_at ASC
	`, kind, objectID, name)
}

func (s *SQLiteStore) ListRelationsBySubject(ctx context.Context, kind, subjectID, name string) ([]*Relation, error) {
	return s.listRelations(ctx, `
		SELECT `+relationColumns+` FROM relations
		WHERE kind = ? AND subject_id = ? AND name = ?
		ORDER BY created_at ASC
	`, kind, subjectID, name)
}

func (s *SQLiteStore) listRelations(ctx context.Context, query string, args ...any) ([]*Relation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rels []*Relation
	for rows.Next() {
		rel, err := scanRelation(rows)
		if err != nil {
			return nil, err
		}
		rels = append(rels, rel)
	}
	return rels, rows.Err()
}

func (s *SQLiteStore) DeleteRelation(ctx context.Context, kind, subjectID, objectID, name string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM relations WHERE kind = ? AND subject_id = ? AND object_id = ? AND name = ?
	`, kind, subjectID, objectID, name)
	return err
}

func (s *SQLiteStore) UpdateRelationFlags(ctx context.Context, id string, flags map[string]bool) error {
	encoded, err := encodeFlags(flags)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE relations SET flags = ? WHERE id = ?`, encoded, id)
	return err
}

// Attachment slots

// GetSlotTable returns the entity's slot table. An entity without one gets an
// empty table at version 0.
func (s *SQLiteStore) GetSlotTable(ctx context.Context, entityID string) (*SlotTable, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT slots, free, version FROM slot_tables WHERE entity_id = ?
	`, entityID)

	table := &SlotTable{EntityID: entityID, Slots: map[string]int{}}
	var slotsJSON, freeJSON string
	err := row.Scan(&slotsJSON, &freeJSON, &table.Version)
	if err == sql.ErrNoRows {
		return table, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(slotsJSON), &table.Slots); err != nil {
		return nil, fmt.Errorf("decode slots for %s: %w", entityID, err)
	}
	if err := json.Unmarshal([]byte(freeJSON), &table.Free); err != nil {
		return nil, fmt.Errorf("decode free list for %s: %w", entityID, err)
	}
	if table.Slots == nil {
		table.Slots = map[string]int{}
	}
	return table, nil
}

// CompareAndSwapSlotTable writes table only if the stored version still equals
// table.Version, then bumps table.Version. A lost race yields ErrVersionConflict.
func (s *SQLiteStore) CompareAndSwapSlotTable(ctx context.Context, table *SlotTable) error {
	slotsJSON, err := json.Marshal(table.Slots)
	if err != nil {
		return err
	}
	free := table.Free
	if free == nil {
		free = []int{}
	}
	freeJSON, err := json.Marshal(free)
	if err != nil {
		return err
	}

	var res sql.Result
	if table.Version == 0 {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO slot_tables (entity_id, slots, free, version) VALUES (?, ?, ?, 1)
			ON CONFLICT(entity_id) DO NOTHING
		`, table.EntityID, string(slotsJSON), string(freeJSON))
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE slot_tables SET slots = ?, free = ?, version = version + 1
			WHERE entity_id = ? AND version = ?
		`, string(slotsJSON), string(freeJSON), table.EntityID, table.Version)
	}
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVersionConflict
	}
	table.Version++
	return nil
}

// Auth

func (s *SQLiteStore) CreateToken(ctx context.Context, token *Token) error {
	if token.ID == "" {
		token.ID = uuid.New().String()
	}

	// Format time in SQLite-compatible format for proper datetime comparison
	expiresAtStr := token.ExpiresAt.UTC().Format("2006-01-02 15:04:05")

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tokens (id, account_id, token, expires_at)
		VALUES (?, ?, ?, ?)
	`, token.ID, token.AccountID, token.Token, expiresAtStr)

	return err
}

func (s *SQLiteStore) GetToken(ctx context.Context, tokenStr string) (*Token, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, token, expires_at
		FROM tokens WHERE token = ? AND expires_at > datetime('now')
	`, tokenStr)

	var t Token
	err := row.Scan(&t.ID, &t.AccountID, &t.Token, &t.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &t, nil
}

func (s *SQLiteStore) DeleteExpiredTokens(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tokens WHERE expires_at < datetime('now')`)
	return err
}

// Helpers

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(ss []string) []any {
	args := make([]any, len(ss))
	for i, s := range ss {
		args[i] = s
	}
	return args
}

func mapConstraint(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func encodeFlags(flags map[string]bool) (string, error) {
	if len(flags) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(flags)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func scanAccount(row scanner) (*Account, error) {
	var account Account
	var admin int
	var msgTime sql.NullTime

	err := row.Scan(&account.ID, &account.DisplayName, &account.CreatedAt, &admin,
		&account.MinCommentScore, &msgTime)
	if err != nil {
		return nil, err
	}

	account.Admin = admin == 1
	if msgTime.Valid {
		account.MsgTime = &msgTime.Time
	}
	return &account, nil
}

func scanCommunity(row scanner) (*Community, error) {
	var community Community
	var title, authorID sql.NullString
	var spam int

	err := row.Scan(&community.ID, &community.Name, &title, &community.Type, &authorID, &spam, &community.CreatedAt)
	if err != nil {
		return nil, err
	}

	community.Title = title.String
	community.AuthorID = authorID.String
	community.Spam = spam == 1
	return &community, nil
}

func scanStory(row scanner) (*Story, error) {
	var story Story
	var communityID, authorID, url, text, lang sql.NullString
	var editedAt sql.NullTime
	var deleted, spam, hidden int

	err := row.Scan(&story.ID, &communityID, &authorID, &story.Title, &url, &text, &lang,
		&story.Score, &story.CommentCount, &story.CreatedAt, &editedAt, &deleted, &spam, &hidden)
	if err != nil {
		return nil, err
	}

	story.CommunityID = communityID.String
	story.AuthorID = authorID.String
	story.URL = url.String
	story.Text = text.String
	story.Lang = lang.String
	story.Deleted = deleted == 1
	story.Spam = spam == 1
	story.Hidden = hidden == 1
	if editedAt.Valid {
		story.EditedAt = &editedAt.Time
	}
	return &story, nil
}

func scanComment(row scanner) (*Comment, error) {
	var comment Comment
	var parentID, authorID sql.NullString
	var editedAt sql.NullTime
	var deleted, spam, hidden int

	err := row.Scan(&comment.ID, &comment.StoryID, &parentID, &authorID, &comment.Text, &comment.Score,
		&comment.CreatedAt, &editedAt, &deleted, &spam, &hidden)
	if err != nil {
		return nil, err
	}

	comment.ParentID = parentID.String
	comment.AuthorID = authorID.String
	comment.Deleted = deleted == 1
	comment.Spam = spam == 1
	comment.Hidden = hidden == 1
	if editedAt.Valid {
		comment.EditedAt = &editedAt.Time
	}
	return &comment, nil
}

func scanRelation(row scanner) (*Relation, error) {
	var rel Relation
	var flags sql.NullString

	err := row.Scan(&rel.ID, &rel.Kind, &rel.SubjectID, &rel.ObjectID, &rel.Name, &flags, &rel.CreatedAt)
	if err != nil {
		return nil, err
	}

	rel.Flags = map[string]bool{}
	if flags.Valid && flags.String != "" {
		if err := json.Unmarshal([]byte(flags.String), &rel.Flags); err != nil {
			return nil, fmt.Errorf("decode flags for relation %s: %w", rel.ID, err)
		}
	}
	return &rel, nil
}

// Ensure SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)
