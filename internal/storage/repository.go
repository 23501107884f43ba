// Package storage keeps the stand-in daemon's stories, tag membership and
// configuration sections in sqlite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// Story is one item as the daemon stores it. Attrs holds every attribute the
// front-end may ask for, keyed by name.
type Story struct {
	ID    string
	Tags  []string
	Attrs map[string]any
}

type Repository struct {
	db *sql.DB
}

func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// ":memory:" databases exist per connection.
	db.SetMaxOpenConns(1)
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Repository) Init(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS stories (
  id TEXT PRIMARY KEY,
  attrs TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS story_tags (
  tag TEXT NOT NULL,
  story_id TEXT NOT NULL,
  position INTEGER NOT NULL,
  PRIMARY KEY (tag, story_id)
);
CREATE INDEX IF NOT EXISTS idx_story_tags_story ON story_tags(story_id);
CREATE TABLE IF NOT EXISTS configs (
  section TEXT PRIMARY KEY,
  body TEXT NOT NULL
);
`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// SaveStories inserts or replaces stories. A story's tags are appended to
// the end of each tag it is not already in.
func (r *Repository) SaveStories(ctx context.Context, stories []Story) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, st := range stories {
		body, err := json.Marshal(st.Attrs)
		if err != nil {
			return fmt.Errorf("encode story %s: %w", st.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO stories (id, attrs) VALUES (?, ?)
ON CONFLICT(id) DO UPDATE SET attrs=excluded.attrs
`, st.ID, string(body)); err != nil {
			return fmt.Errorf("save story %s: %w", st.ID, err)
		}
		for _, tag := range st.Tags {
			if _, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO story_tags (tag, story_id, position)
VALUES (?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM story_tags WHERE tag = ?))
`, tag, st.ID, tag); err != nil {
				return fmt.Errorf("tag story %s with %s: %w", st.ID, tag, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Tags lists every tag that holds at least one story, by name.
func (r *Repository) Tags(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT tag FROM story_tags ORDER BY tag`)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// TagItems returns a tag's story ids in delivery order.
func (r *Repository) TagItems(ctx context.Context, tag string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT story_id FROM story_tags WHERE tag = ? ORDER BY position, story_id
`, tag)
	if err != nil {
		return nil, fmt.Errorf("query items of %s: %w", tag, err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// StoryTags lists the tags a story belongs to.
func (r *Repository) StoryTags(ctx context.Context, id string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT tag FROM story_tags WHERE story_id = ? ORDER BY tag`, id)
	if err != nil {
		return nil, fmt.Errorf("query tags of %s: %w", id, err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// Attributes returns the requested keys of each known story. Every
// requested key is present in the result; ones the story lacks are nil.
// Unknown ids are left out.
func (r *Repository) Attributes(ctx context.Context, want map[string][]string) (map[string]map[string]any, error) {
	out := make(map[string]map[string]any, len(want))
	for id, keys := range want {
		attrs, ok, err := r.story(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		picked := make(map[string]any, len(keys))
		for _, k := range keys {
			picked[k] = attrs[k]
		}
		out[id] = picked
	}
	return out, nil
}

func (r *Repository) story(ctx context.Context, id string) (map[string]any, bool, error) {
	var body string
	err := r.db.QueryRowContext(ctx, `SELECT attrs FROM stories WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load story %s: %w", id, err)
	}
	attrs := map[string]any{}
	if err := json.Unmarshal([]byte(body), &attrs); err != nil {
		return nil, false, fmt.Errorf("decode story %s: %w", id, err)
	}
	return attrs, true, nil
}

// SetAttributes merges changes into the stored attributes and returns the
// ids that existed.
func (r *Repository) SetAttributes(ctx context.Context, changes map[string]map[string]any) ([]string, error) {
	var updated []string
	for id, attrs := range changes {
		cur, ok, err := r.story(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		for k, v := range attrs {
			cur[k] = v
		}
		body, err := json.Marshal(cur)
		if err != nil {
			return nil, fmt.Errorf("encode story %s: %w", id, err)
		}
		if _, err := r.db.ExecContext(ctx, `UPDATE stories SET attrs = ? WHERE id = ?`, string(body), id); err != nil {
			return nil, fmt.Errorf("update story %s: %w", id, err)
		}
		updated = append(updated, id)
	}
	return updated, nil
}

// Configs returns the named sections, or all of them when names is empty.
func (r *Repository) Configs(ctx context.Context, names []string) (map[string]any, error) {
	query := `SELECT section, body FROM configs`
	args := make([]any, 0, len(names))
	if len(names) > 0 {
		query += ` WHERE section IN (?` + strings.Repeat(",?", len(names)-1) + `)`
		for _, n := range names {
			args = append(args, n)
		}
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query configs: %w", err)
	}
	defer rows.Close()

	out := map[string]any{}
	for rows.Next() {
		var section, body string
		if err := rows.Scan(&section, &body); err != nil {
			return nil, fmt.Errorf("scan config: %w", err)
		}
		var v any
		if err := json.Unmarshal([]byte(body), &v); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", section, err)
		}
		out[section] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// SetConfigs merges each section into the stored one, recursively for
// nested maps.
func (r *Repository) SetConfigs(ctx context.Context, sections map[string]any) error {
	return r.editConfigs(ctx, sections, func(cur, change any) any { return merge(cur, change) })
}

// DelConfigs removes the keys named in each section. A nil or empty value
// under a key removes that key; a nested map recurses.
func (r *Repository) DelConfigs(ctx context.Context, sections map[string]any) error {
	return r.editConfigs(ctx, sections, func(cur, del any) any { return prune(cur, del) })
}

func (r *Repository) editConfigs(ctx context.Context, sections map[string]any, edit func(cur, change any) any) error {
	names := make([]string, 0, len(sections))
	for name := range sections {
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil
	}
	cur, err := r.Configs(ctx, names)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, name := range names {
		next := edit(cur[name], sections[name])
		body, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode config %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO configs (section, body) VALUES (?, ?)
ON CONFLICT(section) DO UPDATE SET body=excluded.body
`, name, string(body)); err != nil {
			return fmt.Errorf("save config %s: %w", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func merge(cur, change any) any {
	cm, ok1 := cur.(map[string]any)
	chm, ok2 := change.(map[string]any)
	if !ok1 || !ok2 {
		return change
	}
	out := make(map[string]any, len(cm)+len(chm))
	for k, v := range cm {
		out[k] = v
	}
	for k, v := range chm {
		out[k] = merge(cm[k], v)
	}
	return out
}

func prune(cur, del any) any {
	cm, ok := cur.(map[string]any)
	if !ok {
		return cur
	}
	switch d := del.(type) {
	case map[string]any:
		out := make(map[string]any, len(cm))
		for k, v := range cm {
			out[k] = v
		}
		for k, sub := range d {
			if inner, ok := sub.(map[string]any); ok && len(inner) > 0 {
				out[k] = prune(out[k], inner)
				continue
			}
			delete(out, k)
		}
		return out
	case []any:
		out := make(map[string]any, len(cm))
		for k, v := range cm {
			out[k] = v
		}
		for _, k := range d {
			if s, ok := k.(string); ok {
				delete(out, s)
			}
		}
		return out
	}
	return cur
}
