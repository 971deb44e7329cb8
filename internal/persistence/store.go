// Package persistence is the reference Persistence collaborator (spec §1
// Non-goals: "persistence storage (consumes state-change events)"). It is
// deliberately outside the turn orchestration core: Store holds the
// durable-storage schema and queries, and Sink (sink.go) is the thin bus
// subscriber that drives it from emitted events. The core never imports
// this package and never blocks on it.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"aventura/internal/domain"
	"aventura/internal/domain/model"
	"aventura/internal/domain/repositories"
	"aventura/internal/repository/postgres"
)

// Store implements the persisted-state layout of spec §6: an append-only
// entry log, an entries table, and a chapters table keyed by
// (storyId, number). Entry ids are process-unique opaque tokens; stored
// timestamps are integer milliseconds, exactly as spec §6 mandates.
//
// Every query goes through postgres.GetExecutor so a call made inside
// txManager.ExecTx participates in that transaction instead of grabbing a
// fresh connection from pool.
type Store struct {
	pool      *pgxpool.Pool
	tables    *postgres.TableNames
	txManager repositories.TransactionManager
	logger    *slog.Logger
}

// NewStore constructs a Store from the same RepositoryConfig bundle every
// other repository in this stack takes (pool, table names, logger).
func NewStore(cfg *postgres.RepositoryConfig) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		pool:      cfg.Pool,
		tables:    cfg.Tables,
		txManager: postgres.NewTransactionManager(cfg.Pool),
		logger:    logger,
	}
}

// EnsureStory inserts storyID's row if it does not already exist.
func (s *Store) EnsureStory(ctx context.Context, storyID string) error {
	query := fmt.Sprintf(`INSERT INTO %s (id, created_at) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`, s.tables.Stories)
	_, err := postgres.GetExecutor(ctx, s.pool).Exec(ctx, query, storyID, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("ensure story: %w", err)
	}
	return nil
}

// AppendStoryEntry inserts one row into the append-only entry log. Since
// the log is append-only (spec §3), this never updates an existing row; a
// conflicting id is a bug upstream and is surfaced as domain.ErrConflict.
func (s *Store) AppendStoryEntry(ctx context.Context, storyID string, se model.StoryEntry) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, story_id, role, sequence, content, timestamp_ms, chapter_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.tables.StoryEntries)

	_, err := postgres.GetExecutor(ctx, s.pool).Exec(ctx, query,
		se.ID, storyID, string(se.Role), se.Sequence, se.Content, se.Timestamp.UnixMilli(), se.ChapterID)
	if err != nil {
		if postgres.IsPgDuplicateError(err) {
			return fmt.Errorf("story entry %s: %w", se.ID, domain.ErrConflict)
		}
		if postgres.IsPgForeignKeyError(err) {
			return fmt.Errorf("story entry %s references unknown story/chapter: %w", se.ID, domain.ErrInvalidReference)
		}
		return fmt.Errorf("append story entry: %w", err)
	}
	return nil
}

// UpsertEntries writes entries into storyID's entries table, inserting
// new rows and updating existing ones by id; rows whose id is not in
// entries are left as they are. Mirrors the Entry Engine's
// idempotent-apply semantics (spec §4.7): re-applying the same snapshot is
// a no-op. The whole snapshot commits as one transaction so a mid-loop
// failure never leaves the table holding half of Phase 4's entry updates.
func (s *Store) UpsertEntries(ctx context.Context, storyID string, entries []model.Entry) error {
	return s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		return s.upsertEntries(txCtx, storyID, entries)
	})
}

func (s *Store) upsertEntries(ctx context.Context, storyID string, entries []model.Entry) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, story_id, name, type, description, aliases, character, location, item, injection, provenance)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			description = EXCLUDED.description,
			aliases = EXCLUDED.aliases,
			character = EXCLUDED.character,
			location = EXCLUDED.location,
			item = EXCLUDED.item,
			injection = EXCLUDED.injection,
			provenance = EXCLUDED.provenance
	`, s.tables.Entries)

	for _, e := range entries {
		aliases, err := json.Marshal(e.Aliases)
		if err != nil {
			return fmt.Errorf("marshal aliases for entry %s: %w", e.ID, err)
		}
		character, err := json.Marshal(e.Character)
		if err != nil {
			return fmt.Errorf("marshal character state for entry %s: %w", e.ID, err)
		}
		location, err := json.Marshal(e.Location)
		if err != nil {
			return fmt.Errorf("marshal location state for entry %s: %w", e.ID, err)
		}
		item, err := json.Marshal(e.Item)
		if err != nil {
			return fmt.Errorf("marshal item state for entry %s: %w", e.ID, err)
		}
		injection, err := json.Marshal(e.Injection)
		if err != nil {
			return fmt.Errorf("marshal injection policy for entry %s: %w", e.ID, err)
		}
		provenance, err := json.Marshal(e.Provenance)
		if err != nil {
			return fmt.Errorf("marshal provenance for entry %s: %w", e.ID, err)
		}

		if _, err := postgres.GetExecutor(ctx, s.pool).Exec(ctx, query,
			e.ID, storyID, e.Name, string(e.Type), e.Description,
			aliases, character, location, item, injection, provenance,
		); err != nil {
			return fmt.Errorf("upsert entry %s: %w", e.ID, err)
		}
	}
	return nil
}

// UpsertChapter writes one row keyed by (story_id, number), the exact
// keying spec §6 names.
func (s *Store) UpsertChapter(ctx context.Context, storyID string, c model.Chapter) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, story_id, number, start_entry_id, end_entry_id, start_seq, end_seq, entry_count, title, summary, retrieval, arc_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (story_id, number) DO UPDATE SET
			end_entry_id = EXCLUDED.end_entry_id,
			end_seq = EXCLUDED.end_seq,
			entry_count = EXCLUDED.entry_count,
			title = EXCLUDED.title,
			summary = EXCLUDED.summary,
			retrieval = EXCLUDED.retrieval,
			arc_id = EXCLUDED.arc_id
	`, s.tables.Chapters)

	retrieval, err := json.Marshal(c.Retrieval)
	if err != nil {
		return fmt.Errorf("marshal retrieval metadata for chapter %d: %w", c.Number, err)
	}

	if _, err := postgres.GetExecutor(ctx, s.pool).Exec(ctx, query,
		c.ID, storyID, c.Number, c.StartEntryID, c.EndEntryID, c.StartSeq, c.EndSeq, c.EntryCount, c.Title, c.Summary, retrieval, c.ArcID,
	); err != nil {
		if postgres.IsPgForeignKeyError(err) {
			return fmt.Errorf("chapter %d references unknown story: %w", c.Number, domain.ErrInvalidReference)
		}
		return fmt.Errorf("upsert chapter %d: %w", c.Number, err)
	}
	return nil
}

// LoadStory reads back everything needed to hydrate a Coordinator via
// SeedWorld: the world-model entries, the chapter list in number order,
// and the story entry log in sequence order.
func (s *Store) LoadStory(ctx context.Context, storyID string) ([]model.Entry, []model.Chapter, []model.StoryEntry, error) {
	entries, err := s.loadEntries(ctx, storyID)
	if err != nil {
		return nil, nil, nil, err
	}
	chapters, err := s.loadChapters(ctx, storyID)
	if err != nil {
		return nil, nil, nil, err
	}
	storyLog, err := s.loadStoryEntries(ctx, storyID)
	if err != nil {
		return nil, nil, nil, err
	}
	s.logger.Debug("loaded story", "story_id", storyID, "entries", len(entries), "chapters", len(chapters), "log_entries", len(storyLog))
	return entries, chapters, storyLog, nil
}

func (s *Store) loadEntries(ctx context.Context, storyID string) ([]model.Entry, error) {
	query := fmt.Sprintf(`
		SELECT id, name, type, description, aliases, character, location, item, injection, provenance
		FROM %s WHERE story_id = $1
	`, s.tables.Entries)

	rows, err := postgres.GetExecutor(ctx, s.pool).Query(ctx, query, storyID)
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}
	defer rows.Close()

	var out []model.Entry
	for rows.Next() {
		var e model.Entry
		var entryType string
		var aliases, character, location, item, injection, provenance []byte
		if err := rows.Scan(&e.ID, &e.Name, &entryType, &e.Description, &aliases, &character, &location, &item, &injection, &provenance); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Type = model.EntryType(entryType)
		if err := unmarshalIfPresent(aliases, &e.Aliases); err != nil {
			return nil, err
		}
		if err := unmarshalIfPresent(character, &e.Character); err != nil {
			return nil, err
		}
		if err := unmarshalIfPresent(location, &e.Location); err != nil {
			return nil, err
		}
		if err := unmarshalIfPresent(item, &e.Item); err != nil {
			return nil, err
		}
		if err := unmarshalIfPresent(injection, &e.Injection); err != nil {
			return nil, err
		}
		if err := unmarshalIfPresent(provenance, &e.Provenance); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) loadChapters(ctx context.Context, storyID string) ([]model.Chapter, error) {
	query := fmt.Sprintf(`
		SELECT id, number, start_entry_id, end_entry_id, start_seq, end_seq, entry_count, title, summary, retrieval, arc_id
		FROM %s WHERE story_id = $1 ORDER BY number ASC
	`, s.tables.Chapters)

	rows, err := postgres.GetExecutor(ctx, s.pool).Query(ctx, query, storyID)
	if err != nil {
		return nil, fmt.Errorf("load chapters: %w", err)
	}
	defer rows.Close()

	var out []model.Chapter
	for rows.Next() {
		var c model.Chapter
		var retrieval []byte
		if err := rows.Scan(&c.ID, &c.Number, &c.StartEntryID, &c.EndEntryID, &c.StartSeq, &c.EndSeq, &c.EntryCount, &c.Title, &c.Summary, &retrieval, &c.ArcID); err != nil {
			return nil, fmt.Errorf("scan chapter: %w", err)
		}
		if err := unmarshalIfPresent(retrieval, &c.Retrieval); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) loadStoryEntries(ctx context.Context, storyID string) ([]model.StoryEntry, error) {
	query := fmt.Sprintf(`
		SELECT id, role, sequence, content, timestamp_ms, chapter_id
		FROM %s WHERE story_id = $1 ORDER BY sequence ASC
	`, s.tables.StoryEntries)

	rows, err := postgres.GetExecutor(ctx, s.pool).Query(ctx, query, storyID)
	if err != nil {
		return nil, fmt.Errorf("load story entries: %w", err)
	}
	defer rows.Close()

	var out []model.StoryEntry
	for rows.Next() {
		var se model.StoryEntry
		var role string
		var timestampMs int64
		if err := rows.Scan(&se.ID, &role, &se.Sequence, &se.Content, &timestampMs, &se.ChapterID); err != nil {
			return nil, fmt.Errorf("scan story entry: %w", err)
		}
		se.Role = model.EntryRole(role)
		se.Timestamp = time.UnixMilli(timestampMs)
		out = append(out, se)
	}
	return out, rows.Err()
}

func unmarshalIfPresent(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("unmarshal stored json: %w", err)
	}
	return nil
}
