package source

import (
    "context"
    "fmt"
    "strconv"
    "time"

    "github.com/d6n13l0l1v3r/redmine2bigquery/internal/config"
    "github.com/d6n13l0l1v3r/redmine2bigquery/internal/decode"
    "github.com/d6n13l0l1v3r/redmine2bigquery/internal/domain"
    "github.com/d6n13l0l1v3r/redmine2bigquery/internal/projects"
    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgxpool"
    "github.com/rs/zerolog"
)

type DB struct {
    Pool *pgxpool.Pool
    log  zerolog.Logger
}

func MustOpen(ctx context.Context, cfg config.Config, log zerolog.Logger) *DB {
    pool, err := pgxpool.New(ctx, cfg.SourceDSN)
    if err != nil { log.Fatal().Err(err).Msg("source connect failed") }
    ctx2, cancel := context.WithTimeout(ctx, 10*time.Second); defer cancel()
    if err := pool.Ping(ctx2); err != nil { log.Fatal().Err(err).Msg("source ping failed") }
    return &DB{Pool: pool, log: log}
}

func (d *DB) Close() { d.Pool.Close() }

// Repo reads the Redmine schema. Strictly read-only: the exporter never
// mutates source state.
type Repo struct {
    db  *DB
    log zerolog.Logger
}

func NewRepo(d *DB, log zerolog.Logger) *Repo { return &Repo{db: d, log: log} }

func (r *Repo) ProjectDirectory(ctx context.Context) ([]projects.Project, error) {
    rows, err := r.db.Pool.Query(ctx, `SELECT id, name, COALESCE(parent_id, 0) FROM projects`)
    if err != nil { return nil, fmt.Errorf("source: project directory: %w", err) }
    defer rows.Close()
    var out []projects.Project
    for rows.Next() {
        var p projects.Project
        if err := rows.Scan(&p.ID, &p.Name, &p.ParentID); err != nil { return nil, err }
        out = append(out, p)
    }
    return out, rows.Err()
}

func (r *Repo) labelTable(ctx context.Context, q string, args ...any) (map[int64]string, error) {
    rows, err := r.db.Pool.Query(ctx, q, args...)
    if err != nil { return nil, err }
    defer rows.Close()
    out := map[int64]string{}
    for rows.Next() {
        var id int64
        var name string
        if err := rows.Scan(&id, &name); err != nil { return nil, err }
        out[id] = name
    }
    return out, rows.Err()
}

// Lookups loads every label table once per run.
func (r *Repo) Lookups(ctx context.Context) (decode.Lookups, error) {
    var l decode.Lookups
    var err error
    if l.Statuses, err = r.labelTable(ctx, `SELECT id, name FROM issue_statuses`); err != nil {
        return l, fmt.Errorf("source: statuses: %w", err)
    }
    if l.Trackers, err = r.labelTable(ctx, `SELECT id, name FROM trackers`); err != nil {
        return l, fmt.Errorf("source: trackers: %w", err)
    }
    if l.Priorities, err = r.labelTable(ctx, `SELECT id, name FROM enumerations WHERE type = 'IssuePriority'`); err != nil {
        return l, fmt.Errorf("source: priorities: %w", err)
    }
    if l.Categories, err = r.labelTable(ctx, `SELECT id, name FROM issue_categories`); err != nil {
        return l, fmt.Errorf("source: categories: %w", err)
    }
    if l.Projects, err = r.labelTable(ctx, `SELECT id, name FROM projects`); err != nil {
        return l, fmt.Errorf("source: projects: %w", err)
    }
    if l.Users, err = r.labelTable(ctx, `SELECT id, login FROM users`); err != nil {
        return l, fmt.Errorf("source: users: %w", err)
    }
    return l, nil
}

// ResolutionFieldID resolves the resolution custom field by name. An absent
// field is a data anomaly, not an error: it returns "".
func (r *Repo) ResolutionFieldID(ctx context.Context, name string) (string, error) {
    var id int64
    err := r.db.Pool.QueryRow(ctx, `SELECT id FROM custom_fields WHERE name = $1 LIMIT 1`, name).Scan(&id)
    if err != nil {
        r.log.Warn().Str("name", name).Msg("resolution custom field not found")
        return "", nil
    }
    return strconv.FormatInt(id, 10), nil
}

// FetchIssues returns issues past the cursor, created before the run start,
// within the project set, ascending by id.
func (r *Repo) FetchIssues(ctx context.Context, cursor int64, before time.Time, ps projects.Set, limit int) ([]domain.Issue, error) {
    q := `SELECT id, tracker_id, project_id, priority_id,
            COALESCE(category_id, 0), status_id, COALESCE(assigned_to_id, 0),
            author_id, created_on, due_date
        FROM issues
        WHERE id > $1 AND created_on < $2`
    args := []any{cursor, before}
    if !ps.Unfiltered() {
        q += ` AND project_id = ANY($3) ORDER BY id ASC LIMIT $4`
        args = append(args, ps.IDs(), limit)
    } else {
        q += ` ORDER BY id ASC LIMIT $3`
        args = append(args, limit)
    }
    rows, err := r.db.Pool.Query(ctx, q, args...)
    if err != nil { return nil, fmt.Errorf("source: fetch issues: %w", err) }
    defer rows.Close()
    var out []domain.Issue
    for rows.Next() {
        var i domain.Issue
        var due *time.Time
        if err := rows.Scan(&i.ID, &i.TrackerID, &i.ProjectID, &i.PriorityID,
            &i.CategoryID, &i.StatusID, &i.AssignedToID, &i.AuthorID, &i.CreatedOn, &due); err != nil {
            return nil, err
        }
        i.CreatedOn = i.CreatedOn.UTC()
        i.DueDate = due
        out = append(out, i)
    }
    return out, rows.Err()
}

const rawChangeSelect = `SELECT d.id, j.journalized_id, j.user_id, j.created_on,
        d.property, d.prop_key, COALESCE(d.old_value, ''), COALESCE(d.value, ''),
        (j.notes IS NOT NULL AND j.notes <> '')
    FROM journal_details d
    JOIN journals j ON j.id = d.journal_id AND j.journalized_type = 'Issue'`

func scanRawChanges(rows pgx.Rows) ([]domain.RawChange, error) {
    var out []domain.RawChange
    for rows.Next() {
        var c domain.RawChange
        if err := rows.Scan(&c.ID, &c.IssueID, &c.ActorID, &c.OccurredOn,
            &c.Property, &c.PropKey, &c.OldValue, &c.NewValue, &c.HasNotes); err != nil {
            return nil, err
        }
        c.OccurredOn = c.OccurredOn.UTC()
        out = append(out, c)
    }
    return out, rows.Err()
}

// FetchRawChanges returns journal details past the cursor, ascending by
// detail id, bounded by limit.
func (r *Repo) FetchRawChanges(ctx context.Context, cursor int64, before time.Time, ps projects.Set, limit int) ([]domain.RawChange, error) {
    q := rawChangeSelect + `
    JOIN issues i ON i.id = j.journalized_id
    WHERE d.id > $1 AND j.created_on < $2`
    args := []any{cursor, before}
    if !ps.Unfiltered() {
        q += ` AND i.project_id = ANY($3) ORDER BY d.id ASC LIMIT $4`
        args = append(args, ps.IDs(), limit)
    } else {
        q += ` ORDER BY d.id ASC LIMIT $3`
        args = append(args, limit)
    }
    rows, err := r.db.Pool.Query(ctx, q, args...)
    if err != nil { return nil, fmt.Errorf("source: fetch changes: %w", err) }
    defer rows.Close()
    return scanRawChanges(rows)
}

// ChangesForIssues loads the full ordered change history for a batch of
// issues, the reconstruction input for original values.
func (r *Repo) ChangesForIssues(ctx context.Context, issueIDs []int64) ([]domain.RawChange, error) {
    if len(issueIDs) == 0 { return nil, nil }
    q := rawChangeSelect + `
    WHERE j.journalized_id = ANY($1)
    ORDER BY d.id ASC`
    rows, err := r.db.Pool.Query(ctx, q, issueIDs)
    if err != nil { return nil, fmt.Errorf("source: issue histories: %w", err) }
    defer rows.Close()
    return scanRawChanges(rows)
}
