package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search over the
// documents table as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs a UNION ALL query over bloc documents (resolution payload) and
// comment documents, using plainto_tsquery with ts_headline snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" || q.Committee == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text, "committees/" + q.Committee + "/blocs"}

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultResolution {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'resolution'::text AS type, path,
				ts_headline('english', coalesce(data->>'resolution', ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				ts_rank(to_tsvector('english', coalesce(data->>'resolution', '')), %s) AS rank
			FROM documents
			WHERE parent = $2
				AND to_tsvector('english', coalesce(data->>'resolution', '')) @@ %s`,
			tsQuery, tsQuery, tsQuery))
	}

	if q.FilterType == "" || q.FilterType == ResultComment {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'comment'::text AS type, path,
				ts_headline('english', coalesce(data->>'text', ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				ts_rank(to_tsvector('english', coalesce(data->>'text', '')), %s) AS rank
			FROM documents
			WHERE parent LIKE $2 || '/%%/comments'
				AND to_tsvector('english', coalesce(data->>'text', '')) @@ %s`,
			tsQuery, tsQuery, tsQuery))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, path, snippet
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var typ, path, snippet string
		if err := rows.Scan(&typ, &path, &snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, pathToResult(ResultType(typ), q.Committee, path, snippet))
	}

	return results, total, rows.Err()
}

func pathToResult(rtyp ResultType, committee, path, snippet string) Result {
	parts := strings.Split(path, "/")
	r := Result{Type: rtyp, Committee: committee, Snippet: snippet}
	switch rtyp {
	case ResultResolution:
		// committees/{c}/blocs/{name}
		if len(parts) >= 4 {
			r.Bloc = parts[3]
		}
		r.ID = ResolutionID(committee, r.Bloc)
		r.Title = r.Bloc
	case ResultComment:
		// committees/{c}/blocs/{name}/comments/{cid}
		if len(parts) >= 6 {
			r.Bloc = parts[3]
			r.ID = parts[5]
		}
		r.Title = r.Bloc
	}
	return r
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ResolutionRecord, []CommentRecord, error) {
	blocRows, err := p.db.QueryContext(ctx, `
		SELECT path, data
		FROM documents
		WHERE parent LIKE 'committees/%/blocs'
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load blocs: %w", err)
	}
	defer blocRows.Close()

	resolutions := make([]ResolutionRecord, 0)
	for blocRows.Next() {
		var path string
		var raw []byte
		if err := blocRows.Scan(&path, &raw); err != nil {
			return nil, nil, fmt.Errorf("scan bloc: %w", err)
		}
		parts := strings.Split(path, "/")
		if len(parts) < 4 {
			continue
		}
		var doc struct {
			Resolution struct {
				Forum                string   `json:"forum"`
				QuestionOf           string   `json:"questionOf"`
				SubmittedBy          string   `json:"submittedBy"`
				CoSubmittedBy        string   `json:"coSubmittedBy"`
				PreambulatoryClauses []string `json:"preambulatoryClauses"`
				OperativeClauses     []string `json:"operativeClauses"`
			} `json:"resolution"`
		}
		if err := json.Unmarshal(raw, &doc); err != nil {
			continue
		}
		committee, bloc := parts[1], parts[3]
		resolutions = append(resolutions, ResolutionRecord{
			ID:        ResolutionID(committee, bloc),
			Committee: committee,
			Bloc:      bloc,
			Headers:   strings.TrimSpace(strings.Join([]string{doc.Resolution.Forum, doc.Resolution.QuestionOf, doc.Resolution.SubmittedBy, doc.Resolution.CoSubmittedBy}, " ")),
			Text:      strings.Join(append(doc.Resolution.PreambulatoryClauses, doc.Resolution.OperativeClauses...), "\n"),
		})
	}
	if err := blocRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate blocs: %w", err)
	}

	commentRows, err := p.db.QueryContext(ctx, `
		SELECT path, data
		FROM documents
		WHERE parent LIKE 'committees/%/blocs/%/comments'
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load comments: %w", err)
	}
	defer commentRows.Close()

	comments := make([]CommentRecord, 0)
	for commentRows.Next() {
		var path string
		var raw []byte
		if err := commentRows.Scan(&path, &raw); err != nil {
			return nil, nil, fmt.Errorf("scan comment: %w", err)
		}
		parts := strings.Split(path, "/")
		if len(parts) < 6 {
			continue
		}
		var doc struct {
			ID    string `json:"id"`
			Text  string `json:"text"`
			Chair string `json:"chair"`
		}
		if err := json.Unmarshal(raw, &doc); err != nil {
			continue
		}
		comments = append(comments, CommentRecord{
			ID:        doc.ID,
			Committee: parts[1],
			Bloc:      parts[3],
			Chair:     doc.Chair,
			Text:      doc.Text,
		})
	}
	if err := commentRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate comments: %w", err)
	}

	return resolutions, comments, nil
}
