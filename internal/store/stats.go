package store

import (
	"context"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath        string      `json:"dbPath"`
	DBSizeBytes   int64       `json:"dbSizeBytes"`
	TotalNodes    int         `json:"totalNodes"`
	TotalLinks    int         `json:"totalLinks"`
	AverageWeight float64     `json:"averageWeight"`
	MinWeight     float64     `json:"minWeight"`
	TotalSessions int         `json:"totalSessions"`
	OpenSessions  int         `json:"openSessions"`
	Achievements  []CodeStats `json:"achievements"`
}

// CodeStats holds per-achievement counts.
type CodeStats struct {
	Code     string `json:"code"`
	Count    int    `json:"count"`
	Revealed int    `json:"revealed"`
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context, dbPath string) (*Stats, error) {
	st := &Stats{DBPath: dbPath, Achievements: []CodeStats{}}

	// DB file size
	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(weight), 0), COALESCE(MIN(weight), 0) FROM memory_nodes`).
		Scan(&st.TotalNodes, &st.AverageWeight, &st.MinWeight)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM node_links`).Scan(&st.TotalLinks)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&st.TotalSessions)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE completed = 0`).Scan(&st.OpenSessions)

	rows, err := s.db.QueryContext(ctx, `
		SELECT code, COUNT(*) AS cnt, SUM(revealed) AS revealed
		FROM achievements
		GROUP BY code ORDER BY cnt DESC, code`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var cs CodeStats
		rows.Scan(&cs.Code, &cs.Count, &cs.Revealed)
		st.Achievements = append(st.Achievements, cs)
	}

	return st, nil
}
