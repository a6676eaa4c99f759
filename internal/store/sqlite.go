// Package store caches fetched site-year series in SQLite so repeat runs
// and recovery runs skip the upstream API for site-years already fetched.
//
// The cache holds weather values only. Site identity, coordinates and
// carried roster columns always come from the roster row requesting the
// series; a cached entry whose stored coordinates disagree with the
// roster's is treated as stale and refetched.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/croftlab/site-weather-etl/internal/domain"
)

// Open opens (creating if needed) the cache database at path and applies
// the pragmas the cache relies on.
func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	return db, nil
}

// Store is the series cache over an open SQLite database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a Store. Call Migrate before first use.
func New(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// GetSeries looks up a cached series for one site-year. A hit requires the
// stored coordinates to match the roster row exactly and the stored
// variable set to cover every requested variable; anything else is a miss.
// The returned observations carry the roster row's identity, including its
// carried columns.
func (s *Store) GetSeries(ctx context.Context, sy domain.SiteYear, vars []domain.Variable) ([]domain.DailyObservation, bool, error) {
	var lat, lon float64
	var stored string
	err := s.db.QueryRowContext(ctx,
		`SELECT lat, lon, variables FROM site_year_fetches WHERE site = ? AND year = ?`,
		sy.Site, sy.Year,
	).Scan(&lat, &lon, &stored)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache lookup %s: %w", sy.Key(), err)
	}

	if lat != sy.Lat || lon != sy.Lon {
		s.logger.Debug("cache entry has stale coordinates, refetching",
			"site", sy.Site, "year", sy.Year)
		return nil, false, nil
	}
	if !coversVariables(stored, vars) {
		return nil, false, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT yday, variable, value FROM daily_observations WHERE site = ? AND year = ? ORDER BY yday`,
		sy.Site, sy.Year,
	)
	if err != nil {
		return nil, false, fmt.Errorf("cache read %s: %w", sy.Key(), err)
	}
	defer rows.Close()

	wanted := make(map[domain.Variable]bool, len(vars))
	for _, v := range vars {
		wanted[v] = true
	}

	byDay := make(map[int]map[domain.Variable]float64)
	for rows.Next() {
		var yday int
		var name string
		var value float64
		if err := rows.Scan(&yday, &name, &value); err != nil {
			return nil, false, fmt.Errorf("cache read %s: %w", sy.Key(), err)
		}
		v := domain.Variable(name)
		if !wanted[v] {
			continue
		}
		if byDay[yday] == nil {
			byDay[yday] = make(map[domain.Variable]float64, len(vars))
		}
		byDay[yday][v] = value
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("cache read %s: %w", sy.Key(), err)
	}

	obs := make([]domain.DailyObservation, 0, len(byDay))
	for yday, values := range byDay {
		date, err := domain.DateForYday(sy.Year, yday)
		if err != nil {
			s.logger.Warn("cache entry is corrupt, refetching",
				"site", sy.Site, "year", sy.Year, "error", err)
			return nil, false, nil
		}
		obs = append(obs, domain.DailyObservation{
			SiteYear: sy,
			Yday:     yday,
			Date:     date,
			Values:   values,
		})
	}
	domain.SortObservations(obs)

	// A cached series that no longer passes the fetch contract is not
	// served; the fetch stage will overwrite it.
	if err := domain.ValidateSeries(sy, obs, vars); err != nil {
		s.logger.Warn("cache entry is incomplete, refetching",
			"site", sy.Site, "year", sy.Year, "error", err)
		return nil, false, nil
	}
	return obs, true, nil
}

// PutSeries stores a fetched series, replacing any previous entry for the
// site-year. Only the requested variables are persisted.
func (s *Store) PutSeries(ctx context.Context, sy domain.SiteYear, vars []domain.Variable, obs []domain.DailyObservation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cache write %s: %w", sy.Key(), err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO site_year_fetches (site, year, lat, lon, variables, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(site, year) DO UPDATE SET
			lat = excluded.lat,
			lon = excluded.lon,
			variables = excluded.variables,
			fetched_at = excluded.fetched_at
	`, sy.Site, sy.Year, sy.Lat, sy.Lon, joinVariables(vars), domain.Now().UTC()); err != nil {
		return fmt.Errorf("cache write %s: %w", sy.Key(), err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM daily_observations WHERE site = ? AND year = ?`,
		sy.Site, sy.Year,
	); err != nil {
		return fmt.Errorf("cache write %s: %w", sy.Key(), err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO daily_observations (site, year, yday, variable, value) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("cache write %s: %w", sy.Key(), err)
	}
	defer stmt.Close()

	for _, o := range obs {
		for _, v := range vars {
			value, ok := o.Values[v]
			if !ok {
				continue
			}
			if _, err := stmt.ExecContext(ctx, sy.Site, sy.Year, o.Yday, string(v), value); err != nil {
				return fmt.Errorf("cache write %s yday %d: %w", sy.Key(), o.Yday, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cache write %s: %w", sy.Key(), err)
	}
	return nil
}

// joinVariables renders a canonical comma-joined variable list.
func joinVariables(vars []domain.Variable) string {
	names := make([]string, len(vars))
	for i, v := range vars {
		names[i] = string(v)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// coversVariables reports whether the stored list includes every
// requested variable.
func coversVariables(stored string, vars []domain.Variable) bool {
	have := make(map[string]bool)
	for _, name := range strings.Split(stored, ",") {
		have[name] = true
	}
	for _, v := range vars {
		if !have[string(v)] {
			return false
		}
	}
	return true
}
