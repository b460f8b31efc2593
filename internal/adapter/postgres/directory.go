package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scstanton20/tago-analysis-worker/internal/domain"
)

// Directory implements domain.AnalysisDirectory over the analyses table.
type Directory struct {
	pool *pgxpool.Pool
}

func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

func (d *Directory) GetAll(ctx context.Context) (map[string]domain.AnalysisInfo, error) {
	rows, err := d.pool.Query(ctx, `SELECT id, COALESCE(team_id, '') FROM analyses`)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.AnalysisInfo)
	for rows.Next() {
		var id, teamID string
		if err := rows.Scan(&id, &teamID); err != nil {
			return nil, fmt.Errorf("failed to scan analysis row: %w", err)
		}
		out[id] = domain.AnalysisInfo{TeamID: teamID}
	}
	return out, rows.Err()
}

func (d *Directory) GetByID(ctx context.Context, analysisID string) (domain.AnalysisInfo, bool, error) {
	var teamID string
	err := d.pool.QueryRow(ctx,
		`SELECT COALESCE(team_id, '') FROM analyses WHERE id = $1`, analysisID,
	).Scan(&teamID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AnalysisInfo{}, false, nil
	}
	if err != nil {
		return domain.AnalysisInfo{}, false, fmt.Errorf("failed to get analysis: %w", err)
	}
	return domain.AnalysisInfo{TeamID: teamID}, true, nil
}

// Permissions implements domain.PermissionHelper over team memberships.
type Permissions struct {
	pool *pgxpool.Pool
}

func NewPermissions(pool *pgxpool.Pool) *Permissions {
	return &Permissions{pool: pool}
}

func (p *Permissions) GetUserTeamIDs(ctx context.Context, userID string, perm domain.Permission) ([]string, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT team_id FROM team_members WHERE user_id = $1 AND $2 = ANY(permissions)`,
		userID, string(perm),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list user teams: %w", err)
	}
	defer rows.Close()

	var teamIDs []string
	for rows.Next() {
		var teamID string
		if err := rows.Scan(&teamID); err != nil {
			return nil, fmt.Errorf("failed to scan team row: %w", err)
		}
		teamIDs = append(teamIDs, teamID)
	}
	return teamIDs, rows.Err()
}

func (p *Permissions) GetUsersWithTeamAccess(ctx context.Context, teamID string, perm domain.Permission) ([]string, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT user_id FROM team_members WHERE team_id = $1 AND $2 = ANY(permissions)`,
		teamID, string(perm),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list team users: %w", err)
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		userIDs = append(userIDs, userID)
	}
	return userIDs, rows.Err()
}

// LogStats implements domain.LogStatsSource over the analysis_logs table.
type LogStats struct {
	pool *pgxpool.Pool
}

func NewLogStats(pool *pgxpool.Pool) *LogStats {
	return &LogStats{pool: pool}
}

func (l *LogStats) GetLogStats(ctx context.Context, analysisID string) (domain.LogStats, error) {
	var stats domain.LogStats
	err := l.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(LENGTH(message)), 0) FROM analysis_logs WHERE analysis_id = $1`,
		analysisID,
	).Scan(&stats.Lines, &stats.Bytes)
	if err != nil {
		return domain.LogStats{}, fmt.Errorf("failed to get log stats: %w", err)
	}
	return stats, nil
}

// Users implements domain.IdentityResolver over the users table.
type Users struct {
	pool *pgxpool.Pool
}

func NewUsers(pool *pgxpool.Pool) *Users {
	return &Users{pool: pool}
}

func (u *Users) Resolve(ctx context.Context, userID string) (domain.Identity, error) {
	var role string
	err := u.pool.QueryRow(ctx, `SELECT role FROM users WHERE id = $1`, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Identity{}, fmt.Errorf("user %s not found", userID)
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("failed to resolve user: %w", err)
	}
	return domain.Identity{UserID: userID, Role: role}, nil
}
