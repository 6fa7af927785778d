// Package store: shared database/sql implementation.
//
// Queries are written with ? placeholders and rebound to $n for Postgres.
// Both backends run the same statements; only the migration DDL differs.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"rexbot/internal/models"
)

type sqlStore struct {
	db *sql.DB
	pg bool
}

// q rebinds ? placeholders to $1..$n when talking to Postgres.
func (s *sqlStore) q(query string) string {
	if !s.pg {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const userColumns = `id, username, full_name, role, subscription_expires_at,
	activation_count, credits, has_accepted_policy, diet_tracking, trainer_tracking, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var expires sql.NullTime
	err := row.Scan(&u.ID, &u.Username, &u.FullName, &u.Role, &expires,
		&u.ActivationCount, &u.Credits, &u.HasAcceptedPolicy,
		&u.DietTracking, &u.TrainerTracking, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	if expires.Valid {
		t := expires.Time
		u.SubscriptionExpiresAt = &t
	}
	return &u, nil
}

func (s *sqlStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user %d: %w", id, err)
	}
	return u, nil
}

func (s *sqlStore) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO users
		(id, username, full_name, role, subscription_expires_at, activation_count,
		 credits, has_accepted_policy, diet_tracking, trainer_tracking, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		u.ID, u.Username, u.FullName, u.Role, nullableTime(u.SubscriptionExpiresAt),
		u.ActivationCount, u.Credits, u.HasAcceptedPolicy,
		u.DietTracking, u.TrainerTracking, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert user %d: %w", u.ID, err)
	}
	slog.Debug("store CreateUser succeeded", "userID", u.ID)
	return nil
}

func (s *sqlStore) UpdateUser(ctx context.Context, u *models.User) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE users SET username = ?, full_name = ?,
		role = ?, subscription_expires_at = ?, activation_count = ?, credits = ?,
		has_accepted_policy = ?, diet_tracking = ?, trainer_tracking = ? WHERE id = ?`),
		u.Username, u.FullName, u.Role, nullableTime(u.SubscriptionExpiresAt),
		u.ActivationCount, u.Credits, u.HasAcceptedPolicy,
		u.DietTracking, u.TrainerTracking, u.ID)
	if err != nil {
		return fmt.Errorf("failed to update user %d: %w", u.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

func (s *sqlStore) SetConsent(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE users SET has_accepted_policy = TRUE WHERE id = ?`), userID)
	if err != nil {
		return fmt.Errorf("failed to set consent for user %d: %w", userID, err)
	}
	return nil
}

func (s *sqlStore) SetTracking(ctx context.Context, userID int64, mode models.Mode, enabled bool) error {
	var col string
	switch mode {
	case models.ModeDiet:
		col = "diet_tracking"
	case models.ModeTrainer:
		col = "trainer_tracking"
	default:
		return fmt.Errorf("mode %s does not support tracking", mode)
	}
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE users SET `+col+` = ? WHERE id = ?`), enabled, userID)
	if err != nil {
		return fmt.Errorf("failed to set %s for user %d: %w", col, userID, err)
	}
	return nil
}

func (s *sqlStore) ListTrackingUsers(ctx context.Context, mode models.Mode, now time.Time) ([]models.User, error) {
	var col string
	switch mode {
	case models.ModeDiet:
		col = "diet_tracking"
	case models.ModeTrainer:
		col = "trainer_tracking"
	default:
		return nil, fmt.Errorf("mode %s does not support tracking", mode)
	}
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+userColumns+` FROM users
		WHERE subscription_expires_at > ? AND `+col+` = TRUE`), now)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracking users: %w", err)
	}
	return collectUsers(rows)
}

func (s *sqlStore) ListUsersWithAnyTracking(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+userColumns+` FROM users
		WHERE diet_tracking = TRUE OR trainer_tracking = TRUE`))
	if err != nil {
		return nil, fmt.Errorf("failed to query users with tracking: %w", err)
	}
	return collectUsers(rows)
}

func collectUsers(rows *sql.Rows) ([]models.User, error) {
	defer rows.Close()
	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user rows: %w", err)
	}
	return users, nil
}

func (s *sqlStore) GetActivationCode(ctx context.Context, codeHash string) (*models.ActivationCode, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT code_hash, batch_id, is_active,
		activated_at, activated_by, created_at FROM activation_codes WHERE code_hash = ?`), codeHash)
	var c models.ActivationCode
	var activatedAt sql.NullTime
	var activatedBy sql.NullInt64
	err := row.Scan(&c.CodeHash, &c.BatchID, &c.IsActive, &activatedAt, &activatedBy, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query activation code: %w", err)
	}
	if activatedAt.Valid {
		t := activatedAt.Time
		c.ActivatedAt = &t
	}
	c.ActivatedBy = activatedBy.Int64
	return &c, nil
}

func (s *sqlStore) CreateActivationCodes(ctx context.Context, codes []models.ActivationCode) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	for _, c := range codes {
		_, err := tx.ExecContext(ctx, s.q(`INSERT INTO activation_codes
			(code_hash, batch_id, is_active, created_at) VALUES (?, ?, ?, ?)`),
			c.CodeHash, c.BatchID, c.IsActive, c.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert activation code: %w", err)
		}
	}
	return tx.Commit()
}

func (s *sqlStore) ApplyActivation(ctx context.Context, code *models.ActivationCode, user *models.User) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	_, err = tx.ExecContext(ctx, s.q(`UPDATE activation_codes
		SET activated_at = ?, activated_by = ? WHERE code_hash = ?`),
		nullableTime(code.ActivatedAt), code.ActivatedBy, code.CodeHash)
	if err != nil {
		return fmt.Errorf("failed to update activation code: %w", err)
	}
	_, err = tx.ExecContext(ctx, s.q(`UPDATE users SET subscription_expires_at = ?,
		activation_count = ?, credits = ? WHERE id = ?`),
		nullableTime(user.SubscriptionExpiresAt), user.ActivationCount, user.Credits, user.ID)
	if err != nil {
		return fmt.Errorf("failed to update user ledger: %w", err)
	}
	return tx.Commit()
}

func (s *sqlStore) CreateSubmission(ctx context.Context, sub *models.Submission) error {
	answers, err := json.Marshal(sub.Answers)
	if err != nil {
		return fmt.Errorf("failed to marshal answers: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.q(`INSERT INTO submissions
		(id, user_id, mode, answers, created_at) VALUES (?, ?, ?, ?, ?)`),
		sub.ID, sub.UserID, sub.Mode, string(answers), sub.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert submission %s: %w", sub.ID, err)
	}
	slog.Debug("store CreateSubmission succeeded", "submissionID", sub.ID, "mode", sub.Mode)
	return nil
}

func scanSubmission(row rowScanner) (*models.Submission, error) {
	var sub models.Submission
	var answers string
	var result sql.NullString
	err := row.Scan(&sub.ID, &sub.UserID, &sub.Mode, &answers, &result, &sub.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(answers), &sub.Answers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal answers: %w", err)
	}
	sub.GeneratedResult = result.String
	return &sub, nil
}

func (s *sqlStore) GetSubmission(ctx context.Context, id string) (*models.Submission, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT id, user_id, mode, answers,
		generated_result, created_at FROM submissions WHERE id = ?`), id)
	sub, err := scanSubmission(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrSubmissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query submission %s: %w", id, err)
	}
	return sub, nil
}

func (s *sqlStore) AttachSubmissionResult(ctx context.Context, id, result string) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE submissions SET generated_result = ?
		WHERE id = ? AND generated_result IS NULL`), result, id)
	if err != nil {
		return fmt.Errorf("failed to attach result to submission %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Already attached or unknown id; the generation policy is
		// single-attempt, so treat a repeat as a no-op, not an error.
		slog.Warn("store AttachSubmissionResult no-op", "submissionID", id)
	}
	return nil
}

func (s *sqlStore) ListSubmissionsByMode(ctx context.Context, mode models.Mode) ([]models.Submission, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT id, user_id, mode, answers,
		generated_result, created_at FROM submissions WHERE mode = ? ORDER BY created_at DESC`), mode)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions for mode %s: %w", mode, err)
	}
	defer rows.Close()
	var subs []models.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission row: %w", err)
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate submission rows: %w", err)
	}
	return subs, nil
}

func (s *sqlStore) InsertTracking(ctx context.Context, r models.TrackingRecord) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(`INSERT INTO daily_tracking
		(user_id, mode, date, status, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, mode, date) DO NOTHING`),
		r.UserID, r.Mode, r.Date, r.Status, r.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert tracking record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *sqlStore) ListTracking(ctx context.Context, userID int64, mode models.Mode) ([]models.TrackingRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT user_id, mode, date, status, created_at
		FROM daily_tracking WHERE user_id = ? AND mode = ? ORDER BY date DESC`), userID, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracking records: %w", err)
	}
	defer rows.Close()
	var records []models.TrackingRecord
	for rows.Next() {
		var r models.TrackingRecord
		if err := rows.Scan(&r.UserID, &r.Mode, &r.Date, &r.Status, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tracking row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tracking rows: %w", err)
	}
	return records, nil
}

func (s *sqlStore) TrackingStats(ctx context.Context, userID int64, sinceDate string) (map[models.TrackingStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT status, COUNT(*) FROM daily_tracking
		WHERE user_id = ? AND date >= ? GROUP BY status`), userID, sinceDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracking stats: %w", err)
	}
	defer rows.Close()
	stats := make(map[models.TrackingStatus]int)
	for rows.Next() {
		var status models.TrackingStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}
		stats[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stats rows: %w", err)
	}
	return stats, nil
}

func (s *sqlStore) InsertMatchEvent(ctx context.Context, e models.MatchEvent) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(`INSERT INTO match_events
		(actor_id, target_id, action, is_match, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (actor_id, target_id) DO NOTHING`),
		e.ActorID, e.TargetID, e.Action, e.IsMatch, e.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert match event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *sqlStore) GetMatchEvent(ctx context.Context, actorID, targetID int64) (*models.MatchEvent, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT actor_id, target_id, action, is_match, created_at
		FROM match_events WHERE actor_id = ? AND target_id = ?`), actorID, targetID)
	var e models.MatchEvent
	err := row.Scan(&e.ActorID, &e.TargetID, &e.Action, &e.IsMatch, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query match event: %w", err)
	}
	return &e, nil
}

func (s *sqlStore) MarkMutualMatch(ctx context.Context, a, b int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	_, err = tx.ExecContext(ctx, s.q(`UPDATE match_events SET is_match = TRUE
		WHERE (actor_id = ? AND target_id = ?) OR (actor_id = ? AND target_id = ?)`),
		a, b, b, a)
	if err != nil {
		return fmt.Errorf("failed to mark mutual match: %w", err)
	}
	return tx.Commit()
}

func (s *sqlStore) SeenTargets(ctx context.Context, actorID int64) (map[int64]bool, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT target_id FROM match_events WHERE actor_id = ?`), actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query seen targets: %w", err)
	}
	defer rows.Close()
	seen := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan target row: %w", err)
		}
		seen[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate target rows: %w", err)
	}
	return seen, nil
}

func (s *sqlStore) Stats(ctx context.Context, now time.Time) (models.AdminStats, error) {
	var stats models.AdminStats
	counts := []struct {
		dest  *int
		query string
		args  []any
	}{
		{&stats.TotalUsers, `SELECT COUNT(*) FROM users`, nil},
		{&stats.ActiveSubscriptions, `SELECT COUNT(*) FROM users WHERE subscription_expires_at > ?`, []any{now}},
		{&stats.ActivatedCodes, `SELECT COUNT(*) FROM activation_codes WHERE activated_at IS NOT NULL`, nil},
		{&stats.TotalCodes, `SELECT COUNT(*) FROM activation_codes`, nil},
		{&stats.TotalSubmissions, `SELECT COUNT(*) FROM submissions`, nil},
		{&stats.MutualMatches, `SELECT COUNT(*) FROM match_events WHERE is_match = TRUE`, nil},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, s.q(c.query), c.args...).Scan(c.dest); err != nil {
			return stats, fmt.Errorf("failed to count stats: %w", err)
		}
	}
	return stats, nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

// nullableTime maps a nil *time.Time to a SQL NULL.
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
