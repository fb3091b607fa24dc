package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/bed-scheduler/internal/profile"
)

const schema = `
CREATE TABLE IF NOT EXISTS sleep_profiles (
	owner_id TEXT PRIMARY KEY,
	bed_time TEXT NOT NULL,
	wake_time TEXT NOT NULL,
	initial_level INTEGER NOT NULL,
	mid_level INTEGER NOT NULL,
	final_level INTEGER NOT NULL,
	timezone TEXT NOT NULL DEFAULT 'UTC',
	partner_bed_time TEXT,
	partner_wake_time TEXT,
	partner_initial_level INTEGER,
	partner_mid_level INTEGER,
	partner_final_level INTEGER,
	partner_timezone TEXT,
	device_user_id TEXT NOT NULL DEFAULT '',
	access_token TEXT NOT NULL DEFAULT '',
	refresh_token TEXT NOT NULL DEFAULT '',
	token_expires_at BIGINT NOT NULL DEFAULT 0,
	updated_at BIGINT NOT NULL
)`

const profileColumns = `owner_id, bed_time, wake_time, initial_level, mid_level, final_level, timezone,
	partner_bed_time, partner_wake_time, partner_initial_level, partner_mid_level, partner_final_level, partner_timezone,
	device_user_id, access_token, refresh_token, token_expires_at, updated_at`

const listQuery = `SELECT ` + profileColumns + ` FROM sleep_profiles ORDER BY owner_id`

const upsertQuery = `INSERT INTO sleep_profiles (` + profileColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (owner_id) DO UPDATE SET
	bed_time = excluded.bed_time,
	wake_time = excluded.wake_time,
	initial_level = excluded.initial_level,
	mid_level = excluded.mid_level,
	final_level = excluded.final_level,
	timezone = excluded.timezone,
	partner_bed_time = excluded.partner_bed_time,
	partner_wake_time = excluded.partner_wake_time,
	partner_initial_level = excluded.partner_initial_level,
	partner_mid_level = excluded.partner_mid_level,
	partner_final_level = excluded.partner_final_level,
	partner_timezone = excluded.partner_timezone,
	device_user_id = excluded.device_user_id,
	access_token = excluded.access_token,
	refresh_token = excluded.refresh_token,
	token_expires_at = excluded.token_expires_at,
	updated_at = excluded.updated_at`

const saveCredentialQuery = `UPDATE sleep_profiles
SET device_user_id = ?, access_token = ?, refresh_token = ?, token_expires_at = ?, updated_at = ?
WHERE owner_id = ?`

const deleteQuery = `DELETE FROM sleep_profiles WHERE owner_id = ?`

// sqlStore implements Store on database/sql. Queries are written with ?
// placeholders and rebound for drivers that number them.
type sqlStore struct {
	db       *sql.DB
	numbered bool
	logger   *zap.Logger
	now      func() time.Time
}

func newSQLStore(db *sql.DB, numbered bool, logger *zap.Logger) *sqlStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &sqlStore{db: db, numbered: numbered, logger: logger, now: time.Now}
}

// rebind rewrites ? placeholders as $1, $2, ... when the driver needs it.
func (s *sqlStore) rebind(query string) string {
	if !s.numbered {
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

// Migrate creates the profile table if it does not exist.
func (s *sqlStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

type profileRow struct {
	ownerID, bedTime, wakeTime        string
	initial, mid, final               int
	timezone                          string
	pBed, pWake                       sql.NullString
	pInitial, pMid, pFinal            sql.NullInt64
	pTimezone                         sql.NullString
	userID, accessToken, refreshToken string
	expiresAt, updatedAt              int64
}

func (r *profileRow) dest() []any {
	return []any{
		&r.ownerID, &r.bedTime, &r.wakeTime, &r.initial, &r.mid, &r.final, &r.timezone,
		&r.pBed, &r.pWake, &r.pInitial, &r.pMid, &r.pFinal, &r.pTimezone,
		&r.userID, &r.accessToken, &r.refreshToken, &r.expiresAt, &r.updatedAt,
	}
}

// partner returns the partner schedule if every partner column is set.
// complete is false when some but not all of them are.
func (r *profileRow) partner() (p *profile.Schedule, complete bool) {
	set := 0
	for _, ok := range []bool{r.pBed.Valid, r.pWake.Valid, r.pInitial.Valid, r.pMid.Valid, r.pFinal.Valid, r.pTimezone.Valid} {
		if ok {
			set++
		}
	}
	switch set {
	case 0:
		return nil, true
	case 6:
		return &profile.Schedule{
			BedTime:      r.pBed.String,
			WakeTime:     r.pWake.String,
			InitialLevel: int(r.pInitial.Int64),
			MidLevel:     int(r.pMid.Int64),
			FinalLevel:   int(r.pFinal.Int64),
			Timezone:     r.pTimezone.String,
		}, true
	default:
		return nil, false
	}
}

func (r *profileRow) profile() profile.Profile {
	return profile.Profile{
		OwnerID: r.ownerID,
		Schedule: profile.Schedule{
			BedTime:      r.bedTime,
			WakeTime:     r.wakeTime,
			InitialLevel: r.initial,
			MidLevel:     r.mid,
			FinalLevel:   r.final,
			Timezone:     r.timezone,
		},
		Credential: profile.Credential{
			AccessToken:  r.accessToken,
			RefreshToken: r.refreshToken,
			ExpiresAt:    unixTime(r.expiresAt),
			UserID:       r.userID,
		},
		UpdatedAt: unixTime(r.updatedAt),
	}
}

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func unixSeconds(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func (s *sqlStore) ListProfiles(ctx context.Context) ([]profile.Profile, error) {
	rows, err := s.db.QueryContext(ctx, listQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrListProfiles, err)
	}
	defer rows.Close()

	var out []profile.Profile
	for rows.Next() {
		var r profileRow
		if err := rows.Scan(r.dest()...); err != nil {
			return nil, fmt.Errorf("%w: scan: %w", ErrListProfiles, err)
		}
		p := r.profile()
		partner, complete := r.partner()
		if !complete {
			s.logger.Warn("ignoring partially configured partner", zap.String("owner", r.ownerID))
		}
		p.Partner = partner
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrListProfiles, err)
	}
	return out, nil
}

func (s *sqlStore) SaveCredential(ctx context.Context, ownerID string, cred profile.Credential) error {
	res, err := s.db.ExecContext(ctx, s.rebind(saveCredentialQuery),
		cred.UserID, cred.AccessToken, cred.RefreshToken, unixSeconds(cred.ExpiresAt), s.now().Unix(), ownerID)
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return expectOneRow(res, ownerID)
}

func nullString(ok bool, s string) sql.NullString { return sql.NullString{String: s, Valid: ok} }

func nullInt(ok bool, n int) sql.NullInt64 { return sql.NullInt64{Int64: int64(n), Valid: ok} }

func (s *sqlStore) UpsertProfile(ctx context.Context, p profile.Profile) error {
	var partner profile.Schedule
	has := p.Partner != nil
	if has {
		partner = *p.Partner
	}
	updated := p.UpdatedAt
	if updated.IsZero() {
		updated = s.now()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(upsertQuery),
		p.OwnerID, p.BedTime, p.WakeTime, p.InitialLevel, p.MidLevel, p.FinalLevel, p.Timezone,
		nullString(has, partner.BedTime), nullString(has, partner.WakeTime),
		nullInt(has, partner.InitialLevel), nullInt(has, partner.MidLevel), nullInt(has, partner.FinalLevel),
		nullString(has, partner.Timezone),
		p.Credential.UserID, p.Credential.AccessToken, p.Credential.RefreshToken,
		unixSeconds(p.Credential.ExpiresAt), updated.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert profile %s: %w", p.OwnerID, err)
	}
	return nil
}

func (s *sqlStore) DeleteProfile(ctx context.Context, ownerID string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(deleteQuery), ownerID)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	return expectOneRow(res, ownerID)
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

func expectOneRow(res sql.Result, ownerID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, ownerID)
	}
	return nil
}
