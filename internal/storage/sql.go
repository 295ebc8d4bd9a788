package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	logx "postbot/pkg/logx"
)

// dialect captures the few differences between the SQL backends.
type dialect struct {
	name string
	// numbered rewrites "?" placeholders into "$1, $2, ...".
	numbered bool
}

// sqlStore implements Store on top of database/sql for every dialect.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
	log     logx.Logger
	now     func() time.Time
}

func newSQLStore(db *sql.DB, d dialect, log logx.Logger) *sqlStore {
	return &sqlStore{db: db, dialect: d, log: log.With(logx.String("comp", "storage"), logx.String("driver", d.name)), now: time.Now}
}

func (s *sqlStore) q(query string) string {
	if !s.dialect.numbered {
		return query
	}
	return rebind(query)
}

// rebind turns "?" placeholders into postgres "$n" ones.
// Queries here never contain literal question marks.
func rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn in one transaction and commits when fn returns nil.
func (s *sqlStore) withTx(ctx context.Context, fn func(tx execer) error) (err error) {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlStore) stamp() int64 { return s.now().UnixMilli() }

func (s *sqlStore) ensureUser(ctx context.Context, ex execer, userID int64) error {
	_, err := ex.ExecContext(ctx,
		s.q(`INSERT INTO users(user_id, created_at) VALUES(?, ?) ON CONFLICT(user_id) DO NOTHING`),
		userID, s.stamp())
	if err != nil {
		return fmt.Errorf("ensure user %d: %w", userID, err)
	}
	return nil
}

func (s *sqlStore) insertLog(ctx context.Context, ex execer, userID int64, action, details string) error {
	_, err := ex.ExecContext(ctx,
		s.q(`INSERT INTO logs(user_id, action, details, created_at) VALUES(?, ?, ?, ?)`),
		userID, action, details, s.stamp())
	if err != nil {
		return fmt.Errorf("append log %s: %w", action, err)
	}
	return nil
}

func (s *sqlStore) insertNotes(ctx context.Context, ex execer, userID int64, notes []Note) error {
	for _, n := range notes {
		if n.Action == "" {
			continue
		}
		if err := s.insertLog(ctx, ex, userID, n.Action, n.Details); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqlStore) EnsureUser(ctx context.Context, userID int64) error {
	return s.withTx(ctx, func(tx execer) error {
		return s.ensureUser(ctx, tx, userID)
	})
}

// ---- accounts ----

func (s *sqlStore) AddAccount(ctx context.Context, a NewAccount, notes ...Note) (Account, error) {
	out := Account{
		UserID:       a.UserID,
		Phone:        a.Phone,
		APIID:        a.APIID,
		APIHash:      a.APIHash,
		SessionToken: a.SessionToken,
		Active:       true,
	}
	err := s.withTx(ctx, func(tx execer) error {
		if err := s.ensureUser(ctx, tx, a.UserID); err != nil {
			return err
		}
		at := s.stamp()
		err := tx.QueryRowContext(ctx,
			s.q(`INSERT INTO accounts(user_id, phone, api_id, api_hash, session_token, is_active, created_at)
			 VALUES(?, ?, ?, ?, ?, 1, ?) RETURNING id`),
			a.UserID, a.Phone, nullStr(a.APIID), nullStr(a.APIHash), nullStr(a.SessionToken), at,
		).Scan(&out.ID)
		if err != nil {
			return fmt.Errorf("insert account: %w", err)
		}
		out.CreatedAt = time.UnixMilli(at)
		return s.insertNotes(ctx, tx, a.UserID, notes)
	})
	if err != nil {
		return Account{}, err
	}
	return out, nil
}

func (s *sqlStore) ListActiveAccounts(ctx context.Context, userID int64) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT id, user_id, phone, api_id, api_hash, session_token, created_at
		 FROM accounts WHERE user_id = ? AND is_active = 1 ORDER BY id`), userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		var (
			a                  Account
			apiID, hash, token sql.NullString
			createdAt          int64
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.Phone, &apiID, &hash, &token, &createdAt); err != nil {
			return nil, err
		}
		a.APIID, a.APIHash, a.SessionToken = apiID.String, hash.String, token.String
		a.Active = true
		a.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *sqlStore) CountActiveAccounts(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT COUNT(*) FROM accounts WHERE user_id = ? AND is_active = 1`), userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return n, nil
}

func (s *sqlStore) SetAccountToken(ctx context.Context, accountID int64, token string, notes ...Note) (bool, error) {
	if token == "" {
		return false, errors.New("empty session token")
	}
	var updated bool
	err := s.withTx(ctx, func(tx execer) error {
		var userID int64
		err := tx.QueryRowContext(ctx, s.q(`SELECT user_id FROM accounts WHERE id = ?`), accountID).Scan(&userID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			s.q(`UPDATE accounts SET session_token = ?
			 WHERE id = ? AND (session_token IS NULL OR session_token = '')`), token, accountID)
		if err != nil {
			return fmt.Errorf("set token: %w", err)
		}
		n, _ := res.RowsAffected()
		updated = n > 0
		if !updated {
			return nil
		}
		return s.insertNotes(ctx, tx, userID, notes)
	})
	return updated, err
}

func (s *sqlStore) DeactivateAccount(ctx context.Context, userID, accountID int64, notes ...Note) (bool, error) {
	var updated bool
	err := s.withTx(ctx, func(tx execer) error {
		res, err := tx.ExecContext(ctx,
			s.q(`UPDATE accounts SET is_active = 0 WHERE id = ? AND user_id = ? AND is_active = 1`),
			accountID, userID)
		if err != nil {
			return fmt.Errorf("deactivate account: %w", err)
		}
		n, _ := res.RowsAffected()
		updated = n > 0
		if !updated {
			return nil
		}
		return s.insertNotes(ctx, tx, userID, notes)
	})
	return updated, err
}

// ---- destinations ----

func (s *sqlStore) AddDestination(ctx context.Context, userID int64, ident, title string, notes ...Note) (Destination, error) {
	out := Destination{UserID: userID, Ident: ident, Title: title, Active: true}
	err := s.withTx(ctx, func(tx execer) error {
		if err := s.ensureUser(ctx, tx, userID); err != nil {
			return err
		}
		at := s.stamp()
		err := tx.QueryRowContext(ctx,
			s.q(`INSERT INTO destinations(user_id, destination_id, title, is_active, created_at)
			 VALUES(?, ?, ?, 1, ?) RETURNING id`),
			userID, ident, title, at,
		).Scan(&out.ID)
		if err != nil {
			return fmt.Errorf("insert destination: %w", err)
		}
		out.CreatedAt = time.UnixMilli(at)
		return s.insertNotes(ctx, tx, userID, notes)
	})
	if err != nil {
		return Destination{}, err
	}
	return out, nil
}

func (s *sqlStore) ListActiveDestinations(ctx context.Context, userID int64) ([]Destination, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT id, user_id, destination_id, title, created_at
		 FROM destinations WHERE user_id = ? AND is_active = 1 ORDER BY id`), userID)
	if err != nil {
		return nil, fmt.Errorf("list destinations: %w", err)
	}
	defer rows.Close()

	var out []Destination
	for rows.Next() {
		var (
			d         Destination
			createdAt int64
		)
		if err := rows.Scan(&d.ID, &d.UserID, &d.Ident, &d.Title, &createdAt); err != nil {
			return nil, err
		}
		d.Active = true
		d.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *sqlStore) DeactivateDestination(ctx context.Context, userID, id int64, notes ...Note) (bool, error) {
	var updated bool
	err := s.withTx(ctx, func(tx execer) error {
		res, err := tx.ExecContext(ctx,
			s.q(`UPDATE destinations SET is_active = 0 WHERE id = ? AND user_id = ? AND is_active = 1`),
			id, userID)
		if err != nil {
			return fmt.Errorf("deactivate destination: %w", err)
		}
		n, _ := res.RowsAffected()
		updated = n > 0
		if !updated {
			return nil
		}
		return s.insertNotes(ctx, tx, userID, notes)
	})
	return updated, err
}

// ---- messages ----

func (s *sqlStore) SaveMessage(ctx context.Context, userID int64, body string, notes ...Note) (MessageDraft, error) {
	out := MessageDraft{UserID: userID, Body: body, Active: true}
	err := s.withTx(ctx, func(tx execer) error {
		if err := s.ensureUser(ctx, tx, userID); err != nil {
			return err
		}
		at := s.stamp()
		err := tx.QueryRowContext(ctx,
			s.q(`INSERT INTO messages(user_id, body, is_active, created_at) VALUES(?, ?, 1, ?) RETURNING id`),
			userID, body, at,
		).Scan(&out.ID)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		out.CreatedAt = time.UnixMilli(at)
		return s.insertNotes(ctx, tx, userID, notes)
	})
	if err != nil {
		return MessageDraft{}, err
	}
	return out, nil
}

// CurrentMessage returns the newest active draft.
func (s *sqlStore) CurrentMessage(ctx context.Context, userID int64) (MessageDraft, bool, error) {
	var (
		m         MessageDraft
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT id, user_id, body, created_at FROM messages
		 WHERE user_id = ? AND is_active = 1 ORDER BY id DESC LIMIT 1`), userID,
	).Scan(&m.ID, &m.UserID, &m.Body, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return MessageDraft{}, false, nil
	}
	if err != nil {
		return MessageDraft{}, false, fmt.Errorf("current message: %w", err)
	}
	m.Active = true
	m.CreatedAt = time.UnixMilli(createdAt)
	return m, true, nil
}

// ---- logs ----

func (s *sqlStore) AppendLog(ctx context.Context, e LogEntry) error {
	if e.Action == "" {
		return errors.New("log entry without action")
	}
	return s.withTx(ctx, func(tx execer) error {
		if err := s.ensureUser(ctx, tx, e.UserID); err != nil {
			return err
		}
		return s.insertLog(ctx, tx, e.UserID, e.Action, e.Details)
	})
}

func (s *sqlStore) ListLogs(ctx context.Context, f LogFilter) ([]LogEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != 0 {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Action != "" {
		where = append(where, "action = ?")
		args = append(args, f.Action)
	}
	query := `SELECT id, user_id, action, details, created_at FROM logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"
	if f.Limit > 0 {
		query += " LIMIT " + strconv.Itoa(f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		var (
			e         LogEntry
			details   sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &details, &createdAt); err != nil {
			return nil, err
		}
		e.Details = details.String
		e.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqlStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	counts := []struct {
		dst   *int64
		query string
	}{
		{&st.Users, `SELECT COUNT(*) FROM users`},
		{&st.UsersWithDraft, `SELECT COUNT(DISTINCT user_id) FROM messages WHERE is_active = 1`},
		{&st.ActiveAccounts, `SELECT COUNT(*) FROM accounts WHERE is_active = 1`},
		{&st.ActiveDestinations, `SELECT COUNT(*) FROM destinations WHERE is_active = 1`},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return Stats{}, fmt.Errorf("stats: %w", err)
		}
	}
	return st, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
