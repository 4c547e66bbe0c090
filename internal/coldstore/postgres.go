package coldstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/relaychat/server/internal/domain"
)

// Config mirrors the teacher's cfg.Database shape (cmd/server/main.go).
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Postgres implements both Store and Users on top of database/sql +
// lib/pq. Grounded on internal/repository/chat_repository.go: a prepared
// statement cache behind a RWMutex, explicit connection-pool tuning, and
// sql.ErrNoRows translated into a domain NotFound rather than leaking a
// database/sql sentinel to callers.
type Postgres struct {
	db *sql.DB

	mu    sync.RWMutex
	stmts map[string]*sql.Stmt
}

// NewPostgres opens the connection pool, tunes it, and prepares the
// statement set the repository methods below rely on.
func NewPostgres(cfg Config) (*Postgres, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	p := &Postgres{db: db, stmts: make(map[string]*sql.Stmt)}
	if err := p.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare statements: %w", err)
	}
	return p, nil
}

func (p *Postgres) prepareStatements() error {
	statements := map[string]string{
		"findByUsername": `
			SELECT id, username, email, password, avatar, verified, last_login_time, online, create_time
			FROM users WHERE username = $1`,
		"findByID": `
			SELECT id, username, email, password, avatar, verified, last_login_time, online, create_time
			FROM users WHERE id = $1`,
		"register": `
			INSERT INTO users (username, password, email, avatar, verified, online, create_time)
			VALUES ($1, $2, $3, $4, false, false, now())
			RETURNING id`,
		"usernameExists": `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`,
		"emailExists":     `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`,
		"setOnline":       `UPDATE users SET online = $2 WHERE id = $1`,
		"updateLastLogin": `UPDATE users SET last_login_time = now(), online = true WHERE id = $1`,
		"listOnline": `
			SELECT id, username, email, password, avatar, verified, last_login_time, online, create_time
			FROM users WHERE online = true`,
		"insertPrivateMessage": `
			INSERT INTO private_messages (from_user_id, to_user_id, content, timestamp, message_type)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT DO NOTHING`,
		"insertGroupMessage": `
			INSERT INTO group_messages (group_id, from_user_id, content, timestamp, message_type)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT DO NOTHING`,
		"groupExists": `SELECT EXISTS(SELECT 1 FROM groups WHERE id = $1)`,
		"insertFriendship": `
			INSERT INTO user_friends (user_id1, user_id2, status, created_at, updated_at)
			VALUES ($1, $2, 'accepted', now(), now())
			ON CONFLICT (user_id1, user_id2) DO NOTHING`,
		"historyPrivate": `
			SELECT from_user_id, to_user_id, content, timestamp, message_type
			FROM private_messages
			WHERE (from_user_id = $1 AND to_user_id = $2) OR (from_user_id = $2 AND to_user_id = $1)
			ORDER BY timestamp DESC
			LIMIT $3 OFFSET $4`,
		"historyGroup": `
			SELECT group_id, from_user_id, content, timestamp, message_type
			FROM group_messages
			WHERE group_id = $1
			ORDER BY timestamp DESC
			LIMIT $2 OFFSET $3`,
		"createGroup": `
			INSERT INTO groups (id, name, creator_id, created_at) VALUES ($1, $2, $3, $4)`,
	}

	for name, query := range statements {
		stmt, err := p.db.Prepare(query)
		if err != nil {
			return fmt.Errorf("prepare %s: %w", name, err)
		}
		p.stmts[name] = stmt
	}
	return nil
}

func (p *Postgres) stmt(name string) *sql.Stmt {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stmts[name]
}

func (p *Postgres) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.stmts {
		s.Close()
	}
	return p.db.Close()
}

// --- Users (C3) ---

func scanUser(row interface{ Scan(...interface{}) error }) (*domain.User, error) {
	var u domain.User
	var lastLogin sql.NullTime
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Avatar,
		&u.Verified, &lastLogin, &u.Online, &u.CreatedAt); err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}

func (p *Postgres) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	row := p.stmt("findByUsername").QueryRowContext(ctx, username)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, domain.NewError(domain.NotFound, "user not found")
	}
	if err != nil {
		return nil, domain.Wrap(domain.UpstreamFailure, "query user", err)
	}
	return u, nil
}

func (p *Postgres) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	row := p.stmt("findByID").QueryRowContext(ctx, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, domain.NewError(domain.NotFound, "user not found")
	}
	if err != nil {
		return nil, domain.Wrap(domain.UpstreamFailure, "query user", err)
	}
	return u, nil
}

// VerifyCredentials checks a bcrypt hash and, on success, atomically
// updates last_login_time/online in the same short transaction (spec.md
// §4.2: "credential verification on success also updates last_login_time
// and online atomically").
func (p *Postgres) VerifyCredentials(ctx context.Context, username, password string) (int64, error) {
	u, err := p.FindByUsername(ctx, username)
	if err != nil {
		// Authentication failures are never distinguished from "user not
		// found" in responses to clients (spec.md §7).
		return 0, domain.NewError(domain.InvalidCredentials, "invalid username or password")
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return 0, domain.NewError(domain.InvalidCredentials, "invalid username or password")
	}
	if err := p.UpdateLastLogin(ctx, u.ID); err != nil {
		return 0, err
	}
	return u.ID, nil
}

func (p *Postgres) SetOnline(ctx context.Context, userID int64, online bool) error {
	if _, err := p.stmt("setOnline").ExecContext(ctx, userID, online); err != nil {
		return domain.Wrap(domain.UpstreamFailure, "set online", err)
	}
	return nil
}

func (p *Postgres) UpdateLastLogin(ctx context.Context, userID int64) error {
	if _, err := p.stmt("updateLastLogin").ExecContext(ctx, userID); err != nil {
		return domain.Wrap(domain.UpstreamFailure, "update last login", err)
	}
	return nil
}

func (p *Postgres) Register(ctx context.Context, username, password, email, avatar string) (int64, error) {
	exists, err := p.UsernameExists(ctx, username)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, domain.NewError(domain.Conflict, "Username already exists")
	}
	exists, err = p.EmailExists(ctx, email)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, domain.NewError(domain.Conflict, "Email already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, domain.Wrap(domain.UpstreamFailure, "hash password", err)
	}

	var id int64
	row := p.stmt("register").QueryRowContext(ctx, username, string(hash), email, avatar)
	if err := row.Scan(&id); err != nil {
		return 0, domain.Wrap(domain.UpstreamFailure, "insert user", err)
	}
	return id, nil
}

func (p *Postgres) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	if err := p.stmt("usernameExists").QueryRowContext(ctx, username).Scan(&exists); err != nil {
		return false, domain.Wrap(domain.UpstreamFailure, "check username", err)
	}
	return exists, nil
}

func (p *Postgres) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	if err := p.stmt("emailExists").QueryRowContext(ctx, email).Scan(&exists); err != nil {
		return false, domain.Wrap(domain.UpstreamFailure, "check email", err)
	}
	return exists, nil
}

func (p *Postgres) ListOnline(ctx context.Context) ([]*domain.User, error) {
	rows, err := p.stmt("listOnline").QueryContext(ctx)
	if err != nil {
		return nil, domain.Wrap(domain.UpstreamFailure, "list online users", err)
	}
	defer rows.Close()

	var out []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, domain.Wrap(domain.UpstreamFailure, "scan user", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// --- Store (C2) ---

func (p *Postgres) InsertPrivateMessages(ctx context.Context, msgs []*domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Wrap(domain.UpstreamFailure, "begin tx", err)
	}
	defer tx.Rollback()

	stmt := tx.StmtContext(ctx, p.stmt("insertPrivateMessage"))
	for _, m := range msgs {
		if _, err := stmt.ExecContext(ctx, m.From, m.To, m.Content, m.Timestamp, string(m.Kind)); err != nil {
			return domain.Wrap(domain.UpstreamFailure, "insert private message", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Wrap(domain.UpstreamFailure, "commit tx", err)
	}
	return nil
}

func (p *Postgres) InsertGroupMessages(ctx context.Context, groupID int64, msgs []*domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Wrap(domain.UpstreamFailure, "begin tx", err)
	}
	defer tx.Rollback()

	stmt := tx.StmtContext(ctx, p.stmt("insertGroupMessage"))
	for _, m := range msgs {
		if _, err := stmt.ExecContext(ctx, groupID, m.From, m.Content, m.Timestamp, string(m.Kind)); err != nil {
			return domain.Wrap(domain.UpstreamFailure, "insert group message", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Wrap(domain.UpstreamFailure, "commit tx", err)
	}
	return nil
}

func (p *Postgres) GroupExists(ctx context.Context, groupID int64) (bool, error) {
	var exists bool
	if err := p.stmt("groupExists").QueryRowContext(ctx, groupID).Scan(&exists); err != nil {
		return false, domain.Wrap(domain.UpstreamFailure, "check group", err)
	}
	return exists, nil
}

func (p *Postgres) InsertFriendship(ctx context.Context, a, b int64) error {
	lo, hi := domain.PairKey(a, b)
	if _, err := p.stmt("insertFriendship").ExecContext(ctx, lo, hi); err != nil {
		return domain.Wrap(domain.UpstreamFailure, "insert friendship", err)
	}
	return nil
}

func (p *Postgres) HistoryPrivate(ctx context.Context, a, b int64, count, offset int) ([]*domain.Message, error) {
	rows, err := p.stmt("historyPrivate").QueryContext(ctx, a, b, count, offset)
	if err != nil {
		return nil, domain.Wrap(domain.UpstreamFailure, "query private history", err)
	}
	defer rows.Close()

	var out []*domain.Message
	for rows.Next() {
		var m domain.Message
		var kind string
		if err := rows.Scan(&m.From, &m.To, &m.Content, &m.Timestamp, &kind); err != nil {
			return nil, domain.Wrap(domain.UpstreamFailure, "scan private message", err)
		}
		m.Kind = domain.MessageKind(kind)
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (p *Postgres) HistoryGroup(ctx context.Context, groupID int64, count, offset int) ([]*domain.Message, error) {
	rows, err := p.stmt("historyGroup").QueryContext(ctx, groupID, count, offset)
	if err != nil {
		return nil, domain.Wrap(domain.UpstreamFailure, "query group history", err)
	}
	defer rows.Close()

	var out []*domain.Message
	for rows.Next() {
		var m domain.Message
		var kind string
		if err := rows.Scan(&m.To, &m.From, &m.Content, &m.Timestamp, &kind); err != nil {
			return nil, domain.Wrap(domain.UpstreamFailure, "scan group message", err)
		}
		m.Kind = domain.MessageKind(kind)
		out = append(out, &m)
	}
	return out, rows.Err()
}

// NextGroupID allocates from a dedicated sequence so ids are monotonic
// and collision-free (spec.md §9 Open Questions), unlike the original's
// time(nullptr) % 10^6 scheme.
func (p *Postgres) NextGroupID(ctx context.Context) (int64, error) {
	var id int64
	if err := p.db.QueryRowContext(ctx, `SELECT nextval('groups_id_seq')`).Scan(&id); err != nil {
		return 0, domain.Wrap(domain.UpstreamFailure, "allocate group id", err)
	}
	return id, nil
}

func (p *Postgres) CreateGroup(ctx context.Context, g *domain.Group) error {
	if _, err := p.stmt("createGroup").ExecContext(ctx, g.ID, g.Name, g.CreatorID, g.CreatedAt); err != nil {
		return domain.Wrap(domain.UpstreamFailure, "insert group", err)
	}
	return nil
}

// Ping checks database connectivity for the readiness endpoint, matching the
// teacher's db.Ping() check in cmd/server/main.go.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}
