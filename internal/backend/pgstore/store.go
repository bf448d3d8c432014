package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"grocerysync/internal/auth"
	"grocerysync/internal/backend"
	"grocerysync/internal/core/models"
	"grocerysync/metrics"
	"grocerysync/pkg/logger"
)

const (
	defaultPageSize = 100
	uniqueViolation = "23505"
)

// Store keeps backend classes as JSONB documents in Postgres. ACLs are stored with each object
// and returned on read; the crawler acts as a trusted user so they are not enforced.
type Store struct {
	db       *sqlx.DB
	objects  string
	users    string
	sessions *auth.Sessions
	pageSize int
	log      logger.Logger
}

type objectRow struct {
	ID        string         `db:"id"`
	Data      []byte         `db:"data"`
	ACL       sql.NullString `db:"acl"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

type userRow struct {
	ID           string `db:"id"`
	PasswordHash string `db:"password_hash"`
}

func New(db *sqlx.DB, schema string, sessions *auth.Sessions, log logger.Logger) *Store {
	quoted := pq.QuoteIdentifier(schema)
	return &Store{
		db:       db,
		objects:  quoted + ".objects",
		users:    quoted + ".users",
		sessions: sessions,
		pageSize: defaultPageSize,
		log:      log.WithPrefix("pgstore"),
	}
}

func observe(method, class string, started time.Time, err error) {
	status := 200
	switch {
	case errors.Is(err, backend.ErrNotFound):
		status = 404
	case errors.Is(err, backend.ErrUnauthorized):
		status = 401
	case err != nil:
		status = 500
	}
	metrics.RecordRequest(method, class, status, time.Since(started))
}

func (s *Store) SignUp(ctx context.Context, username, password string) (string, error) {
	if username == "" || password == "" {
		return "", errors.New("username and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (id, username, password_hash) VALUES ($1, $2, $3)", s.users),
		id, username, string(hash))
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return "", fmt.Errorf("user %q already exists", username)
	}
	if err != nil {
		return "", fmt.Errorf("insert user: %w", err)
	}
	return id, nil
}

func (s *Store) LogIn(ctx context.Context, username, password string) (cred backend.Credential, err error) {
	defer func(started time.Time) { observe("LOGIN", "_User", started, err) }(time.Now())

	var u userRow
	err = s.db.GetContext(ctx, &u, fmt.Sprintf("SELECT id, password_hash FROM %s WHERE username = $1", s.users), username)
	if errors.Is(err, sql.ErrNoRows) {
		return backend.Credential{}, fmt.Errorf("log in %s: %w", username, backend.ErrUnauthorized)
	}
	if err != nil {
		return backend.Credential{}, fmt.Errorf("log in %s: %w", username, err)
	}
	if err = bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return backend.Credential{}, fmt.Errorf("log in %s: %w", username, backend.ErrUnauthorized)
	}

	token, err := s.sessions.Issue(u.ID, username)
	if err != nil {
		return backend.Credential{}, err
	}
	return backend.Credential{Token: token, UserID: u.ID}, nil
}

func (s *Store) authorize(cred backend.Credential) error {
	if _, err := s.sessions.Validate(cred.Token); err != nil {
		return fmt.Errorf("%v: %w", err, backend.ErrUnauthorized)
	}
	return nil
}

func (s *Store) selectPage(ctx context.Context, class string, criteria backend.Criteria, after string, limit int) ([]backend.Record, error) {
	query, args, err := buildSearch(s.objects, class, criteria, after, limit)
	if err != nil {
		return nil, err
	}
	var rows []objectRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select %s: %w", class, err)
	}
	records := make([]backend.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *Store) Search(ctx context.Context, class string, criteria backend.Criteria, cred backend.Credential) (records []backend.Record, err error) {
	defer func(started time.Time) { observe("GET", class, started, err) }(time.Now())
	if err = s.authorize(cred); err != nil {
		return nil, err
	}
	return s.selectPage(ctx, class, criteria, "", criteria.Limit)
}

func (s *Store) SearchAll(_ context.Context, class string, criteria backend.Criteria, cred backend.Credential) backend.Cursor {
	return backend.NewPagedCursor(func(ctx context.Context, after string) (records []backend.Record, err error) {
		defer func(started time.Time) { observe("GET", class, started, err) }(time.Now())
		if err = s.authorize(cred); err != nil {
			return nil, err
		}
		return s.selectPage(ctx, class, criteria, after, s.pageSize)
	})
}

func (s *Store) Read(ctx context.Context, class, id string, cred backend.Credential) (rec backend.Record, err error) {
	defer func(started time.Time) { observe("GET", class, started, err) }(time.Now())
	if err = s.authorize(cred); err != nil {
		return backend.Record{}, err
	}
	var row objectRow
	err = s.db.GetContext(ctx, &row,
		fmt.Sprintf("SELECT id, data, acl, created_at, updated_at FROM %s WHERE class = $1 AND id = $2", s.objects),
		class, id)
	if errors.Is(err, sql.ErrNoRows) {
		return backend.Record{}, backend.ErrNotFound
	}
	if err != nil {
		return backend.Record{}, fmt.Errorf("read %s %s: %w", class, id, err)
	}
	return row.record()
}

func (s *Store) Create(ctx context.Context, class string, data map[string]interface{}, acl models.ACL, cred backend.Credential) (id string, err error) {
	defer func(started time.Time) { observe("POST", class, started, err) }(time.Now())
	if err = s.authorize(cred); err != nil {
		return "", err
	}
	body, _, err := splitPatch(data)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", class, err)
	}
	var rawACL interface{}
	if acl != nil {
		encoded, err := json.Marshal(acl)
		if err != nil {
			return "", fmt.Errorf("encode acl: %w", err)
		}
		rawACL = string(encoded)
	}

	id = uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (class, id, data, acl) VALUES ($1, $2, $3::jsonb, $4::jsonb)", s.objects),
		class, id, body, rawACL)
	if err != nil {
		return "", fmt.Errorf("insert %s: %w", class, err)
	}
	return id, nil
}

func (s *Store) Update(ctx context.Context, class, id string, data map[string]interface{}, cred backend.Credential) (err error) {
	defer func(started time.Time) { observe("PUT", class, started, err) }(time.Now())
	if err = s.authorize(cred); err != nil {
		return err
	}
	patch, remove, err := splitPatch(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", class, err)
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET data = (data || $3::jsonb) - $4::text[], updated_at = clock_timestamp()
			WHERE class = $1 AND id = $2`, s.objects),
		class, id, patch, pq.Array(remove))
	if err != nil {
		return fmt.Errorf("update %s %s: %w", class, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return backend.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, class, id string, cred backend.Credential) (err error) {
	defer func(started time.Time) { observe("DELETE", class, started, err) }(time.Now())
	if err = s.authorize(cred); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE class = $1 AND id = $2", s.objects), class, id)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", class, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return backend.ErrNotFound
	}
	return nil
}

func (r objectRow) record() (backend.Record, error) {
	body := map[string]interface{}{}
	if len(r.Data) > 0 {
		if err := json.Unmarshal(r.Data, &body); err != nil {
			return backend.Record{}, fmt.Errorf("decode object %s: %w", r.ID, err)
		}
	}
	body["objectId"] = r.ID
	body["createdAt"] = r.CreatedAt.UTC().Format(time.RFC3339Nano)
	body["updatedAt"] = r.UpdatedAt.UTC().Format(time.RFC3339Nano)
	if r.ACL.Valid {
		body["ACL"] = json.RawMessage(r.ACL.String)
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return backend.Record{}, err
	}
	return backend.Record{ID: r.ID, Data: raw}, nil
}
