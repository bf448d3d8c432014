package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"grocerysync/internal/backend"
	"grocerysync/internal/core/models"
)

const defaultPageSize = 100

type object struct {
	id        string
	data      map[string]interface{}
	acl       models.ACL
	createdAt time.Time
	updatedAt time.Time
}

type user struct {
	id       string
	password string
}

// Store is an in-process backend. It keeps the driver contract of the remote stores and is used
// by tests and the "memory" driver.
type Store struct {
	mu       sync.RWMutex
	classes  map[string]map[string]*object
	users    map[string]user
	sessions map[string]string
	pageSize int
	now      func() time.Time
}

type Option func(*Store)

func WithPageSize(size int) Option {
	return func(s *Store) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		classes:  map[string]map[string]*object{},
		users:    map[string]user{},
		sessions: map[string]string{},
		pageSize: defaultPageSize,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SignUp registers a user. Once registered the user must log in with that password; unknown
// usernames are still let in so the store works without any setup.
func (s *Store) SignUp(_ context.Context, username, password string) (string, error) {
	if username == "" {
		return "", fmt.Errorf("username is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return "", fmt.Errorf("user %q already exists", username)
	}
	id := uuid.NewString()
	s.users[username] = user{id: id, password: password}
	return id, nil
}

func (s *Store) LogIn(_ context.Context, username, password string) (backend.Credential, error) {
	if username == "" {
		return backend.Credential{}, fmt.Errorf("log in: %w", backend.ErrUnauthorized)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if ok && u.password != password {
		return backend.Credential{}, fmt.Errorf("log in %s: %w", username, backend.ErrUnauthorized)
	}
	if !ok {
		u = user{id: uuid.NewString(), password: password}
		s.users[username] = u
	}
	token := "r:" + uuid.NewString()
	s.sessions[token] = u.id
	return backend.Credential{Token: token, UserID: u.id}, nil
}

func (s *Store) authorize(cred backend.Credential) error {
	if cred.Token == "" {
		return backend.ErrUnauthorized
	}
	if _, ok := s.sessions[cred.Token]; !ok {
		return backend.ErrUnauthorized
	}
	return nil
}

// Put seeds an object directly, skipping sessions. A zero updatedAt uses the store clock.
func (s *Store) Put(class, id string, data map[string]interface{}, updatedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if updatedAt.IsZero() {
		updatedAt = s.now()
	}
	s.bucket(class)[id] = &object{
		id:        id,
		data:      normalize(data),
		createdAt: updatedAt,
		updatedAt: updatedAt,
	}
}

// Objects returns every stored object of a class ordered by objectId.
func (s *Store) Objects(class string) []backend.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(class, backend.Criteria{}, "", 0)
}

// ACL returns the ACL an object was created with.
func (s *Store) ACL(class, id string) models.ACL {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if obj, ok := s.classes[class][id]; ok {
		return obj.acl
	}
	return nil
}

func (s *Store) Search(_ context.Context, class string, criteria backend.Criteria, cred backend.Credential) ([]backend.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.authorize(cred); err != nil {
		return nil, err
	}
	return s.collect(class, criteria, "", criteria.Limit), nil
}

func (s *Store) SearchAll(_ context.Context, class string, criteria backend.Criteria, cred backend.Credential) backend.Cursor {
	return backend.NewPagedCursor(func(ctx context.Context, after string) ([]backend.Record, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.mu.RLock()
		defer s.mu.RUnlock()
		if err := s.authorize(cred); err != nil {
			return nil, err
		}
		return s.collect(class, criteria, after, s.pageSize), nil
	})
}

func (s *Store) Read(_ context.Context, class, id string, cred backend.Credential) (backend.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.authorize(cred); err != nil {
		return backend.Record{}, err
	}
	obj, ok := s.classes[class][id]
	if !ok {
		return backend.Record{}, backend.ErrNotFound
	}
	return obj.record()
}

func (s *Store) Create(_ context.Context, class string, data map[string]interface{}, acl models.ACL, cred backend.Credential) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authorize(cred); err != nil {
		return "", err
	}
	now := s.now()
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	for s.classes[class][id] != nil {
		id = strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	}
	s.bucket(class)[id] = &object{
		id:        id,
		data:      normalize(data),
		acl:       acl,
		createdAt: now,
		updatedAt: now,
	}
	return id, nil
}

func (s *Store) Update(_ context.Context, class, id string, data map[string]interface{}, cred backend.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authorize(cred); err != nil {
		return err
	}
	obj, ok := s.classes[class][id]
	if !ok {
		return backend.ErrNotFound
	}
	for k, v := range data {
		if _, unset := v.(backend.Unset); unset {
			delete(obj.data, k)
			continue
		}
		obj.data[k] = normalizeValue(v)
	}
	now := s.now()
	if !now.After(obj.updatedAt) {
		now = obj.updatedAt.Add(time.Millisecond)
	}
	obj.updatedAt = now
	return nil
}

func (s *Store) Delete(_ context.Context, class, id string, cred backend.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authorize(cred); err != nil {
		return err
	}
	if _, ok := s.classes[class][id]; !ok {
		return backend.ErrNotFound
	}
	delete(s.classes[class], id)
	return nil
}

func (s *Store) bucket(class string) map[string]*object {
	b, ok := s.classes[class]
	if !ok {
		b = map[string]*object{}
		s.classes[class] = b
	}
	return b
}

// collect must be called with the lock held.
func (s *Store) collect(class string, criteria backend.Criteria, after string, limit int) []backend.Record {
	ids := make([]string, 0, len(s.classes[class]))
	for id, obj := range s.classes[class] {
		if id > after && matches(obj.data, criteria) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	records := make([]backend.Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.classes[class][id].record()
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records
}

func matches(data map[string]interface{}, criteria backend.Criteria) bool {
	for field, want := range criteria.Conditions {
		got, ok := data[field]
		if !ok || !reflect.DeepEqual(got, normalizeValue(want)) {
			return false
		}
	}
	for field, present := range criteria.Exists {
		v, ok := data[field]
		has := ok && v != nil && v != ""
		if has != present {
			return false
		}
	}
	return true
}

func (o *object) record() (backend.Record, error) {
	body := make(map[string]interface{}, len(o.data)+4)
	for k, v := range o.data {
		body[k] = v
	}
	body["objectId"] = o.id
	body["createdAt"] = o.createdAt.UTC().Format(time.RFC3339Nano)
	body["updatedAt"] = o.updatedAt.UTC().Format(time.RFC3339Nano)
	if o.acl != nil {
		body["ACL"] = o.acl
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return backend.Record{}, err
	}
	return backend.Record{ID: o.id, Data: raw}, nil
}

// normalize round-trips values through JSON so stored data compares the way it would after a
// trip to a remote store.
func normalize(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		if _, unset := v.(backend.Unset); unset {
			continue
		}
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v interface{}) interface{} {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}
