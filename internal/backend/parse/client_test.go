package parse

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grocerysync/config"
	"grocerysync/internal/backend"
	"grocerysync/internal/core/models"
	"grocerysync/pkg/logger"
)

// fakeParse is a minimal Parse Server for one class.
type fakeParse struct {
	mu      sync.Mutex
	objects map[string]map[string]interface{}
	headers []http.Header
	lastPut map[string]interface{}
}

func newFakeParse() *fakeParse {
	return &fakeParse{objects: map[string]map[string]interface{}{}}
}

func (f *fakeParse) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headers = append(f.headers, r.Header.Clone())

	if r.URL.Path == "/parse/login" {
		if r.URL.Query().Get("password") != "pw" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":101,"error":"Invalid username/password."}`))
			return
		}
		_, _ = w.Write([]byte(`{"objectId":"u1","sessionToken":"r:abc"}`))
		return
	}
	if r.Header.Get("X-Parse-Session-Token") != "r:abc" {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":209,"error":"invalid session token"}`))
		return
	}

	const classPath = "/parse/classes/Tag"
	switch {
	case r.Method == http.MethodGet && r.URL.Path == classPath:
		var where map[string]interface{}
		_ = json.Unmarshal([]byte(r.URL.Query().Get("where")), &where)
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		after := ""
		if gt, ok := where["objectId"].(map[string]interface{}); ok {
			after, _ = gt["$gt"].(string)
		}
		ids := make([]string, 0)
		for id, obj := range f.objects {
			if id <= after {
				continue
			}
			if key, ok := where["key"]; ok && obj["key"] != key {
				continue
			}
			ids = append(ids, id)
		}
		sort.Strings(ids)
		if len(ids) > limit {
			ids = ids[:limit]
		}
		results := make([]map[string]interface{}, 0, len(ids))
		for _, id := range ids {
			results = append(results, f.objects[id])
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"results": results})
	case r.Method == http.MethodPost && r.URL.Path == classPath:
		body, _ := io.ReadAll(r.Body)
		obj := map[string]interface{}{}
		_ = json.Unmarshal(body, &obj)
		id := "o" + strconv.Itoa(len(f.objects)+1)
		obj["objectId"] = id
		f.objects[id] = obj
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"objectId":"` + id + `","createdAt":"2024-01-01T00:00:00.000Z"}`))
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.lastPut = map[string]interface{}{}
		_ = json.Unmarshal(body, &f.lastPut)
		_, _ = w.Write([]byte(`{"updatedAt":"2024-01-01T00:00:00.000Z"}`))
	case r.Method == http.MethodGet:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":101,"error":"Object not found."}`))
	case r.Method == http.MethodDelete:
		_, _ = w.Write([]byte(`{}`))
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func newTestClient(t *testing.T, srv *httptest.Server, useMasterKey bool) *Client {
	t.Helper()
	cfg := config.Default().Backend.Parse
	cfg.ServerURL = srv.URL + "/parse"
	cfg.PageSize = 2
	cfg.RequestTimeout = 5 * time.Second
	cfg.UseMasterKey = useMasterKey
	return NewClient(cfg, logger.NewNop())
}

func TestLogInAndHeaders(t *testing.T) {
	fake := newFakeParse()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	c := newTestClient(t, srv, false)
	ctx := context.Background()

	_, err := c.LogIn(ctx, "crawler", "bad")
	assert.ErrorIs(t, err, backend.ErrNotFound)

	cred, err := c.LogIn(ctx, "crawler", "pw")
	require.NoError(t, err)
	assert.Equal(t, backend.Credential{Token: "r:abc", UserID: "u1"}, cred)

	h := fake.headers[len(fake.headers)-1]
	assert.Equal(t, "app_id", h.Get("X-Parse-Application-Id"))
	assert.Equal(t, "javascript_key", h.Get("X-Parse-Javascript-Key"))
	assert.Empty(t, h.Get("X-Parse-Master-Key"))
}

func TestMasterKeyOnlyWhenEnabled(t *testing.T) {
	fake := newFakeParse()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	c := newTestClient(t, srv, true)

	_, _ = c.LogIn(context.Background(), "crawler", "pw")
	assert.Equal(t, "master_key", fake.headers[0].Get("X-Parse-Master-Key"))
}

func TestInvalidSessionIsUnauthorized(t *testing.T) {
	srv := httptest.NewServer(newFakeParse())
	defer srv.Close()
	c := newTestClient(t, srv, false)

	_, err := c.Search(context.Background(), models.ClassTag, backend.Criteria{}, backend.Credential{Token: "stale"})
	assert.ErrorIs(t, err, backend.ErrUnauthorized)
}

func TestCreateSearchAllUpdateDelete(t *testing.T) {
	fake := newFakeParse()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	c := newTestClient(t, srv, false)
	ctx := context.Background()
	cred := backend.Credential{Token: "r:abc"}

	repo := backend.NewRepository[models.Tag](c, models.ClassTag)
	for _, key := range []string{"dairy", "bakery", "meat", "fruit", "frozen"} {
		_, err := repo.Create(ctx, models.Tag{Key: key, Level: 1, ForDisplay: true}, nil, cred)
		require.NoError(t, err)
	}

	cur := repo.SearchAll(ctx, backend.Criteria{}, cred)
	var keys []string
	for cur.Next(ctx) {
		tag, err := repo.Decode(cur.Record())
		require.NoError(t, err)
		keys = append(keys, tag.Key)
	}
	require.NoError(t, cur.Err())
	assert.ElementsMatch(t, []string{"dairy", "bakery", "meat", "fruit", "frozen"}, keys)

	found, err := repo.Search(ctx, backend.Where("key", "meat"), cred)
	require.NoError(t, err)
	require.Len(t, found, 1)

	tag := found[0]
	tag.Name = ""
	require.NoError(t, repo.Update(ctx, tag, cred, "name"))
	assert.Equal(t, map[string]interface{}{"__op": "Delete"}, fake.lastPut["name"])
	assert.NotContains(t, fake.lastPut, "objectId")

	_, err = repo.Read(ctx, "missing", cred)
	assert.ErrorIs(t, err, backend.ErrNotFound)

	assert.NoError(t, repo.Delete(ctx, tag.ObjectID, cred))
}

func TestWhereIncludesExistsAndKeyset(t *testing.T) {
	w := where(backend.Where("storeId", "s1").Without("imageUrl"), "abc")
	assert.Equal(t, "s1", w["storeId"])
	assert.Equal(t, map[string]interface{}{"$exists": false}, w["imageUrl"])
	assert.Equal(t, map[string]interface{}{"$gt": "abc"}, w["objectId"])
}
