package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryRedis is a map-backed RedisClient
type memoryRedis struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{data: make(map[string]string)}
}

func (m *memoryRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memoryRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value.(string)
	return redis.NewStatusResult("OK", nil)
}

func (m *memoryRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (m *memoryRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := m.data[k]; ok {
			delete(m.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

type idempotencyFixture struct {
	rdb    *memoryRedis
	router *gin.Engine
	calls  int
	status int
}

func newIdempotencyFixture(required bool) *idempotencyFixture {
	f := &idempotencyFixture{rdb: newMemoryRedis(), status: http.StatusCreated}
	cfg := DefaultIdempotencyConfig(f.rdb)
	cfg.Required = required

	f.router = gin.New()
	f.router.Use(func(c *gin.Context) {
		if u := c.GetHeader("X-Test-User"); u != "" {
			c.Set(ContextKeyUserID, u)
		}
		c.Next()
	})
	f.router.POST("/purchases", Idempotency(cfg), func(c *gin.Context) {
		f.calls++
		c.JSON(f.status, gin.H{"call": f.calls})
	})
	return f
}

func (f *idempotencyFixture) post(user, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/purchases", strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestIdempotency_WithoutKeyPassesThrough(t *testing.T) {
	f := newIdempotencyFixture(false)

	f.post("u1", "", `{}`)
	f.post("u1", "", `{}`)

	assert.Equal(t, 2, f.calls)
	assert.Empty(t, f.rdb.data)
}

func TestIdempotency_RequiredKey(t *testing.T) {
	f := newIdempotencyFixture(true)

	w := f.post("u1", "", `{}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "MISSING_IDEMPOTENCY_KEY")
	assert.Zero(t, f.calls)
}

func TestIdempotency_ReplaysCompletedResponse(t *testing.T) {
	f := newIdempotencyFixture(false)

	first := f.post("u1", "key-1", `{"quantity":2}`)
	second := f.post("u1", "key-1", `{"quantity":2}`)

	assert.Equal(t, 1, f.calls)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Empty(t, first.Header().Get("Idempotent-Replayed"))
}

func TestIdempotency_KeyReusedWithDifferentBody(t *testing.T) {
	f := newIdempotencyFixture(false)

	f.post("u1", "key-1", `{"quantity":2}`)
	w := f.post("u1", "key-1", `{"quantity":3}`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "IDEMPOTENCY_KEY_REUSED")
	assert.Equal(t, 1, f.calls)
}

func TestIdempotency_InFlightRequestConflicts(t *testing.T) {
	f := newIdempotencyFixture(false)
	body := `{"quantity":2}`

	rec := &IdempotencyRecord{
		Key:         "key-1",
		Status:      StatusProcessing,
		RequestHash: hashRequest(http.MethodPost, "/purchases", "u1", []byte(body)),
		CreatedAt:   time.Now(),
	}
	require.True(t, trySetRecord(context.Background(), f.rdb, IdempotencyKeyPrefix+"u1:key-1", rec, time.Minute))

	w := f.post("u1", "key-1", body)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "REQUEST_IN_PROGRESS")
	assert.Zero(t, f.calls)
}

func TestIdempotency_ServerErrorsAreNotStored(t *testing.T) {
	f := newIdempotencyFixture(false)
	f.status = http.StatusBadGateway

	f.post("u1", "key-1", `{}`)
	w := f.post("u1", "key-1", `{}`)

	assert.Equal(t, 2, f.calls)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Empty(t, f.rdb.data)
}

func TestIdempotency_KeysAreScopedPerUser(t *testing.T) {
	f := newIdempotencyFixture(false)

	f.post("u1", "key-1", `{}`)
	w := f.post("u2", "key-1", `{}`)

	assert.Equal(t, 2, f.calls)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, f.rdb.data, 2)
}
