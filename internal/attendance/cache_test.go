package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classroll/internal/marking"
)

func TestRedisReportCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cache := NewRedisReportCache(client, time.Minute)
	ctx := context.Background()

	got, err := cache.Get(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, got, "miss")

	rep := Report{
		Session:    marking.SessionInfo{ID: 7, CourseCode: "CS101"},
		Statistics: marking.Statistics{Present: 2, Total: 3},
		Unmarked:   1,
		Percentage: 66.67,
		Students:   []ReportRow{{StudentID: 1, StudentName: "Amina Okello", Status: marking.StatusPresent}},
	}
	require.NoError(t, cache.Put(ctx, rep))
	assert.True(t, mr.Exists("classroll:report:7"))
	assert.Equal(t, time.Minute, mr.TTL("classroll:report:7"))

	got, err = cache.Get(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rep.Statistics, got.Statistics)
	assert.Equal(t, rep.Students, got.Students)

	require.NoError(t, cache.Invalidate(ctx, 7))
	got, err = cache.Get(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisReportCacheExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cache := NewRedisReportCache(client, time.Minute)
	ctx := context.Background()
	require.NoError(t, cache.Put(ctx, Report{Session: marking.SessionInfo{ID: 7}}))

	mr.FastForward(2 * time.Minute)
	got, err := cache.Get(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, got)
}
