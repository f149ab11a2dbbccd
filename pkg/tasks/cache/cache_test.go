package cache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmesh/resolver/pkg/tasks/cache"
	"github.com/taskmesh/resolver/pkg/tasks/schema"
)

func sampleTask(name, ver string) schema.PredefinedTask {
	return schema.PredefinedTask{
		Metadata: schema.PredefinedTaskMeta{Name: name, Version: ver},
	}
}

func TestInsertAndGet(t *testing.T) {
	c := cache.New(time.Minute)
	c.Insert("foo@1.0.0", sampleTask("foo", "1.0.0"), "local")

	task, ok := c.Get("foo@1.0.0")
	require.True(t, ok)
	assert.Equal(t, "foo", task.Metadata.Name)
}

func TestKeyGeneration(t *testing.T) {
	assert.Equal(t, "foo", cache.Key("foo", ""))
	assert.Equal(t, "foo@1.0.0", cache.Key("foo", "1.0.0"))
}

func TestInvalidation(t *testing.T) {
	c := cache.New(time.Minute)
	c.Insert("foo", sampleTask("foo", "1.0.0"), "local")
	c.Invalidate("foo")

	_, ok := c.Get("foo")
	assert.False(t, ok)
}

func TestClear(t *testing.T) {
	c := cache.New(time.Minute)
	c.Insert("foo", sampleTask("foo", "1.0.0"), "local")
	c.Insert("bar", sampleTask("bar", "1.0.0"), "local")
	c.Clear()

	assert.Equal(t, 0, c.Len())
}

func TestExpiration(t *testing.T) {
	c := cache.New(10 * time.Millisecond)
	c.Insert("foo", sampleTask("foo", "1.0.0"), "local")

	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("foo")
	assert.False(t, ok, "entry older than ttl must not be returned")
}

func TestEvictExpired(t *testing.T) {
	c := cache.New(10 * time.Millisecond)
	c.Insert("foo", sampleTask("foo", "1.0.0"), "local")
	c.Insert("bar", sampleTask("bar", "1.0.0"), "local")

	time.Sleep(20 * time.Millisecond)

	removed := c.EvictExpired()
	assert.Equal(t, 2, removed)
	assert.Equal(t, 0, c.Len())

	// Idempotent: running again removes nothing further.
	assert.Equal(t, 0, c.EvictExpired())
}

func TestGetSource(t *testing.T) {
	c := cache.New(time.Minute)
	c.Insert("foo", sampleTask("foo", "1.0.0"), "project-local")

	source, ok := c.GetSource("foo")
	require.True(t, ok)
	assert.Equal(t, "project-local", source)
}
