package detection

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/SessionHost/internal/domain/events"
)

type collected struct {
	mu       sync.Mutex
	launched []events.Launched
	closed   []events.Closed
	post     []events.PostSession
}

func (c *collected) attach(f *Feed) {
	f.OnLaunched(func(ev events.Launched) {
		c.mu.Lock()
		c.launched = append(c.launched, ev)
		c.mu.Unlock()
	})
	f.OnClosed(func(ev events.Closed) {
		c.mu.Lock()
		c.closed = append(c.closed, ev)
		c.mu.Unlock()
	})
	f.OnPostSession(func(ev events.PostSession) {
		c.mu.Lock()
		c.post = append(c.post, ev)
		c.mu.Unlock()
	})
}

func (c *collected) counts() (int, int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.launched), len(c.closed), len(c.post)
}

func TestFeedRejectsBeforeStart(t *testing.T) {
	f := NewFeed(nil)
	c := &collected{}
	c.attach(f)

	assert.ErrorIs(t, f.Publish(events.KindLaunched, 7, "Foo"), ErrNotStarted)
	l, _, _ := c.counts()
	assert.Zero(t, l)
}

func TestFeedDeliversByKind(t *testing.T) {
	f := NewFeed(nil)
	c := &collected{}
	c.attach(f)
	require.NoError(t, f.Start())
	assert.True(t, f.Started())

	require.NoError(t, f.Publish(events.KindLaunched, 7, "Foo"))
	require.NoError(t, f.Publish(events.KindPostSession, 0, "Foo"))
	require.NoError(t, f.Publish(events.KindClosed, 7, "Foo"))

	assert.Equal(t, []events.Launched{{ID: 7, Name: "Foo"}}, c.launched)
	assert.Equal(t, []events.Closed{{ID: 7, Name: "Foo"}}, c.closed)
	assert.Equal(t, []events.PostSession{{Name: "Foo"}}, c.post)

	assert.ErrorIs(t, f.Publish("exploded", 7, "Foo"), ErrUnknownKind)
}

func TestFeedKeepsOneListenerPerKind(t *testing.T) {
	f := NewFeed(nil)
	require.NoError(t, f.Start())

	first, second := 0, 0
	f.OnLaunched(func(events.Launched) { first++ })
	f.OnLaunched(func(events.Launched) { second++ })

	require.NoError(t, f.Publish(events.KindLaunched, 7, "Foo"))
	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)
}

func writeEvent(t *testing.T, dir, name, body string) {
	t.Helper()
	tmp := filepath.Join(dir, "."+name+".tmp")
	require.NoError(t, os.WriteFile(tmp, []byte(body), 0o644))
	require.NoError(t, os.Rename(tmp, filepath.Join(dir, name)))
}

func TestSpoolWatcherDrainsAndWatches(t *testing.T) {
	dir := t.TempDir()
	feed := NewFeed(nil)
	c := &collected{}
	c.attach(feed)
	require.NoError(t, feed.Start())

	// present before the watcher starts
	writeEvent(t, dir, "0001.json", `{"event":"launched","id":7,"name":"Foo"}`)

	w, err := NewSpoolWatcher(dir, feed, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		l, _, _ := c.counts()
		return l == 1
	}, 2*time.Second, 10*time.Millisecond)

	writeEvent(t, dir, "0002.json", `{"event":"closed","id":7,"name":"Foo"}`)
	require.Eventually(t, func() bool {
		_, cl, _ := c.counts()
		return cl == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, events.Closed{ID: 7, Name: "Foo"}, c.closed[0])
	assert.NoFileExists(t, filepath.Join(dir, "0001.json"))
	assert.NoFileExists(t, filepath.Join(dir, "0002.json"))
}

func TestSpoolWatcherRejectsMalformed(t *testing.T) {
	dir := t.TempDir()
	feed := NewFeed(nil)
	require.NoError(t, feed.Start())

	w, err := NewSpoolWatcher(dir, feed, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	writeEvent(t, dir, "0001.json", `{not json`)

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, "0001.json.rejected"))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSpoolWatcherKeepsUnpublishedEvents(t *testing.T) {
	dir := t.TempDir()
	feed := NewFeed(nil)
	c := &collected{}
	c.attach(feed)
	require.NoError(t, feed.Start())

	w, err := NewSpoolWatcher(dir, feed, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	writeEvent(t, dir, "0001.json", `{"event":"paused","id":7,"name":"Foo"}`)

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, "0001.json.rejected"))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	data, err := os.ReadFile(filepath.Join(dir, "0001.json.rejected"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"paused"`)
	l, cl, p := c.counts()
	assert.Zero(t, l+cl+p)
}
