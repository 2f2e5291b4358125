package state

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type note struct {
	Text  string `json:"text"`
	Words int    `json:"words"`
}

// v0 stored a bare string.
func fromString(data json.RawMessage) (json.RawMessage, error) {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{"text": s})
}

// v1 lacked the word count.
func countWords(data json.RawMessage) (json.RawMessage, error) {
	var n note
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, err
	}
	n.Words = len(n.Text) / 4
	return json.Marshal(n)
}

func setup(t *testing.T) (*Store[note], *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return New[note](client, "note", time.Hour, fromString, countWords), mr
}

func TestSaveLoad(t *testing.T) {
	s, mr := setup(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "n1", note{Text: "hello", Words: 1}))

	raw, err := mr.Get("otbox:note:n1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2,"data":{"text":"hello","words":1}}`, raw)
	assert.Equal(t, time.Hour, mr.TTL("otbox:note:n1"))

	got, err := s.Load(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, note{Text: "hello", Words: 1}, got)
}

func TestLoadMigrates(t *testing.T) {
	s, mr := setup(t)
	ctx := context.Background()

	mr.Set("otbox:note:old", `"abcdefgh"`)
	mr.Set("otbox:note:mid", `{"v":1,"data":{"text":"abcd"}}`)

	got, err := s.Load(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, note{Text: "abcdefgh", Words: 2}, got)

	got, err = s.Load(ctx, "mid")
	require.NoError(t, err)
	assert.Equal(t, note{Text: "abcd", Words: 1}, got)
}

func TestLoadErrors(t *testing.T) {
	s, mr := setup(t)
	ctx := context.Background()

	_, err := s.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	mr.Set("otbox:note:future", `{"v":3,"data":{}}`)
	_, err = s.Load(ctx, "future")
	assert.ErrorContains(t, err, "newer")

	mr.Set("otbox:note:broken", `{not json`)
	_, err = s.Load(ctx, "broken")
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	s, mr := setup(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "n1", note{Text: "x"}))
	require.NoError(t, s.Delete(ctx, "n1"))
	assert.False(t, mr.Exists("otbox:note:n1"))
}

func TestUpdate(t *testing.T) {
	s, mr := setup(t)
	ctx := context.Background()

	got, err := s.Update(ctx, "n1", func(n *note, found bool) error {
		assert.False(t, found)
		n.Text = "fresh"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, note{Text: "fresh"}, got)
	assert.Equal(t, time.Hour, mr.TTL("otbox:note:n1"))

	mr.Set("otbox:note:old", `"abcdefgh"`)
	got, err = s.Update(ctx, "old", func(n *note, found bool) error {
		assert.True(t, found)
		n.Words++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, note{Text: "abcdefgh", Words: 3}, got)

	raw, err := mr.Get("otbox:note:old")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2,"data":{"text":"abcdefgh","words":3}}`, raw)
}

func TestUpdateAbort(t *testing.T) {
	s, mr := setup(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "n1", note{Text: "keep"}))

	boom := errors.New("boom")
	_, err := s.Update(ctx, "n1", func(n *note, found bool) error {
		n.Text = "lost"
		return boom
	})
	assert.ErrorIs(t, err, boom)

	raw, err := mr.Get("otbox:note:n1")
	require.NoError(t, err)
	assert.Contains(t, raw, "keep")
}

func TestUpdateRetriesAfterConcurrentWrite(t *testing.T) {
	s, mr := setup(t)
	ctx := context.Background()

	other := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { other.Close() })
	writer := New[note](other, "note", time.Hour, fromString, countWords)

	require.NoError(t, s.Save(ctx, "n1", note{Text: "a", Words: 1}))

	calls := 0
	got, err := s.Update(ctx, "n1", func(n *note, found bool) error {
		calls++
		if calls == 1 {
			// Another request lands between our read and our write.
			require.NoError(t, writer.Save(ctx, "n1", note{Text: "a", Words: 10}))
		}
		n.Words++
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.Equal(t, 11, got.Words)

	stored, err := s.Load(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, 11, stored.Words)
}

func TestUpdateGivesUp(t *testing.T) {
	s, mr := setup(t)
	ctx := context.Background()

	other := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { other.Close() })
	writer := New[note](other, "note", time.Hour, fromString, countWords)

	require.NoError(t, s.Save(ctx, "n1", note{}))

	calls := 0
	_, err := s.Update(ctx, "n1", func(n *note, found bool) error {
		calls++
		require.NoError(t, writer.Save(ctx, "n1", note{Words: calls}))
		return nil
	})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, updateAttempts, calls)
}
