package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func transcript() []Message {
	at := time.UnixMilli(1700000000000)
	return []Message{
		NewText(RoleUser, "qual o tempo em Curitiba agora mesmo hoje?", at),
		{Role: RoleModel, Parts: []Part{FunctionCallPart{Name: "getWeather", Args: map[string]any{"location": "Curitiba, BR"}}}, Timestamp: at},
		{Role: RoleFunction, Parts: []Part{FunctionResponsePart{Name: "getWeather", Response: map[string]any{"temperature": 18.5}}}, Timestamp: at},
		NewText(RoleModel, "Faz 18 graus.", at),
	}
}

func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, s.Append(ctx, "s1", transcript()))
	require.NoError(t, s.Append(ctx, "s1", []Message{NewText(RoleUser, "valeu", time.Time{})}))
	require.NoError(t, s.Append(ctx, "s1", nil))

	sess, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "qual o tempo em Curitiba", sess.Title)
	require.Len(t, sess.Messages, 5)
	require.Equal(t, transcript()[1].Parts, sess.Messages[1].Parts)
	require.Equal(t, transcript()[2].Parts, sess.Messages[2].Parts)
	require.Equal(t, "valeu", sess.Messages[4].Text())
	require.False(t, sess.Messages[4].Timestamp.IsZero())
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	exerciseStore(t, s)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestOpen_FallsBackToMemory(t *testing.T) {
	store, sqlite := Open(filepath.Join(t.TempDir(), "no", "such", "dir", "history.db"))
	require.Nil(t, sqlite)
	require.IsType(t, &MemoryStore{}, store)
}

func TestTitle(t *testing.T) {
	require.Equal(t, DefaultTitle, Title(nil))
	require.Equal(t, "oi", Title([]Message{NewText(RoleModel, "ignorado", time.Time{}), NewText(RoleUser, " oi ", time.Time{})}))
}
