package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cbt-exam/cbtexam/internal/users"
)

type counter struct {
	n   int
	err error
}

func (c counter) PendingCount(context.Context) (int, error) { return c.n, c.err }

type staff []users.User

func (s staff) List(_ context.Context, roles ...string) ([]users.User, error) {
	var out []users.User
	for _, u := range s {
		for _, r := range roles {
			if u.Role == r {
				out = append(out, u)
			}
		}
	}
	return out, nil
}

type recorder struct{ chats []int64 }

func (r *recorder) Send(_ context.Context, chatID int64, _ string) error {
	r.chats = append(r.chats, chatID)
	return nil
}

var people = staff{
	{ID: "t1", Role: users.RoleTeacher, TelegramChatID: 1},
	{ID: "t2", Role: users.RoleTeacher},
	{ID: "a1", Role: users.RoleAdmin, TelegramChatID: 3},
	{ID: "s1", Role: users.RoleStudent, TelegramChatID: 4},
}

func TestRunOnce(t *testing.T) {
	rec := &recorder{}
	sent, err := New(counter{n: 3}, people, rec, "", zap.NewNop()).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.ElementsMatch(t, []int64{1, 3}, rec.chats)
}

func TestRunOnceQuietWhenNothingPending(t *testing.T) {
	rec := &recorder{}
	sent, err := New(counter{}, people, rec, "", zap.NewNop()).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Empty(t, rec.chats)

	_, err = New(counter{err: errors.New("db down")}, people, rec, "", zap.NewNop()).RunOnce(context.Background())
	require.Error(t, err)
}

func TestStartRejectsBadSpec(t *testing.T) {
	err := New(counter{}, people, &recorder{}, "not a spec", zap.NewNop()).Start(context.Background())
	require.Error(t, err)
}

func TestStartStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(counter{}, people, &recorder{}, "@every 1h", zap.NewNop()).Start(ctx) }()
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("reminder did not stop")
	}
}
