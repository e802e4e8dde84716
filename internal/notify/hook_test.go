package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cbt-exam/cbtexam/internal/exam"
	"github.com/cbt-exam/cbtexam/internal/users"
)

type sent struct {
	chat int64
	text string
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []sent
	fail int64
}

func (f *fakeNotifier) Send(_ context.Context, chatID int64, text string) error {
	if chatID == f.fail {
		return errors.New("blocked")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, sent{chatID, text})
	return nil
}

type fakePeople struct{}

func (fakePeople) GetByID(_ context.Context, id string) (users.User, error) {
	if id == "s1" {
		return users.User{ID: "s1", Username: "ada", DisplayName: "Ada <3", TelegramChatID: 11}, nil
	}
	return users.User{}, users.ErrNotFound
}

func (fakePeople) Parents(_ context.Context, childID string) ([]users.User, error) {
	return []users.User{
		{ID: "p1", TelegramChatID: 21},
		{ID: "p2"},
		{ID: "p3", TelegramChatID: 23},
	}, nil
}

func TestResultHookNotifiesStudentAndParents(t *testing.T) {
	n := &fakeNotifier{fail: 23}
	h := NewResultHook(n, fakePeople{}, zap.NewNop())
	e := exam.Exam{Title: "Maths", PassMark: 50}

	h.ResultSubmitted(context.Background(), e, exam.Result{UserID: "s1", Status: exam.StatusPending})
	h.Wait()
	assert.Empty(t, n.msgs, "pending results stay quiet")

	h.ResultGraded(context.Background(), e, exam.Result{UserID: "s1", Status: exam.StatusGraded, Score: 7, Percentage: 70, Passed: true})
	h.Wait()
	require.Len(t, n.msgs, 2)
	assert.Equal(t, int64(11), n.msgs[0].chat)
	assert.Equal(t, int64(21), n.msgs[1].chat)
	assert.Equal(t, "<b>Maths</b>\nAda &lt;3 scored 7 (70%) and passed.", n.msgs[0].text)

	h.ResultGraded(context.Background(), e, exam.Result{UserID: "ghost", Status: exam.StatusGraded})
	h.Wait()
	assert.Len(t, n.msgs, 2)
}

func TestResultMessageWithoutPassMark(t *testing.T) {
	msg := ResultMessage("Bob", exam.Exam{Title: "Quiz"}, exam.Result{Score: 2.5, Percentage: 83.33})
	assert.Equal(t, "<b>Quiz</b>\nBob scored 2.5 (83.33%) and completed.", msg)
}

func TestNewWithoutTokenIsNoop(t *testing.T) {
	n, err := New("", zap.NewNop())
	require.NoError(t, err)
	require.IsType(t, Noop{}, n)
	require.NoError(t, n.Send(context.Background(), 1, "hi"))
}
