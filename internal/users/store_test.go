package users

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/cbt-exam/cbtexam/internal/db"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	HashCost = bcrypt.MinCost
	conn, err := db.Open(context.Background(), db.DriverSQLite, db.MemoryDSN(t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewStore(conn)
}

func TestBulkUpsertAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ins, upd, err := s.BulkUpsert(ctx, []Row{
		{ID: "s1", Username: "ada", DisplayName: "Ada L", Password: "pw1"},
		{ID: "t1", Username: "grace", Role: "Teacher", Password: "pw2"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, ins)
	require.Zero(t, upd)

	u, err := s.Authenticate(ctx, "ada", "pw1")
	require.NoError(t, err)
	require.Equal(t, RoleStudent, u.Role)
	require.Equal(t, "Ada L", u.Name())

	_, err = s.Authenticate(ctx, "ada", "nope")
	require.ErrorIs(t, err, ErrBadPassword)

	_, upd, err = s.BulkUpsert(ctx, []Row{{ID: "s1", Username: "ada", Role: "student"}})
	require.NoError(t, err)
	require.Equal(t, 1, upd)
	_, err = s.Authenticate(ctx, "ada", "pw1")
	require.NoError(t, err, "password kept when not supplied")

	_, _, err = s.BulkUpsert(ctx, []Row{{ID: "x", Username: "nopass"}})
	require.ErrorIs(t, err, ErrInvalid)
	_, err = s.GetByUsername(ctx, "nopass")
	require.ErrorIs(t, err, ErrNotFound)

	_, _, err = s.BulkUpsert(ctx, []Row{{Username: "bad", Role: "janitor", Password: "x"}})
	require.ErrorIs(t, err, ErrInvalid)
}

func TestListByRole(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, _, err := s.BulkUpsert(ctx, []Row{
		{Username: "b", Role: RoleTeacher, Password: "x"},
		{Username: "a", Role: RoleStudent, Password: "x"},
		{Username: "c", Role: RoleAdmin, Password: "x"},
	})
	require.NoError(t, err)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "a", all[0].Username)

	staff, err := s.List(ctx, RoleTeacher, RoleAdmin)
	require.NoError(t, err)
	require.Len(t, staff, 2)
}

func TestUpdateRoleKeepsLastAdmin(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, _, err := s.BulkUpsert(ctx, []Row{{ID: "a1", Username: "root", Role: RoleAdmin, Password: "x"}})
	require.NoError(t, err)

	_, err = s.UpdateRole(ctx, "root", RoleTeacher)
	require.ErrorIs(t, err, ErrLastAdmin)

	_, _, err = s.BulkUpsert(ctx, []Row{{ID: "a2", Username: "root2", Role: RoleAdmin, Password: "x"}})
	require.NoError(t, err)
	u, err := s.UpdateRole(ctx, "a1", RoleTeacher)
	require.NoError(t, err)
	require.Equal(t, RoleTeacher, u.Role)

	_, err = s.UpdateRole(ctx, "a2", "wizard")
	require.ErrorIs(t, err, ErrInvalid)
	_, err = s.UpdateRole(ctx, "ghost", RoleStudent)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBulkUpsertKeepsRoleAndLastAdmin(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	hash, err := HashPassword("secret")
	require.NoError(t, err)
	_, err = s.EnsureAdmin(ctx, "root", hash)
	require.NoError(t, err)
	_, _, err = s.BulkUpsert(ctx, []Row{{ID: "t1", Username: "grace", Role: RoleTeacher, Password: "x"}})
	require.NoError(t, err)

	_, upd, err := s.BulkUpsert(ctx, []Row{
		{Username: "root", DisplayName: "Root"},
		{Username: "grace", DisplayName: "Grace H"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, upd)
	u, err := s.GetByUsername(ctx, "root")
	require.NoError(t, err)
	require.Equal(t, RoleAdmin, u.Role)
	require.Equal(t, "Root", u.DisplayName)
	u, err = s.GetByUsername(ctx, "grace")
	require.NoError(t, err)
	require.Equal(t, RoleTeacher, u.Role)

	_, _, err = s.BulkUpsert(ctx, []Row{{Username: "root", Role: RoleStudent}})
	require.ErrorIs(t, err, ErrLastAdmin)
	u, err = s.GetByUsername(ctx, "root")
	require.NoError(t, err)
	require.Equal(t, RoleAdmin, u.Role)

	_, _, err = s.BulkUpsert(ctx, []Row{
		{Username: "grace", Role: RoleAdmin},
		{Username: "root", Role: RoleTeacher},
	})
	require.NoError(t, err, "another admin exists within the same batch")
	u, err = s.GetByUsername(ctx, "root")
	require.NoError(t, err)
	require.Equal(t, RoleTeacher, u.Role)
}

func TestChildrenLinks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, _, err := s.BulkUpsert(ctx, []Row{
		{ID: "p1", Username: "mum", Role: RoleParent, Password: "x"},
		{ID: "s1", Username: "kid1", Password: "x"},
		{ID: "s2", Username: "kid2", Password: "x"},
		{ID: "t1", Username: "teach", Role: RoleTeacher, Password: "x"},
	})
	require.NoError(t, err)

	require.NoError(t, s.SetChildren(ctx, "p1", []string{"s2", "s1", "s2"}))
	kids, err := s.Children(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, kids, 2)
	require.Equal(t, "s2", kids[0].ID)

	parents, err := s.Parents(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, parents, 1)
	require.Equal(t, "p1", parents[0].ID)

	require.ErrorIs(t, s.SetChildren(ctx, "p1", []string{"t1"}), ErrInvalid)
	require.ErrorIs(t, s.SetChildren(ctx, "s1", nil), ErrInvalid)
	require.ErrorIs(t, s.SetChildren(ctx, "p1", []string{"zz"}), ErrNotFound)

	kids, err = s.Children(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, kids, 2, "failed update leaves links untouched")
}

func TestChangePasswordAndTelegram(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, _, err := s.BulkUpsert(ctx, []Row{{ID: "s1", Username: "ada", Password: "old"}})
	require.NoError(t, err)

	require.ErrorIs(t, s.ChangePassword(ctx, "s1", "wrong", "new"), ErrBadPassword)
	require.ErrorIs(t, s.ChangePassword(ctx, "s1", "old", ""), ErrInvalid)
	require.NoError(t, s.ChangePassword(ctx, "s1", "old", "new"))
	_, err = s.Authenticate(ctx, "ada", "new")
	require.NoError(t, err)

	require.NoError(t, s.SetTelegramChatID(ctx, "s1", 4242))
	u, err := s.GetByID(ctx, "s1")
	require.NoError(t, err)
	require.EqualValues(t, 4242, u.TelegramChatID)
	require.ErrorIs(t, s.SetTelegramChatID(ctx, "nobody", 1), ErrNotFound)
}

func TestEnsureAdmin(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	hash, err := HashPassword("secret")
	require.NoError(t, err)

	created, err := s.EnsureAdmin(ctx, "admin", hash)
	require.NoError(t, err)
	require.True(t, created)
	created, err = s.EnsureAdmin(ctx, "admin", hash)
	require.NoError(t, err)
	require.False(t, created)

	u, err := s.Authenticate(ctx, "admin", "secret")
	require.NoError(t, err)
	require.Equal(t, RoleAdmin, u.Role)
}

func TestParseCSV(t *testing.T) {
	in := "ID,Username,Role,Password,Display_Name\ns1,ada,STUDENT,pw,Ada L\nt1,grace,teacher,,\n"
	rows, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, Row{ID: "s1", Username: "ada", Role: "student", Password: "pw", DisplayName: "Ada L"}, rows[0])
	require.Empty(t, rows[1].Password)

	_, err = ParseCSV(strings.NewReader("id,username\n1,a\n"))
	require.Error(t, err)
}
