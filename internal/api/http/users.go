package http

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	authmw "github.com/cbt-exam/cbtexam/internal/auth/middleware"
	"github.com/cbt-exam/cbtexam/internal/users"
)

// GET /users?role=
func ListUsersHandler(store *users.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var roles []string
		if role := strings.TrimSpace(r.URL.Query().Get("role")); role != "" {
			roles = strings.Split(role, ",")
		}
		list, err := store.List(r.Context(), roles...)
		if err != nil {
			fail(w, log, err)
			return
		}
		if list == nil {
			list = []users.User{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// POST /users/bulk
// Accepts a JSON array body, or a multipart file= holding either a JSON array or CSV.
func BulkUpsertUsersHandler(store *users.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rows []users.Row
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
			f, _, err := r.FormFile("file")
			if err != nil {
				http.Error(w, "file required", http.StatusBadRequest)
				return
			}
			defer f.Close()
			rows, err = parseUserFile(f)
			if err != nil {
				http.Error(w, "bad file: "+err.Error(), http.StatusBadRequest)
				return
			}
		} else if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
			http.Error(w, "expected JSON array or multipart file", http.StatusBadRequest)
			return
		}

		ins, upd, err := store.BulkUpsert(r.Context(), rows)
		if err != nil {
			fail(w, log, err)
			return
		}
		log.Info("users upserted", zap.Int("inserted", ins), zap.Int("updated", upd),
			zap.String("by", authmw.SubjectFromContext(r.Context())))
		writeJSON(w, http.StatusOK, map[string]int{"inserted": ins, "updated": upd})
	}
}

// parseUserFile sniffs the first non-space byte to tell JSON from CSV.
func parseUserFile(f io.Reader) ([]users.Row, error) {
	br := bufio.NewReader(f)
	for {
		b, err := br.Peek(1)
		if err != nil {
			return nil, errors.New("empty file")
		}
		if !bytes.ContainsAny(b, " \t\r\n") {
			if b[0] == '[' {
				var rows []users.Row
				err := json.NewDecoder(br).Decode(&rows)
				return rows, err
			}
			return users.ParseCSV(br)
		}
		_, _ = br.ReadByte()
	}
}

type changePasswordReq struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// POST /users/change-password
func ChangePasswordHandler(store *users.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req changePasswordReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if err := store.ChangePassword(r.Context(), authmw.SubjectFromContext(r.Context()), req.OldPassword, req.NewPassword); err != nil {
			fail(w, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// PUT /users/{id}/role {"role": "teacher"}; {id} may also be a username.
func UpdateUserRoleHandler(store *users.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Role string `json:"role"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		u, err := store.UpdateRole(r.Context(), strings.TrimSpace(chi.URLParam(r, "id")), req.Role)
		if err != nil {
			fail(w, log, err)
			return
		}
		log.Info("role updated", zap.String("user", u.ID), zap.String("role", u.Role),
			zap.String("by", authmw.SubjectFromContext(r.Context())))
		writeJSON(w, http.StatusOK, u)
	}
}

// PUT /users/{id}/children {"child_ids": ["..."]}
func SetChildrenHandler(store *users.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ChildIDs []string `json:"child_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		parentID := chi.URLParam(r, "id")
		if err := store.SetChildren(r.Context(), parentID, req.ChildIDs); err != nil {
			fail(w, log, err)
			return
		}
		kids, err := store.Children(r.Context(), parentID)
		if err != nil {
			fail(w, log, err)
			return
		}
		if kids == nil {
			kids = []users.User{}
		}
		writeJSON(w, http.StatusOK, kids)
	}
}

// PUT /users/me/telegram {"chat_id": 123}; zero turns notifications off.
func SetTelegramHandler(store *users.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ChatID int64 `json:"chat_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if err := store.SetTelegramChatID(r.Context(), authmw.SubjectFromContext(r.Context()), req.ChatID); err != nil {
			fail(w, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
