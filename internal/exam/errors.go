package exam

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalid       = errors.New("invalid")
	ErrNoQuestions   = errors.New("exam has no questions")
	ErrAlreadyGraded = errors.New("result already graded")
	ErrForbidden     = errors.New("forbidden")
)
