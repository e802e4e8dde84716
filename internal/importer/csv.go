// Package importer loads questions in bulk from CSV files.
//
// Columns, after a header row that is skipped:
//
//	title, content, type, options (a|b|c), correct index, time limit (s), subject, topic, class level[, max points]
package importer

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cbt-exam/cbtexam/internal/exam"
	"github.com/cbt-exam/cbtexam/internal/storage"
)

const EventQuestionsImported = "QuestionsImported"

const minColumns = 9

// QuestionCreator validates and stores one question.
type QuestionCreator interface {
	CreateQuestion(ctx context.Context, q exam.Question) (exam.Question, error)
}

type RowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

type Report struct {
	Imported   int        `json:"imported"`
	Failed     int        `json:"failed"`
	Errors     []RowError `json:"errors,omitempty"`
	ArchiveKey string     `json:"archive_key,omitempty"`
}

type Importer struct {
	questions QuestionCreator
	blobs     storage.BlobStore
	events    exam.EventSink
	log       *zap.Logger
	now       func() time.Time
}

// New builds an importer. blobs and events may be nil.
func New(questions QuestionCreator, blobs storage.BlobStore, events exam.EventSink, log *zap.Logger) *Importer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Importer{questions: questions, blobs: blobs, events: events, log: log, now: time.Now}
}

// Import archives the upload, then creates one question per row. Bad rows are counted and
// reported; only unreadable input or an archive failure is an error.
func (im *Importer) Import(ctx context.Context, r io.Reader) (Report, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Report{}, fmt.Errorf("read upload: %w", err)
	}
	var rep Report
	if im.blobs != nil {
		key := fmt.Sprintf("imports/%s.csv", im.now().UTC().Format("20060102T150405.000000000"))
		if rep.ArchiveKey, err = im.blobs.Put(key, bytes.NewReader(raw)); err != nil {
			return Report{}, fmt.Errorf("archive upload: %w", err)
		}
	}

	cr := csv.NewReader(bytes.NewReader(raw))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return rep, nil
		}
		return Report{}, fmt.Errorf("read header: %w", err)
	}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line, _ := cr.FieldPos(0)
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return rep, err
			}
			rep.fail(pe.Line, pe.Err.Error())
			continue
		}
		q, err := parseRow(rec)
		if err != nil {
			rep.fail(line, err.Error())
			continue
		}
		if _, err := im.questions.CreateQuestion(ctx, q); err != nil {
			rep.fail(line, err.Error())
			continue
		}
		rep.Imported++
	}

	im.log.Info("questions imported", zap.Int("imported", rep.Imported), zap.Int("failed", rep.Failed),
		zap.String("archive", rep.ArchiveKey))
	if im.events != nil {
		if err := im.events.Append(ctx, EventQuestionsImported, rep.ArchiveKey, rep); err != nil {
			im.log.Warn("event append failed", zap.Error(err))
		}
	}
	return rep, nil
}

func (rep *Report) fail(line int, msg string) {
	rep.Failed++
	rep.Errors = append(rep.Errors, RowError{Line: line, Message: msg})
}

func parseRow(rec []string) (exam.Question, error) {
	if len(rec) < minColumns {
		return exam.Question{}, fmt.Errorf("expected at least %d columns, got %d", minColumns, len(rec))
	}
	for i := range rec {
		rec[i] = strings.TrimSpace(rec[i])
	}
	q := exam.Question{
		Title:      rec[0],
		Content:    rec[1],
		Type:       strings.ToLower(rec[2]),
		Subject:    rec[6],
		Topic:      rec[7],
		ClassLevel: rec[8],
	}
	if q.Type == exam.TypeObjective {
		if rec[3] != "" {
			q.Options = strings.Split(rec[3], "|")
		}
		if rec[4] != "" {
			idx, err := strconv.Atoi(rec[4])
			if err != nil {
				return exam.Question{}, fmt.Errorf("correct index %q: %w", rec[4], err)
			}
			q.CorrectAnswer = &idx
		}
	}
	if rec[5] != "" {
		secs, err := strconv.Atoi(rec[5])
		if err != nil {
			return exam.Question{}, fmt.Errorf("time limit %q: %w", rec[5], err)
		}
		q.TimeLimitSec = secs
	}
	if len(rec) > minColumns && rec[minColumns] != "" && q.Type == exam.TypeTheory {
		pts, err := strconv.ParseFloat(rec[minColumns], 64)
		if err != nil {
			return exam.Question{}, fmt.Errorf("max points %q: %w", rec[minColumns], err)
		}
		q.MaxPoints = pts
	}
	return q, nil
}
