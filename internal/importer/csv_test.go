package importer

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbt-exam/cbtexam/internal/exam"
	"github.com/cbt-exam/cbtexam/internal/storage"
)

type events struct{ keys []string }

func (e *events) Append(_ context.Context, typ, key string, _ any) error {
	e.keys = append(e.keys, typ+":"+key)
	return nil
}

const sample = `title,content,type,options,correct,time_limit,subject,topic,class_level,max_points
2+2,,objective,3|4|5,1,30,maths,arithmetic,JSS1
Explain gravity,In your own words,theory,,,,physics,forces,SS2,10
Broken,,objective,only-one,0,,maths,,JSS1
Weird,,matching,,,,,,
Short row,,objective
Bad index,,objective,a|b,x,,,,
`

func TestImport(t *testing.T) {
	ctx := context.Background()
	svc := exam.NewService(exam.NewInMemoryStore(), exam.Options{})
	blobs, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)
	ev := &events{}

	rep, err := New(svc, blobs, ev, nil).Import(ctx, strings.NewReader(sample))
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Imported)
	assert.Equal(t, 4, rep.Failed)
	require.Len(t, rep.Errors, 4)
	assert.Equal(t, 4, rep.Errors[0].Line)

	qs, err := svc.ListQuestions(ctx, exam.QuestionListOpts{})
	require.NoError(t, err)
	require.Len(t, qs, 2)
	byTitle := map[string]exam.Question{}
	for _, q := range qs {
		byTitle[q.Title] = q
	}
	obj := byTitle["2+2"]
	assert.Equal(t, []string{"3", "4", "5"}, obj.Options)
	require.NotNil(t, obj.CorrectAnswer)
	assert.Equal(t, 1, *obj.CorrectAnswer)
	assert.Equal(t, 30, obj.TimeLimitSec)
	assert.Equal(t, "arithmetic", obj.Topic)
	essay := byTitle["Explain gravity"]
	assert.Equal(t, exam.TypeTheory, essay.Type)
	assert.Equal(t, 10.0, essay.MaxPoints)

	rc, err := blobs.Get(rep.ArchiveKey)
	require.NoError(t, err)
	archived, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, sample, string(archived))
	assert.Equal(t, []string{EventQuestionsImported + ":" + rep.ArchiveKey}, ev.keys)
}

func TestImportEmpty(t *testing.T) {
	svc := exam.NewService(exam.NewInMemoryStore(), exam.Options{})
	rep, err := New(svc, nil, nil, nil).Import(context.Background(), strings.NewReader(""))
	require.NoError(t, err)
	assert.Zero(t, rep.Imported)
	assert.Zero(t, rep.Failed)
}
