package certificate

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbt-exam/cbtexam/internal/exam"
	"github.com/cbt-exam/cbtexam/internal/storage"
)

func sampleData() exam.CertificateData {
	graded := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	return exam.CertificateData{
		Exam: exam.Exam{ID: "e1", Title: "Biology 101", Certificate: exam.Certificate{
			Enabled: true, Title: "Certificate", Body: "[student_name] passed [exam_name] on [completion_date] with [score] ([percentage]).",
		}},
		Result:      exam.Result{ID: "r1", SubmittedAt: graded.Add(-time.Hour), GradedAt: &graded, Passed: true},
		StudentName: "Ada Lovelace",
		Score:       "35",
		Percentage:  "87.5%",
	}
}

func TestFill(t *testing.T) {
	r := NewRenderer(nil, "", nil)
	d := sampleData()
	assert.Equal(t, "Ada Lovelace passed Biology 101 on May 4, 2026 with 35 (87.5%).", r.Fill(d.Exam.Certificate.Body, d))

	r = NewRenderer(nil, "2006-01-02", nil)
	d.Result.GradedAt = nil
	assert.Equal(t, "2026-05-04", r.Fill("[completion_date]", d))
}

func TestPDFIsCached(t *testing.T) {
	blobs, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)
	r := NewRenderer(blobs, "", nil)

	out, err := r.PDF(sampleData())
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, []byte("%PDF-")))

	rc, err := blobs.Get(r.CacheKey(sampleData()))
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	again, err := r.PDF(sampleData())
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestCacheKeyFollowsCertificateText(t *testing.T) {
	r := NewRenderer(nil, "", nil)
	d := sampleData()
	key := r.CacheKey(d)
	assert.Equal(t, key, r.CacheKey(sampleData()))

	renamed := sampleData()
	renamed.StudentName = "Ada King"
	assert.NotEqual(t, key, r.CacheKey(renamed))

	retitled := sampleData()
	retitled.Exam.Certificate.Title = "Award"
	assert.NotEqual(t, key, r.CacheKey(retitled))

	rewritten := sampleData()
	rewritten.Exam.Certificate.Body = "[student_name] did it"
	assert.NotEqual(t, key, r.CacheKey(rewritten))
}

func TestPDFDefaultsTitleAndBody(t *testing.T) {
	d := sampleData()
	d.Exam.Certificate = exam.Certificate{Enabled: true}
	out, err := NewRenderer(nil, "", nil).PDF(d)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}
