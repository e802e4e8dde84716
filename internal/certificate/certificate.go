// Package certificate renders completion certificates as PDF.
package certificate

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-pdf/fpdf"
	"go.uber.org/zap"

	"github.com/cbt-exam/cbtexam/internal/exam"
	"github.com/cbt-exam/cbtexam/internal/storage"
)

const DefaultDateFormat = "January 2, 2006"

const defaultTitle = "Certificate of Completion"

type Renderer struct {
	blobs      storage.BlobStore
	dateFormat string
	log        *zap.Logger
}

// NewRenderer returns a renderer that caches PDFs in blobs when it is not nil.
func NewRenderer(blobs storage.BlobStore, dateFormat string, log *zap.Logger) *Renderer {
	if dateFormat == "" {
		dateFormat = DefaultDateFormat
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Renderer{blobs: blobs, dateFormat: dateFormat, log: log}
}

// CacheKey is the blob key of the certificate for d. It changes whenever the rendered
// title or body would.
func (r *Renderer) CacheKey(d exam.CertificateData) string {
	title, body := r.text(d)
	sum := sha256.Sum256([]byte(title + "\x00" + body))
	return "certificates/" + d.Result.ID + "/" + hex.EncodeToString(sum[:8]) + ".pdf"
}

// PDF returns the certificate for d, rendering and caching it on first use.
func (r *Renderer) PDF(d exam.CertificateData) ([]byte, error) {
	key := r.CacheKey(d)
	if r.blobs != nil {
		rc, err := r.blobs.Get(key)
		if err == nil {
			defer rc.Close()
			return io.ReadAll(rc)
		}
		if !errors.Is(err, storage.ErrNotFound) {
			r.log.Warn("certificate cache read failed", zap.String("key", key), zap.Error(err))
		}
	}
	out, err := r.render(d)
	if err != nil {
		return nil, err
	}
	if r.blobs != nil {
		if _, err := r.blobs.Put(key, bytes.NewReader(out)); err != nil {
			r.log.Warn("certificate cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return out, nil
}

// Fill substitutes the body placeholders.
func (r *Renderer) Fill(body string, d exam.CertificateData) string {
	completed := d.Result.SubmittedAt
	if d.Result.GradedAt != nil {
		completed = *d.Result.GradedAt
	}
	return strings.NewReplacer(
		"[student_name]", d.StudentName,
		"[exam_name]", d.Exam.Title,
		"[completion_date]", completed.Format(r.dateFormat),
		"[score]", d.Score,
		"[percentage]", d.Percentage,
	).Replace(body)
}

func (r *Renderer) text(d exam.CertificateData) (title, body string) {
	title = d.Exam.Certificate.Title
	if title == "" {
		title = defaultTitle
	}
	body = d.Exam.Certificate.Body
	if body == "" {
		body = "This certifies that [student_name] completed [exam_name] on [completion_date] with a score of [score] ([percentage])."
	}
	return title, r.Fill(body, d)
}

func (r *Renderer) render(d exam.CertificateData) ([]byte, error) {
	title, body := r.text(d)

	pdf := fpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(title, true)
	pdf.SetCreationDate(d.Result.SubmittedAt)
	pdf.AddPage()
	pdf.SetLineWidth(1.5)
	pdf.Rect(10, 10, 277, 190, "D")
	pdf.SetY(55)
	pdf.SetFont("Helvetica", "B", 30)
	pdf.CellFormat(0, 16, tr(title), "", 1, "C", false, 0, "")
	pdf.Ln(12)
	pdf.SetFont("Helvetica", "", 16)
	pdf.SetX(30)
	pdf.MultiCell(237, 9, tr(body), "", "C", false)
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render certificate: %w", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render certificate: %w", err)
	}
	return buf.Bytes(), nil
}
