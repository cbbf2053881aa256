package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/pdftest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	meta, err := NewSQLiteStorage(filepath.Join(dir, "db", "documents.db"))
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewStore(filepath.Join(dir, "uploads"), meta, extract.NewExtractor())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_SaveListDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc, err := s.Save(ctx, "reports/a.pdf", pdftest.Build("one", "two", "three"))
	if err != nil {
		t.Fatal(err)
	}
	if doc.Filename != "a.pdf" || doc.Pages != 3 || doc.Size == 0 {
		t.Errorf("doc = %+v", doc)
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), "a.pdf")); err != nil {
		t.Errorf("file not stored: %v", err)
	}
	if _, err := s.Save(ctx, "b.pdf", pdftest.Build("only")); err != nil {
		t.Fatal(err)
	}

	docs, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 || docs[0].Filename != "a.pdf" || docs[1].Filename != "b.pdf" {
		t.Fatalf("List = %v", docs)
	}
	if !s.Exists(ctx, "a.pdf") {
		t.Error("a.pdf should exist")
	}

	if err := s.Delete(ctx, "a.pdf"); err != nil {
		t.Fatal(err)
	}
	if s.Exists(ctx, "a.pdf") {
		t.Error("a.pdf should be gone")
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), "a.pdf")); !os.IsNotExist(err) {
		t.Error("file should be removed")
	}
	if err := s.Delete(ctx, "a.pdf"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if n, _ := s.Count(ctx); n != 1 {
		t.Errorf("Count = %d", n)
	}
}

func TestStore_SaveReplacesSameName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.Save(ctx, "a.pdf", pdftest.Build("one")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save(ctx, "a.pdf", pdftest.Build("one", "two")); err != nil {
		t.Fatal(err)
	}
	doc, err := s.Get(ctx, "a.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Pages != 2 {
		t.Errorf("pages = %d, want 2", doc.Pages)
	}
}

func TestStore_RejectsNonPDFAndCorrupt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, "notes.pdf", []byte("just some text"))
	if !errors.Is(err, models.ErrNotPDF) {
		t.Errorf("expected ErrNotPDF, got %v", err)
	}
	_, err = s.Save(ctx, "broken.pdf", []byte("%PDF-1.4\nthis is not really a pdf"))
	var ee *models.ExtractionError
	if !errors.As(err, &ee) {
		t.Errorf("expected ExtractionError, got %v", err)
	}
	_, err = s.Save(ctx, "../..", pdftest.Build("x"))
	if !errors.Is(err, ErrInvalidName) {
		t.Errorf("expected ErrInvalidName, got %v", err)
	}
	docs, _ := s.List(ctx)
	if len(docs) != 0 {
		t.Errorf("rejected files must not be listed: %v", docs)
	}
}

func TestStore_OpenAndRegister(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	content := pdftest.Build("hello")
	if _, err := s.Save(ctx, "a.pdf", content); err != nil {
		t.Fatal(err)
	}
	f, doc, err := s.Open(ctx, "a.pdf")
	if err != nil {
		t.Fatal(err)
	}
	got, _ := io.ReadAll(f)
	f.Close()
	if string(got) != string(content) || doc.Filename != "a.pdf" {
		t.Error("Open returned wrong content")
	}
	if _, _, err := s.Open(ctx, "missing.pdf"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	dropped := filepath.Join(s.Dir(), "dropped.pdf")
	if err := os.WriteFile(dropped, pdftest.Build("p1", "p2"), 0644); err != nil {
		t.Fatal(err)
	}
	doc, err = s.Register(ctx, dropped)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Filename != "dropped.pdf" || doc.Pages != 2 || doc.Path != dropped {
		t.Errorf("Register = %+v", doc)
	}
	usage, err := s.DiskUsage()
	if err != nil || usage <= 0 {
		t.Errorf("DiskUsage = %d, %v", usage, err)
	}
}

func TestCleanName(t *testing.T) {
	cases := map[string]string{
		"a.pdf":           "a.pdf",
		"dir/b.pdf":       "b.pdf",
		`C:\docs\c.pdf`:   "c.pdf",
		"  spaced.pdf  ":  "spaced.pdf",
		"../../etc/x.pdf": "x.pdf",
	}
	for in, want := range cases {
		got, err := CleanName(in)
		if err != nil || got != want {
			t.Errorf("CleanName(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	for _, bad := range []string{"", ".", "..", ".hidden.pdf", "/"} {
		if _, err := CleanName(bad); !errors.Is(err, ErrInvalidName) {
			t.Errorf("CleanName(%q) should fail", bad)
		}
	}
}
