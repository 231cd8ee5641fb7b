package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/kirillkom/scripture-rag/internal/core/domain"
)

type ingestRepoFake struct {
	created *domain.CorpusImport
	err     error
}

func (f *ingestRepoFake) Create(_ context.Context, imp *domain.CorpusImport) error {
	if f.err != nil {
		return f.err
	}
	copyImp := *imp
	f.created = &copyImp
	return nil
}

func (f *ingestRepoFake) GetByID(context.Context, string) (*domain.CorpusImport, error) {
	return nil, errors.New("not implemented")
}
func (f *ingestRepoFake) UpdateStatus(context.Context, string, domain.ImportStatus, string) error {
	return errors.New("not implemented")
}
func (f *ingestRepoFake) SavePassageCount(context.Context, string, int) error {
	return errors.New("not implemented")
}

type ingestStorageFake struct {
	savedKey  string
	savedBody string
	err       error
}

func (f *ingestStorageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.savedKey = key
	f.savedBody = string(raw)
	return nil
}

func (f *ingestStorageFake) Open(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

type ingestQueueFake struct {
	importID string
	err      error
}

func (f *ingestQueueFake) PublishCorpusUploaded(_ context.Context, importID string) error {
	if f.err != nil {
		return f.err
	}
	f.importID = importID
	return nil
}

func (f *ingestQueueFake) SubscribeCorpusUploaded(context.Context, func(context.Context, string) error) error {
	return errors.New("not implemented")
}

func TestIngestUploadSuccess(t *testing.T) {
	repo := &ingestRepoFake{}
	storage := &ingestStorageFake{}
	queue := &ingestQueueFake{}
	uc := NewIngestCorpusUseCase(repo, storage, queue, "Almeida Revista e Corrigida")

	imp, err := uc.Upload(context.Background(), "biblia almeida.txt", bytes.NewBufferString("GÊNESIS 1"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if imp.ID == "" {
		t.Fatalf("expected import id")
	}
	if imp.Status != domain.StatusUploaded {
		t.Fatalf("expected status uploaded, got %s", imp.Status)
	}
	if imp.Translation != "Almeida Revista e Corrigida" {
		t.Fatalf("expected translation to be recorded, got %q", imp.Translation)
	}
	if repo.created == nil {
		t.Fatalf("expected repo.Create call")
	}
	if queue.importID != imp.ID {
		t.Fatalf("expected queued import id %s, got %s", imp.ID, queue.importID)
	}
	if !strings.HasSuffix(storage.savedKey, "_biblia_almeida.txt") {
		t.Fatalf("expected sanitized key suffix, got %s", storage.savedKey)
	}
	if storage.savedBody != "GÊNESIS 1" {
		t.Fatalf("expected saved body, got %s", storage.savedBody)
	}
}

func TestIngestUploadQueueError(t *testing.T) {
	uc := NewIngestCorpusUseCase(&ingestRepoFake{}, &ingestStorageFake{}, &ingestQueueFake{err: errors.New("queue down")}, "")

	_, err := uc.Upload(context.Background(), "biblia.txt", bytes.NewBufferString("x"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "publish ingestion event") {
		t.Fatalf("expected publish error, got %v", err)
	}
}

func TestIngestUploadStorageError(t *testing.T) {
	repo := &ingestRepoFake{}
	uc := NewIngestCorpusUseCase(repo, &ingestStorageFake{err: errors.New("disk full")}, &ingestQueueFake{}, "")

	_, err := uc.Upload(context.Background(), "biblia.txt", bytes.NewBufferString("x"))
	if err == nil || !strings.Contains(err.Error(), "save to object storage") {
		t.Fatalf("expected storage error, got %v", err)
	}
	if repo.created != nil {
		t.Fatalf("expected no metadata row when storage fails")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"../../etc/passwd":    "passwd",
		"Bíblia Sagrada.txt":  "B_blia_Sagrada.txt",
		"":                    "corpus.txt",
		"almeida-rc_2009.txt": "almeida-rc_2009.txt",
	}
	for in, want := range tests {
		if got := sanitizeFilename(in); got != want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
