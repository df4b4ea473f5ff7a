package workbench

import (
	"context"
	"io"

	"learnopt/internal/domain"
	"learnopt/internal/filesync"
)

type GeneratedFile = domain.GeneratedFile
type StudentRecord = domain.StudentRecord
type Artifact = filesync.Artifact
type GenerateRequest = filesync.GenerateRequest
type GenerateResult = filesync.GenerateResult

// Remote is the persistence service as seen by the workbench.
// *filesync.Client implements it.
type Remote interface {
	List(ctx context.Context) ([]GeneratedFile, error)
	FetchDetail(ctx context.Context, id string) (GeneratedFile, []StudentRecord, error)
	Update(ctx context.Context, id string, records []StudentRecord, meta domain.Metadata) error
	Remove(ctx context.Context, id string) error
	DownloadArtifact(ctx context.Context, file GeneratedFile) (Artifact, error)
	IngestUpload(ctx context.Context, filename string, content io.Reader) ([]StudentRecord, error)
	GenerateReport(ctx context.Context, req GenerateRequest) (GenerateResult, error)
	GenerateArtifact(ctx context.Context, req GenerateRequest) (Artifact, error)
}

// Recorder persists journal entries.
type Recorder interface {
	Record(ctx context.Context, e domain.JournalEntry) error
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, domain.JournalEntry) error { return nil }
