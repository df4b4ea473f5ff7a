package filesync

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"learnopt/internal/domain"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	return NewClient(server.URL+"/", server.Client(), nil)
}

func TestListDecodesFiles(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/generated-files" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"files":[
			{"id":7,"filename":"batch1.xlsx","original_filename":"batch1","school":"NHS","batch":"B1",
			 "date_of_immersion":"2025-03-01","student_count":12,"average_performance":88.5,
			 "file_size":2048,"created_at":"2025-03-02T10:00:00Z"},
			{"id":"abc","filename":"b2.xlsx","average_performance":null,"created_at":"2025-03-02 10:00:00"}
		]}`)
	})

	files, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	f := files[0]
	if f.ID != "7" || f.School != "NHS" || f.StudentCount != 12 || f.AveragePerformance != "88.5" || f.FileSize != 2048 {
		t.Fatalf("unexpected first file: %+v", f)
	}
	if f.CreatedAt.IsZero() || files[1].CreatedAt.IsZero() {
		t.Fatalf("created_at not parsed: %v / %v", f.CreatedAt, files[1].CreatedAt)
	}
	if files[1].ID != "abc" || files[1].AveragePerformance != "" {
		t.Fatalf("unexpected second file: %+v", files[1])
	}
}

func TestListMissingFilesIsEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"ok":true}`)
	})
	files, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if files == nil || len(files) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", files)
	}
}

func TestListInvalidJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html>`)
	})
	if _, err := c.List(context.Background()); err == nil {
		t.Fatal("expected error for invalid JSON body")
	}
}

func TestFetchDetailMaterializesUnsetFields(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() != "/api/generated-files/f%201" {
			t.Fatalf("unexpected path %s", r.URL.EscapedPath())
		}
		io.WriteString(w, `{"file":{"id":"f 1","batch":"B1"},"students":[
			{"id":1,"first_name":"Ana","last_name":"Cruz","department":"IT","over_all":4.5,"WI":7,"CO":null,"5S":"3","remarks":"ok"},
			{"id":2,"first_name":"Ben","department":"prod"}
		]}`)
	})

	file, students, err := c.FetchDetail(context.Background(), "f 1")
	if err != nil {
		t.Fatalf("FetchDetail failed: %v", err)
	}
	if file.ID != "f 1" || file.Batch != "B1" {
		t.Fatalf("unexpected file: %+v", file)
	}
	if len(students) != 2 {
		t.Fatalf("expected 2 students, got %d", len(students))
	}
	a := students[0]
	if a.ID != "1" || a.Overall != "4.5" || a.Value("WI") != "7" || a.Value("5S") != "3" {
		t.Fatalf("unexpected student: %+v", a)
	}
	if v, ok := a.Scores["CO"]; !ok || v != "" {
		t.Fatalf("null CO should be materialized as empty, got %q (present=%v)", v, ok)
	}
	b := students[1]
	for _, f := range domain.GradeFields() {
		if v, ok := b.Scores[f]; !ok || v != "" {
			t.Fatalf("absent %s should be materialized as empty, got %q (present=%v)", f, v, ok)
		}
	}
	if b.Overall != "" {
		t.Fatalf("absent over_all should be empty, got %q", b.Overall)
	}
}

func TestUpdateSendsFullPayload(t *testing.T) {
	var body []byte
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/generated-files/9" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("unexpected content type %q", ct)
		}
		body, _ = io.ReadAll(r.Body)
		io.WriteString(w, `{"message":"updated"}`)
	})

	records := []domain.StudentRecord{
		{ID: "1", FirstName: "Ana", Department: "IT", Overall: "4.5", Scores: map[string]string{"WI": "9"},
			Raw: []byte(`{"id":1,"first_name":"Ana","department":"IT","over_all":4.5,"WI":7,"remarks":"ok"}`)},
	}
	err := c.Update(context.Background(), "9", records, domain.Metadata{Batch: "B1", School: "NHS", DateOfImmersion: "2025-03-01"})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	doc := gjson.ParseBytes(body)
	if doc.Get("batch").String() != "B1" || doc.Get("school").String() != "NHS" || doc.Get("date_of_immersion").String() != "2025-03-01" {
		t.Fatalf("metadata missing from body: %s", body)
	}
	s := doc.Get("students.0")
	if s.Get("remarks").String() != "ok" {
		t.Fatalf("unmodelled key dropped: %s", s.Raw)
	}
	if s.Get("WI").String() != "9" {
		t.Fatalf("edited WI not sent: %s", s.Raw)
	}
	if s.Get("over_all").Type != gjson.Number {
		t.Fatalf("unchanged over_all should keep its number type: %s", s.Raw)
	}
	if s.Get("id").Type != gjson.Number {
		t.Fatalf("id should keep its original type: %s", s.Raw)
	}
}

func TestUpdateStructuredError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		io.WriteString(w, `{"error":"duplicate batch"}`)
	})
	err := c.Update(context.Background(), "9", nil, domain.Metadata{})
	var rerr *RemoteError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if rerr.Message != "duplicate batch" || err.Error() != "duplicate batch" {
		t.Fatalf("message = %q, want duplicate batch", rerr.Message)
	}
	if rerr.Status != http.StatusConflict || rerr.Op != OpUpdate {
		t.Fatalf("unexpected error fields: %+v", rerr)
	}
}

func TestGenericHTTPError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `Internal Server Error`)
	})
	err := c.Remove(context.Background(), "3")
	var rerr *RemoteError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if rerr.Message != "HTTP error, status 500" {
		t.Fatalf("message = %q", rerr.Message)
	}
}

func TestTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c := NewClient(url, nil, nil)
	_, err := c.List(context.Background())
	if err == nil {
		t.Fatal("expected error when server is unreachable")
	}
	var rerr *RemoteError
	if errors.As(err, &rerr) {
		t.Fatalf("transport failure should not be a RemoteError: %v", err)
	}
	if !strings.HasPrefix(err.Error(), OpList) {
		t.Fatalf("error should name the operation: %v", err)
	}
}

func TestRemove(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/api/generated-files/3" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		called = true
		w.WriteHeader(http.StatusNoContent)
	})
	if err := c.Remove(context.Background(), "3"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if !called {
		t.Fatal("server not called")
	}
}

func TestDownloadArtifactUsesDisposition(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generated-files/3/download" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Disposition", `attachment; filename="report-final.xlsx"`)
		w.Header().Set("Content-Type", contentTypeXLSX)
		w.Write([]byte("PK\x03\x04"))
	})
	a, err := c.DownloadArtifact(context.Background(), domain.GeneratedFile{ID: "3", Filename: "batch1.xlsx"})
	if err != nil {
		t.Fatalf("DownloadArtifact failed: %v", err)
	}
	if a.Filename != "report-final.xlsx" || string(a.Data) != "PK\x03\x04" || a.ContentType != contentTypeXLSX {
		t.Fatalf("unexpected artifact: %+v", a)
	}
}

func TestDownloadArtifactFallbackName(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data"))
	})
	a, err := c.DownloadArtifact(context.Background(), domain.GeneratedFile{ID: "3", Filename: "batch1.xlsx"})
	if err != nil {
		t.Fatalf("DownloadArtifact failed: %v", err)
	}
	if a.Filename != "batch1-UPDATED-REPORT.xlsx" {
		t.Fatalf("filename = %q", a.Filename)
	}

	a, err = c.DownloadArtifact(context.Background(), domain.GeneratedFile{ID: "3", Filename: "x.xls", OriginalFilename: "Batch One"})
	if err != nil {
		t.Fatalf("DownloadArtifact failed: %v", err)
	}
	if a.Filename != "Batch One-UPDATED-REPORT.xls" {
		t.Fatalf("filename = %q", a.Filename)
	}
}

func TestIngestUploadSendsMultipart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/upload/trainee" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("FormFile failed: %v", err)
		}
		data, _ := io.ReadAll(f)
		if hdr.Filename != "trainees.xlsx" || string(data) != "sheet-bytes" {
			t.Fatalf("unexpected upload %s %q", hdr.Filename, data)
		}
		io.WriteString(w, `{"students":[{"first_name":"Ana","department":"IT","batch":"B1"}]}`)
	})
	students, err := c.IngestUpload(context.Background(), "trainees.xlsx", strings.NewReader("sheet-bytes"))
	if err != nil {
		t.Fatalf("IngestUpload failed: %v", err)
	}
	if len(students) != 1 || students[0].FirstName != "Ana" {
		t.Fatalf("unexpected students: %+v", students)
	}
}

func TestGenerateReportJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate/excel" || r.Header.Get("Accept") != "application/json" {
			t.Fatalf("unexpected request %s accept=%s", r.URL.Path, r.Header.Get("Accept"))
		}
		body, _ := io.ReadAll(r.Body)
		doc := gjson.ParseBytes(body)
		if doc.Get("originalFileName").String() != "trainees" || doc.Get("students.#").Int() != 1 {
			t.Fatalf("unexpected body: %s", body)
		}
		io.WriteString(w, `{"message":"ok","filename":"trainees.xlsx","students_processed":1}`)
	})
	res, err := c.GenerateReport(context.Background(), GenerateRequest{
		Students:         []domain.StudentRecord{{FirstName: "Ana"}},
		OriginalFileName: "trainees",
	})
	if err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}
	if res.Message != "ok" || res.Filename != "trainees.xlsx" || res.StudentsProcessed != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestGenerateArtifactBlob(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != contentTypeXLSX {
			t.Fatalf("unexpected accept %q", r.Header.Get("Accept"))
		}
		w.Write([]byte("PK"))
	})
	a, err := c.GenerateArtifact(context.Background(), GenerateRequest{OriginalFileName: "batch1"})
	if err != nil {
		t.Fatalf("GenerateArtifact failed: %v", err)
	}
	if a.Filename != "batch1-UPDATED-REPORT.xlsx" || string(a.Data) != "PK" {
		t.Fatalf("unexpected artifact: %+v", a)
	}
}

func TestGenerateArtifactStampsMetadata(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		doc := gjson.ParseBytes(body)
		for _, s := range doc.Get("students").Array() {
			if s.Get("batch").String() != "B9" || s.Get("school").String() != "NHS" || s.Get("date_of_immersion").String() != "2025-04-01" {
				t.Fatalf("student not stamped: %s", s.Raw)
			}
		}
		if doc.Get("students.#").Int() != 2 {
			t.Fatalf("unexpected body: %s", body)
		}
		w.Write([]byte("PK"))
	})
	_, err := c.GenerateArtifact(context.Background(), GenerateRequest{
		Students: []domain.StudentRecord{
			{ID: "1", Raw: []byte(`{"id":1,"batch":"old"}`)},
			{ID: "2"},
		},
		Batch:           "B9",
		School:          "NHS",
		DateOfImmersion: "2025-04-01",
		StampMetadata:   true,
	})
	if err != nil {
		t.Fatalf("GenerateArtifact failed: %v", err)
	}
}
