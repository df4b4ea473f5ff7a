// Package filesync is the client for the generated-file persistence
// service. Calls are never retried; callers decide when to re-invoke.
package filesync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"learnopt/internal/domain"
)

const (
	contentTypeJSON = "application/json"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Client talks to the persistence service at BaseURL.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

func NewClient(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  logger,
	}
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType, accept string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: creating request: %w", op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("filesync request failed", zap.String("op", op), zap.Error(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("%s: reading response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rerr := remoteError(op, resp.StatusCode, data)
		c.logger.Warn("filesync remote error",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.String("message", rerr.Message))
		return nil, rerr
	}
	return &response{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

func parseJSON(op string, body []byte) (gjson.Result, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return gjson.Result{}, nil
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("%s: parsing response: invalid JSON", op)
	}
	return gjson.ParseBytes(body), nil
}

func filePath(id string) string {
	return "/api/generated-files/" + url.PathEscape(id)
}

// List returns the generated files in server order. A response without a
// files array yields an empty list.
func (c *Client) List(ctx context.Context) ([]domain.GeneratedFile, error) {
	c.logger.Debug("filesync list start")
	resp, err := c.do(ctx, OpList, http.MethodGet, "/api/generated-files", nil, "", contentTypeJSON)
	if err != nil {
		return nil, err
	}
	doc, err := parseJSON(OpList, resp.body)
	if err != nil {
		return nil, err
	}
	files := decodeFiles(doc.Get("files"))
	c.logger.Debug("filesync list done", zap.Int("files", len(files)))
	return files, nil
}

// FetchDetail returns a file and its students. Grade fields missing on the
// server come back as "".
func (c *Client) FetchDetail(ctx context.Context, id string) (domain.GeneratedFile, []domain.StudentRecord, error) {
	resp, err := c.do(ctx, OpDetail, http.MethodGet, filePath(id), nil, "", contentTypeJSON)
	if err != nil {
		return domain.GeneratedFile{}, nil, err
	}
	doc, err := parseJSON(OpDetail, resp.body)
	if err != nil {
		return domain.GeneratedFile{}, nil, err
	}
	file := decodeFile(doc.Get("file"))
	if file.ID == "" {
		file.ID = id
	}
	students := decodeStudents(doc.Get("students"))
	c.logger.Debug("filesync detail done", zap.String("file_id", id), zap.Int("students", len(students)))
	return file, students, nil
}

type updateRequest struct {
	Students        []json.RawMessage `json:"students"`
	Batch           string            `json:"batch"`
	School          string            `json:"school"`
	DateOfImmersion string            `json:"date_of_immersion"`
}

// Update replaces the full student list and metadata of a file.
func (c *Client) Update(ctx context.Context, id string, records []domain.StudentRecord, meta domain.Metadata) error {
	students, err := rawStudents(records)
	if err != nil {
		return fmt.Errorf("%s: %w", OpUpdate, err)
	}
	payload, err := json.Marshal(updateRequest{
		Students:        students,
		Batch:           meta.Batch,
		School:          meta.School,
		DateOfImmersion: meta.DateOfImmersion,
	})
	if err != nil {
		return fmt.Errorf("%s: encoding request: %w", OpUpdate, err)
	}

	resp, err := c.do(ctx, OpUpdate, http.MethodPut, filePath(id), bytes.NewReader(payload), contentTypeJSON, contentTypeJSON)
	if err != nil {
		return err
	}
	c.logger.Info("filesync update done",
		zap.String("file_id", id),
		zap.Int("students", len(records)),
		zap.String("message", gjson.GetBytes(resp.body, "message").String()))
	return nil
}

// Remove deletes a file on the server.
func (c *Client) Remove(ctx context.Context, id string) error {
	if _, err := c.do(ctx, OpRemove, http.MethodDelete, filePath(id), nil, "", ""); err != nil {
		return err
	}
	c.logger.Info("filesync remove done", zap.String("file_id", id))
	return nil
}

// DownloadArtifact fetches the stored report of file.
func (c *Client) DownloadArtifact(ctx context.Context, file domain.GeneratedFile) (Artifact, error) {
	resp, err := c.do(ctx, OpDownload, http.MethodGet, filePath(file.ID)+"/download", nil, "", "")
	if err != nil {
		return Artifact{}, err
	}
	return newArtifact(resp, fallbackFilename(file.OriginalFilename, file.Filename)), nil
}

// IngestUpload posts a trainee spreadsheet and returns the parsed students.
func (c *Client) IngestUpload(ctx context.Context, filename string, content io.Reader) ([]domain.StudentRecord, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("%s: building form: %w", OpIngest, err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("%s: reading upload: %w", OpIngest, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%s: building form: %w", OpIngest, err)
	}

	resp, err := c.do(ctx, OpIngest, http.MethodPost, "/upload/trainee", &buf, mw.FormDataContentType(), contentTypeJSON)
	if err != nil {
		return nil, err
	}
	doc, err := parseJSON(OpIngest, resp.body)
	if err != nil {
		return nil, err
	}
	students := decodeStudents(doc.Get("students"))
	c.logger.Info("filesync ingest done", zap.String("filename", filename), zap.Int("students", len(students)))
	return students, nil
}

// GenerateRequest is the body of a report generation call.
type GenerateRequest struct {
	Students         []domain.StudentRecord
	OriginalFileName string
	DateOfImmersion  string
	Batch            string
	School           string
	// StampMetadata copies the request metadata onto every student.
	StampMetadata bool
}

// GenerateResult is the JSON reply of a generation call.
type GenerateResult struct {
	Message           string
	Filename          string
	StudentsProcessed int
}

type generateRequest struct {
	Students         []json.RawMessage `json:"students"`
	OriginalFileName string            `json:"originalFileName"`
	DateOfImmersion  string            `json:"date_of_immersion"`
	Batch            string            `json:"batch"`
	School           string            `json:"school"`
}

func (req GenerateRequest) encode() ([]byte, error) {
	students, err := rawStudents(req.Students)
	if err != nil {
		return nil, err
	}
	if req.StampMetadata {
		for i := range students {
			if students[i], err = stampMetadata(students[i], req); err != nil {
				return nil, err
			}
		}
	}
	return json.Marshal(generateRequest{
		Students:         students,
		OriginalFileName: req.OriginalFileName,
		DateOfImmersion:  req.DateOfImmersion,
		Batch:            req.Batch,
		School:           req.School,
	})
}

// GenerateReport asks the server to build and store a report, returning
// its JSON summary.
func (c *Client) GenerateReport(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	payload, err := req.encode()
	if err != nil {
		return GenerateResult{}, fmt.Errorf("%s: encoding request: %w", OpGenerate, err)
	}
	resp, err := c.do(ctx, OpGenerate, http.MethodPost, "/api/generate/excel", bytes.NewReader(payload), contentTypeJSON, contentTypeJSON)
	if err != nil {
		return GenerateResult{}, err
	}
	doc, err := parseJSON(OpGenerate, resp.body)
	if err != nil {
		return GenerateResult{}, err
	}
	return GenerateResult{
		Message:           text(doc.Get("message")),
		Filename:          text(doc.Get("filename")),
		StudentsProcessed: int(doc.Get("students_processed").Int()),
	}, nil
}

// GenerateArtifact asks the server to build a report and return the binary.
func (c *Client) GenerateArtifact(ctx context.Context, req GenerateRequest) (Artifact, error) {
	payload, err := req.encode()
	if err != nil {
		return Artifact{}, fmt.Errorf("%s: encoding request: %w", OpGenerate, err)
	}
	resp, err := c.do(ctx, OpGenerate, http.MethodPost, "/api/generate/excel", bytes.NewReader(payload), contentTypeJSON, contentTypeXLSX)
	if err != nil {
		return Artifact{}, err
	}
	return newArtifact(resp, fallbackFilename(req.OriginalFileName, "")), nil
}

func rawStudents(records []domain.StudentRecord) ([]json.RawMessage, error) {
	encoded, err := encodeStudents(records)
	if err != nil {
		return nil, err
	}
	out := make([]json.RawMessage, len(encoded))
	for i, b := range encoded {
		out[i] = b
	}
	return out, nil
}

func stampMetadata(student []byte, req GenerateRequest) ([]byte, error) {
	var err error
	for _, kv := range [][2]string{
		{"batch", req.Batch},
		{"school", req.School},
		{"date_of_immersion", req.DateOfImmersion},
	} {
		if student, err = sjson.SetBytes(student, kv[0], kv[1]); err != nil {
			return nil, fmt.Errorf("stamping %s: %w", kv[0], err)
		}
	}
	return student, nil
}
