package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// UploadResponse — результат загрузки видео.
type UploadResponse struct {
	VideoID  string `json:"video_id"`
	OwnerID  string `json:"owner_id"`
	Filename string `json:"filename"`
	Status   string `json:"status"`
}

// AnalysisFileResponse — объект анализа в bucket.
type AnalysisFileResponse struct {
	VideoID string `json:"video_id"`
	File    string `json:"file"`
}

// AnalysisRecordResponse — запись истории владельца.
type AnalysisRecordResponse struct {
	ID         string          `json:"id"`
	OwnerID    string          `json:"owner_id"`
	VideoID    string          `json:"video_id"`
	Analysis   json.RawMessage `json:"analysis"`
	AnalyzedAt string          `json:"analyzed_at"`
}

// AdviceResponse — ответ Super Advisor.
type AdviceResponse struct {
	DetectedCategory string   `json:"detected_category"`
	Advices          []string `json:"advices"`
	HistorySessions  int      `json:"history_sessions"`
}

// --- Request types ---

// AdviceRequest — запрос к Super Advisor.
type AdviceRequest struct {
	UserID string `json:"user_id"`
	Query  string `json:"query"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Mindscope API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
// Загрузка видео может быть долгой, поэтому таймаут больше, чем у обычных запросов.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

// --- Upload ---

// Upload загружает видеофайл и запускает pipeline.
// Content-Type части определяется по расширению, по умолчанию video/mp4.
// Файл передаётся потоком через io.Pipe и целиком в память не читается.
func (c *Client) Upload(path, ownerID string) (*UploadResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeUploadForm(mw, f, filepath.Base(path), VideoContentType(path), ownerID))
	}()

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/v1/upload", pr)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var upload UploadResponse
	if err := c.decodeData(resp, &upload); err != nil {
		return nil, err
	}
	return &upload, nil
}

// writeUploadForm пишет multipart-форму загрузки: owner_id и часть file.
func writeUploadForm(mw *multipart.Writer, src io.Reader, filename, contentType, ownerID string) error {
	if ownerID != "" {
		if err := mw.WriteField("owner_id", ownerID); err != nil {
			return fmt.Errorf("failed to build form: %w", err)
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", contentType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to build form: %w", err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	return mw.Close()
}

// VideoContentType возвращает MIME-тип видео по расширению файла.
func VideoContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mov":
		return "video/quicktime"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	case ".avi":
		return "video/x-msvideo"
	default:
		return "video/mp4"
	}
}

// --- Analyses ---

// ListAnalyses возвращает объекты анализа.
func (c *Client) ListAnalyses() ([]AnalysisFileResponse, error) {
	var files []AnalysisFileResponse
	err := c.list("/api/v1/analyses", nil, &files)
	return files, err
}

// GetAnalysis возвращает JSON анализа видео.
func (c *Client) GetAnalysis(videoID string) (json.RawMessage, error) {
	var analysis json.RawMessage
	err := c.get("/api/v1/analyses/"+url.PathEscape(videoID), &analysis)
	return analysis, err
}

// ListOwnerAnalyses возвращает историю анализов владельца.
func (c *Client) ListOwnerAnalyses(ownerID string, limit int) ([]AnalysisRecordResponse, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var records []AnalysisRecordResponse
	err := c.list("/api/v1/owners/"+url.PathEscape(ownerID)+"/analyses", params, &records)
	return records, err
}

// --- Advisor ---

// Advise запрашивает советы Super Advisor.
func (c *Client) Advise(userID, query string) (*AdviceResponse, error) {
	var advice AdviceResponse
	err := c.post("/api/v1/advisor", AdviceRequest{UserID: userID, Query: query}, &advice)
	return &advice, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return c.decodeData(resp, result)
}

func (c *Client) decodeData(resp *http.Response, result any) error {
	if err := c.checkError(resp); err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil || er.Error.Code == "" {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
