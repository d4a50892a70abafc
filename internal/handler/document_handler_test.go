package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"doc-qa-go/internal/model"
	"doc-qa-go/internal/service"
	"doc-qa-go/pkg/extractor"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDocumentService struct {
	uploadDoc *model.Document
	uploadErr error
	docs      []model.Document
	getDoc    *model.Document
	getErr    error
	deleteErr error

	uploadedName string
	uploadedData []byte
	deletedDocID string
}

func (f *fakeDocumentService) Upload(_ context.Context, fileName string, data []byte) (*model.Document, error) {
	f.uploadedName = fileName
	f.uploadedData = data
	return f.uploadDoc, f.uploadErr
}
func (f *fakeDocumentService) List() ([]model.Document, error) { return f.docs, nil }
func (f *fakeDocumentService) Get(string) (*model.Document, error) {
	return f.getDoc, f.getErr
}
func (f *fakeDocumentService) Delete(_ context.Context, docID string) error {
	f.deletedDocID = docID
	return f.deleteErr
}
func (f *fakeDocumentService) SupportedTypes() []string { return []string{".pdf", ".txt"} }

func documentRouter(svc service.DocumentService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewDocumentHandler(svc)
	r.POST("/api/v1/documents/upload", h.Upload)
	r.GET("/api/v1/documents", h.List)
	r.GET("/api/v1/documents/:docId", h.Get)
	r.DELETE("/api/v1/documents/:docId", h.Delete)
	return r
}

func multipartUpload(t *testing.T, fileName string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUpload_Accepted(t *testing.T) {
	svc := &fakeDocumentService{uploadDoc: &model.Document{DocID: "doc-1", FileName: "a.txt", Status: model.StatusPending}}
	r := documentRouter(svc)

	body, contentType := multipartUpload(t, "a.txt", []byte("文档内容"))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "a.txt", svc.uploadedName)
	assert.Equal(t, []byte("文档内容"), svc.uploadedData)

	var resp struct {
		Data model.Document `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, model.StatusPending, resp.Data.Status)
}

func TestUpload_MissingFile(t *testing.T) {
	r := documentRouter(&fakeDocumentService{})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpload_UnsupportedType(t *testing.T) {
	svc := &fakeDocumentService{uploadErr: extractor.ErrUnsupportedFormat}
	r := documentRouter(svc)

	body, contentType := multipartUpload(t, "a.exe", []byte{0x4d, 0x5a})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "supportedTypes")
}

func TestList_ReturnsDocuments(t *testing.T) {
	svc := &fakeDocumentService{docs: []model.Document{
		{DocID: "doc-1", Status: model.StatusIndexed},
		{DocID: "doc-2", Status: model.StatusFailed, ErrorDetail: "提取文本失败"},
	}}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)
	documentRouter(svc).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data []model.Document `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "提取文本失败", resp.Data[1].ErrorDetail)
}

func TestGet_NotFound(t *testing.T) {
	svc := &fakeDocumentService{getErr: service.ErrDocumentNotFound}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/nope", nil)
	documentRouter(svc).ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDelete_Success(t *testing.T) {
	svc := &fakeDocumentService{}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/documents/doc-9", nil)
	documentRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "doc-9", svc.deletedDocID)
}

func TestDelete_NotFound(t *testing.T) {
	svc := &fakeDocumentService{deleteErr: service.ErrDocumentNotFound}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/documents/doc-9", nil)
	documentRouter(svc).ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
