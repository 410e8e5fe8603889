package rpcapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/outbreak-cluster/internal/outbreak"
	"github.com/banshee-data/outbreak-cluster/internal/outbreak/geojson"
	"github.com/banshee-data/outbreak-cluster/internal/outbreak/pipeline"
)

type fakeEngine struct {
	report   outbreak.Report
	reportOK bool
	err      error

	processOK bool

	fetchResult pipeline.FetchResult
}

func (f *fakeEngine) GenerateSymptomReport(_ context.Context, _ string, _, _ float64) (outbreak.Report, bool, error) {
	return f.report, f.reportOK, f.err
}

func (f *fakeEngine) ProcessClusters(_ context.Context) (bool, error) {
	return f.processOK, f.err
}

func (f *fakeEngine) FetchLatestData(_ context.Context) (pipeline.FetchResult, error) {
	return f.fetchResult, f.err
}

func TestHandleGenerateSymptomReportReturnsCreatedReport(t *testing.T) {
	engine := &fakeEngine{report: outbreak.Report{ID: 7}, reportOK: true}
	s := NewServer(engine)

	body, _ := json.Marshal(generateSymptomReportRequest{Text: "severe cough", Lat: 1, Lon: 2})
	req := httptest.NewRequest("POST", "/reports", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.ServeMux().ServeHTTP(rec, req)

	require.Equal(t, 201, rec.Code)
	var got outbreak.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(7), got.ID)
}

func TestHandleGenerateSymptomReportRejectsEmptyText(t *testing.T) {
	s := NewServer(&fakeEngine{})
	body, _ := json.Marshal(generateSymptomReportRequest{Text: ""})
	req := httptest.NewRequest("POST", "/reports", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.ServeMux().ServeHTTP(rec, req)
	assert.Equal(t, 400, rec.Code)
}

func TestHandleGenerateSymptomReportReturns422WhenInferenceFails(t *testing.T) {
	s := NewServer(&fakeEngine{reportOK: false})
	body, _ := json.Marshal(generateSymptomReportRequest{Text: "gibberish"})
	req := httptest.NewRequest("POST", "/reports", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.ServeMux().ServeHTTP(rec, req)
	assert.Equal(t, 422, rec.Code)
}

func TestHandleGenerateSymptomReportRejectsGet(t *testing.T) {
	s := NewServer(&fakeEngine{})
	req := httptest.NewRequest("GET", "/reports", nil)
	rec := httptest.NewRecorder()

	s.ServeMux().ServeHTTP(rec, req)
	assert.Equal(t, 405, rec.Code)
}

func TestHandleProcessClustersReturnsOKBody(t *testing.T) {
	s := NewServer(&fakeEngine{processOK: true})
	req := httptest.NewRequest("POST", "/process", nil)
	rec := httptest.NewRecorder()

	s.ServeMux().ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)

	var body map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body["ok"])
}

func TestHandleProcessClustersMapsTransientStoreErrorToServiceUnavailable(t *testing.T) {
	s := NewServer(&fakeEngine{err: outbreak.NewPipelineError(outbreak.ErrKindTransientStore, assertError("db down"))})
	req := httptest.NewRequest("POST", "/process", nil)
	rec := httptest.NewRecorder()

	s.ServeMux().ServeHTTP(rec, req)
	assert.Equal(t, 503, rec.Code)
}

func TestHandleFetchLatestDataReturnsGeoJSON(t *testing.T) {
	fc := geojson.FeatureCollection{Type: "FeatureCollection"}
	s := NewServer(&fakeEngine{fetchResult: pipeline.FetchResult{
		TimeWindowStart: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		TimeWindowEnd:   time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		GeoJSON:         fc,
	}})
	req := httptest.NewRequest("GET", "/latest", nil)
	rec := httptest.NewRecorder()

	s.ServeMux().ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "geojson")
}

type assertError string

func (e assertError) Error() string { return string(e) }
