package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sbinet/npyio"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/config"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/export"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/model"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/split"
)

func newTestServer(t *testing.T) (*httptest.Server, *Metrics, *split.Result) {
	t.Helper()

	cfg := config.Default()
	cfg.Paths.SplitDir = t.TempDir()
	cfg.Pipeline.FeatureWidth = 16
	cfg.Preprocess.WindowOffset = 0

	var rows []model.FeatureRow
	for i := 0; i < 20; i++ {
		for _, label := range []string{"Google", "Amazon"} {
			rows = append(rows, model.FeatureRow{Label: label, Bytes: []byte{byte(i), 255}})
		}
	}
	opts := split.OptionsFromConfig(cfg)
	opts.Classes = []string{"Google", "Amazon"}
	opts.PacketsPerClass = 10
	result, err := split.Split(rows, opts)
	require.NoError(t, err)
	_, err = split.WriteDir(cfg.Paths.SplitDir, result)
	require.NoError(t, err)

	log, _ := test.NewNullLogger()
	metrics := NewMetrics()
	srv := httptest.NewServer(NewRouter(NewHandler(cfg, metrics, log)))
	t.Cleanup(srv.Close)
	return srv, metrics, result
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestAPI_ManifestAndVocabulary(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, body := get(t, srv.URL+"/api/v1/datasets")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"datasets":["2_10"]}`, string(body))

	resp, body = get(t, srv.URL+"/api/v1/datasets/2_10/manifest?verify=true")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var m split.Manifest
	require.NoError(t, json.Unmarshal(body, &m))
	assert.Equal(t, "2_10", m.Suffix)
	assert.Len(t, m.Files, 3)

	resp, body = get(t, srv.URL+"/api/v1/datasets/2_10/vocabulary")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"labels":["Amazon","Google"]}`, string(body))

	resp, _ = get(t, srv.URL+"/api/v1/datasets/9_9/manifest")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_TensorStreams(t *testing.T) {
	srv, _, result := newTestServer(t)

	// 1. Features stream as a rows x width matrix.
	resp, err := http.Get(srv.URL + "/api/v1/datasets/2_10/train/x?family=flat&mask=false")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var x mat.Dense
	require.NoError(t, npyio.Read(resp.Body, &x))
	r, c := x.Dims()
	assert.Equal(t, len(result.Train), r)
	assert.Equal(t, 16, c)
	assert.InDelta(t, 1.0, x.At(0, 1), 1e-6)

	// 2. Integer labels stream as int64 codes.
	resp2, err := http.Get(srv.URL + "/api/v1/datasets/2_10/test/y?family=svm")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var y []int64
	require.NoError(t, npyio.Read(resp2.Body, &y))
	require.Len(t, y, len(result.Test))
	for i, row := range result.Test {
		want := int64(0)
		if row.Label == "Google" {
			want = 1
		}
		assert.Equal(t, want, y[i])
	}
}

func TestAPI_TensorShapes(t *testing.T) {
	srv, _, result := newTestServer(t)

	resp, body := get(t, srv.URL+"/api/v1/datasets/2_10/val/meta?family=cnn&num_bytes=4")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sidecar export.Sidecar
	require.NoError(t, json.Unmarshal(body, &sidecar))
	assert.Equal(t, []int{len(result.Val), 2, 2, 1}, sidecar.XShape)
	assert.Equal(t, "val_2_10", sidecar.Name)

	resp, _ = get(t, srv.URL+"/api/v1/datasets/2_10/val/meta?family=cnn&num_bytes=3")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = get(t, srv.URL+"/api/v1/datasets/2_10/val/meta?family=rnn")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = get(t, srv.URL+"/api/v1/datasets/2_10/holdout/x")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_Metrics(t *testing.T) {
	srv, metrics, _ := newTestServer(t)
	metrics.ObserveProgress(model.ProgressEvent{Status: model.StatusProcessed, Label: "Google", Rows: 12})
	metrics.ObserveProgress(model.ProgressEvent{Status: model.StatusSkipped, Label: "HTTP"})

	get(t, srv.URL+"/api/v1/datasets/2_10/vocabulary")
	resp, body := get(t, srv.URL+"/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	text := string(body)
	assert.Contains(t, text, `etc_api_requests_total{code="200",route="vocabulary"} 1`)
	assert.Contains(t, text, `etc_extract_flows_total{status="processed"} 1`)
	assert.Contains(t, text, `etc_extract_rows_total{label="Google"} 12`)
}
