package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n0000")

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestPredict_SendsMultipartFile(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, PredictPath, r.URL.Path)
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data; boundary="))

		file, header, err := r.FormFile(FieldName)
		require.NoError(t, err)
		defer file.Close()

		data, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, pngHeader, data)
		assert.Equal(t, "leaf.png", header.Filename)
		assert.Equal(t, "image/png", header.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"prediction":"Aloe Vera","confidence":0.8734}`))
	})

	res, err := New(srv.URL).Predict(context.Background(), "leaf.png", strings.NewReader(string(pngHeader)))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Aloe Vera", res.Prediction)
	assert.InDelta(t, 0.8734, res.Confidence, 1e-9)
}

func TestPredict_Failures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind Kind
		wantMsg  string
	}{
		{"application error", http.StatusOK, `{"success":false,"error":"Low confidence"}`, KindApplication, "Low confidence"},
		{"application without reason", http.StatusOK, `{"success":false}`, KindApplication, MessagePredictionFailed},
		{"missing success flag", http.StatusOK, `{"prediction":"x"}`, KindApplication, MessagePredictionFailed},
		{"non-2xx with reason", http.StatusBadRequest, `{"success":false,"error":"No image file provided"}`, KindTransport, "No image file provided"},
		{"non-2xx html body", http.StatusBadGateway, `<html>bad gateway</html>`, KindTransport, MessageGeneric},
		{"non-2xx empty body", http.StatusInternalServerError, ``, KindTransport, MessageGeneric},
		{"2xx not json", http.StatusOK, `ok`, KindTransport, MessageGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			res, err := New(srv.URL).Predict(context.Background(), "leaf.png", strings.NewReader("img"))
			require.Error(t, err)
			assert.Nil(t, res)

			var perr *Error
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.wantKind, perr.Kind)
			assert.Equal(t, tt.status, perr.Status)
			assert.Equal(t, tt.wantMsg, Message(err))
		})
	}
}

func TestPredict_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url).Predict(context.Background(), "leaf.png", strings.NewReader("img"))
	require.Error(t, err)
	assert.Equal(t, MessageGeneric, Message(err))
}

func TestPredict_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := newServer(t, func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	_, err := New(srv.URL, WithTimeout(50*time.Millisecond)).
		Predict(context.Background(), "leaf.png", strings.NewReader("img"))
	require.Error(t, err)
	assert.Equal(t, MessageGeneric, Message(err))
}

func TestPredict_Cancelled(t *testing.T) {
	srv := newServer(t, func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(srv.URL).Predict(ctx, "leaf.png", strings.NewReader("img"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "", Message(nil))
	assert.Equal(t, MessageGeneric, Message(errors.New("boom")))
	assert.Equal(t, "x", Message(&Error{Kind: KindApplication, Message: "x"}))
}
