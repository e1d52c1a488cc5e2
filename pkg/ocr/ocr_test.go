package ocr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proptrust/engine/pkg/contracts"
)

func TestPlainText_Pages(t *testing.T) {
	res, err := NewPlainText().Extract(context.Background(), []byte("page one\fpage two"), contracts.FormatImage)
	require.NoError(t, err)
	assert.Equal(t, 2, res.PagesProcessed)
	assert.Equal(t, "page one\npage two", res.Text())
	assert.Equal(t, len("page one\fpage two"), res.CharsOriginal)
}

func TestPlainText_EmptyIsSuccess(t *testing.T) {
	res, err := NewPlainText().Extract(context.Background(), nil, contracts.FormatImage)
	require.NoError(t, err)
	assert.Equal(t, "", res.Text())
}

func TestPlainText_BadFormat(t *testing.T) {
	_, err := NewPlainText().Extract(context.Background(), []byte("x"), contracts.FormatHint("DOCX"))
	require.Error(t, err)
	assert.True(t, contracts.IsKind(err, contracts.KindBadInput))
}

func TestPlainText_BinaryRejected(t *testing.T) {
	_, err := NewPlainText().Extract(context.Background(), []byte{0xff, 0xfe, 0x00, 0x81}, contracts.FormatImage)
	require.Error(t, err)
	assert.True(t, contracts.IsKind(err, contracts.KindBadInput))
}

func TestSidecar_Extract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/extract", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"pages":["Survey No. 45/2A"],"pages_processed":1,"chars_original":17,"language_hint":"en"}`))
	}))
	defer srv.Close()

	c := NewSidecar(SidecarConfig{Endpoint: srv.URL, Timeout: 5 * time.Second})
	res, err := c.Extract(context.Background(), []byte("img"), contracts.FormatImage)
	require.NoError(t, err)
	assert.Equal(t, "Survey No. 45/2A", res.Text())
	assert.Equal(t, "en", res.LanguageHint)
}

func TestSidecar_Unreachable(t *testing.T) {
	c := NewSidecar(SidecarConfig{Endpoint: "http://127.0.0.1:1", Timeout: time.Second})
	_, err := c.Extract(context.Background(), []byte("img"), contracts.FormatPDF)
	require.Error(t, err)
	assert.True(t, contracts.IsKind(err, contracts.KindExternalUnavailable))
}

func TestSidecar_RejectedDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := NewSidecar(SidecarConfig{Endpoint: srv.URL})
	_, err := c.Extract(context.Background(), []byte("img"), contracts.FormatImage)
	require.Error(t, err)
	assert.True(t, contracts.IsKind(err, contracts.KindBadInput))
}
