package netx

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n0000")

func TestPutPresigned(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		var gotBody []byte
		var gotCT, gotMethod, gotQuery string

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotCT = r.Header.Get("Content-Type")
			gotQuery = r.URL.RawQuery
			gotBody, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusOK)
		}))
		defer ts.Close()

		err := PutPresigned(context.Background(), ts.Client(), ts.URL+"/profiles/k?X-Amz-Signature=abc", pngHeader)
		require.NoError(t, err)
		assert.Equal(t, http.MethodPut, gotMethod)
		assert.Equal(t, "image/png", gotCT)
		assert.Equal(t, "X-Amz-Signature=abc", gotQuery)
		assert.Equal(t, pngHeader, gotBody)
	})

	t.Run("non-200", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte("SignatureDoesNotMatch"))
		}))
		defer ts.Close()

		err := PutPresigned(context.Background(), nil, ts.URL, pngHeader)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "upload failed: 403")
		assert.Contains(t, err.Error(), "SignatureDoesNotMatch")
	})

	t.Run("bad url", func(t *testing.T) {
		err := PutPresigned(context.Background(), nil, "://bad", pngHeader)
		assert.ErrorContains(t, err, "build upload request")
	})

	t.Run("cancelled", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer ts.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := PutPresigned(ctx, ts.Client(), ts.URL, pngHeader)
		assert.ErrorContains(t, err, "upload:")
	})
}
