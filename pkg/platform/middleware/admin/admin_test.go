package admin

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"biblioteca/pkg/testutil"
)

func TestRequireAdminToken(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	serve := func(t *testing.T, expected, sent string) *httptest.ResponseRecorder {
		req := testutil.NewRequest(t, http.MethodGet, "/metrics")
		if sent != "" {
			req.Header.Set(HeaderToken, sent)
		}
		return testutil.DoRequest(RequireAdminToken(expected, logger)(ok), req)
	}

	testutil.Given(t, "no token is configured", func(t *testing.T) {
		testutil.Then(t, "the endpoint is hidden", func(t *testing.T) {
			testutil.AssertError(t, serve(t, "", "anything"), http.StatusNotFound, "not_found")
		})
	})

	testutil.Given(t, "a configured token", func(t *testing.T) {
		testutil.When(t, "the header is missing", func(t *testing.T) {
			testutil.AssertError(t, serve(t, "s3cret", ""), http.StatusUnauthorized, "unauthorized")
		})
		testutil.When(t, "the header does not match", func(t *testing.T) {
			testutil.AssertError(t, serve(t, "s3cret", "guess"), http.StatusUnauthorized, "unauthorized")
		})
		testutil.When(t, "the header matches", func(t *testing.T) {
			testutil.AssertStatus(t, serve(t, "s3cret", "s3cret"), http.StatusOK)
		})
		testutil.And(t, "the header differs only in case", func(t *testing.T) {
			testutil.AssertError(t, serve(t, "s3cret", "S3CRET"), http.StatusUnauthorized, "unauthorized")
		})
	})
}
