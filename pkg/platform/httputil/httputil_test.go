package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "chaperone/pkg/domain-errors"
)

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestWriteError(t *testing.T) {
	t.Run("internal error omits description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInternal, "db failed"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, "internal_error", body["error"])
		_, ok := body["error_description"]
		assert.False(t, ok)
	})

	t.Run("uncoded error is treated as internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, errors.New("pq: relation does not exist"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "internal_error", decodeBody(t, w)["error"])
	})

	t.Run("send taxonomy maps to distinct statuses", func(t *testing.T) {
		cases := map[dErrors.Code]int{
			dErrors.CodeModerationBlocked:      http.StatusUnprocessableEntity,
			dErrors.CodeModerationUnavailable:  http.StatusServiceUnavailable,
			dErrors.CodeRateLimited:            http.StatusTooManyRequests,
			dErrors.CodeOutsideAllowedHours:    http.StatusForbidden,
			dErrors.CodeConversationTerminated: http.StatusConflict,
			dErrors.CodeAlreadyResolved:        http.StatusConflict,
		}
		for code, status := range cases {
			w := httptest.NewRecorder()
			WriteError(w, dErrors.New(code, "nope"))
			assert.Equal(t, status, w.Code, code)
			body := decodeBody(t, w)
			assert.Equal(t, string(code), body["error"])
			assert.Equal(t, "nope", body["error_description"])
		}
	})
}

type pingRequest struct {
	Text string `json:"text"`
}

func (p *pingRequest) Validate() error {
	p.Text = strings.TrimSpace(p.Text)
	if p.Text == "" {
		return dErrors.New(dErrors.CodeValidation, "text is required")
	}
	return nil
}

func TestDecodeAndPrepare(t *testing.T) {
	t.Run("valid body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text":"  hi "}`))
		w := httptest.NewRecorder()

		req, ok := DecodeAndPrepare[pingRequest](w, r, nil, r.Context(), "rid")
		require.True(t, ok)
		assert.Equal(t, "hi", req.Text)
	})

	t.Run("validation failure writes 400", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text":" "}`))
		w := httptest.NewRecorder()

		_, ok := DecodeAndPrepare[pingRequest](w, r, nil, r.Context(), "rid")
		require.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "validation_error", decodeBody(t, w)["error"])
	})

	t.Run("empty body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
		w := httptest.NewRecorder()

		_, ok := DecodeAndPrepare[pingRequest](w, r, nil, r.Context(), "rid")
		require.False(t, ok)
		assert.Equal(t, "bad_request", decodeBody(t, w)["error"])
	})
}
