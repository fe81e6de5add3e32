package apperrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusOf(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		httpCode int
		code     string
		message  string
	}{
		{"unauthenticated", Unauthenticated("Unauthorized"), http.StatusUnauthorized, "UNAUTHENTICATED", "Unauthorized"},
		{"not found", NotFound("Token not found"), http.StatusNotFound, "NOT_FOUND", "Token not found"},
		{"invalid", InvalidArgument("Invalid price range"), http.StatusBadRequest, "INVALID_ARGUMENT", "Invalid price range"},
		{"duplicate", DuplicateKey(errors.New("unique"), "Token already exists"), http.StatusConflict, "CONFLICT", "Token already exists"},
		{"rate limited", RateLimited(""), http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests"},
		{"provider", ProviderUnavailable(errors.New("dial tcp: timeout")), http.StatusBadGateway, "PROVIDER_UNAVAILABLE", "Market data provider unavailable"},
		{"storage", Storage(errors.New("connection refused")), http.StatusInternalServerError, "INTERNAL", "Internal Server Error"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL", "Internal Server Error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := StatusOf(tc.err)
			assert.Equal(t, tc.httpCode, st.HTTPCode)
			assert.Equal(t, tc.code, st.Code)
			assert.Equal(t, tc.message, st.Message)
		})
	}
}

func TestErrorKindsSurviveWrapping(t *testing.T) {
	cause := errors.New("pq: duplicate key value violates unique constraint")
	err := fmt.Errorf("create token: %w", DuplicateKey(cause, ""))

	assert.ErrorIs(t, err, ErrDuplicateKey)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrStorage)
}

func TestStorageKeepsCategorizedErrors(t *testing.T) {
	nf := NotFound("gone")
	assert.Same(t, nf, Storage(nf))
	assert.Nil(t, Storage(nil))
}

func TestRespondHidesInternalDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger, hook := test.NewNullLogger()

	router := gin.New()
	router.GET("/fail", func(c *gin.Context) {
		Respond(c, logger, Storage(errors.New("password authentication failed for user admin")))
	})

	resp := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/fail", nil)
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.NotContains(t, resp.Body.String(), "password")

	var body map[string]string
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "INTERNAL", body["code"])

	require.Len(t, hook.Entries, 1)
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestRespondClientErrorsAreNotLogged(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger, hook := test.NewNullLogger()

	router := gin.New()
	router.GET("/bad", func(c *gin.Context) {
		Respond(c, logger, InvalidArgument("Token ID required"))
	})

	resp := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/bad", nil)
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.JSONEq(t, `{"error":"Token ID required","code":"INVALID_ARGUMENT"}`, resp.Body.String())
	assert.Empty(t, hook.Entries)
}
