package binder_test

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/prokit/pkg/binder"
)

type showcaseForm struct {
	Description string                `form:"description"`
	Public      bool                  `form:"public"`
	Order       int                   `form:"order"`
	Logo        *multipart.FileHeader `file:"logo"`
	Ignored     string                `form:"-"`
}

func TestJSON(t *testing.T) {
	t.Parallel()

	type body struct {
		PackID string `json:"packId"`
	}

	t.Run("decodes", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"packId":"pro"}`))
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		var b body
		require.NoError(t, binder.JSON(0)(req, &b))
		assert.Equal(t, "pro", b.PackID)
	})

	t.Run("not applicable", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`x=1`))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		assert.ErrorIs(t, binder.JSON(0)(req, &body{}), binder.ErrBinderNotApplicable)
	})

	t.Run("too large", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"packId":"0123456789"}`))
		req.Header.Set("Content-Type", "application/json")
		assert.ErrorIs(t, binder.JSON(8)(req, &body{}), binder.ErrBodyTooLarge)
	})

	t.Run("malformed", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"packId":`))
		req.Header.Set("Content-Type", "application/json")
		assert.ErrorIs(t, binder.JSON(0)(req, &body{}), binder.ErrFailedToParseJSON)
	})
}

func TestForm(t *testing.T) {
	t.Parallel()

	t.Run("urlencoded", func(t *testing.T) {
		t.Parallel()
		form := url.Values{"description": {"Agence familiale"}, "public": {"on"}, "order": {"3"}, "Ignored": {"x"}}
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		var f showcaseForm
		require.NoError(t, binder.Form(0)(req, &f))
		assert.Equal(t, "Agence familiale", f.Description)
		assert.True(t, f.Public)
		assert.Equal(t, 3, f.Order)
		assert.Empty(t, f.Ignored)
		assert.Nil(t, f.Logo)
	})

	t.Run("multipart with file", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("description", "Vitrine"))
		fw, err := mw.CreateFormFile("logo", "../../logo.png")
		require.NoError(t, err)
		_, _ = fw.Write([]byte("\x89PNG\r\n\x1a\n"))
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())

		var f showcaseForm
		require.NoError(t, binder.Form(0)(req, &f))
		assert.Equal(t, "Vitrine", f.Description)
		require.NotNil(t, f.Logo)
		assert.Equal(t, "logo.png", f.Logo.Filename)
	})

	t.Run("bad int", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("order=abc"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		assert.ErrorIs(t, binder.Form(0)(req, &showcaseForm{}), binder.ErrFailedToParseForm)
	})
}

func TestQuery(t *testing.T) {
	t.Parallel()

	var q struct {
		SessionID string `query:"session_id"`
	}
	req := httptest.NewRequest(http.MethodGet, "/dashboard/onboarding/success?session_id=cs_test_1", nil)
	require.NoError(t, binder.Query()(req, &q))
	assert.Equal(t, "cs_test_1", q.SessionID)
}
