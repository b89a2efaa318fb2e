package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/prokit/handler"
	"github.com/dmitrymomot/prokit/pkg/binder"
	"github.com/dmitrymomot/prokit/pkg/validator"
)

type checkoutRequest struct {
	PackID string `json:"packId"`
}

func text(s string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, s)
		return err
	})
}

func TestWrap(t *testing.T) {
	t.Parallel()

	t.Run("binds json and renders", func(t *testing.T) {
		t.Parallel()
		h := handler.Wrap(func(ctx handler.Context, req checkoutRequest) handler.Response {
			return handler.JSON(map[string]string{"plan": req.PackID})
		}, handler.WithBinders[handler.Context, checkoutRequest](binder.JSON(1<<10)))

		req := httptest.NewRequest(http.MethodPost, "/api/checkout", strings.NewReader(`{"packId":"expert"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"plan":"expert"}`, rec.Body.String())
	})

	t.Run("skips binders that do not apply", func(t *testing.T) {
		t.Parallel()
		called := false
		h := handler.Wrap(func(ctx handler.Context, req checkoutRequest) handler.Response {
			called = true
			return handler.Empty()
		}, handler.WithBinders[handler.Context, checkoutRequest](binder.JSON(1<<10)))

		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.True(t, called)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("bad json is a 400", func(t *testing.T) {
		t.Parallel()
		h := handler.Wrap(func(ctx handler.Context, req checkoutRequest) handler.Response {
			t.Fatal("must not be called")
			return nil
		},
			handler.WithBinders[handler.Context, checkoutRequest](binder.JSON(1<<10)),
			handler.WithErrorHandler[handler.Context, checkoutRequest](handler.NewErrorHandler(nil, handler.ErrorHandlerConfig{})),
		)

		req := httptest.NewRequest(http.MethodPost, "/api/checkout", strings.NewReader(`{`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("error response reaches the error handler", func(t *testing.T) {
		t.Parallel()
		h := handler.Wrap(func(ctx handler.Context, req struct{}) handler.Response {
			return handler.Error(handler.ErrConflict)
		}, handler.WithErrorHandler[handler.Context, struct{}](handler.NewErrorHandler(nil, handler.ErrorHandlerConfig{})))
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodPost, "/api/billing/portal", nil))
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("nil response", func(t *testing.T) {
		t.Parallel()
		h := handler.Wrap(func(ctx handler.Context, req struct{}) handler.Response { return nil })
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("decorators run outermost first", func(t *testing.T) {
		t.Parallel()
		var order []string
		mk := func(name string) handler.Decorator[handler.Context, struct{}] {
			return func(next handler.HandlerFunc[handler.Context, struct{}]) handler.HandlerFunc[handler.Context, struct{}] {
				return func(ctx handler.Context, req struct{}) handler.Response {
					order = append(order, name)
					return next(ctx, req)
				}
			}
		}
		h := handler.Wrap(func(ctx handler.Context, req struct{}) handler.Response {
			order = append(order, "handler")
			return handler.Empty()
		}, handler.WithDecorators(mk("a"), mk("b")))
		h(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, []string{"a", "b", "handler"}, order)
	})
}

func TestJSONError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		message string
		status  int
		code    string
	}{
		{"http error", handler.ErrUnauthorized, "", http.StatusUnauthorized, "unauthorized"},
		{"wrapped http error", errors.Join(errors.New("x"), handler.ErrConflict), "", http.StatusConflict, "conflict"},
		{"validation", validator.Apply(validator.RequiredString("first_name", "")), "", http.StatusUnprocessableEntity, "validation_error"},
		{"unknown", errors.New("db down"), "", http.StatusInternalServerError, "internal_server_error"},
		{"override message", handler.ErrBadRequest, "Invalid plan", http.StatusBadRequest, "bad_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			require.NoError(t, handler.JSONError(tt.err, tt.message).Render(rec, httptest.NewRequest(http.MethodPost, "/api/x", nil)))
			assert.Equal(t, tt.status, rec.Code)

			var body handler.ErrorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Code)
			if tt.message != "" {
				assert.Equal(t, tt.message, body.Error)
			}
		})
	}
}

func TestRedirect(t *testing.T) {
	t.Parallel()

	t.Run("plain request", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		require.NoError(t, handler.Redirect("/dashboard").Render(rec, httptest.NewRequest(http.MethodGet, "/", nil)))
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
	})

	t.Run("datastar request", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Accept", "text/event-stream")
		rec := httptest.NewRecorder()
		require.NoError(t, handler.Redirect("/dashboard").Render(rec, req))
		assert.Empty(t, rec.Header().Get("Location"))
		assert.Contains(t, rec.Body.String(), "/dashboard")
	})
}

func TestErrorHandler(t *testing.T) {
	t.Parallel()

	eh := handler.NewErrorHandler(nil, handler.ErrorHandlerConfig{
		ErrorPage: func(p handler.ErrorPageParams) templ.Component { return text("page:" + p.Error) },
	})

	t.Run("api path answers json", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/checkout", nil)
		eh(handler.NewContext(rec, req), handler.ErrUnauthorized)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	})

	t.Run("html path renders page", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
		eh(handler.NewContext(rec, req), handler.ErrNotFound)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "page:Not Found", rec.Body.String())
	})
}

func TestTemplAndBlob(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	require.NoError(t, handler.Templ(text("<p>hi</p>")).Render(rec, httptest.NewRequest(http.MethodGet, "/", nil)))
	assert.Equal(t, "<p>hi</p>", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	rec = httptest.NewRecorder()
	require.NoError(t, handler.Blob("image/png", []byte{1, 2, 3}).Render(rec, httptest.NewRequest(http.MethodGet, "/", nil)))
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, 3, rec.Body.Len())
}
