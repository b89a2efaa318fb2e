package onboarding_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/prokit/svc/auth"
	"github.com/dmitrymomot/prokit/svc/onboarding"
)

func TestGuard(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	userID := uuid.New()
	store.profiles[userID] = onboarding.Profile{UserID: userID, Step: 2}

	var seen *onboarding.Profile
	guard := onboarding.Guard(onboarding.DefaultPolicy(), store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = onboarding.ProfileFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	serve := func(path string, id *uuid.UUID, headers ...string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, path, nil)
		for i := 0; i+1 < len(headers); i += 2 {
			r.Header.Set(headers[i], headers[i+1])
		}
		if id != nil {
			r = r.WithContext(auth.WithIdentity(r.Context(), auth.Identity{UserID: *id}))
		}
		rec := httptest.NewRecorder()
		guard.ServeHTTP(rec, r)
		return rec
	}

	t.Run("anonymous is sent to login", func(t *testing.T) {
		rec := serve("/dashboard", nil)
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/auth/login", rec.Header().Get("Location"))
		assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	})

	t.Run("user on step 2 reaches own form with profile in context", func(t *testing.T) {
		rec := serve("/dashboard/onboarding/agency", &userID)
		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, seen)
		assert.Equal(t, 2, seen.Step)
		assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	})

	t.Run("reads the profile fresh on each request", func(t *testing.T) {
		p := store.profiles[userID]
		p.Step = 5
		store.profiles[userID] = p
		t.Cleanup(func() {
			p.Step = 2
			store.profiles[userID] = p
		})

		rec := serve("/dashboard/onboarding/plan", &userID)
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
	})

	t.Run("missing profile counts as step 0", func(t *testing.T) {
		stranger := uuid.New()
		rec := serve("/dashboard", &stranger)
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/onboarding/choice", rec.Header().Get("Location"))
	})

	t.Run("webhook bypass skips profile lookup", func(t *testing.T) {
		store.fail["GetProfile"] = errors.New("must not be called")
		t.Cleanup(func() { delete(store.fail, "GetProfile") })

		rec := serve("/api/webhook/stripe", &userID)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("Cache-Control"))
	})

	t.Run("profile read failure is a server error", func(t *testing.T) {
		store.fail["GetProfile"] = errors.New("db down")
		t.Cleanup(func() { delete(store.fail, "GetProfile") })

		rec := serve("/dashboard", &userID)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("datastar requests get an sse redirect", func(t *testing.T) {
		rec := serve("/dashboard", nil, "Datastar-Request", "true")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/event-stream")
		assert.Contains(t, rec.Body.String(), "/auth/login")
	})
}
