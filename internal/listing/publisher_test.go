package listing

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	errx "github.com/questor-agent/server/internal/core/error"
	"github.com/questor-agent/server/internal/quest"
	"github.com/questor-agent/server/pkg/supabase"
)

func newPublisher(t *testing.T, h http.HandlerFunc) *Publisher {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg := supabase.Config{URL: srv.URL, ServiceRole: "key"}
	c, err := cfg.New(srv.Client())
	require.NoError(t, err)
	return NewPublisher(c, "")
}

func validRequest() CreateRequest {
	return CreateRequest{
		State: quest.State{
			WantOrHave:  quest.Ptr("have"),
			Description: quest.Ptr("Road bike, barely used"),
			Price:       quest.Ptr(250.0),
			UI:          map[string]any{"trigger": "location_confirm"},
		},
		UserID: "user-1",
	}
}

func TestSave(t *testing.T) {
	var body []map[string]any
	p := newPublisher(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/rest/v1/quests", r.URL.Path)
		require.Equal(t, "return=representation", r.Header.Get("Prefer"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`[{"id":"q1","user_id":"user-1","price":250}]`))
	})

	got, err := p.Save(context.Background(), validRequest())
	require.NoError(t, err)
	require.Equal(t, "q1", got["id"])

	require.Len(t, body, 1)
	require.Equal(t, "user-1", body[0]["user_id"])
	require.Equal(t, "have", body[0]["want_or_have"])
	require.NotContains(t, body[0], "ui")
}

func TestSave_MissingFields(t *testing.T) {
	p := newPublisher(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	req := validRequest()
	req.UserID = " "
	_, err := p.Save(context.Background(), req)
	require.Equal(t, http.StatusBadRequest, errx.StatusOf(err))

	req = validRequest()
	req.Description = nil
	_, err = p.Save(context.Background(), req)
	require.Equal(t, http.StatusBadRequest, errx.StatusOf(err))
}

func TestSave_DatastoreError(t *testing.T) {
	p := newPublisher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":"23505","message":"duplicate"}`))
	})

	_, err := p.Save(context.Background(), validRequest())
	require.Equal(t, http.StatusBadGateway, errx.StatusOf(err))
	var se *supabase.Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, "duplicate", se.Message)
	require.True(t, supabase.IsConflict(err))
}

func TestUpdate(t *testing.T) {
	var patch map[string]any
	p := newPublisher(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		require.Equal(t, "eq.q1", r.URL.Query().Get("id"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&patch))
		_, _ = w.Write([]byte(`[{"id":"q1","price":300}]`))
	})

	got, err := p.Update(context.Background(), "q1", map[string]any{"price": 300, "ui": map[string]any{}})
	require.NoError(t, err)
	require.EqualValues(t, 300, got["price"])
	require.Equal(t, map[string]any{"price": float64(300)}, patch)
}

func TestUpdate_OnlyKnownQuestColumns(t *testing.T) {
	var patch map[string]any
	p := newPublisher(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&patch))
		_, _ = w.Write([]byte(`[{"id":"q1"}]`))
	})

	_, err := p.Update(context.Background(), "q1", map[string]any{
		"title":    "Road bike",
		"price":    "$1,200",
		"id":       "q2",
		"user_id":  "someone-else",
		"is_admin": true,
	})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"title": "Road bike", "price": float64(1200)}, patch)
}

func TestUpdate_RejectsUncoercibleValue(t *testing.T) {
	p := newPublisher(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := p.Update(context.Background(), "q1", map[string]any{"price": "about fifty"})
	require.Equal(t, http.StatusBadRequest, errx.StatusOf(err))
}

func TestUpdate_UnknownColumnsOnlyIsNoFields(t *testing.T) {
	p := newPublisher(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := p.Update(context.Background(), "q1", map[string]any{"owner": "x", "id": "q2"})
	require.Equal(t, http.StatusBadRequest, errx.StatusOf(err))
}

func TestUpdate_NotFound(t *testing.T) {
	p := newPublisher(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := p.Update(context.Background(), "missing", map[string]any{"price": 1})
	require.Equal(t, http.StatusNotFound, errx.StatusOf(err))
}

func TestUpdate_NoFields(t *testing.T) {
	p := newPublisher(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := p.Update(context.Background(), "q1", map[string]any{"ui": true})
	require.Equal(t, http.StatusBadRequest, errx.StatusOf(err))
}

func TestPublisher_NotConfigured(t *testing.T) {
	p := NewPublisher(nil, "")
	require.False(t, p.Enabled())

	_, err := p.Save(context.Background(), validRequest())
	require.Equal(t, http.StatusServiceUnavailable, errx.StatusOf(err))
	_, err = p.Update(context.Background(), "q1", map[string]any{"price": 1})
	require.Equal(t, http.StatusServiceUnavailable, errx.StatusOf(err))
}
