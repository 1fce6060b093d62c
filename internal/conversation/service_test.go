package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/questor-agent/server/internal/agent/model"
	"github.com/questor-agent/server/internal/classify"
	errx "github.com/questor-agent/server/internal/core/error"
	"github.com/questor-agent/server/internal/geocode"
	"github.com/questor-agent/server/internal/quest"
	"github.com/questor-agent/server/internal/reconcile"
	"github.com/questor-agent/server/internal/session"
)

type countingBackend struct {
	session.Backend
	mu      sync.Mutex
	gets    int
	upserts int
}

func (c *countingBackend) Get(ctx context.Context, id string) (*session.Record, error) {
	c.mu.Lock()
	c.gets++
	c.mu.Unlock()
	return c.Backend.Get(ctx, id)
}

func (c *countingBackend) Upsert(ctx context.Context, rec *session.Record) error {
	c.mu.Lock()
	c.upserts++
	c.mu.Unlock()
	return c.Backend.Upsert(ctx, rec)
}

type runnerFunc func(ctx context.Context, in model.TurnInput) (*model.TurnOutput, error)

func (f runnerFunc) Run(ctx context.Context, in model.TurnInput) (*model.TurnOutput, error) {
	return f(ctx, in)
}

type fakeClassifier struct {
	calls int
	res   classify.Classification
	err   error
}

func (f *fakeClassifier) Classify(context.Context, string) (classify.Classification, error) {
	f.calls++
	return f.res, f.err
}

func newTestService(t *testing.T, agent runnerFunc, cls Classifier) (*Service, *countingBackend) {
	t.Helper()
	backend := &countingBackend{Backend: session.NewMemoryBackend(session.NewMemoryCache())}
	store := session.NewStore(backend, session.NewMemoryCache(), 0)
	svc := NewService(store, agent, cls, reconcile.New(nil, nil))
	svc.newID = func() string { return "generated-id" }
	return svc, backend
}

func TestHandleMessage_Validation(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)

	_, err := svc.HandleMessage(context.Background(), Request{Message: "   "})
	require.Equal(t, 400, errx.StatusOf(err))

	long := make([]byte, MaxMessageLen+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = svc.HandleMessage(context.Background(), Request{Message: string(long)})
	require.Equal(t, 400, errx.StatusOf(err))
}

func TestHandleMessage_OneLoadOneSave(t *testing.T) {
	agent := runnerFunc(func(_ context.Context, in model.TurnInput) (*model.TurnOutput, error) {
		return &model.TurnOutput{Raw: "Nice! What's the price?\n###JSON###{\"title\":\"Desk\",\"action\":\"ask_for_price\"}"}, nil
	})
	svc, backend := newTestService(t, agent, nil)

	// seed an existing session so Load is a single read
	_, err := svc.store.Save(context.Background(), "s1", quest.State{Category: quest.Ptr("for_sale")}, nil)
	require.NoError(t, err)
	backend.gets, backend.upserts = 0, 0

	resp, err := svc.HandleMessage(context.Background(), Request{SessionID: "s1", Message: "selling a desk"})
	require.NoError(t, err)
	require.Equal(t, "s1", resp.SessionID)
	require.Equal(t, "Nice! What's the price?", resp.Reply)
	require.Equal(t, quest.ActionAskForPrice, resp.Action)
	require.Equal(t, "Desk", *resp.State.Title)
	require.Nil(t, resp.Classification)
	require.Equal(t, 1, backend.gets)
	require.Equal(t, 1, backend.upserts)
}

func TestHandleMessage_HistoryAlternatesAcrossRequests(t *testing.T) {
	replies := []string{"Hi! Want or have?", "Great, a bike."}
	var seen []model.TurnInput
	agent := runnerFunc(func(_ context.Context, in model.TurnInput) (*model.TurnOutput, error) {
		seen = append(seen, in)
		r := replies[0]
		replies = replies[1:]
		return &model.TurnOutput{Raw: r}, nil
	})
	svc, _ := newTestService(t, agent, nil)

	first, err := svc.HandleMessage(context.Background(), Request{Message: "hello"})
	require.NoError(t, err)
	require.Equal(t, "generated-id", first.SessionID)

	_, err = svc.HandleMessage(context.Background(), Request{SessionID: first.SessionID, Message: "I have a bike"})
	require.NoError(t, err)

	rec, err := svc.store.Load(context.Background(), first.SessionID)
	require.NoError(t, err)
	require.Equal(t, []quest.ChatMessage{
		{Role: quest.RoleUser, Content: "hello"},
		{Role: quest.RoleAssistant, Content: "Hi! Want or have?"},
		{Role: quest.RoleUser, Content: "I have a bike"},
		{Role: quest.RoleAssistant, Content: "Great, a bike."},
	}, rec.ChatHistory)
	require.Len(t, seen[1].History, 2)
}

func TestHandleMessage_ClassifiesOnce(t *testing.T) {
	cls := &fakeClassifier{res: classify.Classification{GeneralCategory: "housing", SubCategory: "sublets"}}
	var categories []string
	agent := runnerFunc(func(_ context.Context, in model.TurnInput) (*model.TurnOutput, error) {
		categories = append(categories, in.Category+"/"+in.SubCategory)
		return &model.TurnOutput{Raw: "ok"}, nil
	})
	svc, _ := newTestService(t, agent, cls)

	resp, err := svc.HandleMessage(context.Background(), Request{SessionID: "s1", Message: "need a sublet"})
	require.NoError(t, err)
	require.NotNil(t, resp.Classification)
	require.Equal(t, "housing", resp.State.CategoryName())

	resp, err = svc.HandleMessage(context.Background(), Request{SessionID: "s1", Message: "in June"})
	require.NoError(t, err)
	require.Nil(t, resp.Classification)
	require.Equal(t, 1, cls.calls)
	require.Equal(t, []string{"housing/sublets", "housing/sublets"}, categories)
}

func TestHandleMessage_GeocodeEffectKeepsUIOutOfStore(t *testing.T) {
	agent := runnerFunc(func(_ context.Context, in model.TurnInput) (*model.TurnOutput, error) {
		return &model.TurnOutput{
			Raw: "Is this right?",
			Effects: []reconcile.Effect{reconcile.GeocodeEffect{
				Query:  "Oakland",
				Result: &geocode.Result{Lat: 37.8, Lon: -122.27, MapURL: "https://maps.example/x"},
			}},
		}, nil
	})
	svc, _ := newTestService(t, agent, nil)

	resp, err := svc.HandleMessage(context.Background(), Request{SessionID: "s1", Message: "Oakland"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.State.UI)
	require.Equal(t, quest.ActionValidateLocation, resp.Action)

	rec, err := svc.store.Load(context.Background(), "s1")
	require.NoError(t, err)
	require.Nil(t, rec.QuestState.UI)
	require.False(t, rec.QuestState.IsLocationConfirmed())
}

func TestHandleMessage_AgentFailureSkipsSave(t *testing.T) {
	agent := runnerFunc(func(context.Context, model.TurnInput) (*model.TurnOutput, error) {
		return nil, errors.New("boom")
	})
	svc, backend := newTestService(t, agent, nil)

	_, err := svc.HandleMessage(context.Background(), Request{SessionID: "s1", Message: "hello"})
	require.True(t, errx.IsUpstreamUnavailable(err))
	require.Zero(t, backend.upserts)
}

func TestHandleMessage_ClassifierFailure(t *testing.T) {
	cls := &fakeClassifier{err: errx.UpstreamUnavailable(errors.New("timeout"))}
	svc, backend := newTestService(t, runnerFunc(func(context.Context, model.TurnInput) (*model.TurnOutput, error) {
		t.Fatal("agent must not run")
		return nil, nil
	}), cls)

	_, err := svc.HandleMessage(context.Background(), Request{SessionID: "s1", Message: "hello"})
	require.True(t, errx.IsUpstreamUnavailable(err))
	require.Zero(t, backend.upserts)
}

func TestHandleMessage_CancelledBeforeSave(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	agent := runnerFunc(func(context.Context, model.TurnInput) (*model.TurnOutput, error) {
		cancel()
		return &model.TurnOutput{Raw: "ok"}, nil
	})
	svc, backend := newTestService(t, agent, nil)

	_, err := svc.HandleMessage(ctx, Request{SessionID: "s1", Message: "hello"})
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, backend.upserts)
}
