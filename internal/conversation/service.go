package conversation

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/questor-agent/server/internal/agent/graph"
	"github.com/questor-agent/server/internal/agent/model"
	"github.com/questor-agent/server/internal/classify"
	errx "github.com/questor-agent/server/internal/core/error"
	"github.com/questor-agent/server/internal/quest"
	"github.com/questor-agent/server/internal/reconcile"
	"github.com/questor-agent/server/internal/session"
	logx "github.com/questor-agent/server/pkg/logger"
)

// MaxMessageLen bounds a single user message, in bytes.
const MaxMessageLen = 8000

type Classifier interface {
	Classify(ctx context.Context, text string) (classify.Classification, error)
}

type Request struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type Response struct {
	SessionID string      `json:"session_id"`
	Reply     string      `json:"message"`
	State     quest.State `json:"quest_state"`
	// Classification is set on the turn that classified the quest.
	Classification *classify.Classification `json:"classification,omitempty"`
	Action         quest.Action             `json:"-"`
	Durable        bool                     `json:"-"`
}

// Service drives one onboarding turn: load, classify when needed, run the
// agent, reconcile and save.
type Service struct {
	store      *session.Store
	agent      graph.Runner
	classifier Classifier
	reconciler *reconcile.Reconciler
	newID      func() string
}

// NewService wires the driver. classifier may be nil, in which case quests
// without a category run on the generic agent.
func NewService(store *session.Store, agent graph.Runner, classifier Classifier, reconciler *reconcile.Reconciler) *Service {
	if reconciler == nil {
		reconciler = reconcile.New(nil, nil)
	}
	return &Service{
		store:      store,
		agent:      agent,
		classifier: classifier,
		reconciler: reconciler,
		newID:      uuid.NewString,
	}
}

func (s *Service) HandleMessage(ctx context.Context, req Request) (*Response, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, errx.Validation("message is required")
	}
	if len(message) > MaxMessageLen {
		return nil, errx.Validation("message is too long")
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = s.newID()
	}

	rec, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	state := rec.QuestState

	var classification *classify.Classification
	if !state.HasCategory() && s.classifier != nil {
		c, err := s.classifier.Classify(ctx, message)
		if err != nil {
			return nil, err
		}
		state.Category = quest.Ptr(c.GeneralCategory)
		if c.SubCategory != "" {
			state.SubCategory = quest.Ptr(c.SubCategory)
		}
		classification = &c
	}

	out, err := s.agent.Run(ctx, model.TurnInput{
		SessionID:   sessionID,
		Message:     message,
		Category:    state.CategoryName(),
		SubCategory: deref(state.SubCategory),
		State:       state,
		History:     rec.ChatHistory,
	})
	if err != nil {
		if errx.IsUpstreamUnavailable(err) {
			return nil, err
		}
		return nil, errx.UpstreamUnavailable(err)
	}

	res := s.reconciler.Reconcile(ctx, reconcile.Input{
		Prior:   state,
		History: rec.ChatHistory,
		Message: message,
		Raw:     out.Raw,
		Effects: out.Effects,
	})

	// The caller is gone; leave the stored session untouched.
	if err := ctx.Err(); err != nil {
		logx.Warn().Err(err).Str("session_id", sessionID).Msg("request cancelled before save")
		return nil, errx.UpstreamUnavailable(err)
	}

	ack, err := s.store.Save(ctx, sessionID, res.State, res.History)
	if err != nil {
		return nil, err
	}

	logx.Info().
		Str("session_id", sessionID).
		Str("category", res.State.CategoryName()).
		Str("action", string(res.Action)).
		Str("strategy", res.Strategy).
		Bool("durable", ack.Durable).
		Msg("quest turn handled")

	return &Response{
		SessionID:      sessionID,
		Reply:          res.Reply,
		State:          res.State,
		Classification: classification,
		Action:         res.Action,
		Durable:        ack.Durable,
	}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
