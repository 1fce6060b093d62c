package classify

import (
	"context"
	"errors"
	"fmt"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"

	"github.com/questor-agent/server/internal/agent/graph/prompts"
	"github.com/questor-agent/server/internal/agent/model"
	errx "github.com/questor-agent/server/internal/core/error"
	"github.com/questor-agent/server/internal/reconcile"
	logx "github.com/questor-agent/server/pkg/logger"
)

var ErrNoModel = errors.New("classifier model not configured")

type Classification struct {
	GeneralCategory string `json:"general_category"`
	SubCategory     string `json:"sub_category"`
	// Fallback is set when the model output could not be used.
	Fallback bool `json:"fallback,omitempty"`
}

type Config struct {
	ModelName string
	Fallback  string
	Timeout   time.Duration
}

type Classifier struct {
	chatModel einomodel.BaseChatModel
	taxonomy  Taxonomy
	cfg       Config
	extractor *reconcile.Extractor
}

func NewClassifier(chatModel einomodel.BaseChatModel, taxonomy Taxonomy, cfg Config) *Classifier {
	if cfg.Fallback == "" {
		cfg.Fallback = "general"
	}
	if len(taxonomy) == 0 {
		taxonomy = DefaultTaxonomy()
	}
	return &Classifier{
		chatModel: chatModel,
		taxonomy:  taxonomy,
		cfg:       cfg,
		extractor: reconcile.NewExtractor(),
	}
}

// Classify picks one general and one sub category for text. Output that is
// unparseable or outside the taxonomy yields the fallback category. Only a
// failed model call is an error.
func (c *Classifier) Classify(ctx context.Context, text string) (Classification, error) {
	if c == nil || c.chatModel == nil {
		return Classification{}, errx.UpstreamUnavailable(ErrNoModel)
	}
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	msgs, err := prompts.RenderClassifierMessages(ctx, c.taxonomy.JSON(), text)
	if err != nil {
		return Classification{}, err
	}

	out, err := c.chatModel.Generate(ctx, msgs)
	if err != nil {
		logx.Error().Err(err).Str("model", c.cfg.ModelName).Msg("Classifier call failed")
		return Classification{}, errx.UpstreamUnavailable(err)
	}
	if out == nil {
		return Classification{}, errx.UpstreamUnavailable(fmt.Errorf("classifier returned no message"))
	}
	if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
		_, total := model.UsageCost(c.cfg.ModelName, out.ResponseMeta.Usage)
		logx.Debug().Str("model", c.cfg.ModelName).Float64("total_cost_usd", total).Msg("Classifier usage")
	}

	ext, err := c.extractor.Extract(out.Content)
	if err != nil {
		logx.Warn().Err(err).Msg("Classifier output unparseable, using fallback category")
		return c.fallback(), nil
	}

	general, _ := ext.Fragment["general_category"].(string)
	sub, _ := ext.Fragment["sub_category"].(string)
	g, s, ok := c.taxonomy.Resolve(general, sub)
	if !ok {
		logx.Warn().Str("general_category", general).Msg("Classifier chose a category outside the taxonomy, using fallback")
		return c.fallback(), nil
	}

	logx.Debug().Str("general_category", g).Str("sub_category", s).Msg("Quest classified")
	return Classification{GeneralCategory: g, SubCategory: s}, nil
}

func (c *Classifier) fallback() Classification {
	return Classification{GeneralCategory: c.cfg.Fallback, Fallback: true}
}
