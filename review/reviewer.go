package review

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"story_feedback_collector/apperror"
)

// Reviewer asks the LLM for one feedback item per configured prompt.
type Reviewer struct {
	llm     LLMClient
	prompts []Prompt
	opts    Options
}

type Options struct {
	// Concurrency above 1 issues the per-prompt calls in parallel.
	Concurrency int
	// CallTimeout bounds each completion call; zero means no limit.
	CallTimeout time.Duration
}

func NewReviewer(llm LLMClient, prompts []Prompt, opts Options) (*Reviewer, error) {
	if llm == nil {
		return nil, errors.New("llm client is required")
	}
	if len(prompts) == 0 {
		return nil, errors.New("at least one prompt is required")
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Reviewer{llm: llm, prompts: prompts, opts: opts}, nil
}

func (r *Reviewer) Prompts() []Prompt {
	out := make([]Prompt, len(r.prompts))
	copy(out, r.prompts)
	return out
}

// Review returns the feedback items in prompt order. The first failing
// call aborts the whole review.
func (r *Reviewer) Review(ctx context.Context, apiKey, story, definitionOfDone string) ([]FeedbackItem, error) {
	if r.opts.Concurrency > 1 {
		return r.reviewParallel(ctx, apiKey, story, definitionOfDone)
	}

	items := make([]FeedbackItem, 0, len(r.prompts))
	for _, p := range r.prompts {
		item, err := r.reviewOne(ctx, apiKey, story, definitionOfDone, p)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *Reviewer) reviewParallel(ctx context.Context, apiKey, story, definitionOfDone string) ([]FeedbackItem, error) {
	items := make([]FeedbackItem, len(r.prompts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for i, p := range r.prompts {
		g.Go(func() error {
			item, err := r.reviewOne(gctx, apiKey, story, definitionOfDone, p)
			if err != nil {
				return err
			}
			items[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *Reviewer) reviewOne(ctx context.Context, apiKey, story, definitionOfDone string, p Prompt) (FeedbackItem, error) {
	if r.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.CallTimeout)
		defer cancel()
	}

	raw, err := r.llm.Complete(ctx, apiKey, BuildInstruction(story, definitionOfDone, p))
	if err != nil {
		var ae *apperror.Error
		if errors.As(err, &ae) {
			return FeedbackItem{}, err
		}
		return FeedbackItem{}, apperror.UpstreamError(fallbackErrorMessage, err)
	}
	return PostProcess(raw, p)
}
