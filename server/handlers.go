package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"story_feedback_collector/apperror"
	"story_feedback_collector/events"
	"story_feedback_collector/logging"
	"story_feedback_collector/review"
	"story_feedback_collector/sheets"
)

const savedMessage = "Feedback saved successfully"

type saveFeedbackReq struct {
	UserStory        string                `json:"userStory"`
	DefinitionOfDone string                `json:"definitionOfDone"`
	Feedback         []review.FeedbackItem `json:"feedback"`
}

type saveFeedbackResp struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type analyzeReq struct {
	APIKey           string `json:"apiKey"`
	UserStory        string `json:"userStory"`
	DefinitionOfDone string `json:"definitionOfDone"`
}

type feedbackView struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	HTML    string `json:"html,omitempty"`
}

type analyzeResp struct {
	Success  bool           `json:"success"`
	Feedback []feedbackView `json:"feedback"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(s.indexHTML)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePrompts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reviewer.Prompts())
}

func (s *Server) handleSaveFeedback(w http.ResponseWriter, r *http.Request) *apperror.Error {
	var req saveFeedbackReq
	if e := decodeJSON(r, &req); e != nil {
		return e
	}
	if e := requireFields("userStory", req.UserStory, "definitionOfDone", req.DefinitionOfDone); e != nil {
		return e
	}
	// An explicit empty list is a valid submission; a missing one is not.
	if req.Feedback == nil {
		return apperror.Validationf("feedback is required")
	}

	if e := s.record(r.Context(), events.FlowSaveFeedback, req.UserStory, req.DefinitionOfDone, req.Feedback); e != nil {
		return e
	}
	writeJSON(w, http.StatusOK, saveFeedbackResp{Success: true, Message: savedMessage})
	return nil
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) *apperror.Error {
	var req analyzeReq
	if e := decodeJSON(r, &req); e != nil {
		return e
	}
	if e := requireFields("apiKey", req.APIKey, "userStory", req.UserStory, "definitionOfDone", req.DefinitionOfDone); e != nil {
		return e
	}

	ctx := r.Context()
	items, err := s.reviewer.Review(ctx, req.APIKey, req.UserStory, req.DefinitionOfDone)
	if err != nil {
		return apperror.From(err)
	}
	if e := s.record(ctx, events.FlowAnalyze, req.UserStory, req.DefinitionOfDone, items); e != nil {
		return e
	}

	views := make([]feedbackView, 0, len(items))
	for _, item := range items {
		html, err := review.RenderHTML(item.Content)
		if err != nil {
			logging.FromContext(ctx).Warn(ctx, "render feedback html", zap.String("title", item.Title), zap.Error(err))
		}
		views = append(views, feedbackView{Title: item.Title, Content: item.Content, HTML: html})
	}
	writeJSON(w, http.StatusOK, analyzeResp{Success: true, Feedback: views})
	return nil
}

// record appends the row and then publishes a best-effort notification.
func (s *Server) record(ctx context.Context, flow, story, definitionOfDone string, items []review.FeedbackItem) *apperror.Error {
	ts := s.now()
	row := sheets.BuildRow(ts, story, definitionOfDone, items)
	if err := s.appender.Append(ctx, row); err != nil {
		return apperror.From(err)
	}

	traceID, _ := logging.TraceID(ctx)
	event := events.FeedbackRecorded{
		Flow:          flow,
		Timestamp:     ts,
		UserStory:     story,
		FeedbackCount: len(items),
		TraceID:       traceID,
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		logging.FromContext(ctx).Warn(ctx, "feedback notification failed", zap.String("flow", flow), zap.Error(err))
	}
	return nil
}

func decodeJSON(r *http.Request, v any) *apperror.Error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperror.New(apperror.Validation, "request body too large", err)
		}
		return apperror.New(apperror.Validation, "invalid JSON body", err)
	}
	return nil
}

// requireFields takes name/value pairs and reports the first blank one.
func requireFields(pairs ...string) *apperror.Error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return apperror.Validationf("%s is required", pairs[i])
		}
	}
	return nil
}
