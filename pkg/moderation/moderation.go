package moderation

import (
	"context"

	"github.com/labstack/gommon/log"
)

type Action string

const (
	ActionAllow   Action = "allow"
	ActionFlag    Action = "flag"
	ActionHide    Action = "hide"
	ActionTimeout Action = "timeout"
	ActionBlock   Action = "block"
)

type Categories struct {
	Toxicity   float64 `json:"toxicity"`
	Harassment float64 `json:"harassment"`
	HateSpeech float64 `json:"hate_speech"`
	Sexual     float64 `json:"sexual"`
	Threats    float64 `json:"threats"`
	Spam       float64 `json:"spam"`
}

type Result struct {
	Flagged    bool       `json:"flagged"`
	Score      float64    `json:"score"`
	Action     Action     `json:"action"`
	Categories Categories `json:"categories"`
}

// Allowed is returned whenever the moderation service cannot be reached.
var Allowed = Result{Flagged: false, Score: 0, Action: ActionAllow}

func ActionForScore(score float64) Action {
	switch {
	case score < 0.3:
		return ActionAllow
	case score < 0.5:
		return ActionFlag
	case score < 0.7:
		return ActionHide
	case score < 0.85:
		return ActionTimeout
	}
	return ActionBlock
}

func ShouldBlock(r Result) bool {
	return r.Action == ActionBlock || r.Action == ActionTimeout
}

func ShouldHide(r Result) bool {
	return r.Action == ActionHide
}

type Poster interface {
	Post(ctx context.Context, path string, body interface{}, result interface{}) error
}

type Logger interface {
	Errorf(format string, args ...interface{})
}

// Service scores user content with the remote moderation API. It fails open.
type Service struct {
	api    Poster
	logger Logger
}

func New(api Poster, logger Logger) *Service {
	if logger == nil {
		logger = log.New("moderation")
	}
	return &Service{api: api, logger: logger}
}

func (s *Service) ModerateMessage(ctx context.Context, message string) Result {
	return s.score(ctx, "/api/moderation/message", map[string]string{"message": message})
}

func (s *Service) ModerateProfile(ctx context.Context, username string, bio string) Result {
	body := map[string]string{"username": username}
	if bio != "" {
		body["bio"] = bio
	}
	return s.score(ctx, "/api/moderation/profile", body)
}

func (s *Service) score(ctx context.Context, path string, body interface{}) Result {
	if s == nil || s.api == nil {
		return Allowed
	}

	var result Result
	if err := s.api.Post(ctx, path, body, &result); err != nil {
		s.logger.Errorf("moderation %s: %v", path, err)
		return Allowed
	}
	if result.Action == "" {
		result.Action = ActionForScore(result.Score)
	}
	return result
}
