package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/supportdesk/backend/internal/authz"
	"github.com/supportdesk/backend/internal/db"
	"github.com/supportdesk/backend/internal/errs"
	"github.com/supportdesk/backend/internal/events"
	"github.com/supportdesk/backend/internal/models"
)

type RatingService struct {
	Repo   db.Repository
	Events events.Publisher
	Logger zerolog.Logger
}

type RatingInput struct {
	ChatID     int64
	OperatorID int64
	QCUserID   *int64
	Score      int
	Comment    *string
}

// AddRating records a QC score against a closed chat. The rated operator
// must be the chat's assignee at close time.
func (s *RatingService) AddRating(ctx context.Context, p authz.Principal, in RatingInput) (models.QCRating, error) {
	if err := authz.Require(p, authz.RatingAdd); err != nil {
		return models.QCRating{}, err
	}
	qc, err := authz.Self(p, in.QCUserID)
	if err != nil {
		return models.QCRating{}, err
	}
	if in.OperatorID == 0 {
		return models.QCRating{}, errs.Empty("operator_id")
	}
	if in.Score < models.MinScore || in.Score > models.MaxScore {
		return models.QCRating{}, fmt.Errorf("score %d: %w", in.Score, errs.ErrOutOfRangeScore)
	}

	r := models.QCRating{
		ChatID:     in.ChatID,
		OperatorID: in.OperatorID,
		QCUserID:   qc,
		Score:      in.Score,
		Comment:    optional(in.Comment),
	}
	if err := s.Repo.AddRating(ctx, &r); err != nil {
		return models.QCRating{}, err
	}
	s.Logger.Info().Int64("chat_id", r.ChatID).Int64("operator_id", r.OperatorID).Int("score", r.Score).Msg("rating added")

	score := r.Score
	publish(ctx, s.Events, events.Event{
		Type:       events.RatingAdded,
		ChatID:     r.ChatID,
		Status:     models.ChatClosed,
		OperatorID: &r.OperatorID,
		ActorID:    qc,
		Score:      &score,
		At:         r.CreatedAt,
	})
	return r, nil
}

// ListRatings returns ratings newest first. Without operatorID, reviewers
// see every rating and operators see their own.
func (s *RatingService) ListRatings(ctx context.Context, p authz.Principal, operatorID *int64) ([]models.QCRating, error) {
	if err := authz.Require(p, authz.RatingListOwn); err != nil {
		return nil, err
	}
	if operatorID != nil && *operatorID == 0 {
		operatorID = nil
	}
	switch {
	case operatorID == nil && !p.Can(authz.RatingListAny):
		self := p.UserID
		operatorID = &self
	case operatorID != nil && *operatorID != p.UserID:
		if err := authz.Require(p, authz.RatingListAny); err != nil {
			return nil, err
		}
	}
	return s.Repo.ListRatings(ctx, operatorID)
}
