package prediction

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/kinexbt/coin-yaps/internal/apperrors"
	"github.com/kinexbt/coin-yaps/internal/metrics"
	"github.com/kinexbt/coin-yaps/internal/models"
	"github.com/kinexbt/coin-yaps/internal/realtime"
)

// TokenFinder checks that a voted token exists
type TokenFinder interface {
	GetByID(ctx context.Context, id uint) (*models.Token, error)
}

// UpdateEvent is published on the token channel after a vote
type UpdateEvent struct {
	TokenID      uint         `json:"tokenId"`
	Distribution Distribution `json:"distribution"`
}

// Service defines prediction service operations
type Service interface {
	CastVote(ctx context.Context, userID, tokenID uint, priceRange string) (*models.Prediction, error)
	RecomputePercentages(ctx context.Context, tokenID uint) error
	GetDistribution(ctx context.Context, tokenID uint) (*Distribution, error)
}

type service struct {
	repo   PredictionRepository
	tokens TokenFinder
	events realtime.Publisher
	log    logrus.FieldLogger
}

// NewService creates a new prediction service
func NewService(repo PredictionRepository, tokens TokenFinder, events realtime.Publisher, log logrus.FieldLogger) Service {
	return &service{
		repo:   repo,
		tokens: tokens,
		events: realtime.OrNop(events),
		log:    log,
	}
}

// CastVote records the user's bucket for a token and rewrites the token's
// percentages in the same transaction
func (s *service) CastVote(ctx context.Context, userID, tokenID uint, priceRange string) (*models.Prediction, error) {
	bucket, err := models.ParsePriceRange(priceRange)
	if err != nil {
		return nil, apperrors.InvalidArgument("Invalid price range")
	}
	if userID == 0 {
		return nil, apperrors.Unauthenticated("Unauthorized")
	}
	if tokenID == 0 {
		return nil, apperrors.InvalidArgument("tokenId is required")
	}

	token, err := s.tokens.GetByID(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, apperrors.NotFound("Token not found")
	}

	vote := &models.Prediction{UserID: userID, TokenID: tokenID, PriceRange: bucket}
	var dist Distribution
	err = s.repo.Transaction(ctx, func(tx PredictionRepository) error {
		if err := tx.Upsert(ctx, vote); err != nil {
			return err
		}
		d, err := recompute(ctx, tx, tokenID)
		if err != nil {
			return err
		}
		dist = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	vote.Percentage = dist.PercentageOf(vote.PriceRange)

	metrics.PredictionVotesTotal.WithLabelValues(string(bucket)).Inc()
	s.events.Publish(realtime.TokenChannel(tokenID), realtime.EventPredictionUpdated, UpdateEvent{
		TokenID:      tokenID,
		Distribution: dist,
	})
	s.log.WithFields(logrus.Fields{
		"token_id":    tokenID,
		"user_id":     userID,
		"price_range": bucket,
		"total_votes": dist.TotalVotes,
	}).Debug("prediction recorded")
	return vote, nil
}

func (s *service) RecomputePercentages(ctx context.Context, tokenID uint) error {
	_, err := recompute(ctx, s.repo, tokenID)
	return err
}

// GetDistribution derives percentages from the rows it reads
func (s *service) GetDistribution(ctx context.Context, tokenID uint) (*Distribution, error) {
	if tokenID == 0 {
		return nil, apperrors.InvalidArgument("tokenId is required")
	}
	rows, err := s.repo.FindByToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	dist := ComputeDistribution(rows)
	return &dist, nil
}

// recompute writes each occupied bucket's share onto its rows
func recompute(ctx context.Context, repo PredictionRepository, tokenID uint) (Distribution, error) {
	rows, err := repo.FindByToken(ctx, tokenID)
	if err != nil {
		return Distribution{}, err
	}
	dist := ComputeDistribution(rows)
	for _, b := range dist.Predictions {
		if b.Votes == 0 {
			continue
		}
		if err := repo.UpdatePercentage(ctx, tokenID, b.PriceRange, b.Percentage); err != nil {
			return Distribution{}, err
		}
	}
	return dist, nil
}
