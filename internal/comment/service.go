package comment

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/kinexbt/coin-yaps/internal/apperrors"
	"github.com/kinexbt/coin-yaps/internal/metrics"
	"github.com/kinexbt/coin-yaps/internal/models"
	"github.com/kinexbt/coin-yaps/internal/realtime"
)

const (
	// MaxContentLength is counted in characters after trimming
	MaxContentLength = 2000
	// PageSize is the number of comments returned per thread level
	PageSize = 20
)

// TokenFinder resolves the token a comment belongs to
type TokenFinder interface {
	GetByID(ctx context.Context, id uint) (*models.Token, error)
}

// CreateRequest is a new comment or reply
type CreateRequest struct {
	Content  string `json:"content"`
	TokenID  uint   `json:"tokenId"`
	ParentID *uint  `json:"parentId"`
}

// LikeEvent is published when a comment's likes change
type LikeEvent struct {
	CommentID uint `json:"commentId"`
	UserID    uint `json:"userId"`
	Liked     bool `json:"liked"`
	Likes     int  `json:"likes"`
}

// Service defines comment service operations
type Service interface {
	Create(ctx context.Context, caller *models.User, req CreateRequest) (*models.Comment, error)
	List(ctx context.Context, tokenID uint, parentID *uint) ([]models.Comment, error)
	ToggleLike(ctx context.Context, caller *models.User, commentID uint) (*LikeResult, error)
}

type service struct {
	repo   CommentRepository
	tokens TokenFinder
	events realtime.Publisher
	log    logrus.FieldLogger
}

// NewService creates a new comment service
func NewService(repo CommentRepository, tokens TokenFinder, events realtime.Publisher, log logrus.FieldLogger) Service {
	return &service{
		repo:   repo,
		tokens: tokens,
		events: realtime.OrNop(events),
		log:    log,
	}
}

func (s *service) Create(ctx context.Context, caller *models.User, req CreateRequest) (*models.Comment, error) {
	if caller == nil {
		return nil, apperrors.Unauthenticated("Unauthorized")
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, apperrors.InvalidArgument("Comment content is required")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return nil, apperrors.InvalidArgument("Comment is too long")
	}
	if req.TokenID == 0 {
		return nil, apperrors.InvalidArgument("tokenId is required")
	}

	token, err := s.tokens.GetByID(ctx, req.TokenID)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, apperrors.NotFound("Token not found")
	}

	kind := "comment"
	if req.ParentID != nil {
		parent, err := s.repo.GetByID(ctx, *req.ParentID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, apperrors.NotFound("Parent comment not found")
		}
		if parent.TokenID != token.ID {
			return nil, apperrors.InvalidArgument("Parent comment belongs to another token")
		}
		kind = "reply"
	}

	comment := &models.Comment{
		Content:  content,
		UserID:   caller.ID,
		TokenID:  token.ID,
		ParentID: req.ParentID,
	}
	if err := s.repo.Create(ctx, comment); err != nil {
		return nil, err
	}
	comment.User = caller
	comment.LikedBy = []uint{}

	metrics.CommentsTotal.WithLabelValues(kind).Inc()
	s.events.Publish(realtime.TokenChannel(token.ID), realtime.EventCommentCreated, comment)
	s.log.WithFields(logrus.Fields{
		"comment_id": comment.ID,
		"token_id":   token.ID,
		"user_id":    caller.ID,
	}).Debug("comment created")
	return comment, nil
}

func (s *service) List(ctx context.Context, tokenID uint, parentID *uint) ([]models.Comment, error) {
	if tokenID == 0 {
		return nil, apperrors.InvalidArgument("tokenId is required")
	}
	return s.repo.List(ctx, tokenID, parentID, PageSize)
}

func (s *service) ToggleLike(ctx context.Context, caller *models.User, commentID uint) (*LikeResult, error) {
	if caller == nil {
		return nil, apperrors.Unauthenticated("Unauthorized")
	}
	comment, err := s.repo.GetByID(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if comment == nil {
		return nil, apperrors.NotFound("Comment not found")
	}

	result, err := s.repo.ToggleLike(ctx, commentID, caller.ID)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, apperrors.NotFound("Comment not found")
	}

	s.events.Publish(realtime.TokenChannel(comment.TokenID), realtime.EventCommentLiked, LikeEvent{
		CommentID: commentID,
		UserID:    caller.ID,
		Liked:     result.Liked,
		Likes:     result.Likes,
	})
	return result, nil
}
