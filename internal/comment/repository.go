package comment

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/kinexbt/coin-yaps/internal/database"
	"github.com/kinexbt/coin-yaps/internal/models"
)

// LikeResult is the state of a comment's likes after a toggle
type LikeResult struct {
	Liked bool `json:"liked"`
	Likes int  `json:"likes"`
}

// CommentRepository defines the interface for comment data operations
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	GetByID(ctx context.Context, id uint) (*models.Comment, error)
	List(ctx context.Context, tokenID uint, parentID *uint, limit int) ([]models.Comment, error)
	ToggleLike(ctx context.Context, commentID, userID uint) (*LikeResult, error)
}

// commentRepository implements CommentRepository interface
type commentRepository struct {
	db *gorm.DB
}

// NewCommentRepository creates a new comment repository instance
func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db}
}

// Create stores a new comment without touching its associations
func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) error {
	if comment == nil {
		return errors.New("comment cannot be nil")
	}
	comment.Likes = 0
	if err := r.db.WithContext(ctx).Omit("User", "Replies", "LikeRows").Create(comment).Error; err != nil {
		return database.Translate(err)
	}
	return nil
}

// GetByID retrieves a comment with its author and likes
func (r *commentRepository) GetByID(ctx context.Context, id uint) (*models.Comment, error) {
	if id == 0 {
		return nil, nil
	}
	var comment models.Comment
	err := r.db.WithContext(ctx).
		Preload("User").
		Preload("LikeRows").
		First(&comment, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, database.Translate(err)
	}
	comment.FillLikedBy()
	return &comment, nil
}

// List returns the newest comments at one thread level. A nil parentID
// selects top-level comments. Replies are nested oldest first.
func (r *commentRepository) List(ctx context.Context, tokenID uint, parentID *uint, limit int) ([]models.Comment, error) {
	q := r.db.WithContext(ctx).Where("token_id = ?", tokenID)
	if parentID == nil {
		q = q.Where("parent_id IS NULL")
	} else {
		q = q.Where("parent_id = ?", *parentID)
	}

	var comments []models.Comment
	err := q.
		Preload("User").
		Preload("LikeRows").
		Preload("Replies", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Preload("Replies.User").
		Preload("Replies.LikeRows").
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&comments).Error
	if err != nil {
		return nil, database.Translate(err)
	}
	for i := range comments {
		comments[i].FillLikedBy()
	}
	return comments, nil
}

// ToggleLike likes the comment for userID, or unlikes it when already liked.
// The like row and the counter change in one transaction. It returns nil
// when the comment does not exist.
func (r *commentRepository) ToggleLike(ctx context.Context, commentID, userID uint) (*LikeResult, error) {
	var result *LikeResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var comment models.Comment
		if err := tx.Select("id").First(&comment, commentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		res := tx.Where("comment_id = ? AND user_id = ?", commentID, userID).Delete(&models.CommentLike{})
		if res.Error != nil {
			return res.Error
		}

		liked := false
		delta := 0
		if res.RowsAffected == 1 {
			delta = -1
		} else {
			liked = true
			// savepoint so a lost insert race leaves the transaction usable
			err := tx.Transaction(func(sp *gorm.DB) error {
				return sp.Create(&models.CommentLike{CommentID: commentID, UserID: userID}).Error
			})
			switch {
			case err == nil:
				delta = 1
			case database.IsDuplicateKey(err):
				// a concurrent request liked it first
			default:
				return err
			}
		}

		if delta != 0 {
			err := tx.Model(&models.Comment{}).
				Where("id = ?", commentID).
				Update("likes", gorm.Expr("likes + ?", delta)).Error
			if err != nil {
				return err
			}
		}

		var likes int64
		if err := tx.Model(&models.CommentLike{}).Where("comment_id = ?", commentID).Count(&likes).Error; err != nil {
			return err
		}
		result = &LikeResult{Liked: liked, Likes: int(likes)}
		return nil
	})
	if err != nil {
		return nil, database.Translate(err)
	}
	return result, nil
}
