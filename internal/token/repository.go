package token

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/kinexbt/coin-yaps/internal/database"
	"github.com/kinexbt/coin-yaps/internal/models"
)

// TokenWithCommentCount is a catalogue row ranked by activity
type TokenWithCommentCount struct {
	models.Token
	CommentCount int64 `json:"commentCount"`
}

// TokenRepository defines the interface for token data operations
type TokenRepository interface {
	Create(ctx context.Context, token *models.Token) error
	GetByID(ctx context.Context, id uint) (*models.Token, error)
	GetByAddress(ctx context.Context, address string) (*models.Token, error)
	GetBySymbol(ctx context.Context, symbol string) (*models.Token, error)
	GetDetailBySymbol(ctx context.Context, symbol string, commentLimit int) (*models.Token, error)
	LoadRecentComments(ctx context.Context, token *models.Token, limit int) error
	Update(ctx context.Context, token *models.Token, fields map[string]interface{}) error
	ListByMarketCap(ctx context.Context, limit int) ([]*models.Token, error)
	Search(ctx context.Context, query string, limit int) ([]*models.Token, error)
	SearchBySymbolOrName(ctx context.Context, query string, limit int) ([]*models.Token, error)
	TopByComments(ctx context.Context, limit int) ([]TokenWithCommentCount, error)
}

// tokenRepository implements TokenRepository interface
type tokenRepository struct {
	db *gorm.DB
}

// NewTokenRepository creates a new token repository instance
func NewTokenRepository(db *gorm.DB) TokenRepository {
	return &tokenRepository{db: db}
}

// Create creates a new token. Unique violations surface as ErrDuplicateKey.
func (r *tokenRepository) Create(ctx context.Context, token *models.Token) error {
	if token == nil {
		return errors.New("token cannot be nil")
	}
	if err := r.db.WithContext(ctx).Omit("Comments", "Predictions").Create(token).Error; err != nil {
		return database.Translate(err)
	}
	return nil
}

// GetByID retrieves a token by ID
func (r *tokenRepository) GetByID(ctx context.Context, id uint) (*models.Token, error) {
	if id == 0 {
		return nil, nil
	}
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

// GetByAddress retrieves a token by exact address
func (r *tokenRepository) GetByAddress(ctx context.Context, address string) (*models.Token, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, nil
	}
	return r.first(r.db.WithContext(ctx).Where("address = ?", address))
}

// GetBySymbol retrieves a token by its normalized symbol
func (r *tokenRepository) GetBySymbol(ctx context.Context, symbol string) (*models.Token, error) {
	symbol = models.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, nil
	}
	return r.first(r.db.WithContext(ctx).Where("symbol = ?", symbol))
}

// GetDetailBySymbol loads a token with its newest top-level comments (and
// their replies, oldest first) and every prediction with its voter
func (r *tokenRepository) GetDetailBySymbol(ctx context.Context, symbol string, commentLimit int) (*models.Token, error) {
	symbol = models.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, nil
	}

	q := r.db.WithContext(ctx).
		Preload("Comments", func(db *gorm.DB) *gorm.DB {
			return db.Where("parent_id IS NULL").Order("created_at DESC, id DESC").Limit(commentLimit)
		}).
		Preload("Comments.User").
		Preload("Comments.LikeRows").
		Preload("Comments.Replies", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Preload("Comments.Replies.User").
		Preload("Comments.Replies.LikeRows").
		Preload("Predictions", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		Preload("Predictions.User").
		Where("symbol = ?", symbol)

	token, err := r.first(q)
	if err != nil || token == nil {
		return token, err
	}
	for i := range token.Comments {
		token.Comments[i].FillLikedBy()
	}
	return token, nil
}

// LoadRecentComments attaches the newest comments of any level to token
func (r *tokenRepository) LoadRecentComments(ctx context.Context, token *models.Token, limit int) error {
	var comments []models.Comment
	err := r.db.WithContext(ctx).
		Where("token_id = ?", token.ID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&comments).Error
	if err != nil {
		return database.Translate(err)
	}
	token.Comments = comments
	return nil
}

// Update writes the given columns and reloads token
func (r *tokenRepository) Update(ctx context.Context, token *models.Token, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	db := r.db.WithContext(ctx)
	if err := db.Model(&models.Token{}).Where("id = ?", token.ID).Updates(fields).Error; err != nil {
		return database.Translate(err)
	}
	if err := db.First(token, token.ID).Error; err != nil {
		return database.Translate(err)
	}
	return nil
}

// ListByMarketCap returns the largest tokens first
func (r *tokenRepository) ListByMarketCap(ctx context.Context, limit int) ([]*models.Token, error) {
	var tokens []*models.Token
	err := r.db.WithContext(ctx).
		Order("market_cap DESC, id ASC").
		Limit(limit).
		Find(&tokens).Error
	if err != nil {
		return nil, database.Translate(err)
	}
	return tokens, nil
}

// Search matches query case-insensitively against symbol, name and address
func (r *tokenRepository) Search(ctx context.Context, query string, limit int) ([]*models.Token, error) {
	pattern := likePattern(query)
	var tokens []*models.Token
	err := r.db.WithContext(ctx).
		Where(`LOWER(symbol) LIKE ? ESCAPE '\' OR LOWER(name) LIKE ? ESCAPE '\' OR LOWER(address) LIKE ? ESCAPE '\'`, pattern, pattern, pattern).
		Order("market_cap DESC, created_at DESC").
		Limit(limit).
		Find(&tokens).Error
	if err != nil {
		return nil, database.Translate(err)
	}
	return tokens, nil
}

// SearchBySymbolOrName matches query case-insensitively against symbol and name
func (r *tokenRepository) SearchBySymbolOrName(ctx context.Context, query string, limit int) ([]*models.Token, error) {
	pattern := likePattern(query)
	var tokens []*models.Token
	err := r.db.WithContext(ctx).
		Where(`LOWER(symbol) LIKE ? ESCAPE '\' OR LOWER(name) LIKE ? ESCAPE '\'`, pattern, pattern).
		Order("market_cap DESC, id ASC").
		Limit(limit).
		Find(&tokens).Error
	if err != nil {
		return nil, database.Translate(err)
	}
	return tokens, nil
}

// TopByComments ranks tokens by comment count, newest first on ties
func (r *tokenRepository) TopByComments(ctx context.Context, limit int) ([]TokenWithCommentCount, error) {
	type countRow struct {
		TokenID      uint
		CommentCount int64
	}

	db := r.db.WithContext(ctx)
	var counts []countRow
	err := db.Model(&models.Token{}).
		Select("tokens.id AS token_id, COUNT(comments.id) AS comment_count").
		Joins("LEFT JOIN comments ON comments.token_id = tokens.id").
		Group("tokens.id, tokens.created_at").
		Order("comment_count DESC, tokens.created_at DESC, tokens.id DESC").
		Limit(limit).
		Scan(&counts).Error
	if err != nil {
		return nil, database.Translate(err)
	}
	if len(counts) == 0 {
		return []TokenWithCommentCount{}, nil
	}

	ids := make([]uint, len(counts))
	for i, c := range counts {
		ids[i] = c.TokenID
	}
	var tokens []models.Token
	if err := db.Where("id IN ?", ids).Find(&tokens).Error; err != nil {
		return nil, database.Translate(err)
	}
	byID := make(map[uint]models.Token, len(tokens))
	for _, t := range tokens {
		byID[t.ID] = t
	}

	out := make([]TokenWithCommentCount, 0, len(counts))
	for _, c := range counts {
		if t, ok := byID[c.TokenID]; ok {
			out = append(out, TokenWithCommentCount{Token: t, CommentCount: c.CommentCount})
		}
	}
	return out, nil
}

func (r *tokenRepository) first(q *gorm.DB) (*models.Token, error) {
	var token models.Token
	err := q.First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, database.Translate(err)
	}
	return &token, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern escapes LIKE wildcards in query and wraps it for substring
// search. Callers must pair it with ESCAPE '\'.
func likePattern(query string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(query))) + "%"
}
