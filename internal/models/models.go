package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func init() {
	// The web client consumes market values as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// User is a community member. Rows are created by the session layer on first
// sign-in; email is private and never serialized.
type User struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	ProviderID string    `json:"-" gorm:"size:191;index"`
	Email      string    `json:"-" gorm:"uniqueIndex;not null;size:191"`
	Name       string    `json:"name,omitempty" gorm:"size:100"`
	Username   string    `json:"username,omitempty" gorm:"size:100"`
	Image      string    `json:"image,omitempty" gorm:"size:500"`
	CreatedAt  time.Time `json:"-"`
	UpdatedAt  time.Time `json:"-"`
}

// TableName returns the table name for User model
func (User) TableName() string {
	return "users"
}

// Token represents a tracked crypto asset and its latest market snapshot
type Token struct {
	ID             uint            `json:"id" gorm:"primaryKey"`
	Symbol         string          `json:"symbol" gorm:"uniqueIndex;not null;size:32"`
	Name           string          `json:"name" gorm:"not null;size:100"`
	Address        string          `json:"address" gorm:"uniqueIndex;not null;size:64"`
	Network        Network         `json:"network" gorm:"not null;size:16"`
	Price          decimal.Decimal `json:"price" gorm:"type:decimal(36,18);column:price"`
	MarketCap      decimal.Decimal `json:"marketCap" gorm:"type:decimal(36,18);column:market_cap"`
	Volume24h      decimal.Decimal `json:"volume24h" gorm:"type:decimal(36,18);column:volume_24h"`
	PriceChange24h decimal.Decimal `json:"priceChange24h" gorm:"type:decimal(36,18);column:price_change_24h"`
	Supply         decimal.Decimal `json:"supply" gorm:"type:decimal(36,18);column:supply"`
	Liquidity      decimal.Decimal `json:"liquidity" gorm:"type:decimal(36,18);column:liquidity"`
	BCurve         decimal.Decimal `json:"bCurve" gorm:"type:decimal(10,4);column:b_curve"` // curve progress, percent
	Image          string          `json:"image,omitempty" gorm:"size:500"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`

	Comments    []Comment    `json:"comments,omitempty" gorm:"foreignKey:TokenID"`
	Predictions []Prediction `json:"predictions,omitempty" gorm:"foreignKey:TokenID"`
}

// TableName returns the table name for Token model
func (Token) TableName() string {
	return "tokens"
}

// NormalizeSymbol is the canonical symbol key
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// BeforeCreate hook to normalize and validate token data
func (t *Token) BeforeCreate(tx *gorm.DB) error {
	t.Symbol = NormalizeSymbol(t.Symbol)
	t.Address = strings.TrimSpace(t.Address)
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		t.Name = t.Symbol
	}
	if t.Symbol == "" || t.Address == "" {
		return gorm.ErrInvalidData
	}
	if !t.Network.Valid() {
		return gorm.ErrInvalidData
	}
	return nil
}

// Comment is a message in a token's thread. LikedBy is filled from the
// comment_likes table by the repository; Likes always equals len(LikedBy).
type Comment struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Content   string    `json:"content" gorm:"type:text;not null"`
	UserID    uint      `json:"userId" gorm:"not null;index"`
	TokenID   uint      `json:"tokenId" gorm:"not null;index"`
	ParentID  *uint     `json:"parentId,omitempty" gorm:"index"`
	Likes     int       `json:"likes" gorm:"not null;default:0"`
	LikedBy   []uint    `json:"likedBy" gorm:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	User     *User         `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Replies  []Comment     `json:"replies,omitempty" gorm:"foreignKey:ParentID"`
	LikeRows []CommentLike `json:"-" gorm:"foreignKey:CommentID"`
}

// TableName returns the table name for Comment model
func (Comment) TableName() string {
	return "comments"
}

// FillLikedBy copies preloaded like rows into LikedBy, recursing into replies
func (c *Comment) FillLikedBy() {
	c.LikedBy = make([]uint, 0, len(c.LikeRows))
	for _, like := range c.LikeRows {
		c.LikedBy = append(c.LikedBy, like.UserID)
	}
	for i := range c.Replies {
		c.Replies[i].FillLikedBy()
	}
}

// CommentLike is one member of a comment's likedBy set
type CommentLike struct {
	ID        uint      `gorm:"primaryKey"`
	CommentID uint      `gorm:"not null;uniqueIndex:idx_comment_likes_comment_user"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_comment_likes_comment_user"`
	CreatedAt time.Time
}

// TableName returns the table name for CommentLike model
func (CommentLike) TableName() string {
	return "comment_likes"
}

// Prediction is a user's current market-cap vote on a token. Percentage is
// the token-wide share of the row's bucket, rewritten on every vote.
type Prediction struct {
	ID         uint       `json:"id" gorm:"primaryKey"`
	UserID     uint       `json:"userId" gorm:"not null;uniqueIndex:idx_predictions_user_token"`
	TokenID    uint       `json:"tokenId" gorm:"not null;uniqueIndex:idx_predictions_user_token;index"`
	PriceRange PriceRange `json:"priceRange" gorm:"not null;size:16;index"`
	Percentage int        `json:"percentage" gorm:"not null;default:0"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`

	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// TableName returns the table name for Prediction model
func (Prediction) TableName() string {
	return "predictions"
}

// All lists every model for auto-migration, parents first
func All() []interface{} {
	return []interface{}{
		&User{},
		&Token{},
		&Comment{},
		&CommentLike{},
		&Prediction{},
	}
}
