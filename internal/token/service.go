package token

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/kinexbt/coin-yaps/internal/apperrors"
	"github.com/kinexbt/coin-yaps/internal/chain"
	"github.com/kinexbt/coin-yaps/internal/marketdata"
	"github.com/kinexbt/coin-yaps/internal/metrics"
	"github.com/kinexbt/coin-yaps/internal/models"
	"github.com/kinexbt/coin-yaps/internal/realtime"
)

// Catalogue limits
const (
	DefaultListLimit     = 50
	MaxListLimit         = 100
	DetailCommentLimit   = 20
	DiscoverCommentLimit = 5
	LocalSearchLimit     = 10
	ProviderSearchLimit  = 15
	SearchResultLimit    = 20
)

// CommentWriter stores the first-discoverer welcome comment
type CommentWriter interface {
	Create(ctx context.Context, comment *models.Comment) error
}

// DiscoverRequest asks for a token by symbol or on-chain address
type DiscoverRequest struct {
	Query     string `json:"query"`
	IsAddress bool   `json:"isAddress"`
}

// DiscoverResult is the outcome of a discovery
type DiscoverResult struct {
	Found           bool          `json:"found"`
	Token           *models.Token `json:"token,omitempty"`
	IsNewChannel    bool          `json:"isNewChannel"`
	IsFirstUser     bool          `json:"isFirstUser"`
	Congratulations string        `json:"congratulations,omitempty"`
	Error           string        `json:"error,omitempty"`
}

// CreateRequest describes an explicitly created token
type CreateRequest struct {
	Symbol    string           `json:"symbol"`
	Name      string           `json:"name"`
	Address   string           `json:"address"`
	Network   string           `json:"network"`
	Price     *decimal.Decimal `json:"price"`
	MarketCap *decimal.Decimal `json:"marketCap"`
	Image     string           `json:"image"`
}

// Patch lists the mutable token fields. Nil fields are left untouched.
type Patch struct {
	Name           *string          `json:"name"`
	Image          *string          `json:"image"`
	Price          *decimal.Decimal `json:"price"`
	MarketCap      *decimal.Decimal `json:"marketCap"`
	Volume24h      *decimal.Decimal `json:"volume24h"`
	PriceChange24h *decimal.Decimal `json:"priceChange24h"`
	Supply         *decimal.Decimal `json:"supply"`
	Liquidity      *decimal.Decimal `json:"liquidity"`
	BCurve         *decimal.Decimal `json:"bCurve"`
}

// SearchHit is a search result. Stored tokens carry their numeric id,
// provider candidates not yet stored carry "dex-<address>".
type SearchHit struct {
	*models.Token
	ID     string `json:"id"`
	Stored bool   `json:"stored"`
}

// Service defines token service operations
type Service interface {
	Discover(ctx context.Context, req DiscoverRequest, caller *models.User) (*DiscoverResult, error)
	CreateToken(ctx context.Context, req CreateRequest) (*models.Token, error)
	ListTokens(ctx context.Context, limit int) ([]*models.Token, error)
	GetTokenBySymbol(ctx context.Context, symbol string) (*models.Token, error)
	PatchToken(ctx context.Context, symbol string, patch Patch) (*models.Token, error)
	SearchLocal(ctx context.Context, query string) ([]*models.Token, error)
	SearchWithProvider(ctx context.Context, query string, isAddress bool) ([]SearchHit, error)
	TopByComments(ctx context.Context, limit int) ([]TokenWithCommentCount, error)
}

type service struct {
	repo     TokenRepository
	provider marketdata.Provider
	comments CommentWriter
	events   realtime.Publisher
	log      logrus.FieldLogger
}

// NewService creates a new token service
func NewService(repo TokenRepository, provider marketdata.Provider, comments CommentWriter, events realtime.Publisher, log logrus.FieldLogger) Service {
	return &service{
		repo:     repo,
		provider: provider,
		comments: comments,
		events:   realtime.OrNop(events),
		log:      log,
	}
}

// Discover returns the local token for the query, creating it from provider
// data on first reference
func (s *service) Discover(ctx context.Context, req DiscoverRequest, caller *models.User) (*DiscoverResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, apperrors.InvalidArgument("Search query is required")
	}
	if !req.IsAddress {
		query = models.NormalizeSymbol(query)
	}

	existing, err := s.findLocal(ctx, query, req.IsAddress)
	if err != nil {
		metrics.DiscoveriesTotal.WithLabelValues(metrics.DiscoveryFailed).Inc()
		return nil, err
	}
	if existing != nil {
		metrics.DiscoveriesTotal.WithLabelValues(metrics.DiscoveryExisting).Inc()
		return s.existingResult(ctx, existing), nil
	}

	// stored rows may carry any address; only provider lookups need a chain format
	if req.IsAddress && !chain.IsAddress(query) {
		metrics.DiscoveriesTotal.WithLabelValues(metrics.DiscoveryFailed).Inc()
		return nil, apperrors.InvalidArgument("Invalid token address")
	}

	attrs, err := s.lookup(ctx, query, req.IsAddress)
	if err != nil {
		metrics.DiscoveriesTotal.WithLabelValues(metrics.DiscoveryFailed).Inc()
		return nil, err
	}
	if attrs == nil {
		metrics.DiscoveriesTotal.WithLabelValues(metrics.DiscoveryNotFound).Inc()
		return &DiscoverResult{Found: false, Error: "Token not found"}, nil
	}

	token := attrs.ToModel()
	if err := s.repo.Create(ctx, token); err != nil {
		if !errors.Is(err, apperrors.ErrDuplicateKey) {
			metrics.DiscoveriesTotal.WithLabelValues(metrics.DiscoveryFailed).Inc()
			return nil, err
		}
		// another discovery created it first
		winner, rerr := s.reread(ctx, token)
		if rerr != nil {
			metrics.DiscoveriesTotal.WithLabelValues(metrics.DiscoveryFailed).Inc()
			return nil, rerr
		}
		metrics.DiscoveriesTotal.WithLabelValues(metrics.DiscoveryRaced).Inc()
		return s.existingResult(ctx, winner), nil
	}

	result := &DiscoverResult{
		Found:           true,
		Token:           token,
		IsNewChannel:    true,
		Congratulations: fmt.Sprintf("🎉 You discovered %s! You're the first to create this channel.", token.Symbol),
	}
	if caller != nil && s.comments != nil {
		result.IsFirstUser = s.postWelcome(ctx, token, caller)
	}

	metrics.DiscoveriesTotal.WithLabelValues(metrics.DiscoveryCreated).Inc()
	s.events.Publish(realtime.TokensChannel, realtime.EventTokenDiscovered, token)
	s.log.WithFields(logrus.Fields{
		"token_id": token.ID,
		"symbol":   token.Symbol,
		"network":  token.Network,
	}).Info("token discovered")
	return result, nil
}

func (s *service) findLocal(ctx context.Context, query string, isAddress bool) (*models.Token, error) {
	if isAddress {
		return s.repo.GetByAddress(ctx, query)
	}
	return s.repo.GetBySymbol(ctx, query)
}

func (s *service) lookup(ctx context.Context, query string, isAddress bool) (*marketdata.TokenAttrs, error) {
	if s.provider == nil {
		return nil, apperrors.ProviderUnavailable(errors.New("no market data provider configured"))
	}
	if isAddress {
		return s.provider.LookupByAddress(ctx, query)
	}
	candidates, err := s.provider.LookupBySymbol(ctx, query)
	if err != nil || len(candidates) == 0 {
		return nil, err
	}
	return &candidates[0], nil
}

// reread finds the row that won a create race, by address first and then
// by symbol since either unique index may have fired
func (s *service) reread(ctx context.Context, lost *models.Token) (*models.Token, error) {
	winner, err := s.repo.GetByAddress(ctx, lost.Address)
	if err != nil {
		return nil, err
	}
	if winner != nil {
		return winner, nil
	}
	winner, err = s.repo.GetBySymbol(ctx, lost.Symbol)
	if err != nil {
		return nil, err
	}
	if winner == nil {
		return nil, apperrors.Storage(errors.New("token missing after duplicate insert"))
	}
	return winner, nil
}

func (s *service) existingResult(ctx context.Context, token *models.Token) *DiscoverResult {
	if err := s.repo.LoadRecentComments(ctx, token, DiscoverCommentLimit); err != nil {
		s.log.WithError(err).WithField("token_id", token.ID).Warn("failed to load recent comments")
	}
	return &DiscoverResult{Found: true, Token: token, IsNewChannel: false}
}

// postWelcome reports whether the welcome comment was stored. Failures are
// logged and never undo the token.
func (s *service) postWelcome(ctx context.Context, token *models.Token, caller *models.User) bool {
	comment := &models.Comment{
		Content: fmt.Sprintf("🎉 Congratulations! You're the first person to discover %s on CoinYaps! Welcome to the %s community channel.",
			token.Symbol, token.Name),
		UserID:  caller.ID,
		TokenID: token.ID,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"token_id": token.ID,
			"user_id":  caller.ID,
		}).Error("failed to create welcome comment")
		return false
	}
	return true
}

func (s *service) CreateToken(ctx context.Context, req CreateRequest) (*models.Token, error) {
	symbol := models.NormalizeSymbol(req.Symbol)
	address := strings.TrimSpace(req.Address)
	name := strings.TrimSpace(req.Name)
	if symbol == "" || address == "" || name == "" {
		return nil, apperrors.InvalidArgument("symbol, name, address and network are required")
	}
	network, err := models.ParseNetwork(req.Network)
	if err != nil {
		return nil, apperrors.InvalidArgument(err.Error())
	}

	token := &models.Token{
		Symbol:  symbol,
		Name:    name,
		Address: address,
		Network: network,
		Image:   strings.TrimSpace(req.Image),
	}
	if req.Price != nil {
		token.Price = *req.Price
	}
	if req.MarketCap != nil {
		token.MarketCap = *req.MarketCap
	}

	if err := s.repo.Create(ctx, token); err != nil {
		if errors.Is(err, apperrors.ErrDuplicateKey) {
			return nil, apperrors.DuplicateKey(err, "Token already exists")
		}
		return nil, err
	}
	return token, nil
}

func (s *service) ListTokens(ctx context.Context, limit int) ([]*models.Token, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return s.repo.ListByMarketCap(ctx, limit)
}

func (s *service) GetTokenBySymbol(ctx context.Context, symbol string) (*models.Token, error) {
	if models.NormalizeSymbol(symbol) == "" {
		return nil, apperrors.InvalidArgument("symbol is required")
	}
	token, err := s.repo.GetDetailBySymbol(ctx, symbol, DetailCommentLimit)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, apperrors.NotFound("Token not found")
	}
	return token, nil
}

func (s *service) PatchToken(ctx context.Context, symbol string, patch Patch) (*models.Token, error) {
	token, err := s.repo.GetBySymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, apperrors.NotFound("Token not found")
	}

	fields, err := patch.columns()
	if err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, token, fields); err != nil {
		return nil, err
	}
	return token, nil
}

func (p Patch) columns() (map[string]interface{}, error) {
	fields := map[string]interface{}{}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, apperrors.InvalidArgument("name cannot be empty")
		}
		fields["name"] = name
	}
	if p.Image != nil {
		fields["image"] = strings.TrimSpace(*p.Image)
	}
	decimals := []struct {
		column string
		value  *decimal.Decimal
	}{
		{"price", p.Price},
		{"market_cap", p.MarketCap},
		{"volume_24h", p.Volume24h},
		{"price_change_24h", p.PriceChange24h},
		{"supply", p.Supply},
		{"liquidity", p.Liquidity},
		{"b_curve", p.BCurve},
	}
	for _, d := range decimals {
		if d.value != nil {
			fields[d.column] = *d.value
		}
	}
	return fields, nil
}

func (s *service) SearchLocal(ctx context.Context, query string) ([]*models.Token, error) {
	if strings.TrimSpace(query) == "" {
		return []*models.Token{}, nil
	}
	return s.repo.Search(ctx, query, LocalSearchLimit)
}

// SearchWithProvider merges stored matches with provider candidates that are
// not stored yet. A provider failure degrades to stored matches only.
func (s *service) SearchWithProvider(ctx context.Context, query string, isAddress bool) ([]SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.InvalidArgument("Search query is required")
	}
	symbol := models.NormalizeSymbol(query)

	var local []*models.Token
	if isAddress {
		t, err := s.repo.GetByAddress(ctx, query)
		if err != nil {
			return nil, err
		}
		if t != nil {
			local = append(local, t)
		}
	} else {
		var err error
		local, err = s.repo.SearchBySymbolOrName(ctx, symbol, LocalSearchLimit)
		if err != nil {
			return nil, err
		}
	}

	hits := make([]SearchHit, 0, len(local)+ProviderSearchLimit)
	seen := make(map[string]bool, len(local))
	for _, t := range local {
		seen[strings.ToLower(t.Address)] = true
		hits = append(hits, SearchHit{Token: t, ID: fmt.Sprint(t.ID), Stored: true})
	}

	candidates, err := s.providerCandidates(ctx, query, isAddress)
	if err != nil {
		s.log.WithError(err).WithField("query", query).Warn("provider search failed, returning stored tokens only")
	}
	for _, attrs := range candidates {
		key := strings.ToLower(attrs.Address)
		if seen[key] {
			continue
		}
		seen[key] = true
		hits = append(hits, SearchHit{Token: attrs.ToModel(), ID: "dex-" + attrs.Address})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		ei, ej := hits[i].Symbol == symbol, hits[j].Symbol == symbol
		if ei != ej {
			return ei
		}
		si := hits[i].MarketCap.Add(hits[i].Volume24h)
		sj := hits[j].MarketCap.Add(hits[j].Volume24h)
		return si.GreaterThan(sj)
	})
	if len(hits) > SearchResultLimit {
		hits = hits[:SearchResultLimit]
	}
	return hits, nil
}

func (s *service) providerCandidates(ctx context.Context, query string, isAddress bool) ([]marketdata.TokenAttrs, error) {
	if s.provider == nil {
		return nil, nil
	}
	if isAddress {
		attrs, err := s.provider.LookupByAddress(ctx, query)
		if err != nil || attrs == nil {
			return nil, err
		}
		return []marketdata.TokenAttrs{*attrs}, nil
	}
	candidates, err := s.provider.LookupBySymbol(ctx, models.NormalizeSymbol(query))
	if err != nil {
		return nil, err
	}
	if len(candidates) > ProviderSearchLimit {
		candidates = candidates[:ProviderSearchLimit]
	}
	return candidates, nil
}

func (s *service) TopByComments(ctx context.Context, limit int) ([]TokenWithCommentCount, error) {
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}
	return s.repo.TopByComments(ctx, limit)
}
