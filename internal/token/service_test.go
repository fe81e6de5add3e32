package token

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/kinexbt/coin-yaps/internal/apperrors"
	"github.com/kinexbt/coin-yaps/internal/database/databasetest"
	"github.com/kinexbt/coin-yaps/internal/marketdata"
	"github.com/kinexbt/coin-yaps/internal/models"
	"github.com/kinexbt/coin-yaps/internal/realtime"
)

const (
	solAddr = "So11111111111111111111111111111111111111112"
	bscAddr = "0x0e09fabb73bd3ade0a17ecc321fd13a19e81ce82"
)

// MockProvider is a mock implementation of marketdata.Provider
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) LookupByAddress(ctx context.Context, address string) (*marketdata.TokenAttrs, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*marketdata.TokenAttrs), args.Error(1)
}

func (m *MockProvider) LookupBySymbol(ctx context.Context, symbol string) ([]marketdata.TokenAttrs, error) {
	args := m.Called(ctx, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]marketdata.TokenAttrs), args.Error(1)
}

// MockPublisher records published events
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(channel, eventType string, data interface{}) {
	m.Called(channel, eventType, data)
}

type dbComments struct {
	db  *gorm.DB
	err error
}

func (d *dbComments) Create(ctx context.Context, comment *models.Comment) error {
	if d.err != nil {
		return d.err
	}
	return d.db.WithContext(ctx).Create(comment).Error
}

func nyla() marketdata.TokenAttrs {
	return marketdata.TokenAttrs{
		Symbol:    "NYLA",
		Name:      "Nyla AI",
		Address:   "abc",
		Network:   models.NetworkSolana,
		Price:     decimal.RequireFromString("0.0443"),
		MarketCap: decimal.NewFromInt(44300000),
		Liquidity: decimal.NewFromInt(1000),
	}
}

type TokenServiceTestSuite struct {
	suite.Suite
	db       *gorm.DB
	repo     TokenRepository
	provider *MockProvider
	events   *MockPublisher
	comments *dbComments
	hook     *test.Hook
	service  Service
	ctx      context.Context
	alice    *models.User
}

func (s *TokenServiceTestSuite) SetupTest() {
	s.db = databasetest.Open(s.T())
	s.repo = NewTokenRepository(s.db)
	s.provider = new(MockProvider)
	s.events = new(MockPublisher)
	s.comments = &dbComments{db: s.db}
	s.ctx = context.Background()

	var log *logrus.Logger
	log, s.hook = test.NewNullLogger()
	s.service = NewService(s.repo, s.provider, s.comments, s.events, log)

	s.alice = &models.User{Email: "alice@example.com", Name: "Alice"}
	s.Require().NoError(s.db.Create(s.alice).Error)
}

func (s *TokenServiceTestSuite) countTokens() int64 {
	var n int64
	s.Require().NoError(s.db.Model(&models.Token{}).Count(&n).Error)
	return n
}

func (s *TokenServiceTestSuite) countComments() int64 {
	var n int64
	s.Require().NoError(s.db.Model(&models.Comment{}).Count(&n).Error)
	return n
}

func (s *TokenServiceTestSuite) TestDiscoverCreatesFromProvider() {
	s.provider.On("LookupBySymbol", mock.Anything, "NYLA").Return([]marketdata.TokenAttrs{nyla()}, nil).Once()
	s.events.On("Publish", realtime.TokensChannel, realtime.EventTokenDiscovered, mock.Anything).Once()

	res, err := s.service.Discover(s.ctx, DiscoverRequest{Query: " nyla "}, nil)
	s.Require().NoError(err)
	s.True(res.Found)
	s.True(res.IsNewChannel)
	s.False(res.IsFirstUser)
	s.Contains(res.Congratulations, "NYLA")
	s.Equal("NYLA", res.Token.Symbol)
	s.NotZero(res.Token.ID)
	s.True(decimal.NewFromInt(44300000).Equal(res.Token.MarketCap))
	s.True(res.Token.Supply.IsZero())
	s.True(res.Token.BCurve.IsZero())

	stored, err := s.repo.GetBySymbol(s.ctx, "NYLA")
	s.Require().NoError(err)
	s.Equal("abc", stored.Address)
	s.Zero(s.countComments(), "anonymous discovery posts no welcome comment")
	s.provider.AssertExpectations(s.T())
	s.events.AssertExpectations(s.T())
}

func (s *TokenServiceTestSuite) TestRediscoveryIsIdempotent() {
	s.provider.On("LookupBySymbol", mock.Anything, "NYLA").Return([]marketdata.TokenAttrs{nyla()}, nil).Once()
	s.events.On("Publish", mock.Anything, mock.Anything, mock.Anything)

	first, err := s.service.Discover(s.ctx, DiscoverRequest{Query: "nyla"}, s.alice)
	s.Require().NoError(err)
	s.True(first.IsNewChannel)

	for i := 0; i < 2; i++ {
		again, err := s.service.Discover(s.ctx, DiscoverRequest{Query: "NYLA"}, s.alice)
		s.Require().NoError(err)
		s.True(again.Found)
		s.False(again.IsNewChannel)
		s.False(again.IsFirstUser)
		s.Equal(first.Token.ID, again.Token.ID)
	}

	s.Equal(int64(1), s.countTokens())
	s.Equal(int64(1), s.countComments(), "welcome comment is posted once")
	s.provider.AssertNumberOfCalls(s.T(), "LookupBySymbol", 1)
}

func (s *TokenServiceTestSuite) TestFirstDiscovererGetsWelcomeComment() {
	s.provider.On("LookupBySymbol", mock.Anything, "NYLA").Return([]marketdata.TokenAttrs{nyla()}, nil).Once()
	s.events.On("Publish", mock.Anything, mock.Anything, mock.Anything)

	res, err := s.service.Discover(s.ctx, DiscoverRequest{Query: "nyla"}, s.alice)
	s.Require().NoError(err)
	s.True(res.IsFirstUser)

	var comments []models.Comment
	s.Require().NoError(s.db.Find(&comments).Error)
	s.Require().Len(comments, 1)
	s.Equal(s.alice.ID, comments[0].UserID)
	s.Equal(res.Token.ID, comments[0].TokenID)
	s.Nil(comments[0].ParentID)
	s.Contains(comments[0].Content, "NYLA")
	s.Contains(comments[0].Content, "Nyla AI")
}

func (s *TokenServiceTestSuite) TestWelcomeCommentFailureKeepsToken() {
	s.comments.err = errors.New("comments table locked")
	s.provider.On("LookupBySymbol", mock.Anything, "NYLA").Return([]marketdata.TokenAttrs{nyla()}, nil).Once()
	s.events.On("Publish", mock.Anything, mock.Anything, mock.Anything)

	res, err := s.service.Discover(s.ctx, DiscoverRequest{Query: "nyla"}, s.alice)
	s.Require().NoError(err)
	s.True(res.IsNewChannel)
	s.False(res.IsFirstUser)
	s.Equal(int64(1), s.countTokens())

	var logged bool
	for _, e := range s.hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Message == "failed to create welcome comment" {
			logged = true
		}
	}
	s.True(logged)
}

func (s *TokenServiceTestSuite) TestDiscoverStoredAddressSkipsProvider() {
	stored := nyla().ToModel()
	stored.Address = solAddr
	s.Require().NoError(s.repo.Create(s.ctx, stored))

	res, err := s.service.Discover(s.ctx, DiscoverRequest{Query: solAddr, IsAddress: true}, s.alice)
	s.Require().NoError(err)
	s.True(res.Found)
	s.False(res.IsNewChannel)
	s.Equal(stored.ID, res.Token.ID)
	s.Equal(stored.Symbol, res.Token.Symbol)
	s.provider.AssertNotCalled(s.T(), "LookupByAddress", mock.Anything, mock.Anything)
	s.provider.AssertNotCalled(s.T(), "LookupBySymbol", mock.Anything, mock.Anything)
	s.Zero(s.countComments())
}

func (s *TokenServiceTestSuite) TestDiscoverLosingRaceReturnsWinner() {
	attrs := nyla()
	attrs.Address = bscAddr
	attrs.Network = models.NetworkBSC

	// a concurrent discovery stores the token while the provider is queried
	s.provider.On("LookupByAddress", mock.Anything, bscAddr).Return(&attrs, nil).Once().Run(func(mock.Arguments) {
		s.Require().NoError(s.repo.Create(s.ctx, attrs.ToModel()))
	})

	res, err := s.service.Discover(s.ctx, DiscoverRequest{Query: bscAddr, IsAddress: true}, s.alice)
	s.Require().NoError(err)
	s.True(res.Found)
	s.False(res.IsNewChannel)
	s.False(res.IsFirstUser)
	s.Equal(bscAddr, res.Token.Address)
	s.Equal(int64(1), s.countTokens())
	s.Zero(s.countComments(), "the losing request posts no welcome comment")
	s.events.AssertNotCalled(s.T(), "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func (s *TokenServiceTestSuite) TestDiscoverNotFound() {
	s.provider.On("LookupBySymbol", mock.Anything, "NOPE").Return([]marketdata.TokenAttrs{}, nil).Once()

	res, err := s.service.Discover(s.ctx, DiscoverRequest{Query: "nope"}, s.alice)
	s.Require().NoError(err)
	s.False(res.Found)
	s.Equal("Token not found", res.Error)
	s.Zero(s.countTokens())
}

func (s *TokenServiceTestSuite) TestDiscoverProviderUnavailable() {
	s.provider.On("LookupByAddress", mock.Anything, solAddr).
		Return(nil, apperrors.ProviderUnavailable(errors.New("timeout"))).Once()

	_, err := s.service.Discover(s.ctx, DiscoverRequest{Query: solAddr, IsAddress: true}, nil)
	s.ErrorIs(err, apperrors.ErrProviderUnavailable)
	s.Zero(s.countTokens())
}

func (s *TokenServiceTestSuite) TestDiscoverValidation() {
	_, err := s.service.Discover(s.ctx, DiscoverRequest{Query: "   "}, nil)
	s.ErrorIs(err, apperrors.ErrInvalidArgument)

	_, err = s.service.Discover(s.ctx, DiscoverRequest{Query: "not-an-address", IsAddress: true}, nil)
	s.ErrorIs(err, apperrors.ErrInvalidArgument)

	s.provider.AssertNotCalled(s.T(), "LookupByAddress", mock.Anything, mock.Anything)
	s.provider.AssertNotCalled(s.T(), "LookupBySymbol", mock.Anything, mock.Anything)
}

func (s *TokenServiceTestSuite) TestDiscoverByAddressFindsSymbolDiscovery() {
	s.provider.On("LookupBySymbol", mock.Anything, "NYLA").Return([]marketdata.TokenAttrs{nyla()}, nil).Once()
	s.events.On("Publish", mock.Anything, mock.Anything, mock.Anything)

	first, err := s.service.Discover(s.ctx, DiscoverRequest{Query: "nyla"}, s.alice)
	s.Require().NoError(err)
	s.Require().True(first.IsNewChannel)
	s.Equal("abc", first.Token.Address)

	again, err := s.service.Discover(s.ctx, DiscoverRequest{Query: "abc", IsAddress: true}, s.alice)
	s.Require().NoError(err)
	s.True(again.Found)
	s.False(again.IsNewChannel)
	s.Equal(first.Token.ID, again.Token.ID)
	s.provider.AssertNotCalled(s.T(), "LookupByAddress", mock.Anything, mock.Anything)
}

func (s *TokenServiceTestSuite) TestDiscoverByAddressFindsManualToken() {
	created, err := s.service.CreateToken(s.ctx, CreateRequest{
		Symbol: "MAN", Name: "Manual", Address: "manual-addr", Network: "solana",
	})
	s.Require().NoError(err)

	res, err := s.service.Discover(s.ctx, DiscoverRequest{Query: " manual-addr ", IsAddress: true}, nil)
	s.Require().NoError(err)
	s.True(res.Found)
	s.False(res.IsNewChannel)
	s.Equal(created.ID, res.Token.ID)
	s.provider.AssertNotCalled(s.T(), "LookupByAddress", mock.Anything, mock.Anything)
}

func (s *TokenServiceTestSuite) TestCreateToken() {
	price := decimal.RequireFromString("1.25")
	token, err := s.service.CreateToken(s.ctx, CreateRequest{
		Symbol: "cake", Name: "PancakeSwap", Address: bscAddr, Network: "BSC", Price: &price,
	})
	s.Require().NoError(err)
	s.Equal("CAKE", token.Symbol)
	s.Equal(models.NetworkBSC, token.Network)
	s.True(price.Equal(token.Price))
	s.True(token.Volume24h.IsZero())

	_, err = s.service.CreateToken(s.ctx, CreateRequest{Symbol: "CAKE", Name: "Other", Address: solAddr, Network: "solana"})
	s.ErrorIs(err, apperrors.ErrDuplicateKey)

	_, err = s.service.CreateToken(s.ctx, CreateRequest{Symbol: "X", Name: "X", Address: "x", Network: "ethereum"})
	s.ErrorIs(err, apperrors.ErrInvalidArgument)

	_, err = s.service.CreateToken(s.ctx, CreateRequest{Symbol: "X", Network: "solana"})
	s.ErrorIs(err, apperrors.ErrInvalidArgument)
}

func (s *TokenServiceTestSuite) TestPatchToken() {
	stored := nyla().ToModel()
	s.Require().NoError(s.repo.Create(s.ctx, stored))

	name := "Nyla Renamed"
	bcurve := decimal.RequireFromString("42.5")
	patched, err := s.service.PatchToken(s.ctx, "nyla", Patch{Name: &name, BCurve: &bcurve})
	s.Require().NoError(err)
	s.Equal("Nyla Renamed", patched.Name)
	s.True(bcurve.Equal(patched.BCurve))
	s.Equal("NYLA", patched.Symbol)
	s.Equal("abc", patched.Address)

	_, err = s.service.PatchToken(s.ctx, "missing", Patch{Name: &name})
	s.ErrorIs(err, apperrors.ErrNotFound)

	empty := " "
	_, err = s.service.PatchToken(s.ctx, "nyla", Patch{Name: &empty})
	s.ErrorIs(err, apperrors.ErrInvalidArgument)
}

func (s *TokenServiceTestSuite) TestGetTokenBySymbolNotFound() {
	_, err := s.service.GetTokenBySymbol(s.ctx, "ghost")
	s.ErrorIs(err, apperrors.ErrNotFound)
}

func (s *TokenServiceTestSuite) TestSearchWithProviderMergesAndRanks() {
	local := nyla().ToModel()
	local.Address = solAddr
	local.MarketCap = decimal.NewFromInt(10)
	s.Require().NoError(s.repo.Create(s.ctx, local))

	other := &models.Token{Symbol: "NYLAX", Name: "Nyla Extended", Address: "nylax", Network: models.NetworkSolana,
		MarketCap: decimal.NewFromInt(999999999)}
	s.Require().NoError(s.repo.Create(s.ctx, other))

	dupe := nyla()
	dupe.Address = "SO11111111111111111111111111111111111111112" // same address, different case
	bigger := nyla()
	bigger.Address = bscAddr
	bigger.Network = models.NetworkBSC
	bigger.MarketCap = decimal.NewFromInt(50000000)
	s.provider.On("LookupBySymbol", mock.Anything, "NYLA").Return([]marketdata.TokenAttrs{dupe, bigger}, nil).Once()

	hits, err := s.service.SearchWithProvider(s.ctx, "nyla", false)
	s.Require().NoError(err)
	s.Require().Len(hits, 3)

	s.Equal("dex-"+bscAddr, hits[0].ID, "exact symbol matches first, then by market cap and volume")
	s.False(hits[0].Stored)
	s.Equal(local.Address, hits[1].Address)
	s.True(hits[1].Stored)
	s.Equal("NYLAX", hits[2].Symbol)
}

func (s *TokenServiceTestSuite) TestSearchWithProviderDegradesToLocal() {
	local := nyla().ToModel()
	s.Require().NoError(s.repo.Create(s.ctx, local))
	s.provider.On("LookupBySymbol", mock.Anything, "NYLA").
		Return(nil, apperrors.ProviderUnavailable(errors.New("503"))).Once()

	hits, err := s.service.SearchWithProvider(s.ctx, "nyla", false)
	s.Require().NoError(err)
	s.Require().Len(hits, 1)
	s.True(hits[0].Stored)
	s.Equal(logrus.WarnLevel, s.hook.LastEntry().Level)
}

func (s *TokenServiceTestSuite) TestListAndSearchLocal() {
	for i, sym := range []string{"AAA", "BBB", "CCC"} {
		t := &models.Token{Symbol: sym, Name: sym + " coin", Address: "addr-" + sym, Network: models.NetworkSolana,
			MarketCap: decimal.NewFromInt(int64(i * 100))}
		s.Require().NoError(s.repo.Create(s.ctx, t))
	}

	tokens, err := s.service.ListTokens(s.ctx, 0)
	s.Require().NoError(err)
	s.Require().Len(tokens, 3)
	s.Equal("CCC", tokens[0].Symbol)

	found, err := s.service.SearchLocal(s.ctx, "bb")
	s.Require().NoError(err)
	s.Require().Len(found, 1)
	s.Equal("BBB", found[0].Symbol)

	found, err = s.service.SearchLocal(s.ctx, "ADDR-")
	s.Require().NoError(err)
	s.Len(found, 3)

	found, err = s.service.SearchLocal(s.ctx, "")
	s.Require().NoError(err)
	s.Empty(found)
}

func TestTokenServiceTestSuite(t *testing.T) {
	suite.Run(t, new(TokenServiceTestSuite))
}
