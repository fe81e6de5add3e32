package prediction

import (
	"context"
	"sync"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/kinexbt/coin-yaps/internal/apperrors"
	"github.com/kinexbt/coin-yaps/internal/database/databasetest"
	"github.com/kinexbt/coin-yaps/internal/models"
	"github.com/kinexbt/coin-yaps/internal/realtime"
	"github.com/kinexbt/coin-yaps/internal/token"
)

// MockPublisher records published events
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(channel, eventType string, data interface{}) {
	m.Called(channel, eventType, data)
}

type PredictionServiceTestSuite struct {
	suite.Suite
	db      *gorm.DB
	repo    PredictionRepository
	events  *MockPublisher
	service Service
	ctx     context.Context
	token   *models.Token
	users   []*models.User
}

func (s *PredictionServiceTestSuite) SetupTest() {
	s.db = databasetest.Open(s.T())
	s.repo = NewPredictionRepository(s.db)
	s.events = new(MockPublisher)
	s.events.On("Publish", mock.Anything, realtime.EventPredictionUpdated, mock.Anything).Maybe()
	s.ctx = context.Background()
	log, _ := test.NewNullLogger()
	s.service = NewService(s.repo, token.NewTokenRepository(s.db), s.events, log)

	s.token = &models.Token{Symbol: "NYLA", Name: "Nyla AI", Address: "nyla-addr", Network: models.NetworkSolana}
	s.Require().NoError(s.db.Create(s.token).Error)

	s.users = nil
	for _, name := range []string{"ann", "ben", "cat", "dov", "eve", "fay"} {
		u := &models.User{Email: name + "@example.com", Name: name, Username: name}
		s.Require().NoError(s.db.Create(u).Error)
		s.users = append(s.users, u)
	}
}

func (s *PredictionServiceTestSuite) rows() []models.Prediction {
	var rows []models.Prediction
	s.Require().NoError(s.db.Where("token_id = ?", s.token.ID).Order("id").Find(&rows).Error)
	return rows
}

func (s *PredictionServiceTestSuite) storedPercentages() map[models.PriceRange]int {
	out := map[models.PriceRange]int{}
	for _, row := range s.rows() {
		if pct, ok := out[row.PriceRange]; ok {
			s.Equal(pct, row.Percentage, "rows in one bucket share a percentage")
		}
		out[row.PriceRange] = row.Percentage
	}
	return out
}

func (s *PredictionServiceTestSuite) TestInvalidBucketWritesNothing() {
	for _, label := range []string{"", "$0-100k", "$20M", " $20M+", "$1M-5M ", "100K-1M"} {
		_, err := s.service.CastVote(s.ctx, s.users[0].ID, s.token.ID, label)
		s.ErrorIs(err, apperrors.ErrInvalidArgument, label)
	}
	s.Empty(s.rows())
	s.events.AssertNotCalled(s.T(), "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func (s *PredictionServiceTestSuite) TestVoteOnMissingToken() {
	_, err := s.service.CastVote(s.ctx, s.users[0].ID, 9999, string(models.PriceRange1MTo5M))
	s.ErrorIs(err, apperrors.ErrNotFound)
	s.Empty(s.rows())
}

func (s *PredictionServiceTestSuite) TestSingleVotePerUserAndToken() {
	sequence := []models.PriceRange{
		models.PriceRangeUnder100K,
		models.PriceRange5MTo20M,
		models.PriceRange5MTo20M,
		models.PriceRangeAbove20M,
	}
	var last *models.Prediction
	for _, r := range sequence {
		p, err := s.service.CastVote(s.ctx, s.users[0].ID, s.token.ID, string(r))
		s.Require().NoError(err)
		last = p
	}

	rows := s.rows()
	s.Require().Len(rows, 1)
	s.Equal(models.PriceRangeAbove20M, rows[0].PriceRange)
	s.Equal(100, rows[0].Percentage)
	s.Equal(rows[0].ID, last.ID)
	s.Equal(100, last.Percentage)
}

func (s *PredictionServiceTestSuite) TestScenarioDistribution() {
	votes := []models.PriceRange{
		models.PriceRangeUnder100K,
		models.PriceRange1MTo5M,
		models.PriceRange1MTo5M,
		models.PriceRange1MTo5M,
	}
	for i, r := range votes {
		_, err := s.service.CastVote(s.ctx, s.users[i].ID, s.token.ID, string(r))
		s.Require().NoError(err)
	}

	s.Equal(map[models.PriceRange]int{
		models.PriceRangeUnder100K: 25,
		models.PriceRange1MTo5M:    75,
	}, s.storedPercentages())

	dist, err := s.service.GetDistribution(s.ctx, s.token.ID)
	s.Require().NoError(err)
	s.Equal(4, dist.TotalVotes)
	s.Equal([]int{25, 0, 75, 0, 0}, percentages(*dist))
	s.Require().Len(dist.Predictions[2].Users, 3)
	s.Equal(Voter{ID: s.users[1].ID, Name: "ben", Username: "ben"}, dist.Predictions[2].Users[0])
}

func (s *PredictionServiceTestSuite) TestSwitchingVoteRecomputesOldBucket() {
	_, err := s.service.CastVote(s.ctx, s.users[0].ID, s.token.ID, string(models.PriceRangeUnder100K))
	s.Require().NoError(err)
	_, err = s.service.CastVote(s.ctx, s.users[1].ID, s.token.ID, string(models.PriceRangeUnder100K))
	s.Require().NoError(err)
	_, err = s.service.CastVote(s.ctx, s.users[1].ID, s.token.ID, string(models.PriceRange100KTo1M))
	s.Require().NoError(err)

	s.Equal(map[models.PriceRange]int{
		models.PriceRangeUnder100K: 50,
		models.PriceRange100KTo1M:  50,
	}, s.storedPercentages())
}

func (s *PredictionServiceTestSuite) TestVotePublishesDistribution() {
	events := new(MockPublisher)
	log, _ := test.NewNullLogger()
	svc := NewService(s.repo, token.NewTokenRepository(s.db), events, log)

	events.On("Publish", realtime.TokenChannel(s.token.ID), realtime.EventPredictionUpdated,
		mock.MatchedBy(func(e UpdateEvent) bool {
			return e.TokenID == s.token.ID && e.Distribution.TotalVotes == 1 &&
				e.Distribution.PercentageOf(models.PriceRange5MTo20M) == 100
		})).Once()

	_, err := svc.CastVote(s.ctx, s.users[0].ID, s.token.ID, string(models.PriceRange5MTo20M))
	s.Require().NoError(err)
	events.AssertExpectations(s.T())
}

func (s *PredictionServiceTestSuite) TestRecomputeFixesStalePercentages() {
	for i := 0; i < 3; i++ {
		_, err := s.service.CastVote(s.ctx, s.users[i].ID, s.token.ID, string(models.PriceRangeAbove20M))
		s.Require().NoError(err)
	}
	// a vote written without a recompute
	s.Require().NoError(s.db.Create(&models.Prediction{UserID: s.users[3].ID, TokenID: s.token.ID,
		PriceRange: models.PriceRangeUnder100K}).Error)

	s.Require().NoError(s.service.RecomputePercentages(s.ctx, s.token.ID))
	s.Equal(map[models.PriceRange]int{
		models.PriceRangeAbove20M:  75,
		models.PriceRangeUnder100K: 25,
	}, s.storedPercentages())
}

func (s *PredictionServiceTestSuite) TestGetDistributionWithoutVotes() {
	dist, err := s.service.GetDistribution(s.ctx, s.token.ID)
	s.Require().NoError(err)
	s.Zero(dist.TotalVotes)
	s.Equal([]int{0, 0, 0, 0, 0}, percentages(*dist))

	_, err = s.service.GetDistribution(s.ctx, 0)
	s.ErrorIs(err, apperrors.ErrInvalidArgument)
}

func (s *PredictionServiceTestSuite) TestConcurrentVotesKeepOneRowPerUser() {
	ranges := models.PriceRanges()
	var wg sync.WaitGroup
	for i, u := range s.users {
		for j := 0; j < 3; j++ {
			wg.Add(1)
			go func(userID uint, r models.PriceRange) {
				defer wg.Done()
				_, err := s.service.CastVote(s.ctx, userID, s.token.ID, string(r))
				assert.NoError(s.T(), err)
			}(u.ID, ranges[(i+j)%len(ranges)])
		}
	}
	wg.Wait()

	rows := s.rows()
	s.Len(rows, len(s.users))

	dist, err := s.service.GetDistribution(s.ctx, s.token.ID)
	s.Require().NoError(err)
	s.Equal(len(s.users), dist.TotalVotes)
	for _, b := range dist.Predictions {
		s.Equal(Percentage(b.Votes, dist.TotalVotes), b.Percentage)
	}
}

func TestPredictionServiceTestSuite(t *testing.T) {
	suite.Run(t, new(PredictionServiceTestSuite))
}
