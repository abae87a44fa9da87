package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/phoenix-invest/phoenix-crm/internal/models"
)

type MockRenewalStore struct {
	mock.Mock
}

func (m *MockRenewalStore) ListRenewalCandidates(ctx context.Context, today time.Time, maxLead int) ([]*models.Client, error) {
	args := m.Called(ctx, today, maxLead)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Client), args.Error(1)
}

func (m *MockRenewalStore) MarkNoticeSent(ctx context.Context, id, lead int) error {
	args := m.Called(ctx, id, lead)
	return args.Error(0)
}

type MockChannel struct {
	mock.Mock
}

func (m *MockChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	args := m.Called(exchange, key, mandatory, immediate, msg)
	return args.Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func candidate(daysLeft int, sent ...int) *models.Client {
	end := time.Now().UTC().AddDate(0, 0, daysLeft)
	return &models.Client{
		ID:          42,
		Name:        "Maria Silva",
		Email:       "maria@example.com",
		Tiers:       []string{"Opcoes"},
		PeriodStart: time.Now().UTC().AddDate(0, -6, 0),
		PeriodEnd:   &end,
		NoticesSent: sent,
	}
}

func TestSchedulerService_RunRenewalCheck(t *testing.T) {
	tests := []struct {
		name       string
		setupMocks func(*MockRenewalStore, *MockChannel)
	}{
		{
			name: "publishes largest due lead and marks it sent",
			setupMocks: func(r *MockRenewalStore, ch *MockChannel) {
				r.On("ListRenewalCandidates", mock.Anything, mock.Anything, 30).
					Return([]*models.Client{candidate(10)}, nil).Once()
				ch.On("Publish", "notifications", "renewal", false, false, mock.Anything).
					Return(nil).Once()
				r.On("MarkNoticeSent", mock.Anything, 42, 30).Return(nil).Once()
			},
		},
		{
			name: "later lead fires when earlier one is already recorded",
			setupMocks: func(r *MockRenewalStore, ch *MockChannel) {
				r.On("ListRenewalCandidates", mock.Anything, mock.Anything, 30).
					Return([]*models.Client{candidate(10, 30)}, nil).Once()
				ch.On("Publish", "notifications", "renewal", false, false, mock.Anything).
					Return(nil).Once()
				r.On("MarkNoticeSent", mock.Anything, 42, 15).Return(nil).Once()
			},
		},
		{
			name: "nothing due publishes nothing",
			setupMocks: func(r *MockRenewalStore, _ *MockChannel) {
				r.On("ListRenewalCandidates", mock.Anything, mock.Anything, 30).
					Return([]*models.Client{candidate(10, 30, 15)}, nil).Once()
			},
		},
		{
			name: "no candidates found",
			setupMocks: func(r *MockRenewalStore, _ *MockChannel) {
				r.On("ListRenewalCandidates", mock.Anything, mock.Anything, 30).
					Return([]*models.Client{}, nil).Once()
			},
		},
		{
			name: "repository error is logged only",
			setupMocks: func(r *MockRenewalStore, _ *MockChannel) {
				r.On("ListRenewalCandidates", mock.Anything, mock.Anything, 30).
					Return(nil, errors.New("db error")).Once()
			},
		},
		{
			name: "publish error skips the mark so a retry happens next run",
			setupMocks: func(r *MockRenewalStore, ch *MockChannel) {
				r.On("ListRenewalCandidates", mock.Anything, mock.Anything, 30).
					Return([]*models.Client{candidate(10)}, nil).Once()
				ch.On("Publish", "notifications", "renewal", false, false, mock.Anything).
					Return(errors.New("broker down")).Once()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRenewalStore)
			channel := new(MockChannel)
			service := NewSchedulerService(repo, []int{30, 15, 7}, nil, newNoopLogger())

			tt.setupMocks(repo, channel)

			service.RunRenewalCheck(context.Background(), channel)

			repo.AssertExpectations(t)
			channel.AssertExpectations(t)
		})
	}
}

func TestSchedulerService_PublishesOneNoticePerTier(t *testing.T) {
	repo := new(MockRenewalStore)
	channel := new(MockChannel)
	service := NewSchedulerService(repo, []int{30, 15, 7}, nil, newNoopLogger())

	end := time.Now().UTC().AddDate(0, 0, 10)
	client := &models.Client{
		ID:          42,
		Name:        "Maria Silva",
		Email:       "maria@example.com",
		Tiers:       []string{"Opcoes", "Small Caps"},
		PeriodStart: time.Now().UTC().AddDate(0, -6, 0),
		PeriodEnd:   &end,
	}

	var tiers []string
	repo.On("ListRenewalCandidates", mock.Anything, mock.Anything, 30).
		Return([]*models.Client{client}, nil).Once()
	channel.On("Publish", "notifications", "renewal", false, false, mock.Anything).
		Run(func(args mock.Arguments) {
			var notice models.EmailNotice
			_ = json.Unmarshal(args.Get(4).(amqp.Publishing).Body, &notice)
			tiers = append(tiers, notice.Tier)
		}).Return(nil).Times(2)
	repo.On("MarkNoticeSent", mock.Anything, 42, 30).Return(nil).Once()

	service.RunRenewalCheck(context.Background(), channel)

	assert.Equal(t, []string{"Opcoes", "Small Caps"}, tiers)
	repo.AssertExpectations(t)
	channel.AssertExpectations(t)
}

func TestSchedulerService_TierPublishFailureLeavesMarkForNextRun(t *testing.T) {
	repo := new(MockRenewalStore)
	channel := new(MockChannel)
	service := NewSchedulerService(repo, []int{30, 15, 7}, nil, newNoopLogger())

	end := time.Now().UTC().AddDate(0, 0, 10)
	client := &models.Client{
		ID:          42,
		Name:        "Maria Silva",
		Email:       "maria@example.com",
		Tiers:       []string{"Opcoes", "Small Caps"},
		PeriodStart: time.Now().UTC().AddDate(0, -6, 0),
		PeriodEnd:   &end,
	}

	repo.On("ListRenewalCandidates", mock.Anything, mock.Anything, 30).
		Return([]*models.Client{client}, nil).Once()
	channel.On("Publish", "notifications", "renewal", false, false, mock.Anything).
		Return(nil).Once()
	channel.On("Publish", "notifications", "renewal", false, false, mock.Anything).
		Return(errors.New("broker down")).Once()

	service.RunRenewalCheck(context.Background(), channel)

	repo.AssertNotCalled(t, "MarkNoticeSent", mock.Anything, mock.Anything, mock.Anything)
	channel.AssertExpectations(t)
}

func TestSchedulerService_SortsLeadDaysDescending(t *testing.T) {
	service := NewSchedulerService(new(MockRenewalStore), []int{7, 30, 15}, nil, newNoopLogger())
	assert.Equal(t, []int{30, 15, 7}, service.leadDays)
}
