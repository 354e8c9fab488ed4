package usage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
	months      = 12
)

type repository interface {
	Insert(ctx context.Context, e Event) error
	ListRange(ctx context.Context, userID int64, service string, from, to time.Time) ([]Event, error)
}

type Service struct {
	repo repository
	now  func() time.Time
}

func NewService(repo repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Record appends an event. A zero Day means today.
func (s *Service) Record(ctx context.Context, e Event) error {
	if e.Day.IsZero() {
		e.Day = truncateDay(s.now())
	}
	if err := s.repo.Insert(ctx, e); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"user_id":        e.UserID,
		"service":        e.Service,
		"trigger_action": e.TriggerAction,
		"amount":         e.Amount.String(),
	}).Info("usage recorded")
	return nil
}

func (s *Service) DailyTotal(ctx context.Context, userID int64) (decimal.Decimal, error) {
	today := truncateDay(s.now())
	events, err := s.repo.ListRange(ctx, userID, "", today, today)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, e := range events {
		total = total.Add(e.Amount)
	}
	return total, nil
}

// WeeklyTotals returns one bucket per day of the current ISO week, Monday first.
func (s *Service) WeeklyTotals(ctx context.Context, userID int64) ([]Bucket, error) {
	today := truncateDay(s.now())
	offset := (int(today.Weekday()) + 6) % 7
	monday := today.AddDate(0, 0, -offset)
	sunday := monday.AddDate(0, 0, 6)

	events, err := s.repo.ListRange(ctx, userID, "", monday, sunday)
	if err != nil {
		return nil, err
	}

	buckets := make([]Bucket, 7)
	index := make(map[string]int, 7)
	for i := range buckets {
		period := monday.AddDate(0, 0, i).Format(dayLayout)
		buckets[i] = Bucket{Period: period, Amount: decimal.Zero}
		index[period] = i
	}
	for _, e := range events {
		if i, ok := index[e.Day.Format(dayLayout)]; ok {
			buckets[i].Amount = buckets[i].Amount.Add(e.Amount)
		}
	}
	return buckets, nil
}

// MonthlyTotals returns the last twelve calendar months, oldest first.
func (s *Service) MonthlyTotals(ctx context.Context, userID int64, service string) ([]Bucket, error) {
	now := s.now()
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	first := current.AddDate(0, -(months - 1), 0)
	last := current.AddDate(0, 1, -1)

	events, err := s.repo.ListRange(ctx, userID, service, first, last)
	if err != nil {
		return nil, err
	}

	buckets := make([]Bucket, months)
	index := make(map[string]int, months)
	for i := range buckets {
		period := first.AddDate(0, i, 0).Format(monthLayout)
		buckets[i] = Bucket{Period: period, Amount: decimal.Zero}
		index[period] = i
	}
	for _, e := range events {
		if i, ok := index[e.Day.Format(monthLayout)]; ok {
			buckets[i].Amount = buckets[i].Amount.Add(e.Amount)
		}
	}
	return buckets, nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
