// Package notify delivers grading announcements to learners.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/breaker"

	"quizsys/internal/common/mq"
	"quizsys/internal/grading/model"
	"quizsys/internal/grading/repository"
	appErr "quizsys/pkg/errors"
)

// FailMessage renders the announcement sent when a graded quiz is below its pass score.
func FailMessage(quizTitle string) string {
	return fmt.Sprintf("You did not score enough to pass the quiz '%s'. All the best for the next quiz.", quizTitle)
}

// Sink delivers one announcement.
type Sink interface {
	Notify(ctx context.Context, announcement model.Announcement) error
}

// AnnouncementSink stores the announcement for the user to read later.
type AnnouncementSink struct {
	repo repository.AnnouncementRepository
}

func NewAnnouncementSink(repo repository.AnnouncementRepository) *AnnouncementSink {
	return &AnnouncementSink{repo: repo}
}

func (s *AnnouncementSink) Notify(ctx context.Context, announcement model.Announcement) error {
	return s.repo.Create(ctx, &announcement)
}

// QueueSink publishes the announcement for push delivery by another service.
type QueueSink struct {
	producer mq.Producer
	topic    string
}

func NewQueueSink(producer mq.Producer, topic string) *QueueSink {
	return &QueueSink{producer: producer, topic: topic}
}

func (s *QueueSink) Notify(ctx context.Context, announcement model.Announcement) error {
	body, err := json.Marshal(announcement)
	if err != nil {
		return appErr.Wrapf(err, appErr.NotificationFailed, "encode announcement failed")
	}
	msg := mq.NewMessage(body)
	msg.ID = uuid.NewString()
	msg.Key = strconv.FormatInt(announcement.UserID, 10)
	if err := s.producer.Publish(ctx, s.topic, msg); err != nil {
		return appErr.Wrapf(err, appErr.NotificationFailed, "publish announcement failed")
	}
	return nil
}

// Fanout delivers to every sink and joins their errors.
type Fanout []Sink

func (f Fanout) Notify(ctx context.Context, announcement model.Announcement) error {
	var errs []error
	for _, s := range f {
		if err := s.Notify(ctx, announcement); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BreakerSink stops calling a failing sink for a while.
type BreakerSink struct {
	next Sink
	brk  breaker.Breaker
}

func NewBreakerSink(name string, next Sink) *BreakerSink {
	return &BreakerSink{next: next, brk: breaker.NewBreaker(breaker.WithName(name))}
}

func (s *BreakerSink) Notify(ctx context.Context, announcement model.Announcement) error {
	err := s.brk.Do(func() error {
		return s.next.Notify(ctx, announcement)
	})
	if errors.Is(err, breaker.ErrServiceUnavailable) {
		return appErr.Wrapf(err, appErr.NotificationFailed, "notification sink circuit open")
	}
	return err
}
