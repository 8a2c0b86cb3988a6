package dispatch

import (
	"context"
	"time"

	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/ekyc"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/kafka"
)

// ResultPublisher publishes evaluation results. Failures are returned
// unretried: the worker drops the job instead.
type ResultPublisher struct {
	pub    Publisher
	topics config.KafkaTopics
	now    func() time.Time
}

func NewResultPublisher(pub Publisher, topics config.KafkaTopics) *ResultPublisher {
	return &ResultPublisher{pub: pub, topics: topics, now: time.Now}
}

func (p *ResultPublisher) PublishFaceMatch(ctx context.Context, r ekyc.FaceMatchResult) error {
	return p.pub.Publish(ctx, p.topics.FaceMatchResult, kafka.Message{
		Key:     r.JobID,
		Value:   ekyc.NewFaceMatchResultMessage(r, p.now()),
		Headers: map[string]string{ekyc.HeaderJobType: ekyc.JobTypeFaceMatchResult},
	})
}

func (p *ResultPublisher) PublishLiveness(ctx context.Context, r ekyc.LivenessResult) error {
	return p.pub.Publish(ctx, p.topics.LivenessResult, kafka.Message{
		Key:     r.JobID,
		Value:   ekyc.NewLivenessResultMessage(r, p.now()),
		Headers: map[string]string{ekyc.HeaderJobType: ekyc.JobTypeLivenessResult},
	})
}
