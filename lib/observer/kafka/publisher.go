package kafka

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/ecociel/remind/lib/domain"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer defines the interface for producing messages to Kafka
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

type Publisher struct {
	client Producer
	topic  string
}

// New returns a publisher producing to topic. An empty topic falls back to
// the client's default produce topic.
func New(client Producer, topic string) *Publisher {
	return &Publisher{client: client, topic: topic}
}

func (p *Publisher) PublishSync(ctx context.Context, job domain.Job) error {
	record := JobToRec(job)
	record.Topic = p.topic
	if err := p.client.ProduceSync(ctx, &record).FirstErr(); err != nil {
		return fmt.Errorf("publish job %s: %w", job.ID, err)
	}
	return nil
}

// JobToRec encodes a job as a record: key is the partition key, value the
// args, and the remaining fields travel as headers.
func JobToRec(job domain.Job) (rec kgo.Record) {
	capacity := 2
	if job.RetryCount > 0 {
		capacity = 4
	}
	headers := make([]kgo.RecordHeader, 0, capacity)
	headers = append(headers, kgo.RecordHeader{Key: domain.HeaderID, Value: []byte(job.ID)})
	headers = append(headers, kgo.RecordHeader{Key: domain.HeaderName, Value: []byte(job.Name)})
	if job.RetryCount > 0 {
		cnt := binary.BigEndian.AppendUint16(nil, job.RetryCount)
		headers = append(headers, kgo.RecordHeader{Key: domain.HeaderRetryCount, Value: cnt})
		headers = append(headers, kgo.RecordHeader{Key: domain.HeaderRetryReason, Value: []byte(job.RetryReason)})
	}

	rec.Key = []byte(job.PartitionKey)
	rec.Value = job.Args
	rec.Headers = headers
	return
}

// RecToJob is the inverse of JobToRec.
func RecToJob(rec *kgo.Record) (job domain.Job) {
	job.PartitionKey = string(rec.Key)
	job.Args = rec.Value
	for i := range rec.Headers {
		switch rec.Headers[i].Key {
		case domain.HeaderID:
			job.ID = string(rec.Headers[i].Value)
		case domain.HeaderName:
			job.Name = string(rec.Headers[i].Value)
		case domain.HeaderRetryCount:
			if len(rec.Headers[i].Value) == 2 {
				job.RetryCount = binary.BigEndian.Uint16(rec.Headers[i].Value)
			}
		case domain.HeaderRetryReason:
			job.RetryReason = string(rec.Headers[i].Value)
		}
	}
	return
}
