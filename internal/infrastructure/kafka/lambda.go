package kafka

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/example/storefront-orders/internal/events"
)

var ErrIncompleteEnvelope = errors.New("event envelope missing id, aggregate_id or event_type")

// DecodeLambdaRecord turns a record delivered by an MSK event source mapping
// into an event envelope. The record value arrives base64 encoded.
func DecodeLambdaRecord(record lambdaevents.KafkaRecord) (events.Event, error) {
	raw, err := base64.StdEncoding.DecodeString(record.Value)
	if err != nil {
		return events.Event{}, fmt.Errorf("decode value: %w", err)
	}

	var e events.Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return events.Event{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if e.ID == "" || e.AggregateID == "" || e.EventType == "" {
		return events.Event{}, ErrIncompleteEnvelope
	}
	return e, nil
}

// LambdaBatch runs handler over every record of an MSK event. Records are
// visited partition by partition in offset order. Undecodable records are
// logged and skipped; handler errors are collected so the batch is retried.
func LambdaBatch(ctx context.Context, batch lambdaevents.KafkaEvent, handler EventHandler) error {
	logger := slog.Default().With("component", "kafka-lambda")

	partitions := make([]string, 0, len(batch.Records))
	for p := range batch.Records {
		partitions = append(partitions, p)
	}
	sort.Strings(partitions)

	var errs []error
	handled := 0
	for _, p := range partitions {
		records := batch.Records[p]
		sort.SliceStable(records, func(i, j int) bool { return records[i].Offset < records[j].Offset })

		for _, record := range records {
			e, err := DecodeLambdaRecord(record)
			if err != nil {
				logger.WarnContext(ctx, "skipping undecodable record",
					"topic", record.Topic, "partition", record.Partition, "offset", record.Offset, "error", err)
				continue
			}
			if err := handler(ctx, e); err != nil {
				logger.ErrorContext(ctx, "handle event",
					"event_type", e.EventType, "aggregate_id", e.AggregateID, "error", err)
				errs = append(errs, fmt.Errorf("%s@%d: %w", p, record.Offset, err))
				continue
			}
			handled++
		}
	}

	logger.InfoContext(ctx, "batch processed", "handled", handled, "failed", len(errs))
	return errors.Join(errs...)
}
