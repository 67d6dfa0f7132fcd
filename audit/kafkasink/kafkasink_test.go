package kafkasink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"go.uber.org/zap/zaptest"

	"github.com/MrEthical07/accountsec"
)

func TestEmitPublishesKeyedJSON(t *testing.T) {
	producer := mocks.NewAsyncProducer(t, mocks.NewTestConfig())
	producer.ExpectInputWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "accountsec.audit" {
			return fmt.Errorf("topic = %q", msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil || string(key) != "acct-1" {
			return fmt.Errorf("key = %q, %v", key, err)
		}
		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var event accountsec.AuditEvent
		if err := json.Unmarshal(value, &event); err != nil {
			return err
		}
		if event.Type != "login_failure" || event.Metadata["reason"] != "bad_password" {
			return fmt.Errorf("event = %+v", event)
		}
		return nil
	})

	sink := NewWithProducer(producer, "accountsec.audit", zaptest.NewLogger(t))
	sink.Emit(context.Background(), accountsec.AuditEvent{
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Type:      "login_failure",
		AccountID: "acct-1",
		Metadata:  map[string]string{"reason": "bad_password"},
	})

	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if sink.Published() != 1 || sink.Failed() != 0 {
		t.Fatalf("published=%d failed=%d", sink.Published(), sink.Failed())
	}
}

func TestDeliveryFailureIsCounted(t *testing.T) {
	producer := mocks.NewAsyncProducer(t, mocks.NewTestConfig())
	producer.ExpectInputAndFail(errors.New("broker down"))

	sink := NewWithProducer(producer, "accountsec.audit", zaptest.NewLogger(t))
	sink.Emit(context.Background(), accountsec.AuditEvent{Type: "session_issued", AccountID: "acct-1"})

	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if sink.Failed() != 1 {
		t.Fatalf("failed = %d, want 1", sink.Failed())
	}
}

func TestEmitAfterCloseIsDropped(t *testing.T) {
	producer := mocks.NewAsyncProducer(t, mocks.NewTestConfig())
	sink := NewWithProducer(producer, "accountsec.audit", zaptest.NewLogger(t))
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	sink.Emit(context.Background(), accountsec.AuditEvent{Type: "login_success"})
	if sink.Published() != 0 || sink.Failed() != 1 {
		t.Fatalf("published=%d failed=%d", sink.Published(), sink.Failed())
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{Topic: "t"}, nil); err == nil {
		t.Fatal("expected error without brokers")
	}
	if _, err := New(Config{Brokers: []string{"localhost:9092"}}, nil); err == nil {
		t.Fatal("expected error without topic")
	}
}
