// Copyright 2026 The corevault Authors
// This file is part of the corevault library.
//
// The corevault library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The corevault library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the corevault library. If not, see <http://www.gnu.org/licenses/>.

package compute

import (
	"encoding/json"
	"time"

	"github.com/Shopify/sarama"
)

// blockEvent is the analytics record published for every applied
// FirstBlock/Block/Shutdown commit: observational only, never consulted
// for consensus correctness.
type blockEvent struct {
	Kind      string `json:"kind"`
	BlockNum  uint64 `json:"block_num"`
	BlockHash string `json:"block_hash,omitempty"`
	TxCount   int    `json:"tx_count"`
}

// KafkaEventPublisher fans out block events to an analytics topic via a
// Sarama async producer, mirroring this corpus's chaindatafetcher kafka
// broker (config.Producer.RequiredAcks/Compression/Flush.Frequency).
type KafkaEventPublisher struct {
	producer sarama.AsyncProducer
	topic    string
}

// NewKafkaEventPublisher dials brokerList and returns a ready publisher.
// Producer errors are logged and dropped rather than surfaced, since a
// lost analytics event must never block the compute dispatcher's event
// loop.
func NewKafkaEventPublisher(brokerList []string, topic string) (*KafkaEventPublisher, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Flush.Frequency = 500 * time.Millisecond
	cfg.Producer.Return.Successes = false
	cfg.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokerList, cfg)
	if err != nil {
		return nil, err
	}

	p := &KafkaEventPublisher{producer: producer, topic: topic}
	go p.drainErrors()
	return p, nil
}

func (p *KafkaEventPublisher) drainErrors() {
	for err := range p.producer.Errors() {
		dispatchLogger.Warn("kafka block-event publish failed", "err", err)
	}
}

// PublishBlockEvent implements EventPublisher.
func (p *KafkaEventPublisher) PublishBlockEvent(kind string, bNum uint64, hash string, txCount int) error {
	data, err := json.Marshal(blockEvent{Kind: kind, BlockNum: bNum, BlockHash: hash, TxCount: txCount})
	if err != nil {
		return err
	}
	p.producer.Input() <- &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(kind),
		Value: sarama.ByteEncoder(data),
	}
	return nil
}

// Close shuts the underlying producer down, flushing any buffered
// messages first.
func (p *KafkaEventPublisher) Close() error {
	return p.producer.Close()
}
