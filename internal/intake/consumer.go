// Package intake carries grant requests to the faucet: a Kafka consumer whose message
// values are hex addresses (malformed ones are logged and skipped), and an unbounded
// mailbox every producer sends into.
package intake

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/chenzhangda16/web3-faucet/internal/metrics"
	"github.com/chenzhangda16/web3-faucet/pkg/obs"
)

type Consumer struct {
	group sarama.ConsumerGroup
	topic string
	out   chan<- common.Address
	lg    zerolog.Logger
}

func NewConsumer(brokers []string, groupID, topic string, out chan<- common.Address) (*Consumer, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRange()}
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	cfg.Consumer.Return.Errors = true

	cg, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, err
	}
	return newConsumer(cg, topic, out), nil
}

func newConsumer(cg sarama.ConsumerGroup, topic string, out chan<- common.Address) *Consumer {
	return &Consumer{group: cg, topic: topic, out: out, lg: obs.Logger("intake")}
}

func (c *Consumer) Close() error { return c.group.Close() }

// Run consumes until ctx is done. Consume returns on every rebalance, so it is called
// in a loop.
func (c *Consumer) Run(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			c.lg.Warn().Err(err).Msg("consumer group error")
		}
	}()

	c.lg.Info().Str("topic", c.topic).Msg("start consuming requests")
	for ctx.Err() == nil {
		if err := c.group.Consume(ctx, []string{c.topic}, c); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.lg.Warn().Err(err).Msg("consume failed")
			t := time.NewTimer(300 * time.Millisecond)
			select {
			case <-ctx.Done():
				t.Stop()
			case <-t.C:
			}
		}
	}
	return ctx.Err()
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (c *Consumer) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for msg := range claim.Messages() {
		addr, err := ParseAddress(string(msg.Value))
		if err != nil {
			c.lg.Warn().Err(err).Int64("offset", msg.Offset).Msg("bad request message")
			sess.MarkMessage(msg, "")
			continue
		}
		select {
		case c.out <- addr:
		case <-ctx.Done():
			// Not marked: redelivered to whoever owns the partition next.
			return nil
		}
		metrics.RequestsReceived.WithLabelValues("kafka").Inc()
		sess.MarkMessage(msg, "")
	}
	return nil
}

var ErrBadAddress = errors.New("not a hex address")

// ParseAddress accepts a 0x-prefixed or bare 40 digit hex address.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, ErrBadAddress
	}
	return common.HexToAddress(s), nil
}
