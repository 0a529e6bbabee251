package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"supertrend-engine/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// ReaderConfig configures the Redis reader.
type ReaderConfig struct {
	Addr     string
	Password string
	DB       int
}

// Reader reads signals back from Redis: the recent history from the
// signals stream and live signals from PubSub.
type Reader struct {
	client *goredis.Client
}

// NewReader creates a new Redis Reader and pings the server.
func NewReader(cfg ReaderConfig) (*Reader, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis-reader] connected to %s", cfg.Addr)
	return &Reader{client: client}, nil
}

// RecentSignals returns up to count most recent signals, newest first.
func (r *Reader) RecentSignals(ctx context.Context, count int64) ([]model.Signal, error) {
	msgs, err := r.client.XRevRangeN(ctx, SignalStream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("xrevrange %s: %w", SignalStream, err)
	}

	out := make([]model.Signal, 0, len(msgs))
	for _, msg := range msgs {
		sig, ok := decodeSignal(msg.Values["data"])
		if !ok {
			log.Printf("[redis-reader] skipping malformed signal %s", msg.ID)
			continue
		}
		out = append(out, sig)
	}
	return out, nil
}

// SubscribeSignals feeds live signals into out. Blocks until ctx is
// cancelled. A full out channel drops the signal.
func (r *Reader) SubscribeSignals(ctx context.Context, out chan<- model.Signal) error {
	pubsub := r.client.Subscribe(ctx, SignalChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", SignalChannel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			sig, ok := decodeSignal(msg.Payload)
			if !ok {
				continue
			}
			select {
			case out <- sig:
			default:
				log.Printf("[redis-reader] out channel full, dropping signal %s", sig.ID)
			}
		}
	}
}

// LatestIndicator returns the last ready value of an indicator.
// Returns nil, nil if none was written.
func (r *Reader) LatestIndicator(ctx context.Context, name, instrument string) (*model.IndicatorResult, error) {
	key := (&model.IndicatorResult{Name: name, Instrument: instrument}).LatestKey()
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	var res model.IndicatorResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return &res, nil
}

func decodeSignal(v interface{}) (model.Signal, bool) {
	s, ok := v.(string)
	if !ok {
		return model.Signal{}, false
	}
	var sig model.Signal
	if err := json.Unmarshal([]byte(s), &sig); err != nil {
		return model.Signal{}, false
	}
	return sig, true
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.client.Close()
}
