package redis

// Key layout:
//
//	candle:{inst}              stream of completed candles
//	candle:latest:{inst}       last completed candle
//	pub:candle:{inst}          pubsub fan-out of completed candles
//	ind:{name}:{inst}          stream of ready indicator values
//	ind:{name}:latest:{inst}   last ready indicator value
//	pub:ind:{inst}             pubsub fan-out of indicator values
//	signals                    stream of every emitted signal
//	signal:latest:{inst}       last signal for an instrument
//	pub:signals                pubsub fan-out of signals
const (
	SignalStream  = "signals"
	SignalChannel = "pub:signals"

	// DefaultSnapshotKey holds the latest registry checkpoint.
	DefaultSnapshotKey = "snapshot:sigengine"
)

func candleStreamKey(inst string) string { return "candle:" + inst }
func candleLatestKey(inst string) string { return "candle:latest:" + inst }
func candleChannel(inst string) string { return "pub:candle:" + inst }
func indicatorChannel(inst string) string { return "pub:ind:" + inst }
func signalLatestKey(inst string) string { return "signal:latest:" + inst }
