package registration

import (
	"time"

	"go.uber.org/zap/zapcore"
)

func DefaultConfig() Config {
	return Config{
		MaxCost:      5_000_000_000,
		SlotCycle:    3,
		PollInterval: 500 * time.Millisecond,
		CostCacheTTL: 12 * time.Second,
	}
}

//nolint:lll
type Config struct {
	Netuid uint16 `long:"netuid" description:"Netuid of the subnet to register on"`

	Slot      uint64 `long:"slot"       description:"Slot within the registration window to submit on (blocks where block_number % slot-cycle == slot)"`
	SlotCycle uint64 `long:"slot-cycle" description:"Length of the registration window in blocks"`

	MaxCost      uint64        `long:"max-cost"       description:"Maximum acceptable recycle (burn) cost in RAO"`
	PollInterval time.Duration `long:"poll-interval"  description:"Interval between polls for the latest block"`
	CostCacheTTL time.Duration `long:"cost-cache-ttl" description:"How long a fetched burn cost is considered fresh"`
}

// implement zap.ObjectMarshaler interface.
func (c Config) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint16("netuid", c.Netuid)
	enc.AddUint64("slot", c.Slot)
	enc.AddUint64("slot-cycle", c.SlotCycle)
	enc.AddUint64("max-cost", c.MaxCost)
	enc.AddDuration("poll-interval", c.PollInterval)
	return nil
}
