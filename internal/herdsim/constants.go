package herdsim

import "time"

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Runner configuration constants.
const (
	DefaultSettle        = 30 * time.Second
	settlePollInterval   = 100 * time.Millisecond
	PercentageMultiplier = 100
	fullBattery          = 100
)
