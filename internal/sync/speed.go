package sync

import "time"

// Speed is the per-config throttle controlling the pause after each batched
// provider call. The stored encoding is 0=normal, 1=slow, 2=fast.
type Speed int

const (
	SpeedNormal Speed = 0
	SpeedSlow   Speed = 1
	SpeedFast   Speed = 2
)

// transferPause returns the sleep after a batched transfer.
func (s Speed) transferPause() time.Duration {
	switch s {
	case SpeedSlow:
		return 2 * time.Second
	case SpeedFast:
		return 0
	default:
		return 1 * time.Second
	}
}

// deletePause returns the sleep after a batched delete.
func (s Speed) deletePause() time.Duration {
	switch s {
	case SpeedSlow:
		return 3 * time.Second
	case SpeedFast:
		return 0
	default:
		return 1 * time.Second
	}
}

func (s Speed) String() string {
	switch s {
	case SpeedSlow:
		return "slow"
	case SpeedFast:
		return "fast"
	default:
		return "normal"
	}
}
