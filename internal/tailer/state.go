package tailer

// State: фаза жизненного цикла хвоста одного файла.
type State int32

const (
	StateOpening State = iota
	StateReading
	StateIdle
	StateRecovering
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateReading:
		return "reading"
	case StateIdle:
		return "idle"
	case StateRecovering:
		return "recovering"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
