package recorder

// Kind discriminates the recording states.
type Kind int

const (
	KindIdle Kind = iota
	KindRecording
	KindFinished
)

func (k Kind) String() string {
	switch k {
	case KindIdle:
		return "idle"
	case KindRecording:
		return "recording"
	case KindFinished:
		return "finished"
	}
	return "unknown"
}

// State is one of Idle, Recording or Finished.
type State interface {
	Kind() Kind
	sealed()
}

// Idle means no capture session and no pending file.
type Idle struct{}

// Recording means a capture session is running.
type Recording struct{}

// Finished carries the path of a completed capture that has not been saved
// or discarded yet.
type Finished struct {
	FilePath string
}

func (Idle) Kind() Kind      { return KindIdle }
func (Recording) Kind() Kind { return KindRecording }
func (Finished) Kind() Kind  { return KindFinished }

func (Idle) sealed()      {}
func (Recording) sealed() {}
func (Finished) sealed()  {}

// Snapshot is the wire form of a State.
type Snapshot struct {
	State    string `json:"state"`
	FilePath string `json:"file_path,omitempty"`
}

// Describe converts a State to its wire form.
func Describe(s State) Snapshot {
	switch v := s.(type) {
	case Finished:
		return Snapshot{State: KindFinished.String(), FilePath: v.FilePath}
	case Recording:
		return Snapshot{State: KindRecording.String()}
	default:
		return Snapshot{State: KindIdle.String()}
	}
}
