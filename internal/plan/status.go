package plan

// Stage is one phase of the generation pipeline.
type Stage string

const (
	StageKeyframes   Stage = "keyframes"
	StageClips       Stage = "clips"
	StageAudio       Stage = "audio"
	StageComposition Stage = "composition"
)

// StageOrder is the fixed execution order. Stages run strictly in
// sequence; composition depends on the full set of clips and audio.
var StageOrder = []Stage{StageKeyframes, StageClips, StageAudio, StageComposition}

// Status is the execution state machine.
type Status string

const (
	StatusPlanned          Status = "planned"
	StatusPlacing          Status = "placing"
	StatusKeyframesRunning Status = "keyframes_running"
	StatusKeyframesDone    Status = "keyframes_done"
	StatusClipsRunning     Status = "clips_running"
	StatusClipsDone        Status = "clips_done"
	StatusAudioRunning     Status = "audio_running"
	StatusAudioDone        Status = "audio_done"
	StatusComposing        Status = "composing"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
	StatusCancelled        Status = "cancelled"
)

// statusRank orders the forward progression of the state machine.
// Failed and cancelled are absorbing and not part of the progression.
var statusRank = map[Status]int{
	StatusPlanned:          0,
	StatusPlacing:          1,
	StatusKeyframesRunning: 2,
	StatusKeyframesDone:    3,
	StatusClipsRunning:     4,
	StatusClipsDone:        5,
	StatusAudioRunning:     6,
	StatusAudioDone:        7,
	StatusComposing:        8,
	StatusCompleted:        9,
}

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Running reports whether a stage is actively dispatching units.
func (s Status) Running() bool {
	switch s {
	case StatusKeyframesRunning, StatusClipsRunning, StatusAudioRunning, StatusComposing, StatusPlacing:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal step:
// one forward step in the progression, failed from any non-terminal
// state, or cancelled from any running state.
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	if next == StatusCancelled {
		return s.Running()
	}
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to == from+1
}

// RunningStatus returns the state entered while the given stage is
// dispatching units.
func RunningStatus(stage Stage) Status {
	switch stage {
	case StageKeyframes:
		return StatusKeyframesRunning
	case StageClips:
		return StatusClipsRunning
	case StageAudio:
		return StatusAudioRunning
	default:
		return StatusComposing
	}
}

// DoneStatus returns the state entered after the given stage commits.
func DoneStatus(stage Stage) Status {
	switch stage {
	case StageKeyframes:
		return StatusKeyframesDone
	case StageClips:
		return StatusClipsDone
	case StageAudio:
		return StatusAudioDone
	default:
		return StatusCompleted
	}
}
