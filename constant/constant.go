package constant

// AudioStatus is the AudioFile state machine. Transitions:
// UPLOADED -> PROCESSING -> SEGMENTED -> READY, with ERROR reachable from
// PROCESSING or SEGMENTED. Processing and cutting are re-entrant from the
// terminal states.
type AudioStatus string

const (
	AudioStatusUploaded   AudioStatus = "UPLOADED"
	AudioStatusProcessing AudioStatus = "PROCESSING"
	AudioStatusSegmented  AudioStatus = "SEGMENTED"
	AudioStatusReady      AudioStatus = "READY"
	AudioStatusError      AudioStatus = "ERROR"
)

func (s AudioStatus) String() string {
	return string(s)
}

// CanStartProcessing reports whether a process run may begin from s.
// A file already in PROCESSING is owned by another run and must be rejected.
func (s AudioStatus) CanStartProcessing() bool {
	switch s {
	case AudioStatusUploaded, AudioStatusSegmented, AudioStatusReady, AudioStatusError:
		return true
	case AudioStatusProcessing:
		return false
	}
	return false
}

// CanStartCutting reports whether a cut run may begin from s. Cutting needs
// a persisted segment set, so UPLOADED is excluded alongside PROCESSING.
func (s AudioStatus) CanStartCutting() bool {
	switch s {
	case AudioStatusSegmented, AudioStatusReady, AudioStatusError:
		return true
	case AudioStatusUploaded, AudioStatusProcessing:
		return false
	}
	return false
}

type AuditAction string

const (
	AuditActionUploadAudio    AuditAction = "upload_audio"
	AuditActionProcessAudio   AuditAction = "process_audio"
	AuditActionCutSegments    AuditAction = "cut_segments"
	AuditActionUpdateSegment  AuditAction = "update_segment"
	AuditActionDeleteSegment  AuditAction = "delete_segment"
	AuditActionDeleteAudio    AuditAction = "delete_audio"
	AuditActionCreateMapping  AuditAction = "create_mapping"
	AuditActionPublishMapping AuditAction = "publish_mapping"
	AuditActionDeleteMapping  AuditAction = "delete_mapping"
)

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentStaging    Environment = "staging"
	EnvironmentDevelop    Environment = "develop"
)

func (e Environment) String() string {
	return string(e)
}
