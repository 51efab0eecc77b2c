package service

// Seams for the ffmpeg-backed stages so pipeline tests can run without the
// binaries. Production code never reassigns these.
var (
	probeDurationFn  = probeDurationMs
	decodeSamplesFn  = decodeSamples
	detectSilencesFn = detectSilences
	cutSegmentFn     = cutSegment
)
