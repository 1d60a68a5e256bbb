package media

// Output format fed to the audio device: 44.1 kHz stereo s16le.
const (
	outputSampleRate = 44100
	outputChannels   = 2
	frameSize        = 2 * outputChannels
)

func bytesToMillis(n int64) int {
	return int(n * 1000 / (outputSampleRate * frameSize))
}

func millisToBytes(ms int) int64 {
	return int64(ms) * outputSampleRate * frameSize / 1000
}
