//go:build js && wasm
// +build js,wasm

package main

import (
	"errors"
	"fmt"
	"syscall/js"

	"github.com/himanishpuri/AcousticHash/internal/audio"
	"github.com/himanishpuri/AcousticHash/internal/fingerprint"
)

// Error codes returned to JavaScript
const (
	ErrorNone = iota
	ErrorInvalidArgs
	ErrorProcessing
	ErrorSpectrogramFailed
	ErrorPeakExtraction
	ErrorHashGeneration
)

// generateFingerprint(samples, sampleRate, channels) fingerprints an
// interleaved buffer and returns {error: number, data: [{hash, timeOffset}] | string}.
func generateFingerprint(this js.Value, args []js.Value) any {
	if len(args) < 3 {
		return makeErrorResponse(ErrorInvalidArgs, "Expected 3 arguments: audioArray, sampleRate, channels")
	}

	audioDataJS := args[0]
	sampleRateJS := args[1]
	channelsJS := args[2]

	if audioDataJS.Type() != js.TypeObject {
		return makeErrorResponse(ErrorInvalidArgs, "audioArray must be an Array or Float64Array")
	}
	if sampleRateJS.Type() != js.TypeNumber {
		return makeErrorResponse(ErrorInvalidArgs, "sampleRate must be a number")
	}
	if channelsJS.Type() != js.TypeNumber {
		return makeErrorResponse(ErrorInvalidArgs, "channels must be a number")
	}

	sampleRate := sampleRateJS.Int()
	channels := channelsJS.Int()

	if sampleRate <= 0 {
		return makeErrorResponse(ErrorInvalidArgs, fmt.Sprintf("Invalid sample rate: %d", sampleRate))
	}
	if channels < 1 {
		return makeErrorResponse(ErrorInvalidArgs, fmt.Sprintf("Invalid channel count: %d", channels))
	}

	length := audioDataJS.Length()
	if length == 0 {
		return makeErrorResponse(ErrorInvalidArgs, "audioArray is empty")
	}

	samples := make([]float64, length)
	for i := 0; i < length; i++ {
		val := audioDataJS.Index(i)
		if val.Type() != js.TypeNumber {
			return makeErrorResponse(ErrorInvalidArgs, fmt.Sprintf("audioArray element %d is not a number", i))
		}
		samples[i] = val.Float()
	}

	params := fingerprint.DefaultParams()
	pcm := &audio.PCM{Samples: samples, Channels: channels, SampleRate: sampleRate}
	mono, err := audio.Preprocess(pcm, params.SampleRate)
	if err != nil {
		return makeErrorResponse(ErrorProcessing, fmt.Sprintf("Failed to preprocess audio: %v", err))
	}

	res, err := fingerprint.Generate(mono, params.SampleRate, 0, params)
	switch {
	case errors.Is(err, fingerprint.ErrNoPeaks):
		return makeErrorResponse(ErrorPeakExtraction, "No peaks found in audio (audio may be silent or too short)")
	case errors.Is(err, fingerprint.ErrInvalidInput):
		return makeErrorResponse(ErrorSpectrogramFailed, fmt.Sprintf("Failed to generate spectrogram: %v", err))
	case err != nil:
		return makeErrorResponse(ErrorProcessing, err.Error())
	}
	if len(res.Records) == 0 {
		return makeErrorResponse(ErrorHashGeneration, "No fingerprint hashes generated")
	}

	hashArray := js.Global().Get("Array").New(len(res.Records))
	for i, r := range res.Records {
		hashObj := js.Global().Get("Object").New()
		hashObj.Set("hash", r.Hash.Hex())
		hashObj.Set("timeOffset", r.TimeOffset)
		hashArray.SetIndex(i, hashObj)
	}

	result := js.Global().Get("Object").New()
	result.Set("error", ErrorNone)
	result.Set("format", params.Version())
	result.Set("data", hashArray)
	return result
}

func makeErrorResponse(errorCode int, message string) js.Value {
	result := js.Global().Get("Object").New()
	result.Set("error", errorCode)
	result.Set("data", message)
	return result
}

func main() {
	console := js.Global().Get("console")
	logf := func(level, msg string) {
		if !console.IsUndefined() {
			console.Call(level, msg)
		}
	}

	logf("log", "🔧 AcousticHash WASM module initializing...")

	done := make(chan struct{})
	js.Global().Set("generateFingerprint", js.FuncOf(generateFingerprint))
	logf("log", "📝 generateFingerprint function registered")

	window := js.Global().Get("window")
	if !window.IsUndefined() {
		eventInit := js.Global().Get("Object").New()
		event := js.Global().Get("CustomEvent").New("wasmReady", eventInit)
		window.Call("dispatchEvent", event)
		logf("log", "✅ wasmReady event dispatched")
	} else {
		logf("error", "❌ window object is undefined!")
	}

	<-done
}
