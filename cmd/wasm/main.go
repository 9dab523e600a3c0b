//go:build js && wasm

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"syscall/js"
)

// Processes audio samples and returns fingerprint tokens.
// Arguments: audioArray, sampleRate, channels[, options]
// Returns: {error: number, data: string}, data is the JSON body for the
// server's token endpoints on success and a message otherwise.
func generateFingerprint(this js.Value, args []js.Value) interface{} {
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

	var opts pipelineOptions
	if len(args) > 3 && args[3].Type() == js.TypeObject {
		opts = readOptions(args[3])
	}

	length := audioDataJS.Length()
	samples := make([]float64, length)
	for i := 0; i < length; i++ {
		val := audioDataJS.Index(i)
		if val.Type() != js.TypeNumber {
			return makeErrorResponse(ErrorInvalidArgs, fmt.Sprintf("audioArray element %d is not a number", i))
		}
		samples[i] = val.Float()
	}

	out, err := generate(samples, sampleRateJS.Int(), channelsJS.Int(), opts)
	if err != nil {
		var fe *fingerprintError
		if errors.As(err, &fe) {
			return makeErrorResponse(fe.code, fe.msg)
		}
		return makeErrorResponse(ErrorProcessing, err.Error())
	}

	body, err := json.Marshal(out)
	if err != nil {
		return makeErrorResponse(ErrorProcessing, fmt.Sprintf("Failed to encode tokens: %v", err))
	}

	result := js.Global().Get("Object").New()
	result.Set("error", ErrorNone)
	result.Set("data", string(body))
	return result
}

// readOptions picks the known keys of a {peaks, threshold, hash, tokenLength} object.
func readOptions(v js.Value) pipelineOptions {
	var opts pipelineOptions
	if p := v.Get("peaks"); p.Type() == js.TypeString {
		opts.Peaks = p.String()
	}
	if t := v.Get("threshold"); t.Type() == js.TypeNumber {
		threshold := t.Float()
		opts.Threshold = &threshold
	}
	if h := v.Get("hash"); h.Type() == js.TypeString {
		opts.Hash = h.String()
	}
	if n := v.Get("tokenLength"); n.Type() == js.TypeNumber {
		opts.TokenLength = n.Int()
	}
	return opts
}

func makeErrorResponse(errorCode int, message string) js.Value {
	result := js.Global().Get("Object").New()
	result.Set("error", errorCode)
	result.Set("data", message)
	return result
}

func main() {
	console := js.Global().Get("console")
	logf := func(method, format string, args ...any) {
		if !console.IsUndefined() {
			console.Call(method, fmt.Sprintf(format, args...))
		}
	}

	js.Global().Set("generateFingerprint", js.FuncOf(generateFingerprint))
	logf("log", "melprint: generateFingerprint registered")

	window := js.Global().Get("window")
	if window.IsUndefined() {
		logf("error", "melprint: window object is undefined")
	} else {
		event := js.Global().Get("CustomEvent").New("wasmReady", js.Global().Get("Object").New())
		window.Call("dispatchEvent", event)
	}

	select {}
}
