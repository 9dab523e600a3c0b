//go:build !(js && wasm)

package main

import "github.com/himanishpuri/melprint/pkg/logger"

func main() {
	logger.Fatalf("the browser module must be built with GOOS=js GOARCH=wasm")
}
