// Package jq runs gojq programs over decoded JSON documents. Compiled
// programs are cached by source, since the extractors run the same handful of
// programs against every Activity Log record.
package jq

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/itchyny/gojq"
)

var (
	cacheMu sync.RWMutex
	cache   = make(map[string]*gojq.Code)
)

// Compile parses and compiles src, reusing an earlier compilation of the same
// source.
func Compile(src string) (*gojq.Code, error) {
	cacheMu.RLock()
	code, ok := cache[src]
	cacheMu.RUnlock()
	if ok {
		return code, nil
	}

	query, err := gojq.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jq query %q: %w", src, err)
	}
	code, err = gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jq query %q: %w", src, err)
	}

	cacheMu.Lock()
	cache[src] = code
	cacheMu.Unlock()
	return code, nil
}

// MustCompile is Compile for package level programs.
func MustCompile(src string) *gojq.Code {
	code, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return code
}

// First returns the first value the program emits. A program that emits
// nothing, or whose first output is an error, reports false.
func First(code *gojq.Code, doc any) (any, bool) {
	v, ok := code.Run(doc).Next()
	if !ok {
		return nil, false
	}
	if _, isErr := v.(error); isErr {
		return nil, false
	}
	return v, true
}

// All collects every value the program emits, stopping at the first error.
func All(code *gojq.Code, doc any) ([]any, error) {
	var out []any
	iter := code.Run(doc)
	for {
		v, ok := iter.Next()
		if !ok {
			return out, nil
		}
		if err, isErr := v.(error); isErr {
			if halt, ok := err.(*gojq.HaltError); ok && halt.Value() == nil {
				return out, nil
			}
			return out, err
		}
		out = append(out, v)
	}
}

// Decode unmarshals JSON text into the generic form gojq operates on.
func Decode(data []byte) (any, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
