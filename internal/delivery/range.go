package delivery

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidRange  = errors.New("invalid range format")
	ErrUnsatisfiable = errors.New("range not satisfiable")
)

// Range is an inclusive byte range.
type Range struct {
	Start int64
	End   int64
}

func (r Range) ContentLength() int64 {
	return r.End - r.Start + 1
}

func (r Range) ContentRange(total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, total)
}

// ParseRange parses a Range header against a body of size bytes. An empty
// header yields (nil, nil). Only the first range of a multi-range request is
// honoured. A malformed header yields ErrInvalidRange, which callers answer
// with the full body.
func ParseRange(header string, size int64) (*Range, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, nil
	}

	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return nil, ErrInvalidRange
	}
	if first, _, multi := strings.Cut(spec, ","); multi {
		spec = first
	}

	startStr, endStr, ok := strings.Cut(strings.TrimSpace(spec), "-")
	if !ok {
		return nil, ErrInvalidRange
	}

	if startStr == "" {
		return suffixRange(endStr, size)
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return nil, ErrInvalidRange
	}

	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < start {
			return nil, ErrInvalidRange
		}
	}

	if start >= size {
		return nil, ErrUnsatisfiable
	}
	if end >= size {
		end = size - 1
	}
	return &Range{Start: start, End: end}, nil
}

// suffixRange handles "bytes=-N": the last N bytes.
func suffixRange(lenStr string, size int64) (*Range, error) {
	n, err := strconv.ParseInt(lenStr, 10, 64)
	if err != nil || n < 0 {
		return nil, ErrInvalidRange
	}
	if n == 0 || size == 0 {
		return nil, ErrUnsatisfiable
	}
	start := size - n
	if start < 0 {
		start = 0
	}
	return &Range{Start: start, End: size - 1}, nil
}
