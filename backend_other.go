// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build !linux && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd

package ioreactor

// fallbackMaxDescriptors sizes the table when a custom backend is used on a
// platform with no descriptor limit to query.
const fallbackMaxDescriptors = 1024

func newPlatformBackend() (backend, error) {
	return nil, ErrUnsupportedPlatform
}

func maxDescriptors() (int, error) {
	return fallbackMaxDescriptors, nil
}
