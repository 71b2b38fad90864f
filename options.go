// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package ioreactor

import (
	"fmt"

	"github.com/joeycumines/logiface"
)

const (
	// DefaultBatchSize is the number of descriptor changes buffered before
	// they are submitted to the kernel.
	DefaultBatchSize = 128

	// DefaultEventBufferSize is the maximum number of kernel events
	// collected by a single [Reactor.Wait].
	DefaultEventBufferSize = 256
)

// reactorOptions holds configuration options for Reactor creation.
type reactorOptions struct {
	logger          *logiface.Logger[logiface.Event]
	newBackend      func() (backend, error)
	maxDescriptors  int
	batchSize       int
	eventBufferSize int
}

// Option configures a Reactor instance.
type Option interface {
	applyReactor(*reactorOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyReactorFunc func(*reactorOptions) error
}

func (o *optionImpl) applyReactor(opts *reactorOptions) error {
	return o.applyReactorFunc(opts)
}

// WithLogger sets the structured logger. A nil logger (the default)
// disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *reactorOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithMaxDescriptors sets the size of the descriptor table, instead of
// deriving it from the process's RLIMIT_NOFILE. Descriptors at or above this
// value cannot be registered.
func WithMaxDescriptors(n int) Option {
	return &optionImpl{func(opts *reactorOptions) error {
		if n <= 0 || n > maxTableSize {
			return fmt.Errorf("%w: max descriptors %d not in range [1, %d]", ErrInvalidOption, n, maxTableSize)
		}
		opts.maxDescriptors = n
		return nil
	}}
}

// WithBatchSize sets the number of descriptor changes buffered before they
// are submitted to the kernel. Defaults to [DefaultBatchSize].
func WithBatchSize(n int) Option {
	return &optionImpl{func(opts *reactorOptions) error {
		if n <= 0 {
			return fmt.Errorf("%w: batch size %d must be positive", ErrInvalidOption, n)
		}
		opts.batchSize = n
		return nil
	}}
}

// WithEventBufferSize sets the maximum number of kernel events collected by
// a single wait. Defaults to [DefaultEventBufferSize].
func WithEventBufferSize(n int) Option {
	return &optionImpl{func(opts *reactorOptions) error {
		if n <= 0 {
			return fmt.Errorf("%w: event buffer size %d must be positive", ErrInvalidOption, n)
		}
		opts.eventBufferSize = n
		return nil
	}}
}

// withBackend replaces the platform kernel backend, the factory is called
// again by Forked.
func withBackend(factory func() (backend, error)) Option {
	return &optionImpl{func(opts *reactorOptions) error {
		opts.newBackend = factory
		return nil
	}}
}

// resolveOptions applies Option instances to reactorOptions.
func resolveOptions(opts []Option) (*reactorOptions, error) {
	cfg := &reactorOptions{
		newBackend:      newPlatformBackend,
		batchSize:       DefaultBatchSize,
		eventBufferSize: DefaultEventBufferSize,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyReactor(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
