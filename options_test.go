// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package ioreactor

import (
	"errors"
	"testing"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveOptions_defaults(t *testing.T) {
	cfg, err := resolveOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultBatchSize, cfg.batchSize)
	assert.Equal(t, DefaultEventBufferSize, cfg.eventBufferSize)
	assert.Zero(t, cfg.maxDescriptors)
	assert.Nil(t, cfg.logger)
	assert.NotNil(t, cfg.newBackend)
}

func TestResolveOptions_nilSkipped(t *testing.T) {
	cfg, err := resolveOptions([]Option{nil, WithBatchSize(3), nil})
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.batchSize)
}

func TestResolveOptions_invalid(t *testing.T) {
	for _, tc := range [...]struct {
		name string
		opt  Option
	}{
		{"zero max descriptors", WithMaxDescriptors(0)},
		{"negative max descriptors", WithMaxDescriptors(-1)},
		{"huge max descriptors", WithMaxDescriptors(maxTableSize + 1)},
		{"zero batch", WithBatchSize(0)},
		{"zero event buffer", WithEventBufferSize(0)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := resolveOptions([]Option{tc.opt})
			require.ErrorIs(t, err, ErrInvalidOption)
		})
	}
}

func TestNew_nilScheduler(t *testing.T) {
	r, err := New[*coroutine](nil, withBackend(newFakeKernel().create))
	require.ErrorIs(t, err, ErrInvalidOption)
	require.Nil(t, r)
}

func TestNew_invalidOption(t *testing.T) {
	kernel := newFakeKernel()
	r, err := New[*coroutine](&testScheduler{}, withBackend(kernel.create), WithBatchSize(-4))
	require.ErrorIs(t, err, ErrInvalidOption)
	require.Nil(t, r)
	require.Empty(t, kernel.backends)
}

func TestNew_backendFailure(t *testing.T) {
	kernel := newFakeKernel()
	kernel.failCreate = errors.New("no kernel object for you")
	r, err := New[*coroutine](&testScheduler{}, WithMaxDescriptors(8), withBackend(kernel.create))
	require.ErrorIs(t, err, kernel.failCreate)
	require.Nil(t, r)
}

func TestNew_options(t *testing.T) {
	logger, buf := newTestLogger(logiface.LevelDebug)
	r, _, kernel := newTestReactor(t,
		WithMaxDescriptors(16),
		WithBatchSize(5),
		WithEventBufferSize(9),
		WithLogger(logger),
	)
	assert.Equal(t, 16, r.Len())
	assert.Equal(t, 5, cap(r.changes))
	assert.Len(t, r.events, 9)
	assert.Len(t, kernel.backends, 1)
	assert.Contains(t, buf.String(), `ioreactor: initialized`)
}

func TestNew_maxDescriptorsFromLimit(t *testing.T) {
	n, err := maxDescriptors()
	require.NoError(t, err)
	require.Positive(t, n)

	r, err := New[*coroutine](&testScheduler{}, withBackend(newFakeKernel().create))
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, n, r.Len())
}
