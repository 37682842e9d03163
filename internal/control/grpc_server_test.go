// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VidTube Contributors

package control

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vidtube/vidtube/pkg/errutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startServer(t *testing.T, ready ReadinessFunc, opts ...Option) *GRPCServer {
	t.Helper()
	s, err := NewGRPCServer("vidtube", ready, opts...)
	require.NoError(t, err)
	_, err = s.Start("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func TestNewGRPCServer_EmptyComponent(t *testing.T) {
	_, err := NewGRPCServer("", nil)
	errutil.AssertErrorCode(t, err, "CONTROL_INVALID")
}

func TestGRPCServer_ServingWhenReady(t *testing.T) {
	s := startServer(t, func(context.Context) bool { return true })
	assert.True(t, s.Running())

	for _, service := range []string{"", "vidtube"} {
		status, err := CheckHealth(context.Background(), s.Addr(), service)
		require.NoError(t, err)
		assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status, service)
	}
}

func TestGRPCServer_NilReadinessIsServing(t *testing.T) {
	s := startServer(t, nil)

	status, err := CheckHealth(context.Background(), s.Addr(), "")
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status)
}

func TestGRPCServer_FollowsReadiness(t *testing.T) {
	var ready atomic.Bool
	s := startServer(t, func(context.Context) bool { return ready.Load() },
		WithCheckInterval(10*time.Millisecond))

	status, err := CheckHealth(context.Background(), s.Addr(), "vidtube")
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status)

	ready.Store(true)
	assert.Eventually(t, func() bool {
		status, err := CheckHealth(context.Background(), s.Addr(), "vidtube")
		return err == nil && status == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 20*time.Millisecond)
}

func TestGRPCServer_CheckPublishesImmediately(t *testing.T) {
	var ready atomic.Bool
	ready.Store(true)
	s := startServer(t, func(context.Context) bool { return ready.Load() })

	ready.Store(false)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, s.Check(context.Background()))

	status, err := CheckHealth(context.Background(), s.Addr(), "")
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status)
}

func TestGRPCServer_UnknownService(t *testing.T) {
	s := startServer(t, nil)

	_, err := CheckHealth(context.Background(), s.Addr(), "nope")
	errutil.AssertErrorCode(t, err, "CONTROL_UNREACHABLE")
}

func TestCheckHealth_Unreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	status, err := CheckHealth(ctx, addr, "")
	errutil.AssertErrorCode(t, err, "CONTROL_UNREACHABLE")
	assert.Equal(t, healthpb.HealthCheckResponse_UNKNOWN, status)
}

func TestGRPCServer_Start_FailsOnInvalidAddress(t *testing.T) {
	s, err := NewGRPCServer("vidtube", nil)
	require.NoError(t, err)

	_, err = s.Start("256.0.0.1:99999")
	errutil.AssertErrorCode(t, err, "CONTROL_LISTEN_FAILED")
	assert.False(t, s.Running())
}

func TestGRPCServer_Start_DoubleStartReturnsError(t *testing.T) {
	s := startServer(t, nil)

	_, err := s.Start("127.0.0.1:0")
	errutil.AssertErrorCode(t, err, "CONTROL_ALREADY_RUNNING")
}

func TestGRPCServer_Start_ErrorChannelClosesOnGracefulStop(t *testing.T) {
	s, err := NewGRPCServer("vidtube", nil)
	require.NoError(t, err)
	errCh, err := s.Start("127.0.0.1:0")
	require.NoError(t, err)

	require.NoError(t, s.Stop(context.Background()))
	assert.False(t, s.Running())

	select {
	case err, ok := <-errCh:
		if ok {
			assert.NoError(t, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error channel to close")
	}
}

func TestGRPCServer_Stop_WithoutStart(t *testing.T) {
	s, err := NewGRPCServer("vidtube", nil)
	require.NoError(t, err)
	require.NoError(t, s.Stop(context.Background()))
	assert.Empty(t, s.Addr())
}

func TestGRPCServer_ConcurrentChecks(t *testing.T) {
	s := startServer(t, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, err := CheckHealth(context.Background(), s.Addr(), "vidtube")
			if err == nil && status != healthpb.HealthCheckResponse_SERVING {
				err = assert.AnError
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}
