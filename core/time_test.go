// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"testing"
	"time"

	"github.com/devblok/cubes/core"
	"github.com/stretchr/testify/assert"
)

func TestClock(t *testing.T) {
	var clock core.Clock
	assert.Equal(t, float32(0), clock.Tick())

	time.Sleep(20 * time.Millisecond)
	dt := clock.Tick()
	assert.GreaterOrEqual(t, dt, float32(0.015))
	assert.Less(t, dt, float32(1))
}

func TestTime(t *testing.T) {
	tm := core.NewTime(core.TimeConfiguration{FramesPerSecond: 100, EventPollDelay: 5})
	defer tm.Stop()

	assert.Equal(t, 100, tm.Fps())
	select {
	case <-tm.FpsTicker().C:
	case <-time.After(time.Second):
		t.Fatal("fps ticker never ticked")
	}
	select {
	case <-tm.EventTicker().C:
	case <-time.After(time.Second):
		t.Fatal("event ticker never ticked")
	}
}

func BenchmarkClockTick(b *testing.B) {
	var clock core.Clock
	for i := 0; i < b.N; i++ {
		clock.Tick()
	}
}
