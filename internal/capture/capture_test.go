package capture

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckForOutput(t *testing.T) {
	c := New()
	defer c.Close()

	fmt.Fprintf(c.Writer(), "shell-wwan-mm: WWAN data connection present: 0\n")
	fmt.Fprintf(c.Writer(), "shell-wifi: Creating network: SSID1\n")

	// Let the drain goroutine catch up.
	require.Eventually(t, func() bool {
		return len(c.Lines()) == 2
	}, time.Second, 10*time.Millisecond)

	assert.True(t, c.CheckForOutput(" WWAN data connection present: 0"))
	assert.True(t, c.CheckForOutput(" Creating network: SSID1\n"))
	assert.False(t, c.CheckForOutput(" Creating network: SSID2"))
}

func TestCheckForOutputMatchesBytesExactly(t *testing.T) {
	c := New()
	defer c.Close()

	fmt.Fprintf(c.Writer(), "shell-cbm: Received cbm 4371: Dies ist ein Test für Cellbroadcasts\n")

	require.Eventually(t, func() bool {
		return len(c.Lines()) == 1
	}, time.Second, 10*time.Millisecond)

	assert.True(t, c.CheckForOutput(" Received cbm 4371: Dies ist ein Test für Cellbroadcasts"))
	assert.False(t, c.CheckForOutput(" Received cbm 4371: Dies ist ein Test fur Cellbroadcasts"))
}

func TestWaitForOutputIgnorePresent(t *testing.T) {
	c := New()
	defer c.Close()

	fmt.Fprintf(c.Writer(), "shell-bt: BT enabled: 1\n")
	require.Eventually(t, func() bool {
		return len(c.Lines()) == 1
	}, time.Second, 10*time.Millisecond)

	// A pre-existing match satisfies the wait without additional delay.
	start := time.Now()
	err := c.WaitForOutput(context.Background(), " BT enabled: 1", WaitOptions{
		IgnorePresent: true,
		Timeout:       5 * time.Second,
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWaitForOutputRequiresNewOccurrenceByDefault(t *testing.T) {
	c := New()
	defer c.Close()

	fmt.Fprintf(c.Writer(), "shell-bt: BT enabled: 1\n")
	require.Eventually(t, func() bool {
		return len(c.Lines()) == 1
	}, time.Second, 10*time.Millisecond)

	// Without IgnorePresent the pre-existing occurrence must not satisfy
	// the wait.
	err := c.WaitForOutput(context.Background(), " BT enabled: 1", WaitOptions{
		Timeout: 300 * time.Millisecond,
		Quantum: 20 * time.Millisecond,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")

	// A subsequent occurrence does.
	done := make(chan error, 1)
	go func() {
		done <- c.WaitForOutput(context.Background(), " BT enabled: 1", WaitOptions{
			Timeout: 5 * time.Second,
			Quantum: 20 * time.Millisecond,
		})
	}()

	time.Sleep(50 * time.Millisecond)
	fmt.Fprintf(c.Writer(), "shell-bt: BT enabled: 1\n")

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("wait did not observe the new occurrence")
	}
}

func TestWaitForOutputTimesOut(t *testing.T) {
	c := New()
	defer c.Close()

	start := time.Now()
	err := c.WaitForOutput(context.Background(), " never appears", WaitOptions{
		Timeout: 200 * time.Millisecond,
		Quantum: 20 * time.Millisecond,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "never appears")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWaitForOutputCanceledContext(t *testing.T) {
	c := New()
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.WaitForOutput(ctx, " never appears", WaitOptions{
		Timeout: 5 * time.Second,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTranscriptGrowsMonotonically(t *testing.T) {
	c := New()
	defer c.Close()

	for i := 0; i < 10; i++ {
		fmt.Fprintf(c.Writer(), "line %d\n", i)
	}

	require.Eventually(t, func() bool {
		return len(c.Lines()) == 10
	}, time.Second, 10*time.Millisecond)

	before := c.Lines()
	fmt.Fprintf(c.Writer(), "line 10\n")
	require.Eventually(t, func() bool {
		return len(c.Lines()) == 11
	}, time.Second, 10*time.Millisecond)

	// Earlier snapshot is unaffected, and the new transcript extends it.
	assert.Len(t, before, 10)
	assert.Equal(t, before, c.Lines()[:10])
}

func TestTranscriptReadableAfterClose(t *testing.T) {
	c := New()

	fmt.Fprintf(c.Writer(), "final words\n")
	c.Close()
	c.Close() // idempotent

	assert.True(t, c.CheckForOutput("final words"))
}
