// pkg/results/store_test.go
package results

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/go-spacerace/pkg/config"
	"github.com/opd-ai/go-spacerace/pkg/course"
	"github.com/opd-ai/go-spacerace/pkg/engine"
	"github.com/opd-ai/go-spacerace/pkg/input"
	"github.com/opd-ai/go-spacerace/pkg/physics"
	"github.com/opd-ai/go-spacerace/pkg/race"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(MemoryPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func finishedRun(session, pilot string, checksum uint64, ticks uint64) *Run {
	return &Run{
		SessionID:      session,
		Pilot:          pilot,
		CourseName:     "test",
		CourseChecksum: ChecksumKey(checksum),
		Status:         race.Finished.String(),
		GatesPassed:    2,
		TotalGates:     2,
		RaceTicks:      ticks,
		TickRate:       60,
		Seconds:        float64(ticks) / 60,
		Splits:         []uint64{ticks / 2, ticks},
		CollidedWith:   -1,
	}
}

func TestNewRun_FromSession(t *testing.T) {
	c, err := course.New(course.Layout{
		Name:  "sprint",
		Gates: []course.Gate{{Position: physics.Vec3(0, 0, 50), Radius: 40}},
	})
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Simulation.Realtime = false
	s, err := engine.NewSession(c, cfg, input.Constant(input.Command{Thrust: physics.Vec3(0, 0, 50000)}))
	require.NoError(t, err)
	snap := s.RunTicks(1000)
	require.Equal(t, race.Finished, snap.Race.Status)

	run := NewRun(snap, c, "Ace", 60)

	assert.Equal(t, s.ID(), run.SessionID)
	assert.Equal(t, "finished", run.Status)
	assert.Equal(t, snap.Race.Ticks, run.RaceTicks)
	assert.InDelta(t, float64(snap.Race.Ticks)/60, run.Seconds, 1e-12)
	assert.Equal(t, snap.Race.Splits, run.Splits)
	checksum, err := run.Checksum()
	require.NoError(t, err)
	assert.Equal(t, c.Checksum(), checksum)

	store := openStore(t)
	require.NoError(t, store.Record(context.Background(), &run))
	best, err := store.PersonalBest(context.Background(), c.Checksum(), "Ace")
	require.NoError(t, err)
	assert.Equal(t, run.Splits, best.Splits)
}

func TestStore_Best(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	const track, other = uint64(0xfeedfacecafebeef), uint64(42)

	for i, ticks := range []uint64{300, 120, 200} {
		require.NoError(t, store.Record(ctx, finishedRun(fmt.Sprintf("s%d", i), "Ace", track, ticks)))
	}
	require.NoError(t, store.Record(ctx, finishedRun("other", "Ace", other, 10)))

	crashed := finishedRun("crashed", "Ace", track, 5)
	crashed.Status = race.Collided.String()
	require.NoError(t, store.Record(ctx, crashed))

	best, err := store.Best(ctx, track, 2)
	require.NoError(t, err)
	require.Len(t, best, 2)
	assert.Equal(t, uint64(120), best[0].RaceTicks)
	assert.Equal(t, uint64(200), best[1].RaceTicks)

	all, err := store.Best(ctx, track, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStore_PersonalBest(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	const track = uint64(7)

	_, err := store.PersonalBest(ctx, track, "Ace")
	assert.ErrorIs(t, err, ErrNoRuns)

	require.NoError(t, store.Record(ctx, finishedRun("a1", "Ace", track, 400)))
	require.NoError(t, store.Record(ctx, finishedRun("a2", "Ace", track, 350)))
	require.NoError(t, store.Record(ctx, finishedRun("b1", "Bee", track, 100)))

	best, err := store.PersonalBest(ctx, track, "Ace")
	require.NoError(t, err)
	assert.Equal(t, "a2", best.SessionID)
	assert.Equal(t, []uint64{175, 350}, best.Splits)
}

// Runs at different tick rates rank by elapsed time, not by tick count
func TestStore_RanksMixedTickRates(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	const track = uint64(99)

	slow := finishedRun("slow30", "Ace", track, 300) // 10s at 30 Hz
	slow.TickRate = 30
	slow.Seconds = 10
	fast := finishedRun("fast60", "Ace", track, 400) // 6.7s at 60 Hz
	require.NoError(t, store.Record(ctx, slow))
	require.NoError(t, store.Record(ctx, fast))

	best, err := store.Best(ctx, track, 0)
	require.NoError(t, err)
	require.Len(t, best, 2)
	assert.Equal(t, "fast60", best[0].SessionID)
	assert.Equal(t, "slow30", best[1].SessionID)

	pb, err := store.PersonalBest(ctx, track, "Ace")
	require.NoError(t, err)
	assert.Equal(t, "fast60", pb.SessionID)
}

func TestStore_Recent(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Record(ctx, finishedRun(fmt.Sprintf("ace%d", i), "Ace", 1, 100)))
	}
	require.NoError(t, store.Record(ctx, finishedRun("bee", "Bee", 1, 100)))

	recent, err := store.Recent(ctx, "Ace", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "ace2", recent[0].SessionID)
	assert.Equal(t, "ace1", recent[1].SessionID)

	everyone, err := store.Recent(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, everyone, 4)
}

func TestStore_RecordValidation(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	assert.Error(t, store.Record(ctx, finishedRun("bad", "", 1, 100)))
	assert.Error(t, store.Record(ctx, finishedRun("bad", "Ace@#$", 1, 100)))
	assert.Error(t, store.Record(ctx, finishedRun("", "Ace", 1, 100)))

	escaped := finishedRun("escaped", "Ace<1>", 1, 100)
	require.NoError(t, store.Record(ctx, escaped))
	assert.Equal(t, "Ace&lt;1&gt;", escaped.Pilot)

	// Session IDs are unique
	assert.Error(t, store.Record(ctx, finishedRun("escaped", "Ace", 1, 100)))
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	ctx := context.Background()

	store, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, store.Record(ctx, finishedRun("persisted", "Ace", 9, 90)))
	require.NoError(t, store.Close())

	reopened, err := Open(path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	best, err := reopened.Best(ctx, 9, 10)
	require.NoError(t, err)
	require.Len(t, best, 1)
	assert.Equal(t, "persisted", best[0].SessionID)

	_, err = Open("", nil)
	assert.Error(t, err)
}
