package window

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/tradefeed/internal/model"
)

func trade(id string, ts int64) model.Trade {
	return model.Trade{
		ID:           id,
		Timestamp:    ts,
		MakerAddress: "0xmaker",
		Side:         model.SideBuy,
		AmountToken:  1,
		AmountUSD:    1,
	}
}

func timestamps(trades []model.Trade) []int64 {
	out := make([]int64, len(trades))
	for i, t := range trades {
		out[i] = t.Timestamp
	}
	return out
}

func TestMerge_BackfillThenLive(t *testing.T) {
	backfill := []model.Trade{trade("a", 100), trade("b", 200), trade("c", 300)}

	w := Merge(nil, backfill, 60)
	w = Merge(w, []model.Trade{trade("d", 400)}, 60)

	assert.Equal(t, []int64{400, 300, 200, 100}, timestamps(w))
	assert.Len(t, w, 4)
}

func TestMerge_DuplicateDelivery(t *testing.T) {
	live := trade("dup", 500)

	w := Merge(nil, []model.Trade{live}, 60)
	w = Merge(w, []model.Trade{live}, 60)

	require.Len(t, w, 1)
	assert.Equal(t, "dup", w[0].ID)
}

func TestMerge_EvictsOldest(t *testing.T) {
	var w []model.Trade
	for _, tr := range []model.Trade{trade("x", 10), trade("y", 20), trade("z", 30)} {
		w = Merge(w, []model.Trade{tr}, 2)
	}

	assert.Equal(t, []int64{30, 20}, timestamps(w))
}

func TestMerge_IncomingWinsOnKeyCollision(t *testing.T) {
	old := trade("same", 100)
	old.AmountUSD = 5
	updated := trade("same", 100)
	updated.AmountUSD = 7

	w := Merge([]model.Trade{old}, []model.Trade{updated}, 60)
	require.Len(t, w, 1)
	assert.Equal(t, 7.0, w[0].AmountUSD)
}

func TestMerge_KeyIncludesTimestampAndMaker(t *testing.T) {
	a := trade("id", 100)
	b := trade("id", 200)
	c := trade("id", 100)
	c.MakerAddress = "0xother"

	w := Merge(nil, []model.Trade{a, b, c}, 60)
	assert.Len(t, w, 3)
}

func TestMerge_Idempotent(t *testing.T) {
	batch := []model.Trade{trade("a", 3), trade("b", 1), trade("c", 2), trade("a", 3)}

	once := Merge(nil, batch, 60)
	twice := Merge(once, batch, 60)

	assert.Equal(t, once, twice)
}

func TestMerge_OrderIndependent(t *testing.T) {
	backfill := []model.Trade{trade("a", 100), trade("b", 200), trade("shared", 250)}
	live := []model.Trade{trade("shared", 250), trade("c", 300)}

	backfillFirst := Merge(Merge(nil, backfill, 60), live, 60)
	liveFirst := Merge(Merge(nil, live, 60), backfill, 60)

	assert.Equal(t, backfillFirst, liveFirst)
	assert.Equal(t, []int64{300, 250, 200, 100}, timestamps(backfillFirst))
}

func TestMerge_TiesBrokenByID(t *testing.T) {
	w := Merge(nil, []model.Trade{trade("c", 5), trade("a", 5), trade("b", 5)}, 60)

	ids := []string{w[0].ID, w[1].ID, w[2].ID}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestMerge_BoundedAndSorted(t *testing.T) {
	var w []model.Trade
	for i := 0; i < 200; i++ {
		ts := int64((i * 37) % 101)
		w = Merge(w, []model.Trade{trade(fmt.Sprintf("t%d", i), ts)}, 25)

		require.LessOrEqual(t, len(w), 25)
		for j := 1; j < len(w); j++ {
			require.GreaterOrEqual(t, w[j-1].Timestamp, w[j].Timestamp)
		}
	}
	assert.Len(t, w, 25)
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	current := []model.Trade{trade("a", 1), trade("b", 2)}
	incoming := []model.Trade{trade("c", 3)}

	_ = Merge(current, incoming, 1)

	assert.Equal(t, []int64{1, 2}, timestamps(current))
	assert.Equal(t, []int64{3}, timestamps(incoming))
}

func TestMerge_DefaultMax(t *testing.T) {
	batch := make([]model.Trade, 0, 100)
	for i := 0; i < 100; i++ {
		batch = append(batch, trade(fmt.Sprintf("t%d", i), int64(i)))
	}

	w := Merge(nil, batch, 0)
	require.Len(t, w, DefaultMaxEvents)
	assert.Equal(t, int64(99), w[0].Timestamp)
}

func TestWindow(t *testing.T) {
	var zero Window
	assert.Equal(t, DefaultMaxEvents, zero.Max())
	assert.Equal(t, 0, zero.Len())

	w := New(2).Merge([]model.Trade{trade("a", 1), trade("b", 2), trade("c", 3)})
	assert.Equal(t, 2, w.Len())
	assert.Equal(t, 2, w.Max())

	got := w.Trades()
	got[0].ID = "mutated"
	assert.Equal(t, "c", w.Trades()[0].ID)

	cleared := w.Clear()
	assert.Equal(t, 0, cleared.Len())
	assert.Equal(t, 2, cleared.Max())
}
