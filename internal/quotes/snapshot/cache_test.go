package snapshot

import (
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickerstream.com/internal/quotes/datasource/model"
)

func tk(sym, close string) model.Ticker {
	return model.Ticker{Symbol: sym, Close: decimal.RequireFromString(close)}
}

func TestCache_LastWriteWins(t *testing.T) {
	c := New()
	c.Put(tk("BTCUSDT", "100"))
	c.Put(tk("BTCUSDT", "101.5"))

	got, ok := c.Get("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, "101.5", got.Close.String())
	assert.Equal(t, 1, c.Len())
}

func TestCache_GetLowercaseFallsBackToUpper(t *testing.T) {
	c := New()
	c.Put(tk("ETHUSDT", "1200"))

	_, ok := c.Get("ethusdt")
	assert.True(t, ok)
	_, ok = c.Get("DOGEUSDT")
	assert.False(t, ok)
}

func TestCache_ListSorted(t *testing.T) {
	c := New()
	c.PutAll([]model.Ticker{tk("XRPUSDT", "1"), tk("BTCUSDT", "2"), tk("ETHUSDT", "3")})

	var syms []string
	for _, x := range c.List() {
		syms = append(syms, x.Symbol)
	}
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT", "XRPUSDT"}, syms)
}

func TestCache_ConcurrentPutGet(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				sym := fmt.Sprintf("S%d", i%50)
				c.Put(tk(sym, fmt.Sprint(w)))
				_, _ = c.Get(sym)
				_ = c.List()
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, 50, c.Len())
}
