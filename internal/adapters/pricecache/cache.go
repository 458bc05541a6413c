// Package pricecache holds the latest observed price per trading pair.
// It is the in-process source the rate resolver reads when valuing
// non-settlement assets, fed by the exchange mark price stream.
package pricecache

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Cache is a concurrency-safe map of pair symbol to last seen price.
// The zero value is not usable; construct with New.
type Cache struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// New creates an empty price cache.
func New() *Cache {
	return &Cache{prices: make(map[string]decimal.Decimal)}
}

// SetPrice records the latest price for a pair, overwriting any prior value.
// Empty pairs and non-positive prices are ignored.
func (c *Cache) SetPrice(pair string, price decimal.Decimal) {
	if pair == "" || !price.IsPositive() {
		return
	}
	c.mu.Lock()
	c.prices[pair] = price
	c.mu.Unlock()
}

// Price returns the last recorded price for a pair and whether one exists.
func (c *Cache) Price(pair string) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	price, ok := c.prices[pair]
	return price, ok
}

// Len reports how many pairs currently have a cached price.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.prices)
}
