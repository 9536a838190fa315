package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecentCacheNewestFirstAndCapped(t *testing.T) {
	c := NewRecentCache(0, nil, nil)
	for i := 0; i < 60; i++ {
		c.Remember(RecentEntry{FullName: fmt.Sprintf("visitor %02d", i)})
	}
	assert.Equal(t, DefaultRecentCap, c.Len())

	all := c.Suggest("", 0)
	assert.Equal(t, "visitor 59", all[0].FullName)
	assert.Equal(t, "visitor 10", all[len(all)-1].FullName)

	_, ok := c.Lookup("visitor 09")
	assert.False(t, ok)
}

func TestRecentCacheReplacesDuplicate(t *testing.T) {
	c := NewRecentCache(5, nil, nil)
	c.Remember(RecentEntry{FullName: "สมชาย", Company: "เก่า"})
	c.Remember(RecentEntry{FullName: "Alice"})
	c.Remember(RecentEntry{FullName: " สมชาย ", Company: "ใหม่"})
	c.Remember(RecentEntry{FullName: "   "})

	all := c.Suggest("", 0)
	require.Len(t, all, 2)
	assert.Equal(t, "สมชาย", all[0].FullName)
	assert.Equal(t, "ใหม่", all[0].Company)

	assert.Len(t, c.Suggest("ali", 10), 1)
	assert.Len(t, c.Suggest("", 1), 1)
}

func TestRecentCacheBadgerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	bs, err := OpenBadgerRecentStore(dir)
	require.NoError(t, err)

	c := NewRecentCache(10, bs, nil)
	c.Remember(RecentEntry{FullName: "Bob", Company: "Initech"})
	c.Remember(RecentEntry{FullName: "Carol", VehiclePlate: "กข 1234"})
	require.NoError(t, bs.Close())

	bs, err = OpenBadgerRecentStore(dir)
	require.NoError(t, err)
	defer bs.Close()

	restored := NewRecentCache(10, bs, nil)
	all := restored.Suggest("", 0)
	require.Len(t, all, 2)
	assert.Equal(t, "Carol", all[0].FullName)
	assert.Equal(t, "กข 1234", all[0].VehiclePlate)
	assert.Equal(t, "Initech", all[1].Company)
}
