package handlers

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/models"
)

func TestNormalizeSearchQuery(t *testing.T) {
	assert.Equal(t, "red shoes", normalizeSearchQuery("  red \t shoes \n"))
	assert.Equal(t, "", normalizeSearchQuery("   "))
	assert.Len(t, normalizeSearchQuery(strings.Repeat("a", 500)), maxSearchQueryLength)
}

func TestNormalizeSearchQueryKeepsMultibyteIntact(t *testing.T) {
	atLimit := "a" + strings.Repeat("ü", maxSearchQueryLength-1)
	require.NoError(t, binding.Validator.ValidateStruct(searchHistoryRequest{Query: atLimit}))

	got := normalizeSearchQuery(atLimit)
	assert.Equal(t, atLimit, got)
	assert.True(t, utf8.ValidString(got))

	long := normalizeSearchQuery(strings.Repeat("日本", maxSearchQueryLength))
	assert.True(t, utf8.ValidString(long))
	assert.Equal(t, maxSearchQueryLength, utf8.RuneCountInString(long))

	re := searchHistoryUpdates(long, time.Now())[0]["$pull"].(bson.M)["searchHistory"].(bson.M)["query"].(primitive.Regex)
	assert.True(t, utf8.ValidString(re.Pattern))
}

func TestRecentlyViewedUpdatesDedupeAndCap(t *testing.T) {
	id := primitive.NewObjectID()
	now := time.Now()
	updates := recentlyViewedUpdates(id, now)
	require.Len(t, updates, 2)

	assert.Equal(t, bson.M{"recentlyViewed": bson.M{"product": id}}, updates[0]["$pull"])

	push := updates[1]["$push"].(bson.M)["recentlyViewed"].(bson.M)
	assert.Equal(t, 0, push["$position"])
	assert.Equal(t, models.MaxRecentlyViewed, push["$slice"])
	assert.Equal(t, []models.ViewedItem{{ProductID: id, ViewedAt: now}}, push["$each"])
}

func TestSearchHistoryUpdatesMatchCaseInsensitively(t *testing.T) {
	updates := searchHistoryUpdates("c++ books", time.Now())
	pull := updates[0]["$pull"].(bson.M)["searchHistory"].(bson.M)
	re := pull["query"].(primitive.Regex)
	assert.Equal(t, `^c\+\+ books$`, re.Pattern)
	assert.Equal(t, "i", re.Options)

	push := updates[1]["$push"].(bson.M)["searchHistory"].(bson.M)
	assert.Equal(t, models.MaxSearchHistory, push["$slice"])
}
