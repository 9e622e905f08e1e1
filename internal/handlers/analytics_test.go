package handlers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"storefront/internal/models"
)

func stageOp(t *testing.T, stage bson.D) string {
	t.Helper()
	require.Len(t, stage, 1)
	return stage[0].Key
}

func TestRevenuePipelineExcludesCancelled(t *testing.T) {
	p := revenuePipeline()
	require.Len(t, p, 2)
	assert.Equal(t, "$match", stageOp(t, p[0]))
	assert.Equal(t, bson.M{"status": bson.M{"$ne": models.OrderCancelled}}, p[0][0].Value)
	group := p[1][0].Value.(bson.M)
	assert.Equal(t, bson.M{"$sum": "$totalPrice"}, group["revenue"])
}

func TestSalesPipelineGroupsByDay(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := salesPipeline(since)

	match := p[0][0].Value.(bson.M)
	assert.Equal(t, bson.M{"$gte": since}, match["createdAt"])

	group := p[1][0].Value.(bson.M)
	id := group["_id"].(bson.M)["$dateToString"].(bson.M)
	assert.Equal(t, "%Y-%m-%d", id["format"])
	assert.Equal(t, "$sort", stageOp(t, p[2]))
}

func TestTopProductsPipelineLimit(t *testing.T) {
	p := topProductsPipeline(5)
	ops := make([]string, 0, len(p))
	for _, stage := range p {
		ops = append(ops, stageOp(t, stage))
	}
	assert.Equal(t, []string{"$match", "$unwind", "$group", "$sort", "$limit"}, ops)
	assert.Equal(t, 5, p[4][0].Value)
}

func TestCategoryPipelineJoinsProducts(t *testing.T) {
	p := categoryPipelineByRevenue()
	lookup := p[2][0].Value.(bson.M)
	assert.Equal(t, "$lookup", stageOp(t, p[2]))
	assert.Equal(t, "products", lookup["from"])
	assert.Equal(t, "items.product", lookup["localField"])

	group := p[4][0].Value.(bson.M)
	assert.Equal(t, "$product.category", group["_id"])
}

func TestBoundedIntQuery(t *testing.T) {
	n, ok := boundedIntQuery("", 30, 365)
	assert.True(t, ok)
	assert.Equal(t, 30, n)

	n, ok = boundedIntQuery("1000", 30, 365)
	assert.True(t, ok)
	assert.Equal(t, 365, n)

	_, ok = boundedIntQuery("0", 30, 365)
	assert.False(t, ok)
	_, ok = boundedIntQuery("abc", 30, 365)
	assert.False(t, ok)
}

func TestAverageOrderValue(t *testing.T) {
	assert.Equal(t, 0.0, averageOrderValue(revenueTotals{}))
	assert.Equal(t, 33.33, averageOrderValue(revenueTotals{Revenue: 100, Orders: 3}))
}
