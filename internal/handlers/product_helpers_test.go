package handlers

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/models"
)

func TestNormalizeProductDocumentRepairsLegacyFields(t *testing.T) {
	raw := bson.M{
		"_id":      primitive.NewObjectID(),
		"name":     "Kettle",
		"category": bson.A{"kitchen", "appliances"},
		"stock":    "7",
		"price":    "49.5",
		"tags":     "steel, Kitchen",
	}

	p, err := normalizeProductDocument(raw)
	require.NoError(t, err)
	assert.Equal(t, "kitchen", p.Category)
	assert.Equal(t, 7, p.Stock)
	assert.Equal(t, 49.5, p.Price)
	assert.True(t, p.IsActive, "missing isActive defaults to true")
	assert.True(t, p.InStock)
	assert.Equal(t, 49.5, p.EffectivePrice)
	assert.Equal(t, models.StringList{"steel", "kitchen"}, p.Tags)
}

func TestCoerceInt(t *testing.T) {
	assert.Equal(t, 3, coerceInt(int32(3)))
	assert.Equal(t, 4, coerceInt(int64(4)))
	assert.Equal(t, 5, coerceInt(5.9))
	assert.Equal(t, 0, coerceInt("x"))
	assert.Equal(t, 0, coerceInt(nil))
}

func TestParseProductQuery(t *testing.T) {
	values := url.Values{
		"search":   {" lamp "},
		"minPrice": {"10"},
		"maxPrice": {"20"},
		"inStock":  {"true"},
		"sort":     {"price_asc"},
	}
	q, err := parseProductQuery(values.Get)
	require.NoError(t, err)
	assert.Equal(t, "lamp", q.Search)
	assert.Equal(t, 10.0, *q.MinPrice)
	assert.Equal(t, 20.0, *q.MaxPrice)
	assert.True(t, q.InStock)
	assert.False(t, q.Featured)

	_, err = parseProductQuery(url.Values{"minPrice": {"30"}, "maxPrice": {"20"}}.Get)
	assert.ErrorIs(t, err, errInvalidPriceRange)

	_, err = parseProductQuery(url.Values{"minPrice": {"-1"}}.Get)
	assert.ErrorIs(t, err, errInvalidPriceRange)
}

func TestBuildProductFilter(t *testing.T) {
	lo, hi := 5.0, 50.0
	filter := buildProductFilter(productQuery{
		Search:   "a.b",
		Category: "Home",
		MinPrice: &lo,
		MaxPrice: &hi,
		InStock:  true,
		Featured: true,
	})

	assert.Equal(t, true, filter["isActive"])
	assert.Equal(t, bson.M{"$ne": true}, filter["isDeleted"])
	assert.Equal(t, primitive.Regex{Pattern: "^Home$", Options: "i"}, filter["category"])
	assert.Equal(t, bson.M{"$gte": 5.0, "$lte": 50.0}, filter["price"])
	assert.Equal(t, bson.M{"$gt": 0}, filter["stock"])
	assert.Equal(t, true, filter["isFeatured"])

	or := filter["$or"].(bson.A)
	require.Len(t, or, 4)
	assert.Equal(t, bson.M{"name": bson.M{"$regex": `a\.b`, "$options": "i"}}, or[0])
}

func TestBuildProductFilterDefaultsToVisibleOnly(t *testing.T) {
	filter := buildProductFilter(productQuery{})
	assert.Len(t, filter, 2)
}

func TestProductSort(t *testing.T) {
	assert.Equal(t, "price", productSort("price_asc")[0].Key)
	assert.Equal(t, -1, productSort("price_desc")[0].Value)
	assert.Equal(t, "rating", productSort("rating")[0].Key)
	assert.Equal(t, "name", productSort("name")[0].Key)
	assert.Equal(t, "createdAt", productSort("whatever")[0].Key)
}

func TestNewProduct(t *testing.T) {
	stock := 3
	admin := primitive.NewObjectID()
	now := time.Now()

	p, err := newProduct(CreateProductRequest{
		Name:          " Desk ",
		Description:   "Oak desk",
		Price:         200,
		DiscountPrice: 150,
		Category:      "furniture",
		Tags:          models.StringList{"Oak", "oak"},
		Stock:         &stock,
		Images:        []productImageRequest{{URL: " /uploads/products/desk.png "}, {URL: " "}},
	}, admin, now)
	require.NoError(t, err)

	assert.Equal(t, "Desk", p.Name)
	assert.True(t, p.IsActive)
	assert.True(t, p.OnSale)
	assert.Equal(t, 150.0, p.EffectivePrice)
	assert.Equal(t, models.StringList{"oak"}, p.Tags)
	assert.Equal(t, []models.ProductImage{{URL: "/uploads/products/desk.png"}}, p.Images)
	assert.Equal(t, &admin, p.CreatedBy)

	_, err = newProduct(CreateProductRequest{Name: "Desk", Category: "x", Price: 10, DiscountPrice: 10, Stock: &stock}, admin, now)
	assert.ErrorContains(t, err, "less than price")
}

func TestProductUpdateSet(t *testing.T) {
	existing := models.Product{Price: 100, DiscountPrice: 80}
	now := time.Now()

	lower := 70.0
	_, err := productUpdateSet(existing, ProductUpdateRequest{Price: &lower}, now)
	assert.Error(t, err, "price below the stored discount is rejected")

	noDiscount := 0.0
	set, err := productUpdateSet(existing, ProductUpdateRequest{Price: &lower, DiscountPrice: &noDiscount}, now)
	require.NoError(t, err)
	assert.Equal(t, 70.0, set["price"])
	assert.Equal(t, 0.0, set["discountPrice"])
	assert.Equal(t, now, set["updatedAt"])

	inactive := false
	set, err = productUpdateSet(existing, ProductUpdateRequest{IsActive: &inactive}, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"isActive", "updatedAt"}, mapKeys(set))

	_, err = productUpdateSet(existing, ProductUpdateRequest{}, now)
	assert.ErrorIs(t, err, errNoProductFields)
}
