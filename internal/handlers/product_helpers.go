package handlers

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/models"
)

var errInvalidPriceRange = errors.New("invalid price range")

// normalizeProductDocument repairs legacy documents before decoding: a
// category stored as an array, numeric fields stored as strings or doubles,
// and products written before isActive existed.
func normalizeProductDocument(raw bson.M) (models.Product, error) {
	if cat, ok := raw["category"].(bson.A); ok {
		raw["category"] = ""
		if len(cat) > 0 {
			if s, ok := cat[0].(string); ok {
				raw["category"] = s
			}
		}
	}

	raw["stock"] = coerceInt(raw["stock"])

	for _, key := range []string{"price", "discountPrice", "rating"} {
		if s, ok := raw[key].(string); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				f = 0
			}
			raw[key] = f
		}
	}

	if _, ok := raw["isActive"]; !ok {
		raw["isActive"] = true
	}

	data, err := bson.Marshal(raw)
	if err != nil {
		return models.Product{}, err
	}

	var p models.Product
	if err := bson.Unmarshal(data, &p); err != nil {
		return models.Product{}, err
	}

	decorateProduct(&p)
	return p, nil
}

func coerceInt(val interface{}) int {
	switch typed := val.(type) {
	case int32:
		return int(typed)
	case int64:
		return int(typed)
	case float64:
		return int(typed)
	case int:
		return typed
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(typed))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func decodeProducts(ctx context.Context, cursor *mongo.Cursor) ([]models.Product, error) {
	defer cursor.Close(ctx)
	products := make([]models.Product, 0)

	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, err
		}

		product, err := normalizeProductDocument(raw)
		if err != nil {
			return nil, err
		}

		products = append(products, product)
	}

	if err := cursor.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

// productQuery is the parsed catalog listing query string.
type productQuery struct {
	Search   string
	Category string
	Brand    string
	MinPrice *float64
	MaxPrice *float64
	InStock  bool
	Featured bool
	Sort     string
}

func parseOptionalFloat(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return nil, errInvalidPriceRange
	}
	return &f, nil
}

func parseProductQuery(get func(string) string) (productQuery, error) {
	q := productQuery{
		Search:   strings.TrimSpace(get("search")),
		Category: strings.TrimSpace(get("category")),
		Brand:    strings.TrimSpace(get("brand")),
		InStock:  get("inStock") == "true",
		Featured: get("featured") == "true",
		Sort:     strings.TrimSpace(get("sort")),
	}

	var err error
	if q.MinPrice, err = parseOptionalFloat(get("minPrice")); err != nil {
		return productQuery{}, err
	}
	if q.MaxPrice, err = parseOptionalFloat(get("maxPrice")); err != nil {
		return productQuery{}, err
	}
	if q.MinPrice != nil && q.MaxPrice != nil && *q.MinPrice > *q.MaxPrice {
		return productQuery{}, errInvalidPriceRange
	}
	return q, nil
}

func caseInsensitiveExact(value string) primitive.Regex {
	return primitive.Regex{Pattern: "^" + regexp.QuoteMeta(value) + "$", Options: "i"}
}

// buildProductFilter only ever matches visible products; admin listings
// relax isActive themselves.
func buildProductFilter(q productQuery) bson.M {
	filter := bson.M{
		"isActive":  true,
		"isDeleted": bson.M{"$ne": true},
	}

	if q.Search != "" {
		pattern := regexp.QuoteMeta(q.Search)
		filter["$or"] = bson.A{
			bson.M{"name": bson.M{"$regex": pattern, "$options": "i"}},
			bson.M{"brand": bson.M{"$regex": pattern, "$options": "i"}},
			bson.M{"description": bson.M{"$regex": pattern, "$options": "i"}},
			bson.M{"tags": bson.M{"$regex": pattern, "$options": "i"}},
		}
	}
	if q.Category != "" {
		filter["category"] = caseInsensitiveExact(q.Category)
	}
	if q.Brand != "" {
		filter["brand"] = caseInsensitiveExact(q.Brand)
	}
	if q.MinPrice != nil || q.MaxPrice != nil {
		price := bson.M{}
		if q.MinPrice != nil {
			price["$gte"] = *q.MinPrice
		}
		if q.MaxPrice != nil {
			price["$lte"] = *q.MaxPrice
		}
		filter["price"] = price
	}
	if q.InStock {
		filter["stock"] = bson.M{"$gt": 0}
	}
	if q.Featured {
		filter["isFeatured"] = true
	}
	return filter
}

func productSort(sort string) bson.D {
	switch sort {
	case "price_asc":
		return bson.D{{Key: "price", Value: 1}, {Key: "_id", Value: 1}}
	case "price_desc":
		return bson.D{{Key: "price", Value: -1}, {Key: "_id", Value: 1}}
	case "rating":
		return bson.D{{Key: "rating", Value: -1}, {Key: "numReviews", Value: -1}}
	case "name":
		return bson.D{{Key: "name", Value: 1}}
	default:
		return bson.D{{Key: "createdAt", Value: -1}}
	}
}

// productListProjection keeps review bodies out of list responses.
func productListProjection() *options.FindOptions {
	return options.Find().SetProjection(bson.M{"reviews": 0})
}
