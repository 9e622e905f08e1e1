package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"storefront/internal/models"
)

// SeedFile is the YAML layout accepted by the seed command.
type SeedFile struct {
	Products []SeedProduct `yaml:"products"`
}

type SeedProduct struct {
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description"`
	Price         float64  `yaml:"price"`
	DiscountPrice float64  `yaml:"discountPrice"`
	Category      string   `yaml:"category"`
	Brand         string   `yaml:"brand"`
	Tags          []string `yaml:"tags"`
	Stock         int      `yaml:"stock"`
	Images        []string `yaml:"images"`
	Featured      bool     `yaml:"featured"`
}

// ParseSeed decodes and validates a seed document.
func ParseSeed(r io.Reader) (SeedFile, error) {
	var file SeedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return SeedFile{}, fmt.Errorf("decode seed: %w", err)
	}

	for i, p := range file.Products {
		switch {
		case strings.TrimSpace(p.Name) == "":
			return SeedFile{}, fmt.Errorf("products[%d]: name required", i)
		case p.Price <= 0:
			return SeedFile{}, fmt.Errorf("products[%d] %q: price must be greater than 0", i, p.Name)
		case p.DiscountPrice < 0 || (p.DiscountPrice > 0 && p.DiscountPrice >= p.Price):
			return SeedFile{}, fmt.Errorf("products[%d] %q: discountPrice must be between 0 and price", i, p.Name)
		case p.Stock < 0:
			return SeedFile{}, fmt.Errorf("products[%d] %q: stock must be zero or greater", i, p.Name)
		case strings.TrimSpace(p.Category) == "":
			return SeedFile{}, fmt.Errorf("products[%d] %q: category required", i, p.Name)
		}
	}
	return file, nil
}

func (p SeedProduct) toProduct(now time.Time) models.Product {
	images := make([]models.ProductImage, 0, len(p.Images))
	for _, url := range p.Images {
		if url = strings.TrimSpace(url); url != "" {
			images = append(images, models.ProductImage{URL: url, Alt: p.Name})
		}
	}
	return models.Product{
		Name:          strings.TrimSpace(p.Name),
		Description:   strings.TrimSpace(p.Description),
		Price:         p.Price,
		DiscountPrice: p.DiscountPrice,
		Category:      strings.TrimSpace(p.Category),
		Brand:         strings.TrimSpace(p.Brand),
		Tags:          models.NormalizeTags(p.Tags),
		Stock:         p.Stock,
		Images:        images,
		Reviews:       []models.Review{},
		IsFeatured:    p.Featured,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// SeedCatalog upserts seed products by name and returns how many were inserted.
// Existing products keep their reviews, rating and creation time.
func SeedCatalog(ctx context.Context, db *mongo.Database, file SeedFile) (int, error) {
	inserted := 0
	now := time.Now()
	for _, seed := range file.Products {
		product := seed.toProduct(now)
		res, err := db.Collection("products").UpdateOne(
			ctx,
			bson.M{"name": product.Name, "isDeleted": bson.M{"$ne": true}},
			bson.M{
				"$set": bson.M{
					"description":   product.Description,
					"price":         product.Price,
					"discountPrice": product.DiscountPrice,
					"category":      product.Category,
					"brand":         product.Brand,
					"tags":          product.Tags,
					"stock":         product.Stock,
					"images":        product.Images,
					"isFeatured":    product.IsFeatured,
					"isActive":      true,
					"updatedAt":     now,
				},
				"$setOnInsert": bson.M{
					"reviews":    product.Reviews,
					"rating":     0.0,
					"numReviews": 0,
					"isDeleted":  false,
					"createdAt":  now,
				},
			},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			return inserted, fmt.Errorf("seed %q: %w", product.Name, err)
		}
		if res.UpsertedCount > 0 {
			inserted++
		}
	}
	log.Printf("[SEED] [INFO] %d products processed, %d inserted", len(file.Products), inserted)
	return inserted, nil
}

// CreateAdmin creates an admin account, or promotes the existing account with
// the same email and resets its password.
func CreateAdmin(ctx context.Context, db *mongo.Database, name, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)
	if email == "" || len(password) < 6 {
		return errors.New("email and a password of at least 6 characters are required")
	}
	if name == "" {
		name = "Administrator"
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := time.Now()
	_, err = db.Collection("users").UpdateOne(
		ctx,
		bson.M{"email": email},
		bson.M{
			"$set": bson.M{
				"name":         name,
				"passwordHash": string(hash),
				"role":         models.RoleAdmin,
				"isActive":     true,
				"updatedAt":    now,
			},
			"$setOnInsert": bson.M{
				"email":          email,
				"preferences":    models.DefaultPreferences(),
				"cart":           []models.CartItem{},
				"savedItems":     []models.SavedItem{},
				"recentlyViewed": []models.ViewedItem{},
				"searchHistory":  []models.SearchEntry{},
				"createdAt":      now,
			},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert admin: %w", err)
	}
	log.Println("[SEED] [INFO] admin account ready:", email)
	return nil
}
