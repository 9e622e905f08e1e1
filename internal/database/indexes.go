package database

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func EnsureProductIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "category", Value: 1}, {Key: "isActive", Value: 1}},
			Options: options.Index().SetName("category_active"),
		},
		{
			Keys: bson.D{{Key: "isFeatured", Value: 1}},
			Options: options.Index().
				SetName("featured_partial").
				SetPartialFilterExpression(bson.M{"isFeatured": true}),
		},
		{
			Keys:    bson.D{{Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("createdAt_desc"),
		},
	}

	log.Println("EnsureProductIndexes: creating product indexes")
	if _, err := db.Collection("products").Indexes().CreateMany(ctx, models); err != nil {
		log.Println("EnsureProductIndexes: index error:", err)
		return err
	}
	log.Println("EnsureProductIndexes: product indexes created")
	return nil
}

func EnsureUserIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	emailIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "email", Value: 1}},
		Options: options.Index().
			SetName("email_unique").
			SetUnique(true),
	}

	log.Println("EnsureUserIndexes: creating email_unique index")
	if _, err := db.Collection("users").Indexes().CreateOne(ctx, emailIndex); err != nil {
		log.Println("EnsureUserIndexes: email index error:", err)
		return err
	}
	log.Println("EnsureUserIndexes: email_unique index created")
	return nil
}

func EnsureOrderIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("user_createdAt"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}},
			Options: options.Index().SetName("status_index"),
		},
		{
			Keys:    bson.D{{Key: "orderNumber", Value: 1}},
			Options: options.Index().SetName("orderNumber_unique").SetUnique(true),
		},
	}

	log.Println("EnsureOrderIndexes: creating order indexes")
	if _, err := db.Collection("orders").Indexes().CreateMany(ctx, models); err != nil {
		log.Println("EnsureOrderIndexes: index error:", err)
		return err
	}
	log.Println("EnsureOrderIndexes: order indexes created")
	return nil
}

func EnsureRefreshTokenIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "tokenHash", Value: 1}},
			Options: options.Index().SetName("tokenHash_unique").SetUnique(true),
		},
		{
			// expired tokens are reaped by the server
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetName("expiresAt_ttl").SetExpireAfterSeconds(0),
		},
	}

	log.Println("EnsureRefreshTokenIndexes: creating refresh token indexes")
	if _, err := db.Collection("refresh_tokens").Indexes().CreateMany(ctx, models); err != nil {
		log.Println("EnsureRefreshTokenIndexes: index error:", err)
		return err
	}
	log.Println("EnsureRefreshTokenIndexes: refresh token indexes created")
	return nil
}

// EnsureAllIndexes runs every index builder, logging failures as warnings.
func EnsureAllIndexes(db *mongo.Database) {
	for name, ensure := range map[string]func(*mongo.Database) error{
		"product":       EnsureProductIndexes,
		"user":          EnsureUserIndexes,
		"order":         EnsureOrderIndexes,
		"refresh token": EnsureRefreshTokenIndexes,
	} {
		if err := ensure(db); err != nil {
			log.Printf("[DB] [WARN] %s index warning: %v", name, err)
		}
	}
}
