package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ProductImage struct {
	URL string `bson:"url" json:"url"`
	Alt string `bson:"alt,omitempty" json:"alt,omitempty"`
}

type Review struct {
	UserID    primitive.ObjectID `bson:"user" json:"user"`
	Name      string             `bson:"name" json:"name"`
	Rating    int                `bson:"rating" json:"rating"`
	Comment   string             `bson:"comment" json:"comment"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}

type Product struct {
	ID             primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Name           string              `bson:"name" json:"name"`
	Description    string              `bson:"description" json:"description"`
	Price          float64             `bson:"price" json:"price"`
	DiscountPrice  float64             `bson:"discountPrice" json:"discountPrice"`
	EffectivePrice float64             `bson:"-" json:"effectivePrice"`
	OnSale         bool                `bson:"-" json:"onSale"`
	Category       string              `bson:"category" json:"category"`
	Brand          string              `bson:"brand,omitempty" json:"brand,omitempty"`
	Tags           StringList          `bson:"tags" json:"tags"`
	Stock          int                 `bson:"stock" json:"stock"`
	InStock        bool                `bson:"-" json:"inStock"`
	Images         []ProductImage      `bson:"images" json:"images"`
	Reviews        []Review            `bson:"reviews" json:"reviews"`
	Rating         float64             `bson:"rating" json:"rating"`
	NumReviews     int                 `bson:"numReviews" json:"numReviews"`
	IsFeatured     bool                `bson:"isFeatured" json:"isFeatured"`
	IsActive       bool                `bson:"isActive" json:"isActive"`
	IsDeleted      bool                `bson:"isDeleted" json:"isDeleted,omitempty"`
	DeletedAt      *time.Time          `bson:"deletedAt,omitempty" json:"deletedAt,omitempty"`
	CreatedBy      *primitive.ObjectID `bson:"createdBy,omitempty" json:"createdBy,omitempty"`
	CreatedAt      time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// PrimaryImage is the first image URL, used for cart and order snapshots.
func (p Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0].URL
}

// Purchasable reports whether the product may be added to a cart or ordered.
func (p Product) Purchasable() bool {
	return p.IsActive && !p.IsDeleted
}
