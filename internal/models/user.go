package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	// MaxRecentlyViewed and MaxSearchHistory bound the embedded activity arrays.
	MaxRecentlyViewed = 20
	MaxSearchHistory  = 20
)

// Address is the single shipping address embedded on a user and copied onto orders.
type Address struct {
	Street     string `bson:"street" json:"street"`
	City       string `bson:"city" json:"city"`
	State      string `bson:"state,omitempty" json:"state,omitempty"`
	PostalCode string `bson:"postalCode" json:"postalCode"`
	Country    string `bson:"country" json:"country"`
}

// IsComplete reports whether the address can be used for shipping.
func (a Address) IsComplete() bool {
	return a.Street != "" && a.City != "" && a.PostalCode != "" && a.Country != ""
}

type NotificationPreferences struct {
	Email bool `bson:"email" json:"email"`
	SMS   bool `bson:"sms" json:"sms"`
}

type Preferences struct {
	Newsletter    bool                    `bson:"newsletter" json:"newsletter"`
	Currency      string                  `bson:"currency" json:"currency"`
	Language      string                  `bson:"language" json:"language"`
	Theme         string                  `bson:"theme" json:"theme"`
	Notifications NotificationPreferences `bson:"notifications" json:"notifications"`
}

// DefaultPreferences is what a freshly registered user starts with.
func DefaultPreferences() Preferences {
	return Preferences{
		Currency:      "USD",
		Language:      "en",
		Theme:         "light",
		Notifications: NotificationPreferences{Email: true},
	}
}

// CartItem is an unpurchased selection. Name, price and image are a display
// snapshot; orders always re-read the product.
type CartItem struct {
	ProductID primitive.ObjectID `bson:"product" json:"product"`
	Name      string             `bson:"name" json:"name"`
	Price     float64            `bson:"price" json:"price"`
	Image     string             `bson:"image,omitempty" json:"image,omitempty"`
	Quantity  int                `bson:"quantity" json:"quantity"`
	AddedAt   time.Time          `bson:"addedAt" json:"addedAt"`
}

type SavedItem struct {
	ProductID primitive.ObjectID `bson:"product" json:"product"`
	AddedAt   time.Time          `bson:"addedAt" json:"addedAt"`
}

type ViewedItem struct {
	ProductID primitive.ObjectID `bson:"product" json:"product"`
	ViewedAt  time.Time          `bson:"viewedAt" json:"viewedAt"`
}

type SearchEntry struct {
	Query      string    `bson:"query" json:"query"`
	SearchedAt time.Time `bson:"searchedAt" json:"searchedAt"`
}

// User represents the application user account.
type User struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name           string             `bson:"name" json:"name"`
	Email          string             `bson:"email" json:"email"`
	PasswordHash   string             `bson:"passwordHash" json:"-"`
	Role           string             `bson:"role" json:"role"`
	Phone          string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Avatar         string             `bson:"avatar,omitempty" json:"avatar,omitempty"`
	Address        Address            `bson:"address" json:"address"`
	Preferences    Preferences        `bson:"preferences" json:"preferences"`
	Cart           []CartItem         `bson:"cart" json:"cart"`
	SavedItems     []SavedItem        `bson:"savedItems" json:"savedItems"`
	RecentlyViewed []ViewedItem       `bson:"recentlyViewed" json:"recentlyViewed"`
	SearchHistory  []SearchEntry      `bson:"searchHistory" json:"searchHistory"`
	IsActive       bool               `bson:"isActive" json:"isActive"`
	LastLogin      *time.Time         `bson:"lastLogin,omitempty" json:"lastLogin,omitempty"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt" json:"updatedAt"`
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
