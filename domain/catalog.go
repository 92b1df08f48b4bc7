package domain

import (
	"regexp"
	"strings"
)

type Product struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Price       float64  `json:"price"`
	OfferPrice  float64  `json:"offerPrice,omitempty"`
	CategoryID  string   `json:"categoryId,omitempty"`
	Images      []string `json:"images"`
	Stock       int      `json:"stock"`
	Weight      string   `json:"weight,omitempty"`
	IsActive    bool     `json:"isActive"`
}

type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Image       string `json:"image,omitempty"`
	Description string `json:"description,omitempty"`
	IsActive    bool   `json:"isActive"`
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type Address struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Name      string `json:"name" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Street    string `json:"street,omitempty"`
	City      string `json:"city" validate:"required"`
	State     string `json:"state" validate:"required"`
	ZipCode   string `json:"zipCode" validate:"required"`
	Country   string `json:"country" validate:"required"`
	Phone     string `json:"phone,omitempty"`
	IsDefault bool   `json:"isDefault"`
}

var (
	slugStrip = regexp.MustCompile(`[^\w\s-]`)
	slugSpace = regexp.MustCompile(`\s+`)
)

// Slugify derives a URL slug from a category name.
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = slugStrip.ReplaceAllString(s, "")
	return slugSpace.ReplaceAllString(s, "-")
}
