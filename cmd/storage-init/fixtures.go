package main

import (
	"rootcart/domain"
	"rootcart/storage"
)

// sampleCatalog is a small development catalog. Product CategoryID holds the
// category slug; SeedFixtures resolves it to the stored id.
func sampleCatalog() storage.Fixtures {
	return storage.Fixtures{
		Categories: []domain.Category{
			{Name: "Fruits", Slug: "fruits", Image: "/uploads/fruits.jpg"},
			{Name: "Vegetables", Slug: "vegetables", Image: "/uploads/vegetables.jpg"},
			{Name: "Dairy", Slug: "dairy", Image: "/uploads/dairy.jpg"},
		},
		Products: []domain.Product{
			{Name: "Fresh Apples", Description: "Sweet red apples from local farms", Price: 120, OfferPrice: 99, CategoryID: "fruits", Images: []string{"/uploads/apple.jpg"}, Stock: 50},
			{Name: "Organic Tomatoes", Description: "Farm fresh organic tomatoes", Price: 80, OfferPrice: 65, CategoryID: "vegetables", Images: []string{"/uploads/tomato.jpg"}, Stock: 100},
			{Name: "Farm Milk", Description: "Fresh dairy milk 1L", Price: 60, OfferPrice: 55, CategoryID: "dairy", Images: []string{"/uploads/milk.jpg"}, Stock: 30, Weight: "1L"},
		},
		Users: []domain.User{
			{Name: "Admin User", Email: "admin@example.com", Role: domain.RoleAdmin},
		},
	}
}
