package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rootcart/domain"
)

type productDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Name        string             `bson:"name"`
	Description string             `bson:"description,omitempty"`
	Price       float64            `bson:"price"`
	OfferPrice  float64            `bson:"offerPrice,omitempty"`
	Category    string             `bson:"category,omitempty"`
	Images      []string           `bson:"images"`
	Stock       int                `bson:"stock"`
	Weight      string             `bson:"weight,omitempty"`
	IsActive    bool               `bson:"isActive"`
	CreatedAt   time.Time          `bson:"createdAt"`
}

func (d productDoc) toDomain() domain.Product {
	return domain.Product{
		ID:          d.ID.Hex(),
		Name:        d.Name,
		Description: d.Description,
		Price:       d.Price,
		OfferPrice:  d.OfferPrice,
		CategoryID:  d.Category,
		Images:      d.Images,
		Stock:       d.Stock,
		Weight:      d.Weight,
		IsActive:    d.IsActive,
	}
}

type categoryDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Name        string             `bson:"name"`
	Slug        string             `bson:"slug"`
	Image       string             `bson:"image,omitempty"`
	Description string             `bson:"description,omitempty"`
	IsActive    bool               `bson:"isActive"`
	CreatedAt   time.Time          `bson:"createdAt"`
}

type userDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Name      string             `bson:"name"`
	Email     string             `bson:"email"`
	Role      string             `bson:"role"`
	CreatedAt time.Time          `bson:"createdAt"`
}

type addressDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	UserID    string             `bson:"userId"`
	Name      string             `bson:"name"`
	Email     string             `bson:"email"`
	Street    string             `bson:"street,omitempty"`
	City      string             `bson:"city"`
	State     string             `bson:"state"`
	ZipCode   string             `bson:"zipCode"`
	Country   string             `bson:"country"`
	Phone     string             `bson:"phone,omitempty"`
	IsDefault bool               `bson:"isDefault"`
	CreatedAt time.Time          `bson:"createdAt"`
}

func (d addressDoc) toDomain() domain.Address {
	return domain.Address{
		ID:        d.ID.Hex(),
		UserID:    d.UserID,
		Name:      d.Name,
		Email:     d.Email,
		Street:    d.Street,
		City:      d.City,
		State:     d.State,
		ZipCode:   d.ZipCode,
		Country:   d.Country,
		Phone:     d.Phone,
		IsDefault: d.IsDefault,
	}
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	cur, err := s.products.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var docs []productDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, len(docs))
	for _, d := range docs {
		products = append(products, d.toDomain())
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	id, err := primitive.ObjectIDFromHex(productID)
	if err != nil {
		return domain.Product{}, ErrNotFound
	}
	var doc productDoc
	err = s.products.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Product{}, ErrNotFound
	}
	if err != nil {
		return domain.Product{}, err
	}
	return doc.toDomain(), nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	cur, err := s.categories.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var docs []categoryDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	categories := make([]domain.Category, 0, len(docs))
	for _, d := range docs {
		categories = append(categories, domain.Category{
			ID:          d.ID.Hex(),
			Name:        d.Name,
			Slug:        d.Slug,
			Image:       d.Image,
			Description: d.Description,
			IsActive:    d.IsActive,
		})
	}
	return categories, nil
}

// CreateAddress stores a for its user. A default address clears the flag on the user's others.
func (s *Store) CreateAddress(ctx context.Context, a domain.Address) (domain.Address, error) {
	if a.IsDefault {
		if _, err := s.addresses.UpdateMany(ctx, bson.M{"userId": a.UserID}, bson.M{"$set": bson.M{"isDefault": false}}); err != nil {
			return domain.Address{}, fmt.Errorf("reset default address: %w", err)
		}
	}
	doc := addressDoc{
		ID:        primitive.NewObjectID(),
		UserID:    a.UserID,
		Name:      a.Name,
		Email:     a.Email,
		Street:    a.Street,
		City:      a.City,
		State:     a.State,
		ZipCode:   a.ZipCode,
		Country:   a.Country,
		Phone:     a.Phone,
		IsDefault: a.IsDefault,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.addresses.InsertOne(ctx, doc); err != nil {
		return domain.Address{}, fmt.Errorf("insert address: %w", err)
	}
	return doc.toDomain(), nil
}

func (s *Store) ListAddresses(ctx context.Context, userID string) ([]domain.Address, error) {
	cur, err := s.addresses.Find(ctx, bson.M{"userId": userID}, options.Find().SetSort(bson.D{{Key: "isDefault", Value: -1}, {Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var docs []addressDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	addresses := make([]domain.Address, 0, len(docs))
	for _, d := range docs {
		addresses = append(addresses, d.toDomain())
	}
	return addresses, nil
}

// Fixtures is the sample catalog written by the provisioning tool.
type Fixtures struct {
	Categories []domain.Category
	Products   []domain.Product
	Users      []domain.User
}

// SeedFixtures inserts f when the product collection is empty. It reports
// whether anything was written.
func (s *Store) SeedFixtures(ctx context.Context, f Fixtures) (bool, error) {
	n, err := s.products.CountDocuments(ctx, bson.M{})
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	now := time.Now().UTC()
	slugToID := make(map[string]string, len(f.Categories))
	if len(f.Categories) > 0 {
		docs := make([]any, 0, len(f.Categories))
		for _, c := range f.Categories {
			slug := c.Slug
			if slug == "" {
				slug = domain.Slugify(c.Name)
			}
			id := primitive.NewObjectID()
			slugToID[slug] = id.Hex()
			docs = append(docs, categoryDoc{ID: id, Name: c.Name, Slug: slug, Image: c.Image, Description: c.Description, IsActive: true, CreatedAt: now})
		}
		if _, err := s.categories.InsertMany(ctx, docs); err != nil {
			return false, fmt.Errorf("seed categories: %w", err)
		}
	}
	if len(f.Products) > 0 {
		docs := make([]any, 0, len(f.Products))
		for _, p := range f.Products {
			category := p.CategoryID
			if id, ok := slugToID[category]; ok {
				category = id
			}
			docs = append(docs, productDoc{
				ID: primitive.NewObjectID(), Name: p.Name, Description: p.Description,
				Price: p.Price, OfferPrice: p.OfferPrice, Category: category, Images: p.Images,
				Stock: p.Stock, Weight: p.Weight, IsActive: true, CreatedAt: now,
			})
		}
		if _, err := s.products.InsertMany(ctx, docs); err != nil {
			return false, fmt.Errorf("seed products: %w", err)
		}
	}
	if len(f.Users) > 0 {
		docs := make([]any, 0, len(f.Users))
		for _, u := range f.Users {
			role := u.Role
			if role == "" {
				role = domain.RoleUser
			}
			docs = append(docs, userDoc{ID: primitive.NewObjectID(), Name: u.Name, Email: u.Email, Role: role, CreatedAt: now})
		}
		if _, err := s.users.InsertMany(ctx, docs); err != nil {
			return false, fmt.Errorf("seed users: %w", err)
		}
	}
	return true, nil
}
