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

// ErrNotFound is returned when a record with the requested id does not exist.
var ErrNotFound = errors.New("storage: not found")

const (
	productsCollection   = "products"
	categoriesCollection = "categories"
	usersCollection      = "users"
	ordersCollection     = "orders"
	addressesCollection  = "addresses"
)

// Store is the MongoDB backed document store for the catalog, customers and orders.
type Store struct {
	client     *mongo.Client
	products   *mongo.Collection
	categories *mongo.Collection
	users      *mongo.Collection
	orders     *mongo.Collection
	addresses  *mongo.Collection
}

// Connect dials MongoDB and verifies the connection.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(10 * time.Second)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	s := NewStore(client.Database(database))
	s.client = client
	return s, nil
}

// NewStore wraps an already connected database.
func NewStore(db *mongo.Database) *Store {
	return &Store{
		products:   db.Collection(productsCollection),
		categories: db.Collection(categoriesCollection),
		users:      db.Collection(usersCollection),
		orders:     db.Collection(ordersCollection),
		addresses:  db.Collection(addressesCollection),
	}
}

func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// EnsureIndexes creates the indexes the dashboard queries rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	sets := []struct {
		coll   *mongo.Collection
		models []mongo.IndexModel
	}{
		{s.orders, []mongo.IndexModel{
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "orderNumber", Value: 1}}, Options: options.Index().SetUnique(true)},
		}},
		{s.users, []mongo.IndexModel{
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "role", Value: 1}}},
		}},
		{s.categories, []mongo.IndexModel{
			{Keys: bson.D{{Key: "slug", Value: 1}}, Options: options.Index().SetUnique(true)},
		}},
		{s.addresses, []mongo.IndexModel{
			{Keys: bson.D{{Key: "userId", Value: 1}}},
		}},
	}
	for _, set := range sets {
		if _, err := set.coll.Indexes().CreateMany(ctx, set.models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", set.coll.Name(), err)
		}
	}
	return nil
}

func (s *Store) CountProducts(ctx context.Context) (int64, error) {
	return s.products.CountDocuments(ctx, bson.M{})
}

// CountCustomers counts shoppers, excluding admins.
func (s *Store) CountCustomers(ctx context.Context) (int64, error) {
	return s.users.CountDocuments(ctx, bson.M{"role": domain.RoleUser})
}

func (s *Store) CountOrders(ctx context.Context, since time.Time) (int64, error) {
	return s.orders.CountDocuments(ctx, sinceFilter(bson.M{}, since))
}

func (s *Store) CountOrdersByStatus(ctx context.Context, status domain.OrderStatus) (int64, error) {
	return s.orders.CountDocuments(ctx, bson.M{"status": string(status)})
}

func (s *Store) SumRevenue(ctx context.Context, since time.Time) (float64, error) {
	statuses := make([]string, len(domain.RevenueStatuses))
	for i, st := range domain.RevenueStatuses {
		statuses[i] = string(st)
	}
	match := sinceFilter(bson.M{"status": bson.M{"$in": statuses}}, since)
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: "$totalAmount"}}},
		}}},
	}
	cur, err := s.orders.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, err
	}
	defer cur.Close(ctx)
	var rows []struct {
		Total float64 `bson:"total"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Total, nil
}

func sinceFilter(filter bson.M, since time.Time) bson.M {
	if !since.IsZero() {
		filter["createdAt"] = bson.M{"$gte": since}
	}
	return filter
}

type orderItemDoc struct {
	ProductID string  `bson:"productId"`
	Quantity  int     `bson:"quantity"`
	Price     float64 `bson:"price"`
}

type orderDoc struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	OrderNumber   string             `bson:"orderNumber"`
	UserID        string             `bson:"userId"`
	UserName      string             `bson:"userName,omitempty"`
	Items         []orderItemDoc     `bson:"items"`
	AddressID     string             `bson:"address"`
	TotalAmount   float64            `bson:"totalAmount"`
	PaymentMethod string             `bson:"paymentMethod"`
	Status        string             `bson:"status"`
	CreatedAt     time.Time          `bson:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt"`
}

func orderToDoc(o domain.Order) orderDoc {
	items := make([]orderItemDoc, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemDoc{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price}
	}
	return orderDoc{
		OrderNumber:   o.OrderNumber,
		UserID:        o.CustomerID,
		UserName:      o.CustomerName,
		Items:         items,
		AddressID:     o.AddressID,
		TotalAmount:   o.TotalAmount,
		PaymentMethod: o.PaymentMethod,
		Status:        string(o.Status),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

func (d orderDoc) toDomain() domain.Order {
	items := make([]domain.OrderItem, len(d.Items))
	for i, it := range d.Items {
		items[i] = domain.OrderItem{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price}
	}
	return domain.Order{
		ID:            d.ID.Hex(),
		OrderNumber:   d.OrderNumber,
		CustomerID:    d.UserID,
		CustomerName:  d.UserName,
		Items:         items,
		AddressID:     d.AddressID,
		TotalAmount:   d.TotalAmount,
		PaymentMethod: d.PaymentMethod,
		Status:        domain.OrderStatus(d.Status).Normalize(),
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

// CreateOrder stores o and returns it with its generated id.
func (s *Store) CreateOrder(ctx context.Context, o domain.Order) (domain.Order, error) {
	doc := orderToDoc(o)
	doc.ID = primitive.NewObjectID()
	if _, err := s.orders.InsertOne(ctx, doc); err != nil {
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}
	return doc.toDomain(), nil
}

// UpdateOrderStatus sets the status atomically and reports the status it replaced.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) (domain.Order, domain.OrderStatus, error) {
	id, err := primitive.ObjectIDFromHex(orderID)
	if err != nil {
		return domain.Order{}, "", ErrNotFound
	}
	now := time.Now().UTC()
	update := bson.M{"$set": bson.M{"status": string(status), "updatedAt": now}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)
	var before orderDoc
	err = s.orders.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&before)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Order{}, "", ErrNotFound
	}
	if err != nil {
		return domain.Order{}, "", fmt.Errorf("update order status: %w", err)
	}
	updated := before.toDomain()
	previous := updated.Status
	updated.Status = status
	updated.UpdatedAt = now
	return updated, previous, nil
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	id, err := primitive.ObjectIDFromHex(orderID)
	if err != nil {
		return domain.Order{}, ErrNotFound
	}
	var doc orderDoc
	err = s.orders.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Order{}, ErrNotFound
	}
	if err != nil {
		return domain.Order{}, err
	}
	return doc.toDomain(), nil
}

// ListOrders returns orders newest first. An empty userID lists every order.
func (s *Store) ListOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	filter := bson.M{}
	if userID != "" {
		filter["userId"] = userID
	}
	cur, err := s.orders.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var docs []orderDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, d := range docs {
		orders = append(orders, d.toDomain())
	}
	return orders, nil
}
