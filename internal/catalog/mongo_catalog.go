package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/shopcart/internal/domain"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// productDocument is the stored shape of a product. The database handle
// must carry a registry that knows how to encode decimal.Decimal.
type productDocument struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty"`
	Name                string             `bson:"name"`
	SKU                 string             `bson:"sku"`
	IsActive            bool               `bson:"is_active"`
	BaseStock           int                `bson:"base_stock"`
	BasePrice           decimal.Decimal    `bson:"base_price"`
	BaseDiscountedPrice *decimal.Decimal   `bson:"base_discounted_price,omitempty"`
	Images              []string           `bson:"images"`
	BaseAttributes      domain.Attributes  `bson:"base_attributes"`
	Variants            []domain.Variant   `bson:"variants"`
}

func (d *productDocument) toDomain() *domain.Product {
	return &domain.Product{
		ID:                  d.ID.Hex(),
		Name:                d.Name,
		SKU:                 d.SKU,
		IsActive:            d.IsActive,
		BaseStock:           d.BaseStock,
		BasePrice:           d.BasePrice,
		BaseDiscountedPrice: d.BaseDiscountedPrice,
		Images:              d.Images,
		BaseAttributes:      d.BaseAttributes,
		Variants:            d.Variants,
	}
}

// MongoCatalog reads products from the "products" collection.
type MongoCatalog struct {
	collection *mongo.Collection
}

func NewMongoCatalog(db *mongo.Database) *MongoCatalog {
	return &MongoCatalog{collection: db.Collection("products")}
}

func (m *MongoCatalog) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrProductNotFound
	}
	return m.findOne(ctx, bson.M{"_id": oid})
}

func (m *MongoCatalog) FindBySku(ctx context.Context, sku string) (*domain.Product, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"sku": sku},
		bson.M{"variants.sku": sku},
	}}
	return m.findOne(ctx, filter)
}

func (m *MongoCatalog) findOne(ctx context.Context, filter bson.M) (*domain.Product, error) {
	var doc productDocument
	err := m.collection.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product: %w", err)
	}
	return doc.toDomain(), nil
}

// Insert stores a new product and returns its generated ID. Used to seed
// the catalog; product management lives outside this service.
func (m *MongoCatalog) Insert(ctx context.Context, p *domain.Product) (string, error) {
	doc := productDocument{
		Name:                p.Name,
		SKU:                 p.SKU,
		IsActive:            p.IsActive,
		BaseStock:           p.BaseStock,
		BasePrice:           p.BasePrice,
		BaseDiscountedPrice: p.BaseDiscountedPrice,
		Images:              p.Images,
		BaseAttributes:      p.BaseAttributes,
		Variants:            p.Variants,
	}
	if doc.Images == nil {
		doc.Images = []string{}
	}
	if doc.Variants == nil {
		doc.Variants = []domain.Variant{}
	}

	res, err := m.collection.InsertOne(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("failed to insert product: %w", err)
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	return oid.Hex(), nil
}

func (m *MongoCatalog) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "sku", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "variants.sku", Value: 1}},
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}
