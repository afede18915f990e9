package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/foodcart/internal/domain/product"
)

const (
	productColumns = `id, name, description, price, category, image, rating_avg, rating_count, metadata, created_at, updated_at`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products ORDER BY created_at, id`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	createProductSQL = `INSERT INTO products (id, name, description, price, category, image, rating_avg, rating_count, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`

	updateProductSQL = `UPDATE products SET name = $2, description = $3, price = $4, category = $5, image = $6,
		rating_avg = $7, rating_count = $8, metadata = $9, updated_at = $10
		WHERE id = $1
		RETURNING created_at`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns the whole catalog in insertion order.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %q", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %q", id)
	}
	return &p, nil
}

// Create inserts p. CreatedAt and UpdatedAt must be set by the caller.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	meta, err := marshalMetadata(p.Metadata)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, createProductSQL,
		p.ID, p.Name, p.Description, p.Price, p.Category, p.Image,
		p.Rating.Average, p.Rating.Count, meta, p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Wrapf(product.ErrInvalid, "product %q already exists", p.ID)
		}
		return errors.Wrapf(err, "create product %q", p.ID)
	}
	return nil
}

// Update overwrites every mutable field of the product with p.ID.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	meta, err := marshalMetadata(p.Metadata)
	if err != nil {
		return err
	}
	err = r.pool.QueryRow(ctx, updateProductSQL,
		p.ID, p.Name, p.Description, p.Price, p.Category, p.Image,
		p.Rating.Average, p.Rating.Count, meta, p.UpdatedAt,
	).Scan(&p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return product.ErrNotFound
		}
		return errors.Wrapf(err, "update product %q", p.ID)
	}
	return nil
}

// Delete removes a product. Carts and orders keep their snapshots.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		return errors.Wrapf(err, "delete product %q", id)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p    product.Product
		meta []byte
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Price, &p.Category, &p.Image,
		&p.Rating.Average, &p.Rating.Count, &meta, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return product.Product{}, err
	}
	if len(meta) > 0 {
		p.Metadata = new(product.Metadata)
		if err := json.Unmarshal(meta, p.Metadata); err != nil {
			return product.Product{}, errors.Wrapf(err, "decode metadata of product %q", p.ID)
		}
	}
	return p, nil
}

func marshalMetadata(m *product.Metadata) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "encode product metadata")
	}
	return b, nil
}
