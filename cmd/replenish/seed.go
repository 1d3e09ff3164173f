package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
)

func runSeed(c *cli.Context) error {
	db, err := openDB(c)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	log.Println("Starting database seeding...")

	if err := seedProducts(ctx, tx, c.String("products-csv")); err != nil {
		return fmt.Errorf("failed to seed products: %w", err)
	}
	if err := seedDemand(ctx, tx, c.String("demand-csv")); err != nil {
		return fmt.Errorf("failed to seed demand history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Println("Database seeding completed successfully!")
	return nil
}

// seedProducts upserts the product catalog keyed by SKU. Expected columns:
// sku,name,unit_cost,selling_price,lead_time_days,shelf_life_days,
// min_order_quantity,max_order_quantity,category
func seedProducts(ctx context.Context, tx *sql.Tx, path string) error {
	log.Printf("Seeding products from %s\n", path)

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	if _, err := reader.Read(); err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}

	const query = `
		INSERT INTO products (
			sku, name, unit_cost, selling_price, lead_time_days,
			shelf_life_days, min_order_quantity, max_order_quantity, category
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (sku) DO UPDATE SET
			name = EXCLUDED.name,
			unit_cost = EXCLUDED.unit_cost,
			selling_price = EXCLUDED.selling_price,
			lead_time_days = EXCLUDED.lead_time_days,
			shelf_life_days = EXCLUDED.shelf_life_days,
			min_order_quantity = EXCLUDED.min_order_quantity,
			max_order_quantity = EXCLUDED.max_order_quantity,
			category = EXCLUDED.category
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare product statement: %w", err)
	}
	defer stmt.Close()

	rowCount := 0
	for {
		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("failed to read CSV record: %w", err)
		}
		if len(record) < 9 {
			return fmt.Errorf("invalid product record (expected 9 columns): %v", record)
		}

		unitCost, err := parseFloat(record[2])
		if err != nil {
			return fmt.Errorf("invalid unit_cost for sku %s: %w", record[0], err)
		}
		sellingPrice, err := parseFloat(record[3])
		if err != nil {
			return fmt.Errorf("invalid selling_price for sku %s: %w", record[0], err)
		}
		leadTime, _ := strconv.Atoi(strings.TrimSpace(record[4]))
		shelfLife, _ := strconv.Atoi(strings.TrimSpace(record[5]))
		minQty, _ := strconv.Atoi(strings.TrimSpace(record[6]))
		maxQty, _ := strconv.Atoi(strings.TrimSpace(record[7]))

		if _, err := stmt.ExecContext(ctx,
			strings.TrimSpace(record[0]),
			strings.TrimSpace(record[1]),
			unitCost,
			sellingPrice,
			leadTime,
			shelfLife,
			minQty,
			maxQty,
			strings.TrimSpace(record[8]),
		); err != nil {
			return fmt.Errorf("failed to upsert product %s: %w", record[0], err)
		}
		rowCount++
	}

	log.Printf("Successfully seeded products (%d records)\n", rowCount)
	return nil
}

// seedDemand inserts daily demand observations, resolving SKUs to product
// IDs. Expected columns: sku,date,quantity_demanded,quantity_fulfilled
func seedDemand(ctx context.Context, tx *sql.Tx, path string) error {
	log.Printf("Seeding demand history from %s\n", path)

	productIDs, err := loadSKUMap(ctx, tx)
	if err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	if _, err := reader.Read(); err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}

	const query = `
		INSERT INTO demand_observations (
			product_id, observed_on, quantity_demanded, quantity_fulfilled, is_forecast
		)
		VALUES ($1, $2, $3, $4, FALSE)
		ON CONFLICT (product_id, observed_on) WHERE NOT is_forecast DO NOTHING
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare demand statement: %w", err)
	}
	defer stmt.Close()

	rowCount := 0
	for {
		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("failed to read CSV record: %w", err)
		}
		if len(record) < 4 {
			return fmt.Errorf("invalid demand record (expected 4 columns): %v", record)
		}

		sku := strings.TrimSpace(record[0])
		productID, ok := productIDs[sku]
		if !ok {
			return fmt.Errorf("sku %s not found in products", sku)
		}

		date, err := time.Parse("2006-01-02", strings.TrimSpace(record[1]))
		if err != nil {
			return fmt.Errorf("invalid date for sku %s: %w", sku, err)
		}
		demanded, err := parseFloat(record[2])
		if err != nil {
			return fmt.Errorf("invalid quantity_demanded for sku %s: %w", sku, err)
		}
		fulfilled, err := parseFloat(record[3])
		if err != nil {
			return fmt.Errorf("invalid quantity_fulfilled for sku %s: %w", sku, err)
		}
		if fulfilled > demanded {
			return fmt.Errorf("fulfilled %v exceeds demanded %v for sku %s on %s", fulfilled, demanded, sku, record[1])
		}

		if _, err := stmt.ExecContext(ctx, productID, date, demanded, fulfilled); err != nil {
			return fmt.Errorf("failed to insert demand for sku %s: %w", sku, err)
		}

		rowCount++
		if rowCount%5000 == 0 {
			log.Printf("Seeded %d demand observations...", rowCount)
		}
	}

	log.Printf("Successfully seeded demand history (%d records)\n", rowCount)
	return nil
}

func loadSKUMap(ctx context.Context, tx *sql.Tx) (map[string]int64, error) {
	rows, err := tx.QueryContext(ctx, "SELECT sku, id FROM products")
	if err != nil {
		return nil, fmt.Errorf("failed to load product SKUs: %w", err)
	}
	defer rows.Close()

	result := make(map[string]int64)
	for rows.Next() {
		var (
			sku string
			id  int64
		)
		if err := rows.Scan(&sku, &id); err != nil {
			return nil, fmt.Errorf("failed to scan product SKUs: %w", err)
		}
		result[sku] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate product SKUs: %w", err)
	}
	return result, nil
}

func parseFloat(value string) (float64, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(value), ",", "")
	return strconv.ParseFloat(cleaned, 64)
}
