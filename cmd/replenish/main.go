package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func newDBURLFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "db-url",
		Usage:    "Database connection string",
		Required: true,
		EnvVars:  []string{"DATABASE_URL"},
	}
}

func openDB(c *cli.Context) (*sql.DB, error) {
	db, err := sql.Open("pgx", c.String("db-url"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("warning: could not load .env file: %v", err)
	}

	app := &cli.App{
		Name:  "replenish",
		Usage: "Operational tooling for the replenishment optimizer",
		Commands: []*cli.Command{
			{
				Name:  "seed",
				Usage: "Seed products and demand history from CSV files",
				Flags: []cli.Flag{
					newDBURLFlag(),
					&cli.StringFlag{
						Name:    "products-csv",
						Usage:   "CSV file with product catalog rows",
						Value:   "./data/seeds/products.csv",
						EnvVars: []string{"PRODUCTS_CSV"},
					},
					&cli.StringFlag{
						Name:    "demand-csv",
						Usage:   "CSV file with daily demand observations",
						Value:   "./data/seeds/demand.csv",
						EnvVars: []string{"DEMAND_CSV"},
					},
				},
				Action: runSeed,
			},
			{
				Name:  "optimize",
				Usage: "Run strategic (or tactical) optimization against the database",
				Flags: []cli.Flag{
					newDBURLFlag(),
					&cli.Int64Flag{Name: "product-id", Usage: "Optimize a single product instead of the portfolio"},
					&cli.BoolFlag{Name: "force", Usage: "Supersede the active policy even inside the cadence window"},
					&cli.BoolFlag{Name: "tactical", Usage: "Run one tactical cycle per product instead of strategic optimization"},
				},
				Action: runOptimize,
			},
			{
				Name:  "backtest",
				Usage: "Optimize a policy against a demand trace and compare it to a heuristic baseline",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "seed", Usage: "Random seed for the synthetic trace and the optimizer", Value: 42},
					&cli.IntFlag{Name: "days", Usage: "Length of the synthetic demand trace", Value: 180},
					&cli.Float64Flag{Name: "demand-mean", Usage: "Mean daily demand", Value: 20},
					&cli.Float64Flag{Name: "demand-std", Usage: "Daily demand standard deviation", Value: 6},
					&cli.IntFlag{Name: "lead-time", Usage: "Supplier lead time in days", Value: 5},
					&cli.Float64Flag{Name: "unit-cost", Usage: "Unit cost", Value: 10},
					&cli.StringFlag{Name: "out", Usage: "Write the JSON report to this file", Value: ""},
					&cli.BoolFlag{Name: "upload", Usage: "Upload the JSON report to object storage", Value: false},
				},
				Action: runBacktest,
			},
			{
				Name:  "export",
				Usage: "Export recent policies and actions as a JSON report",
				Flags: []cli.Flag{
					newDBURLFlag(),
					&cli.IntFlag{Name: "limit", Usage: "Rows per product to export", Value: 100},
					&cli.StringFlag{Name: "out", Usage: "Write the JSON report to this file", Value: ""},
					&cli.BoolFlag{Name: "upload", Usage: "Upload the JSON report to object storage", Value: false},
				},
				Action: runExport,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
