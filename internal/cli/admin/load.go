package admin

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/wayfarer-labs/wayfarer/internal/config"
	"github.com/wayfarer-labs/wayfarer/internal/database"
	"github.com/wayfarer-labs/wayfarer/internal/dataset"
	"github.com/wayfarer-labs/wayfarer/internal/graph"
	"github.com/wayfarer-labs/wayfarer/internal/repository"
	"github.com/wayfarer-labs/wayfarer/internal/storage"
)

// LoadCmd returns the load command
func LoadCmd() *cobra.Command {
	var fromS3 string

	cmd := &cobra.Command{
		Use:   "load [file]",
		Short: "Load a travel dataset",
		Long: "Load a travel dataset JSON into the vector index and the graph store.\n" +
			"Passages are stored without embeddings; the backfill worker embeds them\n" +
			"while the server runs.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var file string
			if len(args) > 0 {
				file = args[0]
			}
			return runLoad(file, fromS3)
		},
	}

	cmd.Flags().StringVar(&fromS3, "from-s3", "", "Fetch the dataset from this S3 object key instead of a local file")

	return cmd
}

func runLoad(file, s3Key string) error {
	ctx := context.Background()

	if file == "" && s3Key == "" {
		return fmt.Errorf("either a dataset file or --from-s3 is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	data, err := readDataset(ctx, cfg, file, s3Key)
	if err != nil {
		return err
	}

	nodes, err := dataset.Parse(data)
	if err != nil {
		return err
	}
	log.Printf("dataset parsed: %d nodes", len(nodes))

	if err := loadPassages(ctx, cfg, nodes); err != nil {
		return err
	}
	if err := loadGraph(ctx, cfg, nodes); err != nil {
		return err
	}

	log.Println("dataset load complete")
	return nil
}

func readDataset(ctx context.Context, cfg *config.Config, file, s3Key string) ([]byte, error) {
	if s3Key == "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read dataset file: %w", err)
		}
		return data, nil
	}

	if !cfg.HasS3() {
		return nil, fmt.Errorf("--from-s3 requires S3 credentials in the environment")
	}

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKey,
		SecretAccessKey: cfg.S3SecretKey,
		Bucket:          cfg.S3Bucket,
		UsePathStyle:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	log.Printf("fetching dataset s3://%s/%s", cfg.S3Bucket, s3Key)
	return s3Client.FetchObject(ctx, s3Key)
}

func loadPassages(ctx context.Context, cfg *config.Config, nodes []dataset.Node) error {
	pool, err := database.NewPoolFromURL(ctx, cfg.DatabaseURL, database.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	passageRepo := repository.NewPassageRepository(pool)
	passages := dataset.Passages(nodes)

	for _, passage := range passages {
		if err := passageRepo.Upsert(ctx, passage); err != nil {
			return fmt.Errorf("failed to upsert passage %s: %w", passage.ID, err)
		}
	}

	log.Printf("upserted %d passages (embeddings deferred to backfill)", len(passages))
	return nil
}

func loadGraph(ctx context.Context, cfg *config.Config, nodes []dataset.Node) error {
	if !cfg.HasNeo4j() {
		log.Println("NEO4J_URI not set, skipping graph load")
		return nil
	}

	graphClient, err := graph.NewClient(ctx, graph.Config{
		URI:      cfg.Neo4jURI,
		User:     cfg.Neo4jUser,
		Password: cfg.Neo4jPassword,
		Database: cfg.Neo4jDatabase,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to neo4j: %w", err)
	}
	defer graphClient.Close(ctx)

	if err := graphClient.EnsureConstraints(ctx); err != nil {
		return fmt.Errorf("failed to ensure graph constraints: %w", err)
	}

	entities := dataset.Entities(nodes)
	if err := graphClient.UpsertEntities(ctx, entities); err != nil {
		return fmt.Errorf("failed to upsert entities: %w", err)
	}
	log.Printf("upserted %d entities", len(entities))

	relations := dataset.Relations(nodes)
	if err := graphClient.UpsertRelations(ctx, relations); err != nil {
		return fmt.Errorf("failed to upsert relations: %w", err)
	}
	log.Printf("upserted %d relations", len(relations))

	return nil
}
