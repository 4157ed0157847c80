package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	flagBatchSize int
	flagAppend    bool
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Chunk the scraped corpus and build the vector index",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		chunks, err := newCorpus(cfg).LoadAndChunk()
		if err != nil {
			return err
		}
		if len(chunks) == 0 {
			return fmt.Errorf("no chunks found in %s", cfg.Corpus.Dir)
		}
		color.Green("✓ Loaded %d chunks from %s\n", len(chunks), cfg.Corpus.Dir)

		if !flagAppend && cfg.Index.Backend != backendPGVector {
			for _, path := range []string{cfg.Index.IndexPath, cfg.Index.MetadataPath} {
				if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("failed to remove %s: %w", path, err)
				}
			}
		}

		index, err := openIndex(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer index.Close()

		if n := index.Len(); n > 0 {
			if !flagAppend {
				return fmt.Errorf("index already holds %d chunks; drop table %s or pass --append", n, cfg.Index.TableName)
			}
			if err := index.CheckChunking(ctx, cfg.Corpus.MaxChunkWords); err != nil {
				return err
			}
		}

		bar := getProgressBar(len(chunks), " Embedding chunks")
		start := time.Now()
		failed := 0
		for _, b := range batches(len(chunks), flagBatchSize) {
			if err := ctx.Err(); err != nil {
				bar.Finish()
				return err
			}
			batch := chunks[b[0]:b[1]]
			if err := index.AddDocuments(ctx, batch); err != nil {
				logger.Error("failed to index batch", zap.Int("start", b[0]), zap.Int("size", len(batch)), zap.Error(err))
				failed += len(batch)
			}
			bar.Add(len(batch))

			rate := float64(b[1]) / time.Since(start).Seconds()
			bar.Describe(color.BlueString(" Embedding chunks (%.1f chunks/sec)", rate))
		}
		bar.Finish()

		if failed > 0 {
			color.Yellow("\n! %d chunks could not be embedded\n", failed)
		}
		color.Green("\n✓ Index holds %d chunks\n", index.Len())
		return nil
	},
}

func init() {
	indexCmd.Flags().IntVar(&flagBatchSize, "batch-size", 256, "chunks embedded per index update")
	indexCmd.Flags().BoolVar(&flagAppend, "append", false, "add to the existing index instead of rebuilding it")
	rootCmd.AddCommand(indexCmd)
}
