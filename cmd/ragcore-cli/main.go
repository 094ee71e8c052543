// Command ragcore-cli is a one-shot CLI for ad hoc question-answering
// against a tenant, bypassing the HTTP boundary entirely: it builds the
// same dig container as ragcore-server and drives the pipeline directly.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"go.uber.org/dig"

	"github.com/noteqa/ragcore/internal/config"
	"github.com/noteqa/ragcore/internal/container"
	"github.com/noteqa/ragcore/internal/database"
	"github.com/noteqa/ragcore/internal/ragpipeline"
	"github.com/noteqa/ragcore/internal/types"
	"github.com/google/uuid"
)

func main() {
	tenantID := flag.Uint64("tenant", 0, "tenant identifier to ask as")
	question := flag.String("question", "", "question to ask")
	format := flag.String("format", "", "response format set on the request (default, concise, detailed, bullet, structured); no pipeline stage reads it")
	migrationStatus := flag.Bool("migration-status", false, "print the applied migration version and exit")
	flag.Parse()

	if *migrationStatus {
		runMigrationStatus()
		return
	}

	if *tenantID == 0 || *question == "" {
		fmt.Fprintln(os.Stderr, "usage: ragcore-cli -tenant <id> -question \"...\"")
		os.Exit(2)
	}

	c := container.BuildContainer(dig.New())

	req := &types.AnswerRequest{
		TenantID:  *tenantID,
		Question:  *question,
		Format:    types.ResponseFormat(*format),
		RequestID: uuid.New().String(),
	}

	var resp *types.AnswerResponse
	err := c.Invoke(func(pipeline *ragpipeline.Pipeline) error {
		r, err := pipeline.Run(context.Background(), req)
		resp = r
		return err
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ragcore-cli: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		fmt.Fprintf(os.Stderr, "ragcore-cli: encoding response: %v\n", err)
		os.Exit(1)
	}
}

func runMigrationStatus() {
	cfg, err := config.Load(os.Getenv("RAGCORE_CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "ragcore-cli: loading config: %v\n", err)
		os.Exit(1)
	}

	version, dirty, err := database.GetMigrationVersion(cfg.Database.DSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ragcore-cli: migration status: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("version=%d dirty=%v\n", version, dirty)
}
